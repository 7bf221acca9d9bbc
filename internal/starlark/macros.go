package starlark

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// LoadMacros executes every .star file of dir and returns one module per
// file, named after the file: utils.star defining clean(s) is called as
// utils.clean(s). Names starting with an underscore stay private. A
// missing directory yields no macros.
func LoadMacros(dir string) (starlark.StringDict, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}

	modules := make(starlark.StringDict, len(files))
	for _, file := range files {
		mod, err := loadMacroFile(file)
		if err != nil {
			return nil, err
		}
		if _, clash := builtins[mod.Name]; clash {
			return nil, &MacroError{File: file, Message: fmt.Sprintf("namespace %q shadows a builtin", mod.Name)}
		}
		modules[mod.Name] = mod
	}
	return modules, nil
}

func loadMacroFile(path string) (*starlarkstruct.Module, error) {
	content, err := os.ReadFile(path) //nolint:gosec // path comes from a glob of the macros directory
	if err != nil {
		return nil, &MacroError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	namespace := strings.TrimSuffix(filepath.Base(path), ".star")
	if !identifierRe.MatchString(namespace) || namespace == RowVar {
		return nil, &MacroError{File: path, Message: fmt.Sprintf("invalid namespace %q", namespace)}
	}

	thread := &starlark.Thread{
		Name:  "load:" + namespace,
		Print: func(*starlark.Thread, string) {},
	}
	globals, err := starlark.ExecFileOptions(fileOptions, thread, path, content, builtins)
	if err != nil {
		return nil, &MacroError{File: path, Message: err.Error()}
	}
	// expressions call macros from many goroutines
	globals.Freeze()

	exports := make(starlark.StringDict, len(globals))
	for name, value := range globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}
	return &starlarkstruct.Module{Name: namespace, Members: exports}, nil
}

// MacroError is a macro file that could not be loaded.
type MacroError struct {
	File    string
	Message string
}

func (e *MacroError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
