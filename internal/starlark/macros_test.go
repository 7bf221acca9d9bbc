package starlark

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

func writeMacro(t *testing.T, dir, name, src string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600))
}

func TestLoadMacros(t *testing.T) {
	tests := []struct {
		name      string
		setupDir  func(t *testing.T) string
		wantNames []string
		wantErr   string
	}{
		{
			name:     "missing directory",
			setupDir: func(*testing.T) string { return "/nonexistent/macros" },
		},
		{
			name: "not a directory",
			setupDir: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "macros")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
				return path
			},
			wantErr: "not a directory",
		},
		{
			name: "one module per file",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				writeMacro(t, dir, "text.star", "def shout(s):\n    return s.upper()\n")
				writeMacro(t, dir, "geo.star", "def near(a, b):\n    return abs(num(a) - num(b)) < 1\n")
				writeMacro(t, dir, "notes.txt", "ignored")
				return dir
			},
			wantNames: []string{"geo", "text"},
		},
		{
			name: "execution error",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				writeMacro(t, dir, "bad.star", "x = undefined_name\n")
				return dir
			},
			wantErr: "macros/bad.star",
		},
		{
			name: "invalid namespace",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				writeMacro(t, dir, "my-macros.star", "x = 1\n")
				return dir
			},
			wantErr: `invalid namespace "my-macros"`,
		},
		{
			name: "namespace shadows builtin",
			setupDir: func(t *testing.T) string {
				dir := t.TempDir()
				writeMacro(t, dir, "num.star", "x = 1\n")
				return dir
			},
			wantErr: "shadows a builtin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			macros, err := LoadMacros(tt.setupDir(t))
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var names []string
			for name := range macros {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.wantNames, names)
		})
	}
}

func TestLoadMacros_PrivateNames(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "utils.star", "_suffix = '!'\ndef greet(name):\n    return 'Hello, ' + name + _suffix\n")

	macros, err := LoadMacros(dir)
	require.NoError(t, err)
	mod, ok := macros["utils"].(*starlarkstruct.Module)
	require.True(t, ok)
	assert.Contains(t, mod.Members, "greet")
	assert.NotContains(t, mod.Members, "_suffix")
}

func TestCompileWithMacros(t *testing.T) {
	dir := t.TempDir()
	writeMacro(t, dir, "geo.star", "def in_box(lat, lon):\n    return 40 <= num(lat) <= 41 and -89 <= num(lon) <= -88\n")
	macros, err := LoadMacros(dir)
	require.NoError(t, err)

	expr, err := CompileWithMacros("expression", "geo.in_box(lat, lon)", macros)
	require.NoError(t, err)

	inside := newTuple(t, []string{"lat", "lon"}, "40.11", "-88.24")
	outside := newTuple(t, []string{"lat", "lon"}, "51.5", "-0.12")

	ok, err := expr.Truth(TupleVars(inside))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = expr.Truth(TupleVars(outside))
	require.NoError(t, err)
	assert.False(t, ok)

	// a field named like a macro module wins
	shadow := newTuple(t, []string{"geo"}, "x")
	_, err = expr.Eval(TupleVars(shadow))
	assert.Error(t, err)

	results := NewParallelExecutor(expr, 2).Execute([]starlark.StringDict{TupleVars(inside), TupleVars(outside)})
	require.Len(t, results, 2)
	assert.Equal(t, starlark.True, results[0].Value)
	assert.Equal(t, starlark.False, results[1].Value)
}
