// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/seasr/flowkit/internal/cli/output"
)

// HelloFlow writes the text "hello flowkit" into the file named by the
// path instance.
const HelloFlow = `name: hello
description: writes a greeting to a file
components:
  - id: path
    type: PushText
    properties:
      message: %s
  - id: greeting
    type: PushText
    properties:
      message: hello flowkit
  - id: write
    type: WriteText
connections:
  - from: path.text
    to: write.location
  - from: greeting.text
    to: write.text
`

// Project is a temporary flowkit project.
type Project struct {
	Root     string
	FlowsDir string
	// OutFile is where the hello flow writes its greeting.
	OutFile string
}

// SetupTestProject creates a temporary project with a flowkit.yaml and the
// hello flow in its flows directory.
func SetupTestProject(t *testing.T) *Project {
	t.Helper()

	root := t.TempDir()
	p := &Project{
		Root:     root,
		FlowsDir: filepath.Join(root, "flows"),
		OutFile:  filepath.Join(root, "out", "greeting.txt"),
	}

	if err := os.MkdirAll(p.FlowsDir, 0o755); err != nil {
		t.Fatalf("failed to create flows directory: %v", err)
	}
	WriteFile(t, filepath.Join(root, "flowkit.yaml"), "flows_dir: flows\nstate_path: .flowkit/state.db\n")
	WriteFile(t, filepath.Join(p.FlowsDir, "hello.yaml"), fmt.Sprintf(HelloFlow, p.OutFile))
	return p
}

// WriteFile writes content to path or fails the test.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.Mode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ErrorOutput returns the stderr output as a string.
func (tr *TestRenderer) ErrorOutput() string {
	return tr.ErrOut.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}
