package text

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// WriteTextDescriptor describes WriteText.
var WriteTextDescriptor = component.Descriptor{
	Name:        "WriteText",
	Description: "Writes text to a file and forwards the location and the text",
	Inputs:      []string{portLocation, portText},
	Outputs:     []string{portLocation, portText},
	Properties: map[string]string{
		"append":      "false",
		"create_dirs": "true",
	},
}

// WriteText writes every text it receives to the paired location.
type WriteText struct {
	append     bool
	createDirs bool
}

// NewWriteText creates the component.
func NewWriteText() component.Component { return &WriteText{} }

func (w *WriteText) Initialize(_ context.Context, props *component.Properties) error {
	var err error
	if w.append, err = props.Bool("append"); err != nil {
		return err
	}
	if w.createDirs, err = props.Bool("create_dirs"); err != nil {
		return err
	}
	return nil
}

func (w *WriteText) Execute(_ context.Context, cc *component.Context) error {
	location, err := datatypes.ParseAsString(cc.Input(portLocation))
	if err != nil {
		return err
	}
	texts, err := datatypes.ParseAsStrings(cc.Input(portText))
	if err != nil {
		return err
	}

	path := location
	if u, err := url.Parse(location); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	if err := w.write(path, texts); err != nil {
		return fmt.Errorf("write %s: %w", location, err)
	}
	cc.Logger().Debug("wrote text", "path", path, "append", w.append)

	if err := cc.Push(portLocation, datatypes.NewStrings(location)); err != nil {
		return err
	}
	return cc.Push(portText, cc.Input(portText))
}

func (w *WriteText) write(path string, texts []string) (err error) {
	if w.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if w.append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	for _, t := range texts {
		if _, err := f.WriteString(t); err != nil {
			return err
		}
	}
	return nil
}

func (w *WriteText) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	return w.pushDelimiters(cc)
}

func (w *WriteText) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	return w.pushDelimiters(cc)
}

// pushDelimiters forwards paired delimiters. A delimiter arriving next to
// data is reused on both outputs to keep the streams balanced.
func (w *WriteText) pushDelimiters(cc *component.Context) error {
	loc, locOK := cc.Input(portLocation).(component.Delimiter)
	doc, docOK := cc.Input(portText).(component.Delimiter)

	switch {
	case locOK && docOK:
		if err := cc.Push(portLocation, loc); err != nil {
			return err
		}
		return cc.Push(portText, doc)
	case locOK:
		cc.Logger().Warn("misaligned delimiters received, reusing the location delimiter")
		doc = loc
	default:
		cc.Logger().Warn("misaligned delimiters received, reusing the text delimiter")
		loc = doc
	}
	if err := cc.Push(portLocation, loc); err != nil {
		return err
	}
	return cc.Push(portText, component.CloneDelimiter(doc))
}

func (w *WriteText) Dispose(context.Context) error { return nil }
