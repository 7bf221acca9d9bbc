package tuples

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

const portJSON = "json"

// ErrNestedJSON is returned when a JSON object holds arrays or objects.
var ErrNestedJSON = errors.New("only flat JSON arrays can be converted to tuples")

// TupleToJSONDescriptor describes TupleToJSON.
var TupleToJSONDescriptor = component.Descriptor{
	Name:        "TupleToJSON",
	Description: "Converts tuples into JSON keyed on the field names",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portJSON},
	Properties: map[string]string{
		"compact_output": "true",
		"indent_output":  "false",
	},
}

// TupleToJSON renders a batch either column-major ({"field": [values]})
// when compact, or as an array of objects.
type TupleToJSON struct {
	compact bool
	indent  bool
}

// NewTupleToJSON creates the component.
func NewTupleToJSON() component.Component { return &TupleToJSON{} }

func (c *TupleToJSON) Initialize(_ context.Context, props *component.Properties) error {
	var cfg struct {
		Compact bool `prop:"compact_output"`
		Indent  bool `prop:"indent_output"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}
	c.compact, c.indent = cfg.Compact, cfg.Indent
	return nil
}

func (c *TupleToJSON) Execute(_ context.Context, cc *component.Context) error {
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}

	var doc any
	if c.compact {
		columns := make(map[string][]string, peer.Size())
		for i, name := range peer.Fields() {
			values := make([]string, len(tuples))
			for j, t := range tuples {
				values[j] = t.Value(i)
			}
			columns[name] = values
		}
		doc = columns
	} else {
		rows := make([]map[string]string, len(tuples))
		for j, t := range tuples {
			row := make(map[string]string, peer.Size())
			for i, name := range peer.Fields() {
				row[name] = t.Value(i)
			}
			rows[j] = row
		}
		doc = rows
	}

	var out []byte
	if c.indent {
		out, err = json.MarshalIndent(doc, "", "   ")
	} else {
		out, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("encode tuples: %w", err)
	}
	return cc.Push(portJSON, datatypes.NewStrings(string(out)))
}

func (c *TupleToJSON) Dispose(context.Context) error { return nil }

// JSONToTupleDescriptor describes JSONToTuple.
var JSONToTupleDescriptor = component.Descriptor{
	Name:        "JSONToTuple",
	Description: "Converts a flat JSON array of objects into tuples",
	Inputs:      []string{portJSON},
	Outputs:     []string{portTuples, portMeta},
}

// JSONToTuple builds one tuple per object. The peer is the sorted union of
// the object keys; missing keys stay empty.
type JSONToTuple struct{}

// NewJSONToTuple creates the component.
func NewJSONToTuple() component.Component { return &JSONToTuple{} }

func (c *JSONToTuple) Initialize(context.Context, *component.Properties) error { return nil }

func (c *JSONToTuple) Execute(_ context.Context, cc *component.Context) error {
	src, err := datatypes.ParseAsString(cc.Input(portJSON))
	if err != nil {
		return err
	}
	peer, tuples, err := ParseJSONTuples([]byte(src))
	if err != nil {
		return err
	}
	return pushTuples(cc, peer, tuples)
}

func (c *JSONToTuple) Dispose(context.Context) error { return nil }

// ParseJSONTuples decodes a JSON array of flat objects. Numbers keep their
// literal text, booleans become "true"/"false" and null becomes "".
func ParseJSONTuples(data []byte) (*tuple.Peer, []*tuple.Tuple, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []map[string]any
	if err := dec.Decode(&objects); err != nil {
		return nil, nil, fmt.Errorf("decode json: %w", err)
	}

	fieldSet := make(map[string]struct{})
	for i, obj := range objects {
		for k, v := range obj {
			switch v.(type) {
			case map[string]any, []any:
				return nil, nil, fmt.Errorf("object %d, key %q: %w", i, k, ErrNestedJSON)
			}
			fieldSet[k] = struct{}{}
		}
	}
	fields := make([]string, 0, len(fieldSet))
	for k := range fieldSet {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	peer := tuple.NewPeer(fields...)
	tuples := make([]*tuple.Tuple, 0, len(objects))
	for _, obj := range objects {
		t := peer.NewTuple()
		for k, v := range obj {
			_ = t.Set(k, jsonScalar(v))
		}
		tuples = append(tuples, t)
	}
	return peer, tuples, nil
}

func jsonScalar(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(val)
	}
}
