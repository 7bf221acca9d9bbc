package tuples

import (
	"context"
	"fmt"
	"regexp"
	"runtime"

	"go.starlark.net/starlark"

	starexpr "github.com/seasr/flowkit/internal/starlark"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/tuple"
)

// TupleValueFilterDescriptor describes TupleValueFilter.
var TupleValueFilterDescriptor = component.Descriptor{
	Name:        "TupleValueFilter",
	Description: "Keeps the tuples whose field value fully matches a regular expression",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"tupleFilterField": "",
		"filter_regex":     "",
	},
}

// TupleValueFilter drops tuples whose field does not match. An empty
// expression keeps everything.
type TupleValueFilter struct {
	field string
	re    *regexp.Regexp
}

// NewTupleValueFilter creates the component.
func NewTupleValueFilter() component.Component { return &TupleValueFilter{} }

func (c *TupleValueFilter) Initialize(_ context.Context, props *component.Properties) error {
	field, err := props.Required("tupleFilterField")
	if err != nil {
		return err
	}
	c.field = field
	c.re = nil
	if expr := props.String("filter_regex"); expr != "" {
		re, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return fmt.Errorf("property filter_regex: %w", err)
		}
		c.re = re
	}
	return nil
}

func (c *TupleValueFilter) Execute(_ context.Context, cc *component.Context) error {
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}
	idx := peer.Index(c.field)
	if idx < 0 {
		return fmt.Errorf("no field named %q in %s", c.field, peer)
	}
	if c.re == nil {
		return pushTuples(cc, peer, tuples)
	}

	kept := tuples[:0]
	for _, t := range tuples {
		if c.re.MatchString(t.Value(idx)) {
			kept = append(kept, t)
		}
	}
	cc.Logger().Debug("filtered tuples", "in", len(tuples), "out", len(kept))
	return pushTuples(cc, peer, kept)
}

func (c *TupleValueFilter) Dispose(context.Context) error { return nil }

// TupleExpressionFilterDescriptor describes TupleExpressionFilter.
var TupleExpressionFilterDescriptor = component.Descriptor{
	Name:        "TupleExpressionFilter",
	Description: "Keeps the tuples for which a Starlark expression over the fields is true",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"expression":  "",
		"parallelism": "0",
		"macros_dir":  "",
	},
}

// TupleExpressionFilter evaluates a Starlark expression once per tuple.
// Fields are bound by name; row["field name"] reaches any field. The .star
// files of macros_dir are available as modules named after each file.
type TupleExpressionFilter struct {
	exec *starexpr.ParallelExecutor
}

// NewTupleExpressionFilter creates the component.
func NewTupleExpressionFilter() component.Component { return &TupleExpressionFilter{} }

func (c *TupleExpressionFilter) Initialize(_ context.Context, props *component.Properties) error {
	src, err := props.Required("expression")
	if err != nil {
		return err
	}
	parallelism, err := props.Int("parallelism")
	if err != nil {
		return err
	}
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	var macros starlark.StringDict
	if dir := props.String("macros_dir"); dir != "" {
		if macros, err = starexpr.LoadMacros(dir); err != nil {
			return err
		}
	}

	expr, err := starexpr.CompileWithMacros("expression", src, macros)
	if err != nil {
		return err
	}
	c.exec = starexpr.NewParallelExecutor(expr, parallelism)
	return nil
}

func (c *TupleExpressionFilter) Execute(_ context.Context, cc *component.Context) error {
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}

	vars := make([]starlark.StringDict, len(tuples))
	for i, t := range tuples {
		vars[i] = starexpr.TupleVars(t)
	}

	var kept []*tuple.Tuple
	for i, res := range c.exec.Execute(vars) {
		if res.Error != nil {
			return fmt.Errorf("tuple %d: %w", i, res.Error)
		}
		if res.Value.Truth() {
			kept = append(kept, tuples[i])
		}
	}
	return pushTuples(cc, peer, kept)
}

func (c *TupleExpressionFilter) Dispose(context.Context) error { return nil }

// UniqueTupleFilterDescriptor describes UniqueTupleFilter.
var UniqueTupleFilterDescriptor = component.Descriptor{
	Name:        "UniqueTupleFilter",
	Description: "Splits tuples into those seen for the first time and duplicates, keyed on one field",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portMeta, "unique_tuples", "duplicate_tuples"},
	Properties: map[string]string{
		"attribute":  "",
		"per_stream": "true",
	},
}

// UniqueTupleFilter remembers the values of one field across firings. With
// per_stream the memory is reset whenever a stream starts.
type UniqueTupleFilter struct {
	attribute string
	perStream bool
	seen      map[string]struct{}
	streaming bool
}

// NewUniqueTupleFilter creates the component.
func NewUniqueTupleFilter() component.Component { return &UniqueTupleFilter{} }

func (c *UniqueTupleFilter) Initialize(_ context.Context, props *component.Properties) error {
	attribute, err := props.Required("attribute")
	if err != nil {
		return err
	}
	perStream, err := props.Bool("per_stream")
	if err != nil {
		return err
	}
	c.attribute = attribute
	c.perStream = perStream
	c.seen = make(map[string]struct{})
	c.streaming = false
	return nil
}

func (c *UniqueTupleFilter) Execute(_ context.Context, cc *component.Context) error {
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}
	idx := peer.Index(c.attribute)
	if idx < 0 {
		return fmt.Errorf("no field named %q in %s", c.attribute, peer)
	}
	if c.perStream && !c.streaming {
		cc.Logger().Debug("per_stream is set but no stream is open, deduplicating across firings")
	}

	var unique, duplicates []*tuple.Tuple
	for _, t := range tuples {
		key := t.Value(idx)
		if _, ok := c.seen[key]; ok {
			duplicates = append(duplicates, t)
			continue
		}
		c.seen[key] = struct{}{}
		unique = append(unique, t)
	}

	if err := cc.Push(portMeta, peer.Strings()); err != nil {
		return err
	}
	if err := cc.Push("duplicate_tuples", tuple.Encode(duplicates)); err != nil {
		return err
	}
	return cc.Push("unique_tuples", tuple.Encode(unique))
}

func (c *UniqueTupleFilter) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	if c.perStream {
		clear(c.seen)
	}
	c.streaming = true
	return c.forward(cc, cc.InputsWithInitiators())
}

func (c *UniqueTupleFilter) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	c.streaming = false
	return c.forward(cc, cc.InputsWithTerminators())
}

func (c *UniqueTupleFilter) forward(cc *component.Context, ports []string) error {
	return cc.PushAll(cc.Input(ports[0]))
}

func (c *UniqueTupleFilter) Dispose(context.Context) error { return nil }
