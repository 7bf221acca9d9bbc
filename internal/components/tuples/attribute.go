package tuples

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// AddTupleAttributeDescriptor describes AddTupleAttribute.
var AddTupleAttributeDescriptor = component.Descriptor{
	Name:        "AddTupleAttribute",
	Description: "Appends a field holding the attribute input to every tuple",
	Inputs:      []string{portTuples, portMeta, "attribute"},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"attribute_name": "",
	},
}

// AddTupleAttribute extends the peer with one field.
type AddTupleAttribute struct {
	name string
}

// NewAddTupleAttribute creates the component.
func NewAddTupleAttribute() component.Component { return &AddTupleAttribute{} }

func (c *AddTupleAttribute) Initialize(_ context.Context, props *component.Properties) error {
	name, err := props.Required("attribute_name")
	if err != nil {
		return err
	}
	c.name = name
	return nil
}

func (c *AddTupleAttribute) Execute(_ context.Context, cc *component.Context) error {
	value, err := datatypes.ParseAsString(cc.Input("attribute"))
	if err != nil {
		return fmt.Errorf("attribute: %w", err)
	}
	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}

	outPeer := tuple.Extend(peer, c.name)
	last := outPeer.Size() - 1
	out := make([]*tuple.Tuple, len(tuples))
	for i, t := range tuples {
		o := outPeer.NewTuple()
		o.SetFrom(t)
		o.SetValue(last, value)
		out[i] = o
	}
	return pushTuples(cc, outPeer, out)
}

func (c *AddTupleAttribute) Dispose(context.Context) error { return nil }

// TupleLoggerDescriptor describes TupleLogger.
var TupleLoggerDescriptor = component.Descriptor{
	Name:        "TupleLogger",
	Description: "Logs tuples and forwards them unchanged",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"columnSet": "",
	},
}

// TupleLogger logs each tuple, or only the columns listed in columnSet.
type TupleLogger struct {
	columns []int
}

// NewTupleLogger creates the component.
func NewTupleLogger() component.Component { return &TupleLogger{} }

func (c *TupleLogger) Initialize(_ context.Context, props *component.Properties) error {
	c.columns = nil
	for _, s := range props.List("columnSet", ",") {
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("property columnSet: %w", err)
		}
		c.columns = append(c.columns, i)
	}
	return nil
}

func (c *TupleLogger) Execute(_ context.Context, cc *component.Context) error {
	meta, err := datatypes.ParseAsStrings(cc.Input(portMeta))
	if err != nil {
		return fmt.Errorf("tuple meta: %w", err)
	}
	peer := tuple.NewPeer(meta...)

	var records []*datatypes.Strings
	switch in := cc.Input(portTuples).(type) {
	case *datatypes.Strings:
		records = []*datatypes.Strings{in}
	default:
		batch, err := datatypes.ParseAsStringsArray(in)
		if err != nil {
			return err
		}
		records = batch.Value
	}

	logger := cc.Logger()
	logger.Info("tuple peer", "fields", peer.String())
	for _, rec := range records {
		if c.columns == nil {
			logger.Info("tuple", "values", strings.Join(rec.Value, ","))
			continue
		}
		values := make([]string, 0, len(c.columns))
		for _, idx := range c.columns {
			if idx < 0 || idx >= peer.Size() {
				logger.Warn("column index beyond tuple fields", "index", idx, "fields", peer.Size())
				continue
			}
			values = append(values, rec.Get(idx))
		}
		logger.Info("tuple", "values", strings.Join(values, ","))
	}

	if err := cc.Push(portTuples, cc.Input(portTuples)); err != nil {
		return err
	}
	return cc.Push(portMeta, cc.Input(portMeta))
}

func (c *TupleLogger) Dispose(context.Context) error { return nil }
