package control

import (
	"context"
	"fmt"
	"net/url"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// DataTypeDecoderDescriptor describes DataTypeDecoder.
var DataTypeDecoderDescriptor = component.Descriptor{
	Name:        "DataTypeDecoder",
	Description: "Routes locations, text and raw bytes to separate outputs",
	Inputs:      []string{"data"},
	Outputs:     []string{"location", "text", "raw_data"},
}

// DataTypeDecoder routes its input by type. Stream initiators are held
// back until the first value tells which output the stream belongs to.
type DataTypeDecoder struct {
	pending component.Delimiter
	port    string
}

// NewDataTypeDecoder creates the component.
func NewDataTypeDecoder() component.Component { return &DataTypeDecoder{} }

func (d *DataTypeDecoder) Initialize(context.Context, *component.Properties) error { return nil }

func (d *DataTypeDecoder) Execute(_ context.Context, cc *component.Context) error {
	data := cc.Input("data")
	switch data.(type) {
	case *url.URL, url.URL:
		d.port = "location"
	case string, []string, *datatypes.Strings:
		d.port = "text"
	case []byte:
		d.port = "raw_data"
	default:
		return fmt.Errorf("%w: %T", datatypes.ErrUnsupportedType, data)
	}

	if err := d.flushPending(cc, d.port); err != nil {
		return err
	}
	return cc.Push(d.port, data)
}

func (d *DataTypeDecoder) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	d.pending = cc.Input("data").(component.Delimiter)
	return nil
}

func (d *DataTypeDecoder) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	st := cc.Input("data")
	port := d.port
	if port == "" {
		if d.pending == nil {
			cc.Logger().Error("stream terminator received with no initiator, ignoring it")
			return nil
		}
		// empty stream: close it on the first connected output
		outs := cc.ConnectedOutputs()
		if len(outs) == 0 {
			d.pending = nil
			return nil
		}
		port = outs[0]
	}
	if err := d.flushPending(cc, port); err != nil {
		return err
	}
	return cc.Push(port, st)
}

func (d *DataTypeDecoder) flushPending(cc *component.Context, port string) error {
	if d.pending == nil {
		return nil
	}
	si := d.pending
	d.pending = nil
	return cc.Push(port, si)
}

func (d *DataTypeDecoder) Dispose(context.Context) error { return nil }
