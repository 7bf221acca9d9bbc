// Package text provides the components that produce, read, write and
// convert text: the usual sources and sinks of a flow.
package text

import (
	"context"
	"fmt"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

const (
	portText     = "text"
	portLocation = "location"
	portHTML     = "html"
)

// PushTextDescriptor describes PushText.
var PushTextDescriptor = component.Descriptor{
	Name:        "PushText",
	Description: "Pushes a message a number of times, optionally wrapped in a stream",
	Outputs:     []string{portText},
	Properties: map[string]string{
		"message":     "Hello World!",
		"times":       "1",
		"wrap_stream": "false",

		component.PropStreamID: "0",
	},
}

// PushText is a source: it fires once per run.
type PushText struct {
	message  string
	times    int
	wrap     bool
	streamID int
}

// NewPushText creates the component.
func NewPushText() component.Component { return &PushText{} }

func (p *PushText) Initialize(_ context.Context, props *component.Properties) error {
	var cfg struct {
		Message  string `prop:"message"`
		Times    int    `prop:"times"`
		Wrap     bool   `prop:"wrap_stream"`
		StreamID int    `prop:"_stream_id"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}
	if cfg.Times < 0 {
		return fmt.Errorf("property times: must not be negative, got %d", cfg.Times)
	}
	p.message, p.times, p.wrap, p.streamID = cfg.Message, cfg.Times, cfg.Wrap, cfg.StreamID
	return nil
}

func (p *PushText) Execute(ctx context.Context, cc *component.Context) error {
	if p.message == "" {
		cc.Logger().Warn("pushing the empty string")
	}
	if p.wrap {
		cc.Logger().Debug("pushing stream initiator", "stream_id", p.streamID)
		if err := cc.Push(portText, component.NewStreamInitiator(p.streamID)); err != nil {
			return err
		}
	}
	for range p.times {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cc.Push(portText, datatypes.NewStrings(p.message)); err != nil {
			return err
		}
	}
	if p.wrap {
		return cc.Push(portText, component.NewStreamTerminator(p.streamID))
	}
	return nil
}

func (p *PushText) Dispose(context.Context) error { return nil }
