package component

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Guarded wraps a component with the host behaviour shared by every
// component: stream delimiter dispatch and the ignore_errors policy.
type Guarded struct {
	inner        Component
	desc         Descriptor
	ignoreErrors bool
	streamID     int
	hasStreamID  bool
}

// Wrap returns c guarded by the host behaviour for its descriptor.
func Wrap(c Component, desc Descriptor) *Guarded {
	return &Guarded{inner: c, desc: desc}
}

// Unwrap returns the wrapped component.
func (g *Guarded) Unwrap() Component { return g.inner }

// IgnoreErrors reports whether execute errors are swallowed.
func (g *Guarded) IgnoreErrors() bool { return g.ignoreErrors }

// StreamID returns the component's own stream id and whether one is set.
func (g *Guarded) StreamID() (int, bool) { return g.streamID, g.hasStreamID }

// Initialize reads the common properties and initializes the component.
func (g *Guarded) Initialize(ctx context.Context, props *Properties) error {
	ignore, err := props.Bool(PropIgnoreErrors)
	if err != nil {
		return err
	}
	g.ignoreErrors = ignore

	if raw := strings.TrimSpace(props.String(PropStreamID)); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("property %s: %w", PropStreamID, err)
		}
		g.streamID, g.hasStreamID = id, true
	}

	return g.inner.Initialize(ctx, props)
}

// Execute runs one firing. Errors are logged; with ignore_errors set they
// are swallowed, otherwise returned.
func (g *Guarded) Execute(ctx context.Context, cc *Context) error {
	err := g.fire(ctx, cc)
	if err == nil {
		return nil
	}
	cc.Logger().Error("component execution failed", "error", err, "ignored", g.ignoreErrors)
	if g.ignoreErrors {
		return nil
	}
	return err
}

// Dispose releases the component.
func (g *Guarded) Dispose(ctx context.Context) error {
	return g.inner.Dispose(ctx)
}

func (g *Guarded) fire(ctx context.Context, cc *Context) error {
	if ports := cc.InputsWithInitiators(); len(ports) > 0 {
		if sh, ok := g.inner.(StreamHandler); ok {
			return sh.HandleStreamInitiators(ctx, cc)
		}
		return g.handleDelimiters(ctx, cc, ports, true)
	}
	if ports := cc.InputsWithTerminators(); len(ports) > 0 {
		if sh, ok := g.inner.(StreamHandler); ok {
			return sh.HandleStreamTerminators(ctx, cc)
		}
		return g.handleDelimiters(ctx, cc, ports, false)
	}
	return g.inner.Execute(ctx, cc)
}

func (g *Guarded) handleDelimiters(ctx context.Context, cc *Context, ports []string, start bool) error {
	if g.desc.Policy() == FireAll && len(ports) != len(cc.AvailableInputs()) {
		return fmt.Errorf("stream delimiters must arrive on all input ports at the same time (got %v of %v)",
			ports, cc.AvailableInputs())
	}

	d := cc.Input(ports[0]).(Delimiter)
	if g.hasStreamID && d.StreamID() == g.streamID {
		acc, ok := g.inner.(Accumulator)
		if !ok {
			return fmt.Errorf("stream id conflict: incoming stream has the same id (%d) as component %s",
				g.streamID, g.desc.Name)
		}
		var err error
		if start {
			err = acc.StartStream(ctx, cc)
		} else {
			err = acc.EndStream(ctx, cc)
		}
		if err != nil {
			return err
		}
	} else {
		cc.Logger().Debug("forwarding stream delimiter", "stream_id", d.StreamID(), "initiator", start)
	}

	return cc.PushAll(d)
}
