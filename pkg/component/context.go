package component

import (
	"fmt"
	"log/slog"
	"slices"
)

// EmitFunc delivers a value pushed on an output port.
type EmitFunc func(port string, value any) error

// ContextConfig configures a component Context.
type ContextConfig struct {
	FlowID           string
	InstanceID       string
	StreamID         int
	ConnectedInputs  []string
	ConnectedOutputs []string
	Emit             EmitFunc
	Logger           *slog.Logger
	WebUI            WebUI
}

// Context is the view a component has of the executor during a firing.
type Context struct {
	flowID     string
	instanceID string
	streamID   int
	inputs     map[string]any
	connIn     []string
	connOut    []string
	emit       EmitFunc
	logger     *slog.Logger
	web        WebUI
}

// NewContext creates a context. Pushes to unconnected outputs are dropped.
func NewContext(cfg ContextConfig) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	emit := cfg.Emit
	if emit == nil {
		emit = func(string, any) error { return nil }
	}
	return &Context{
		flowID:     cfg.FlowID,
		instanceID: cfg.InstanceID,
		streamID:   cfg.StreamID,
		inputs:     map[string]any{},
		connIn:     slices.Clone(cfg.ConnectedInputs),
		connOut:    slices.Clone(cfg.ConnectedOutputs),
		emit:       emit,
		logger:     logger,
		web:        cfg.WebUI,
	}
}

// SetInputs installs the values of the current firing.
func (c *Context) SetInputs(inputs map[string]any) {
	c.inputs = inputs
}

// Input returns the value available on port, or nil.
func (c *Context) Input(port string) any {
	return c.inputs[port]
}

// IsInputAvailable reports whether port carries a value in this firing.
func (c *Context) IsInputAvailable(port string) bool {
	_, ok := c.inputs[port]
	return ok
}

// AvailableInputs returns the ports carrying a value, sorted.
func (c *Context) AvailableInputs() []string {
	ports := make([]string, 0, len(c.inputs))
	for p := range c.inputs {
		ports = append(ports, p)
	}
	slices.Sort(ports)
	return ports
}

// InputsWithInitiators returns the ports carrying a stream initiator.
func (c *Context) InputsWithInitiators() []string {
	var ports []string
	for _, p := range c.AvailableInputs() {
		if IsInitiator(c.inputs[p]) {
			ports = append(ports, p)
		}
	}
	return ports
}

// InputsWithTerminators returns the ports carrying a stream terminator.
func (c *Context) InputsWithTerminators() []string {
	var ports []string
	for _, p := range c.AvailableInputs() {
		if IsTerminator(c.inputs[p]) {
			ports = append(ports, p)
		}
	}
	return ports
}

// Push sends value on an output port.
func (c *Context) Push(port string, value any) error {
	if !c.IsOutputConnected(port) {
		return nil
	}
	if err := c.emit(port, value); err != nil {
		return fmt.Errorf("push %s: %w", port, err)
	}
	return nil
}

// PushAll sends value on every connected output.
func (c *Context) PushAll(value any) error {
	for _, port := range c.connOut {
		if err := c.Push(port, value); err != nil {
			return err
		}
	}
	return nil
}

// ConnectedInputs returns the connected input ports.
func (c *Context) ConnectedInputs() []string { return slices.Clone(c.connIn) }

// ConnectedOutputs returns the connected output ports.
func (c *Context) ConnectedOutputs() []string { return slices.Clone(c.connOut) }

// IsInputConnected reports whether an input port has an upstream.
func (c *Context) IsInputConnected(port string) bool { return slices.Contains(c.connIn, port) }

// IsOutputConnected reports whether an output port has a downstream.
func (c *Context) IsOutputConnected(port string) bool { return slices.Contains(c.connOut, port) }

func (c *Context) Logger() *slog.Logger { return c.logger }
func (c *Context) FlowID() string       { return c.flowID }
func (c *Context) InstanceID() string   { return c.instanceID }
func (c *Context) StreamID() int        { return c.streamID }

// WebUI returns the web fragment registry, or nil when no server runs.
func (c *Context) WebUI() WebUI { return c.web }
