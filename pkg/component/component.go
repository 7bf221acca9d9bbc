// Package component defines the lifecycle contract every flowkit component
// implements, together with the small host surface components see at run
// time: properties, the firing context, stream delimiters and the input
// cache.
//
// A component is initialized once with its properties, executed once per
// firing and disposed when the flow ends. The executor never invokes the
// callbacks of one component concurrently.
package component

import (
	"context"
	"errors"
	"net/http"
)

// Sentinel errors shared by the host and the components.
var (
	ErrMissingProperty  = errors.New("missing required property")
	ErrUnknownComponent = errors.New("unknown component")
)

// Component is the uniform lifecycle implemented by every component.
type Component interface {
	Initialize(ctx context.Context, props *Properties) error
	Execute(ctx context.Context, cc *Context) error
	Dispose(ctx context.Context) error
}

// StreamHandler is implemented by components that handle stream delimiters
// themselves. Without it the host applies the default delimiter handling
// (see Wrap).
type StreamHandler interface {
	HandleStreamInitiators(ctx context.Context, cc *Context) error
	HandleStreamTerminators(ctx context.Context, cc *Context) error
}

// Accumulator is implemented by components that aggregate over a stream.
// StartStream and EndStream are called when a delimiter carrying the
// component's own stream id arrives.
type Accumulator interface {
	StartStream(ctx context.Context, cc *Context) error
	EndStream(ctx context.Context, cc *Context) error
}

// FiringPolicy controls when the executor fires a component.
type FiringPolicy string

const (
	// FireAll waits for a value on every connected input.
	FireAll FiringPolicy = "all"
	// FireAny fires as soon as any input has a value.
	FireAny FiringPolicy = "any"
)

// Descriptor describes a component type.
type Descriptor struct {
	Name         string
	Description  string
	Inputs       []string
	Outputs      []string
	Properties   map[string]string // defaults
	FiringPolicy FiringPolicy
}

// HasInput reports whether the descriptor declares the input port.
func (d Descriptor) HasInput(port string) bool {
	for _, p := range d.Inputs {
		if p == port {
			return true
		}
	}
	return false
}

// HasOutput reports whether the descriptor declares the output port.
func (d Descriptor) HasOutput(port string) bool {
	for _, p := range d.Outputs {
		if p == port {
			return true
		}
	}
	return false
}

// Policy returns the firing policy, defaulting to FireAll.
func (d Descriptor) Policy() FiringPolicy {
	if d.FiringPolicy == "" {
		return FireAll
	}
	return d.FiringPolicy
}

// WebUI is the fragment registry of the embedded web server. Components
// that serve HTTP fragments register their handlers here.
type WebUI interface {
	Register(path string, h http.Handler)
	Unregister(path string)
}
