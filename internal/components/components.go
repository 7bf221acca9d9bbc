// Package components assembles the registry of every component a flow can
// instantiate.
package components

import (
	"fmt"

	"github.com/seasr/flowkit/internal/components/control"
	"github.com/seasr/flowkit/internal/components/geo"
	"github.com/seasr/flowkit/internal/components/nlp"
	"github.com/seasr/flowkit/internal/components/text"
	"github.com/seasr/flowkit/internal/components/tuples"
	"github.com/seasr/flowkit/internal/components/twitter"
	"github.com/seasr/flowkit/pkg/component"
)

// Options carries the configured defaults of the component packages.
type Options struct {
	Twitter twitter.Options
	Geo     geo.Options
	Tuples  tuples.Options
}

// RegisterAll adds every built-in component to r.
func RegisterAll(r *component.Registry, opts Options) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"control", func() error { return control.Register(r) }},
		{"text", func() error { return text.Register(r) }},
		{"nlp", func() error { return nlp.Register(r) }},
		{"tuples", func() error { return tuples.Register(r, opts.Tuples) }},
		{"geo", func() error { return geo.Register(r, opts.Geo) }},
		{"twitter", func() error { return twitter.Register(r, opts.Twitter) }},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("register %s components: %w", s.name, err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in component.
func NewRegistry(opts Options) (*component.Registry, error) {
	r := component.NewRegistry()
	if err := RegisterAll(r, opts); err != nil {
		return nil, err
	}
	return r, nil
}
