// Package twitter provides the components that read tweets, turn them into
// tuples and serve the named entities found in them.
package twitter

import (
	"maps"
	"strconv"

	"github.com/seasr/flowkit/pkg/component"
)

// Options overrides the endpoint defaults of the twitter components.
type Options struct {
	SearchURL string
	StreamURL string
	RateLimit float64
}

// Register adds the twitter components to r.
func Register(r *component.Registry, opts Options) error {
	toTuple := withDefaults(ToTupleDescriptor, opts)
	search := withDefaults(SearchDescriptor, opts)

	for _, c := range []struct {
		desc    component.Descriptor
		factory component.Factory
	}{
		{toTuple, NewToTuple},
		{search, NewSearch},
		{TupleWebServerDescriptor, NewTupleWebServer},
	} {
		if err := r.Register(c.desc, c.factory); err != nil {
			return err
		}
	}
	return nil
}

func withDefaults(d component.Descriptor, opts Options) component.Descriptor {
	d.Properties = maps.Clone(d.Properties)
	if opts.SearchURL != "" {
		if _, ok := d.Properties["search_url"]; ok {
			d.Properties["search_url"] = opts.SearchURL
		}
	}
	if opts.StreamURL != "" {
		if _, ok := d.Properties["stream_url"]; ok {
			d.Properties["stream_url"] = opts.StreamURL
		}
	}
	if opts.RateLimit > 0 {
		d.Properties["rate_limit"] = strconv.FormatFloat(opts.RateLimit, 'f', -1, 64)
	}
	return d
}
