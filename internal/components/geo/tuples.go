package geo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

const (
	portTuples = "tuples"
	portMeta   = "meta_tuple"

	fieldLat = "lat"
	fieldLon = "lon"
)

// TupleGeocoderDescriptor describes TupleGeocoder.
var TupleGeocoderDescriptor = component.Descriptor{
	Name:        "TupleGeocoder",
	Description: "Adds the lat and lon of the place named in a field to every tuple",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"loc_field":      "text",
		"remove_unknown": "true",
		"base_url":       DefaultBaseURL,
		"app_id":         "",
		"rate_limit":     "1",
		"cache_size":     strconv.Itoa(DefaultCacheSize),
	},
}

// TupleGeocoder geocodes loc_field of every tuple. Unresolved tuples are
// dropped when remove_unknown is set and kept with empty coordinates
// otherwise.
type TupleGeocoder struct {
	geocoder      *Geocoder
	locField      string
	removeUnknown bool
}

// NewTupleGeocoder creates the component.
func NewTupleGeocoder() component.Component { return &TupleGeocoder{} }

func (g *TupleGeocoder) Initialize(_ context.Context, props *component.Properties) error {
	var cfg struct {
		LocField      string  `prop:"loc_field"`
		RemoveUnknown bool    `prop:"remove_unknown"`
		BaseURL       string  `prop:"base_url"`
		AppID         string  `prop:"app_id"`
		RateLimit     float64 `prop:"rate_limit"`
		CacheSize     int     `prop:"cache_size"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}
	if cfg.LocField == "" {
		return fmt.Errorf("%w: loc_field", component.ErrMissingProperty)
	}
	g.locField = cfg.LocField
	g.removeUnknown = cfg.RemoveUnknown
	g.geocoder = NewGeocoder(cfg.BaseURL, cfg.AppID, cfg.RateLimit, cfg.CacheSize)
	return nil
}

func (g *TupleGeocoder) Execute(ctx context.Context, cc *component.Context) error {
	batch := cc.Input(portTuples)
	if single, ok := batch.(*datatypes.Strings); ok {
		batch = &datatypes.StringsArray{Value: []*datatypes.Strings{single}}
	}
	inPeer, in, err := tuple.Decode(cc.Input(portMeta), batch)
	if err != nil {
		return err
	}
	if !inPeer.Has(g.locField) {
		return fmt.Errorf("incoming tuples do not have a field named %q", g.locField)
	}

	outPeer := tuple.Extend(inPeer, fieldLat, fieldLon)
	out := make([]*tuple.Tuple, 0, len(in))
	unknown := 0
	for _, t := range in {
		place := t.Get(g.locField)
		lat, lon := "", ""
		loc, err := g.geocoder.FindLocation(ctx, place)
		switch {
		case err == nil:
			lat, lon = loc.LatString(), loc.LonString()
		case errors.Is(err, ErrNoLocation):
			unknown++
			if g.removeUnknown {
				continue
			}
		default:
			return err
		}

		o := outPeer.NewTuple()
		o.SetFrom(t)
		_ = o.Set(fieldLat, lat)
		_ = o.Set(fieldLon, lon)
		out = append(out, o)
	}
	cc.Logger().Debug("geocoded tuples", "in", len(in), "out", len(out), "unknown", unknown)

	if err := cc.Push(portMeta, outPeer.Strings()); err != nil {
		return err
	}
	return cc.Push(portTuples, tuple.Encode(out))
}

func (g *TupleGeocoder) Dispose(context.Context) error { return nil }

// Options overrides the geocoder defaults of the geo components.
type Options struct {
	BaseURL   string
	AppID     string
	RateLimit float64
}

// Register adds the geo components to r.
func Register(r *component.Registry, opts Options) error {
	d := TupleGeocoderDescriptor
	d.Properties = maps.Clone(d.Properties)
	if opts.BaseURL != "" {
		d.Properties["base_url"] = opts.BaseURL
	}
	if opts.AppID != "" {
		d.Properties["app_id"] = opts.AppID
	}
	if opts.RateLimit > 0 {
		d.Properties["rate_limit"] = strconv.FormatFloat(opts.RateLimit, 'f', -1, 64)
	}
	return r.Register(d, NewTupleGeocoder)
}
