package component

import (
	"fmt"
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Properties every component understands.
const (
	PropIgnoreErrors = "ignore_errors"
	PropStreamID     = "_stream_id"
)

// CommonProperties are merged under every descriptor's defaults. An
// empty _stream_id means the component owns no stream; accumulators
// declare their own default.
var CommonProperties = map[string]string{
	PropIgnoreErrors: "false",
	PropStreamID:     "",
}

// Properties holds the string-valued configuration of a component
// instance.
type Properties struct {
	values map[string]string
}

// NewProperties layers overrides on top of the descriptor defaults and the
// common properties.
func NewProperties(defaults, overrides map[string]string) *Properties {
	values := make(map[string]string, len(CommonProperties)+len(defaults)+len(overrides))
	maps.Copy(values, CommonProperties)
	maps.Copy(values, defaults)
	maps.Copy(values, overrides)
	return &Properties{values: values}
}

// Has reports whether the property is set.
func (p *Properties) Has(name string) bool {
	_, ok := p.values[name]
	return ok
}

// Set overrides a property value.
func (p *Properties) Set(name, value string) {
	p.values[name] = value
}

// Names returns the property names in sorted order.
func (p *Properties) Names() []string {
	names := make([]string, 0, len(p.values))
	for k := range p.values {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String returns the raw value, or "" when unset.
func (p *Properties) String(name string) string {
	return p.values[name]
}

// Required returns the trimmed value, failing when it is empty.
func (p *Properties) Required(name string) (string, error) {
	v := strings.TrimSpace(p.values[name])
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingProperty, name)
	}
	return v, nil
}

// Bool parses a boolean property. An empty value is false.
func (p *Properties) Bool(name string) (bool, error) {
	v := strings.TrimSpace(p.values[name])
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("property %s: %w", name, err)
	}
	return b, nil
}

// Int parses an integer property.
func (p *Properties) Int(name string) (int, error) {
	v := strings.TrimSpace(p.values[name])
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return n, nil
}

// Float parses a floating point property.
func (p *Properties) Float(name string) (float64, error) {
	v := strings.TrimSpace(p.values[name])
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("property %s: %w", name, err)
	}
	return f, nil
}

// List splits the property on sep, trimming items and dropping empty ones.
func (p *Properties) List(name, sep string) []string {
	var out []string
	for _, item := range strings.Split(p.values[name], sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Decode copies the properties into a struct using `prop` tags. Values are
// converted weakly, so "5" decodes into an int field and "true" into a
// bool. Durations use time.ParseDuration syntax.
func (p *Properties) Decode(into any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "prop",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		Result: into,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(p.values); err != nil {
		return fmt.Errorf("decode properties: %w", err)
	}
	return nil
}
