// Package control provides components that route, replicate and count the
// values flowing between other components.
package control

import (
	"context"
	"fmt"
	"strings"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// SwitchDescriptor describes Switch.
var SwitchDescriptor = component.Descriptor{
	Name:        "Switch",
	Description: "Routes an object to the output selected by a switch value",
	Inputs:      []string{"object", "switch"},
	Outputs:     []string{"object", "object_2", "object_3", "object_4", "no_match"},
	Properties: map[string]string{
		// e.g. "1=object_2, 3=object"
		"switch_rules": "",
	},
}

// Switch pushes the object on the port its switch value maps to.
type Switch struct {
	rules map[string]string
}

// NewSwitch creates the component.
func NewSwitch() component.Component { return &Switch{} }

func (s *Switch) Initialize(_ context.Context, props *component.Properties) error {
	raw, err := props.Required("switch_rules")
	if err != nil {
		return err
	}
	s.rules = make(map[string]string)
	for _, rule := range strings.Split(raw, ",") {
		kv := strings.Split(rule, "=")
		if len(kv) != 2 {
			return fmt.Errorf("invalid switch rule %q: want value=port", rule)
		}
		port := strings.TrimSpace(kv[1])
		if !SwitchDescriptor.HasOutput(port) {
			return fmt.Errorf("invalid switch rule %q: no output port %q", rule, port)
		}
		s.rules[strings.TrimSpace(kv[0])] = port
	}
	return nil
}

func (s *Switch) Execute(_ context.Context, cc *component.Context) error {
	value, err := datatypes.ParseAsString(cc.Input("switch"))
	if err != nil {
		return fmt.Errorf("switch value: %w", err)
	}
	port, ok := s.rules[value]
	if !ok {
		port = "no_match"
	}
	return cc.Push(port, cc.Input("object"))
}

func (s *Switch) Dispose(context.Context) error {
	s.rules = nil
	return nil
}
