package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seasr/flowkit/internal/cli/output"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/spf13/cobra"
)

// NewComponentsCommand creates the components command.
func NewComponentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "components [name]",
		Aliases: []string{"ls"},
		Short:   "List the available component types",
		Long: `List every component type a flow can instantiate, with its ports.

Given a name, show the component's ports, firing policy and property
defaults.`,
		Example: `  # List all components
  flowkit components

  # Show one component
  flowkit components TupleToSQL

  # Output as JSON
  flowkit components -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComponents(cmd, args)
		},
	}
	return cmd
}

func runComponents(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer

	descs := cc.Registry.Descriptors()
	if len(args) == 1 {
		desc, err := cc.Registry.Lookup(args[0])
		if err != nil {
			return err
		}
		descs = []component.Descriptor{desc}
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.ComponentInfo, len(descs))
		for i, d := range descs {
			infos[i] = componentInfo(d)
		}
		return r.JSON(infos)
	}

	if len(args) == 1 {
		showComponent(r, descs[0])
		return nil
	}

	r.Header(1, fmt.Sprintf("Components (%d total)", len(descs)))
	rows := make([][]string, len(descs))
	for i, d := range descs {
		rows[i] = []string{d.Name, portList(d.Inputs), portList(d.Outputs), d.Description}
	}
	r.Table([]string{"Name", "Inputs", "Outputs", "Description"}, rows)
	return nil
}

func showComponent(r *output.Renderer, d component.Descriptor) {
	r.Header(1, d.Name)
	if d.Description != "" {
		r.Println(d.Description)
		r.Println("")
	}
	r.Println(output.FormatKeyValue("Inputs", portList(d.Inputs)))
	r.Println(output.FormatKeyValue("Outputs", portList(d.Outputs)))
	r.Println(output.FormatKeyValue("Firing policy", string(d.FiringPolicy)))
	if len(d.Properties) == 0 {
		return
	}

	r.Println("")
	r.Header(2, "Properties")
	names := make([]string, 0, len(d.Properties))
	for name := range d.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, d.Properties[name]}
	}
	r.Table([]string{"Property", "Default"}, rows)
}

func componentInfo(d component.Descriptor) output.ComponentInfo {
	return output.ComponentInfo{
		Name:         d.Name,
		Description:  d.Description,
		Inputs:       nonNil(d.Inputs),
		Outputs:      nonNil(d.Outputs),
		Properties:   d.Properties,
		FiringPolicy: string(d.FiringPolicy),
	}
}

func portList(ports []string) string {
	if len(ports) == 0 {
		return "-"
	}
	return strings.Join(ports, ", ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
