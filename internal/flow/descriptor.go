// Package flow loads flow descriptors and executes them. A flow is a set of
// component instances wired port to port; the executor runs every
// instance in its own goroutine and moves values along the connections
// through buffered channels.
package flow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/seasr/flowkit/internal/dag"
	"github.com/seasr/flowkit/pkg/component"
	"gopkg.in/yaml.v3"
)

// Descriptor is the YAML definition of a flow.
type Descriptor struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description,omitempty"`
	Components  []ComponentSpec `yaml:"components"`
	Connections []Connection    `yaml:"connections"`

	path string
}

// ComponentSpec declares one component instance.
type ComponentSpec struct {
	ID         string            `yaml:"id"`
	Type       string            `yaml:"type"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Connection wires an output port to an input port, both written as
// "instance.port".
type Connection struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Endpoint is one side of a connection.
type Endpoint struct {
	Instance string
	Port     string
}

func (e Endpoint) String() string { return e.Instance + "." + e.Port }

// ParseEndpoint splits "instance.port" at its last dot.
func ParseEndpoint(s string) (Endpoint, error) {
	i := strings.LastIndex(s, ".")
	if i <= 0 || i == len(s)-1 {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: want instance.port", s)
	}
	return Endpoint{Instance: s[:i], Port: s[i+1:]}, nil
}

// Load reads a flow descriptor from a YAML file. A flow without a name is
// named after its file.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path) //nolint:gosec // flow path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("failed to read flow: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.Name == "" {
		d.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	d.path = path
	return d, nil
}

// Parse decodes a flow descriptor.
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse flow: %w", err)
	}
	return &d, nil
}

// Path returns the file the descriptor was loaded from.
func (d *Descriptor) Path() string { return d.path }

// Instance is a validated component instance of a flow.
type Instance struct {
	Spec             ComponentSpec
	Descriptor       component.Descriptor
	ConnectedInputs  []string
	ConnectedOutputs []string
}

// Plan is a validated flow ready to run.
type Plan struct {
	Flow      *Descriptor
	Graph     *dag.Graph
	Instances map[string]*Instance
}

// Validate checks a descriptor against the registry and reports every
// problem found.
func Validate(d *Descriptor, reg *component.Registry) error {
	_, err := Build(d, reg)
	return err
}

// Build validates a descriptor and resolves its topology.
func Build(d *Descriptor, reg *component.Registry) (*Plan, error) {
	var errs []error

	if len(d.Components) == 0 {
		return nil, errors.New("flow has no components")
	}

	g := dag.NewGraph()
	instances := make(map[string]*Instance, len(d.Components))

	for i, spec := range d.Components {
		if spec.ID == "" {
			errs = append(errs, fmt.Errorf("component #%d has no id", i+1))
			continue
		}
		if _, dup := instances[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate component id %q", spec.ID))
			continue
		}
		desc, err := reg.Lookup(spec.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %q: %w", spec.ID, err))
			continue
		}
		inst := &Instance{Spec: spec, Descriptor: desc}
		instances[spec.ID] = inst
		g.AddNode(spec.ID, inst)
	}

	fed := make(map[Endpoint]string)
	for _, conn := range d.Connections {
		from, err := ParseEndpoint(conn.From)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		to, err := ParseEndpoint(conn.To)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		src, ok := instances[from.Instance]
		if !ok {
			errs = append(errs, fmt.Errorf("connection %s: unknown component %q", conn.From, from.Instance))
			continue
		}
		dst, ok := instances[to.Instance]
		if !ok {
			errs = append(errs, fmt.Errorf("connection %s: unknown component %q", conn.To, to.Instance))
			continue
		}
		if !src.Descriptor.HasOutput(from.Port) {
			errs = append(errs, fmt.Errorf("connection %s: %s has no output port %q", conn.From, src.Spec.Type, from.Port))
			continue
		}
		if !dst.Descriptor.HasInput(to.Port) {
			errs = append(errs, fmt.Errorf("connection %s: %s has no input port %q", conn.To, dst.Spec.Type, to.Port))
			continue
		}
		if prev, taken := fed[to]; taken {
			errs = append(errs, fmt.Errorf("input %s is already fed by %s", to, prev))
			continue
		}
		fed[to] = from.String()

		if err := g.Connect(dag.Edge{From: from.Instance, FromPort: from.Port, To: to.Instance, ToPort: to.Port}); err != nil {
			errs = append(errs, err)
			continue
		}
		src.ConnectedOutputs = appendUnique(src.ConnectedOutputs, from.Port)
		dst.ConnectedInputs = appendUnique(dst.ConnectedInputs, to.Port)
	}

	if len(errs) == 0 {
		if hasCycle, path := g.HasCycle(); hasCycle {
			errs = append(errs, fmt.Errorf("%w: %v", dag.ErrCycle, path))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Plan{Flow: d, Graph: g, Instances: instances}, nil
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
