// Package dag provides the directed acyclic graph that holds a flow's
// topology: component instances as nodes and port-to-port connections as
// edges. It supports cycle detection, topological sorting and execution
// levels.
package dag

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

// ErrCycle is returned when an operation requires an acyclic graph.
var ErrCycle = errors.New("cycle detected")

// Node represents a component instance in the graph.
type Node struct {
	// ID is the unique instance identifier
	ID string
	// Data holds the instance payload (descriptor, component type...)
	Data any
}

// Edge connects an output port of one node to an input port of another.
type Edge struct {
	From     string
	FromPort string
	To       string
	ToPort   string
}

func (e Edge) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", e.From, e.FromPort, e.To, e.ToPort)
}

// Graph represents a directed acyclic graph of connected instances.
type Graph struct {
	nodes    map[string]*Node
	children map[string][]string // upstream -> downstream instances
	parents  map[string][]string // downstream -> upstream instances
	out      map[string][]Edge
	in       map[string][]Edge
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		out:      make(map[string][]Edge),
		in:       make(map[string][]Edge),
	}
}

// AddNode adds a node, replacing the data of an existing one.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
}

// Connect adds a port-level edge. Both nodes must exist.
func (g *Graph) Connect(e Edge) error {
	if _, exists := g.nodes[e.From]; !exists {
		return fmt.Errorf("source node %q does not exist", e.From)
	}
	if _, exists := g.nodes[e.To]; !exists {
		return fmt.Errorf("target node %q does not exist", e.To)
	}
	if e.From == e.To {
		return fmt.Errorf("self-loop detected: %s", e)
	}
	if slices.Contains(g.out[e.From], e) {
		return nil
	}

	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)

	if !slices.Contains(g.children[e.From], e.To) {
		g.children[e.From] = append(g.children[e.From], e.To)
	}
	if !slices.Contains(g.parents[e.To], e.From) {
		g.parents[e.To] = append(g.parents[e.To], e.From)
	}
	return nil
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Parents returns the upstream instances of a node.
func (g *Graph) Parents(id string) []string { return g.parents[id] }

// Children returns the downstream instances of a node.
func (g *Graph) Children(id string) []string { return g.children[id] }

// OutEdges returns the connections leaving a node.
func (g *Graph) OutEdges(id string) []Edge { return g.out[id] }

// InEdges returns the connections entering a node.
func (g *Graph) InEdges(id string) []Edge { return g.in[id] }

// Nodes returns all nodes sorted by ID.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of port-level connections.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, edges := range g.out {
		count += len(edges)
	}
	return count
}

// HasCycle reports whether the graph contains a cycle, along with its path.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)

	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, child := range g.children[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}

		onStack[id] = false
		return false
	}

	for _, n := range g.Nodes() {
		if !visited[n.ID] && dfs(n.ID) {
			return true, cycle
		}
	}
	return false, nil
}

// TopologicalSort returns nodes with every upstream instance before its
// downstream instances. Ties are broken by ID.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("%w: %v", ErrCycle, path)
	}

	visited := make(map[string]bool)
	result := make([]*Node, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		parents := slices.Clone(g.parents[id])
		sort.Strings(parents)
		for _, p := range parents {
			visit(p)
		}
		result = append(result, g.nodes[id])
	}

	for _, n := range g.Nodes() {
		visit(n.ID)
	}
	return result, nil
}

// ExecutionLevels groups nodes by depth. Level 0 holds the sources.
func (g *Graph) ExecutionLevels() ([][]string, error) {
	if hasCycle, path := g.HasCycle(); hasCycle {
		return nil, fmt.Errorf("%w: %v", ErrCycle, path)
	}

	assigned := make(map[string]int)

	var level func(id string) int
	level = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			if pl := level(p) + 1; pl > l {
				l = pl
			}
		}
		assigned[id] = l
		return l
	}

	maxLevel := -1
	for id := range g.nodes {
		if l := level(id); l > maxLevel {
			maxLevel = l
		}
	}

	levels := make([][]string, maxLevel+1)
	for id, l := range assigned {
		levels[l] = append(levels[l], id)
	}
	for i := range levels {
		sort.Strings(levels[i])
	}
	return levels, nil
}

// Downstream returns every node reachable from id, excluding id itself.
func (g *Graph) Downstream(id string) []string {
	seen := make(map[string]bool)

	var walk func(string)
	walk = func(cur string) {
		for _, c := range g.children[cur] {
			if !seen[c] {
				seen[c] = true
				walk(c)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Upstream returns every node id depends on, transitively.
func (g *Graph) Upstream(id string) []string {
	seen := make(map[string]bool)

	var walk func(string)
	walk = func(cur string) {
		for _, p := range g.parents[cur] {
			if !seen[p] {
				seen[p] = true
				walk(p)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Roots returns nodes with no upstream instances.
func (g *Graph) Roots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Leaves returns nodes with no downstream instances.
func (g *Graph) Leaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.children[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}
