package commands

import (
	"fmt"
	"strings"

	"github.com/seasr/flowkit/internal/cli/output"
	"github.com/seasr/flowkit/internal/flow"
	"github.com/spf13/cobra"
)

// GraphQuerier provides read-only access to DAG structure.
type GraphQuerier interface {
	Parents(string) []string
	Children(string) []string
	NodeCount() int
	EdgeCount() int
}

// NewDAGCommand creates the dag command.
func NewDAGCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dag <flow>",
		Short: "Show the component graph of a flow",
		Long: `Validate a flow and display its component graph.

Instances are grouped by level: an instance only receives values from
instances on earlier levels. The flow is not executed.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format`,
		Example: `  # Show the graph of a flow
  flowkit dag wordcount

  # Output as JSON
  flowkit dag flows/tweets.yaml --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDAG(cmd, args[0])
		},
	}

	return cmd
}

func runDAG(cmd *cobra.Command, arg string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path, err := resolveFlowPath(cc.Cfg, arg)
	if err != nil {
		return err
	}
	d, err := flow.Load(path)
	if err != nil {
		return err
	}
	plan, err := flow.Build(d, cc.Registry)
	if err != nil {
		return fmt.Errorf("invalid flow: %w", err)
	}

	levels, err := plan.Graph.ExecutionLevels()
	if err != nil {
		return fmt.Errorf("failed to get execution levels: %w", err)
	}

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return dagJSON(r, plan, levels)
	case output.ModeMarkdown:
		return dagMarkdown(r, plan, levels)
	default:
		return dagText(r, plan, levels)
	}
}

func instanceType(plan *flow.Plan, id string) string {
	if inst, ok := plan.Instances[id]; ok {
		return inst.Spec.Type
	}
	return ""
}

// dagText outputs the graph in styled text format.
func dagText(r *output.Renderer, plan *flow.Plan, levels [][]string) error {
	styles := r.Styles()
	var graph GraphQuerier = plan.Graph

	r.Header(1, fmt.Sprintf("Flow %s", plan.Flow.Name))

	for i, level := range levels {
		r.Println(styles.Header2.Render(fmt.Sprintf("Level %d:", i)))
		for _, id := range level {
			r.Printf("  %s %s\n", styles.Instance.Render(id), styles.Muted.Render("("+instanceType(plan, id)+")"))
			if deps := graph.Parents(id); len(deps) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("receives from:"), strings.Join(deps, ", "))
			}
			if children := graph.Children(id); len(children) > 0 {
				r.Printf("    %s %s\n", styles.Muted.Render("feeds:"), strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(styles.Muted.Render(fmt.Sprintf("Total: %d instances, %d connections", graph.NodeCount(), graph.EdgeCount())))
	return nil
}

// dagMarkdown outputs the graph in markdown format.
func dagMarkdown(r *output.Renderer, plan *flow.Plan, levels [][]string) error {
	var graph GraphQuerier = plan.Graph

	r.Println(output.FormatHeader(1, fmt.Sprintf("Flow %s", plan.Flow.Name)))
	r.Println("")

	for i, level := range levels {
		levelName := fmt.Sprintf("Level %d", i)
		if i == 0 {
			levelName = "Level 0 (Sources)"
		}
		r.Println(output.FormatHeader(2, levelName))

		for _, id := range level {
			r.Printf("- %s (%s)\n", id, instanceType(plan, id))
			if deps := graph.Parents(id); len(deps) > 0 {
				r.Printf("  - receives from: %s\n", strings.Join(deps, ", "))
			}
			if children := graph.Children(id); len(children) > 0 {
				r.Printf("  - feeds: %s\n", strings.Join(children, ", "))
			}
		}
		r.Println("")
	}

	r.Println(output.FormatHeader(2, "Summary"))
	r.Println(output.FormatKeyValue("Total Instances", fmt.Sprintf("%d", graph.NodeCount())))
	r.Println(output.FormatKeyValue("Total Connections", fmt.Sprintf("%d", graph.EdgeCount())))
	return nil
}

// dagJSON outputs the graph in JSON format.
func dagJSON(r *output.Renderer, plan *flow.Plan, levels [][]string) error {
	var graph GraphQuerier = plan.Graph

	out := output.DAGOutput{
		Flow:           plan.Flow.Name,
		Levels:         make([]output.DAGLevel, 0, len(levels)),
		TotalInstances: graph.NodeCount(),
		TotalEdges:     graph.EdgeCount(),
	}
	for i, level := range levels {
		l := output.DAGLevel{Level: i, Instances: make([]output.DAGNode, 0, len(level))}
		for _, id := range level {
			l.Instances = append(l.Instances, output.DAGNode{
				ID:        id,
				Type:      instanceType(plan, id),
				DependsOn: graph.Parents(id),
				Feeds:     graph.Children(id),
			})
		}
		out.Levels = append(out.Levels, l)
	}
	return r.JSON(out)
}
