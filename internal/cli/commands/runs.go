package commands

import (
	"fmt"
	"time"

	"github.com/seasr/flowkit/internal/cli/output"
	"github.com/seasr/flowkit/internal/state"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show recorded flow runs",
		Long: `List the most recent runs from the state database.

Given a run id, show the component executions of that run.`,
		Example: `  # Last 20 runs
  flowkit runs

  # Component executions of one run
  flowkit runs 3f1c9a2e-...

  # Output as JSON
  flowkit runs --limit 5 -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			store, err := cc.OpenStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if len(args) == 1 {
				return showRun(cc.Renderer, store, args[0])
			}
			return listRuns(cc.Renderer, store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func listRuns(r *output.Renderer, store state.Store, limit int) error {
	runs, err := store.ListRuns(limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		infos := make([]output.RunInfo, len(runs))
		for i, run := range runs {
			infos[i] = runInfo(run)
		}
		return r.JSON(infos)
	}

	r.Header(1, fmt.Sprintf("Runs (%d)", len(runs)))
	if len(runs) == 0 {
		r.Println(r.Styles().Muted.Render("No runs recorded."))
		return nil
	}
	rows := make([][]string, len(runs))
	for i, run := range runs {
		info := runInfo(run)
		rows[i] = []string{info.ID, info.Flow, info.Status, info.StartedAt, info.Error}
	}
	r.Table([]string{"ID", "Flow", "Status", "Started", "Error"}, rows)
	return nil
}

func showRun(r *output.Renderer, store state.Store, id string) error {
	run, err := store.GetRun(id)
	if err != nil {
		return err
	}
	execs, err := store.GetComponentExecutions(id)
	if err != nil {
		return fmt.Errorf("failed to get component executions: %w", err)
	}

	if r.EffectiveMode() == output.ModeJSON {
		return r.JSON(struct {
			output.RunInfo
			Components []output.RunEvent `json:"components"`
		}{RunInfo: runInfo(run), Components: executionEvents(execs)})
	}

	info := runInfo(run)
	r.Header(1, fmt.Sprintf("Run %s", info.ID))
	r.Println(output.FormatKeyValue("Flow", info.Flow))
	if info.Path != "" {
		r.Println(output.FormatKeyValue("Path", info.Path))
	}
	r.Println(output.FormatKeyValue("Status", info.Status))
	r.Println(output.FormatKeyValue("Started", info.StartedAt))
	if info.Error != "" {
		r.Println(output.FormatKeyValue("Error", info.Error))
	}
	r.Println("")

	rows := make([][]string, len(execs))
	for i, e := range executionEvents(execs) {
		rows[i] = []string{e.InstanceID, e.Type, e.Status, fmt.Sprintf("%d", e.Firings), fmt.Sprintf("%dms", e.DurationMS), e.Error}
	}
	r.Table([]string{"Instance", "Type", "Status", "Firings", "Duration", "Error"}, rows)
	return nil
}

func runInfo(run *state.Run) output.RunInfo {
	info := output.RunInfo{
		ID:        run.ID,
		Flow:      run.FlowName,
		Path:      run.FlowPath,
		Status:    string(run.Status),
		StartedAt: run.StartedAt.Format(time.RFC3339),
		Error:     run.Error,
	}
	if run.CompletedAt != nil {
		info.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return info
}

func executionEvents(execs []*state.ComponentExecution) []output.RunEvent {
	events := make([]output.RunEvent, len(execs))
	for i, e := range execs {
		events[i] = output.RunEvent{
			Event:      "component",
			RunID:      e.RunID,
			InstanceID: e.InstanceID,
			Type:       e.ComponentType,
			Status:     string(e.Status),
			Firings:    e.Firings,
			Error:      e.Error,
			DurationMS: e.Duration().Milliseconds(),
		}
	}
	return events
}
