package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/seasr/flowkit/internal/cli/output"
	"github.com/seasr/flowkit/internal/flow"
	"github.com/seasr/flowkit/internal/state"
	"github.com/seasr/flowkit/internal/webui"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const watchDebounce = 100 * time.Millisecond

// RunOptions holds options for the run command.
type RunOptions struct {
	Watch   bool
	Serve   bool
	NoState bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <flow>",
		Short: "Run a flow",
		Long: `Execute a flow descriptor.

The flow is given as a path or as a name inside the flows directory. Every
component instance runs concurrently; the run and each component execution
are recorded in the state database.

With --serve the web UI is started and components can publish fragments.
With --watch the flow is re-run whenever its file changes.

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - --output json: one JSON object per event`,
		Example: `  # Run a flow from the flows directory
  flowkit run wordcount

  # Run a flow file and serve its fragments
  flowkit run flows/tweets.yaml --serve

  # Re-run on every save, streaming JSON events
  flowkit run wordcount --watch -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Re-run the flow when its file changes")
	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "Serve the web UI while the flow runs")
	cmd.Flags().BoolVar(&opts.NoState, "no-state", false, "Do not record the run in the state database")

	return cmd
}

func runRun(cmd *cobra.Command, arg string, opts *RunOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	path, err := resolveFlowPath(cc.Cfg, arg)
	if err != nil {
		return err
	}

	var store state.Store
	if !opts.NoState {
		s, err := cc.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	r := cc.Renderer
	events := &eventWriter{w: r.Writer(), enabled: r.EffectiveMode() == output.ModeJSON}
	onEvent := events.write

	var web component.WebUI
	var server *webui.Server
	if opts.Serve {
		server = webui.NewServer(webui.Config{
			Host:   cc.Cfg.Web.Host,
			Port:   cc.Cfg.Web.Port,
			Store:  store,
			Logger: cc.Logger,
		})
		web = server
		onEvent = func(ev flow.Event) {
			server.Publish(ev)
			events.write(ev)
		}
	}

	runner, err := flow.New(flow.Config{
		Registry: cc.Registry,
		Store:    store,
		WebUI:    web,
		OnEvent:  onEvent,
		Logger:   cc.Logger,
	})
	if err != nil {
		return err
	}

	once := func(ctx context.Context) error {
		return runFlowOnce(ctx, runner, path, r, events)
	}

	if !opts.Serve && !opts.Watch {
		return once(cmd.Context())
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	if server != nil {
		r.Printf("Serving web UI on http://%s\n", server.Addr())
		g.Go(func() error { return server.Serve(ctx) })
	}
	g.Go(func() error {
		if err := once(ctx); err != nil && !opts.Watch {
			cc.Logger.Error("run failed", "error", err)
		}
		if !opts.Watch {
			// keep serving the fragments until interrupted
			<-ctx.Done()
			return nil
		}
		return watchFlow(ctx, path, cc.Logger, func(ctx context.Context) {
			if err := once(ctx); err != nil {
				cc.Logger.Error("run failed", "error", err)
			}
		})
	})
	r.Println("Press Ctrl+C to stop")
	return g.Wait()
}

// runFlowOnce loads the flow file again and runs it.
func runFlowOnce(ctx context.Context, runner *flow.Runner, path string, r *output.Renderer, events *eventWriter) error {
	d, err := flow.Load(path)
	if err != nil {
		return err
	}

	start := time.Now()
	events.emit(output.RunEvent{Event: "run_start", Flow: d.Name})
	result, runErr := runner.Run(ctx, d)
	elapsed := time.Since(start)

	if result == nil {
		events.emit(output.RunEvent{Event: "run_complete", Flow: d.Name, Status: string(state.RunStatusFailed), Error: errString(runErr)})
		return runErr
	}

	switch r.EffectiveMode() {
	case output.ModeJSON:
		events.emit(output.RunEvent{
			Event:      "run_complete",
			RunID:      result.RunID,
			Flow:       d.Name,
			Status:     string(result.Status),
			Error:      errString(runErr),
			DurationMS: elapsed.Milliseconds(),
		})
	case output.ModeMarkdown:
		runMarkdown(r, d, result, runErr, elapsed)
	default:
		runText(r, d, result, runErr, elapsed)
	}
	return runErr
}

func runText(r *output.Renderer, d *flow.Descriptor, result *flow.Result, runErr error, elapsed time.Duration) {
	styles := r.Styles()
	r.Header(1, fmt.Sprintf("Flow %s", d.Name))
	r.Println(styles.Muted.Render("run " + result.RunID))
	for _, id := range result.InstanceIDs() {
		c := result.Components[id]
		r.StatusLine(id, string(c.Status), fmt.Sprintf("%s, %s", c.Type, firings(c.Firings)))
		if c.Err != nil {
			r.Printf("    %s\n", styles.Error.Render(c.Err.Error()))
		}
	}
	r.Println("")
	if runErr != nil {
		r.Error(fmt.Sprintf("run %s after %s", result.Status, elapsed.Round(time.Millisecond)))
		return
	}
	r.Success(fmt.Sprintf("completed in %s", elapsed.Round(time.Millisecond)))
}

func runMarkdown(r *output.Renderer, d *flow.Descriptor, result *flow.Result, runErr error, elapsed time.Duration) {
	r.Header(1, fmt.Sprintf("Flow %s", d.Name))
	r.Println(output.FormatKeyValue("Run", result.RunID))
	r.Println(output.FormatKeyValue("Status", string(result.Status)))
	r.Println(output.FormatKeyValue("Duration", elapsed.Round(time.Millisecond).String()))
	if runErr != nil {
		r.Println(output.FormatKeyValue("Error", runErr.Error()))
	}
	r.Println("")

	rows := make([][]string, 0, len(result.Components))
	for _, id := range result.InstanceIDs() {
		c := result.Components[id]
		rows = append(rows, []string{
			id, c.Type, string(c.Status), fmt.Sprintf("%d", c.Firings), errString(c.Err),
		})
	}
	r.Table([]string{"Instance", "Type", "Status", "Firings", "Error"}, rows)
}

func firings(n int) string {
	if n == 1 {
		return "1 firing"
	}
	return fmt.Sprintf("%d firings", n)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// eventWriter writes runner events as JSON lines. The runner reports
// events from every instance goroutine.
type eventWriter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
}

func (e *eventWriter) write(ev flow.Event) {
	e.emit(output.RunEvent{
		Event:      "component",
		RunID:      ev.RunID,
		InstanceID: ev.InstanceID,
		Type:       ev.Type,
		Status:     string(ev.Status),
		Firings:    ev.Firings,
		Error:      ev.Error,
	})
}

func (e *eventWriter) emit(ev output.RunEvent) {
	if !e.enabled {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = fmt.Fprintln(e.w, string(data))
}

// watchFlow calls rerun after path is written, until ctx is cancelled.
// Bursts of writes within watchDebounce trigger a single run.
func watchFlow(ctx context.Context, path string, logger *slog.Logger, rerun func(context.Context)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// editors replace files on save, so watch the directory
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watching flow", "path", abs)

	trigger := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || filepath.Clean(event.Name) != abs {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(watchDebounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})

		case <-trigger:
			logger.Info("flow changed, re-running", "path", abs)
			rerun(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("watcher overflow", "error", err)
				continue
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
