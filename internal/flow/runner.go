package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/seasr/flowkit/internal/state"
	"github.com/seasr/flowkit/pkg/component"
	"golang.org/x/sync/errgroup"
)

const defaultBufferSize = 64

// Event reports a component status change during a run.
type Event struct {
	RunID      string
	InstanceID string
	Type       string
	Status     state.ComponentStatus
	Firings    int
	Error      string
}

// Config holds runner configuration.
type Config struct {
	// Registry resolves component types (required)
	Registry *component.Registry
	// Store records runs and component executions (optional)
	Store state.Store
	// WebUI is handed to components that serve fragments (optional)
	WebUI component.WebUI
	// OnEvent is called on every component status change (optional)
	OnEvent func(Event)
	// BufferSize is the capacity of each instance inbox
	BufferSize int
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Runner executes flows.
type Runner struct {
	registry   *component.Registry
	store      state.Store
	web        component.WebUI
	onEvent    func(Event)
	bufferSize int
	logger     *slog.Logger
}

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Registry == nil {
		return nil, errors.New("flow runner requires a component registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	return &Runner{
		registry:   cfg.Registry,
		store:      cfg.Store,
		web:        cfg.WebUI,
		onEvent:    cfg.OnEvent,
		bufferSize: size,
		logger:     logger,
	}, nil
}

// ComponentResult is the outcome of one component instance.
type ComponentResult struct {
	InstanceID  string
	Type        string
	Status      state.ComponentStatus
	Firings     int
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
}

// Result is the outcome of a run.
type Result struct {
	RunID      string
	Status     state.RunStatus
	Components map[string]*ComponentResult
}

// InstanceIDs returns the instance ids in sorted order.
func (r *Result) InstanceIDs() []string {
	ids := make([]string, 0, len(r.Components))
	for id := range r.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type message struct {
	port  string
	value any
	eof   bool
}

type instanceRun struct {
	id      string
	inst    *Instance
	comp    *component.Guarded
	cc      *component.Context
	logger  *slog.Logger
	inbox   chan message
	result  *ComponentResult
	runner  *Runner
	runID   string
	targets map[string][]target // output port -> downstream inputs
}

type target struct {
	inbox chan message
	port  string
}

// Run validates and executes a flow. Every instance runs in its own
// goroutine; the first error cancels the others and is returned joined
// with any dispose errors.
func (r *Runner) Run(ctx context.Context, d *Descriptor) (*Result, error) {
	plan, err := Build(d, r.registry)
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	if r.store != nil {
		run, err := r.store.CreateRun(d.Name, d.Path())
		if err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
		runID = run.ID
	}

	logger := r.logger.With("flow", d.Name, "run_id", runID)
	logger.Info("starting run", "components", len(plan.Instances))

	result := &Result{RunID: runID, Components: make(map[string]*ComponentResult, len(plan.Instances))}

	runs, err := r.initialize(ctx, plan, runID, logger, result)
	if err != nil {
		result.Status = state.RunStatusFailed
		r.completeRun(runID, result.Status, err)
		return result, err
	}

	runErr := r.execute(ctx, runs)

	var disposeErrs []error
	for _, ir := range runs {
		if err := ir.comp.Dispose(context.WithoutCancel(ctx)); err != nil {
			disposeErrs = append(disposeErrs, fmt.Errorf("component %q: dispose: %w", ir.id, err))
		}
	}

	switch {
	case runErr == nil:
		result.Status = state.RunStatusCompleted
	case ctx.Err() != nil && errors.Is(runErr, ctx.Err()):
		result.Status = state.RunStatusCancelled
	default:
		result.Status = state.RunStatusFailed
	}

	finalErr := errors.Join(append([]error{runErr}, disposeErrs...)...)
	r.completeRun(runID, result.Status, finalErr)

	if finalErr != nil {
		logger.Info("run failed", "status", result.Status, "error", finalErr.Error())
	} else {
		logger.Info("run completed")
	}
	return result, finalErr
}

func (r *Runner) initialize(ctx context.Context, plan *Plan, runID string, logger *slog.Logger, result *Result) ([]*instanceRun, error) {
	sorted, err := plan.Graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	runs := make([]*instanceRun, 0, len(sorted))
	byID := make(map[string]*instanceRun, len(sorted))

	for _, node := range sorted {
		inst := node.Data.(*Instance)
		ir := &instanceRun{
			id:      node.ID,
			inst:    inst,
			inbox:   make(chan message, r.bufferSize),
			runner:  r,
			runID:   runID,
			targets: make(map[string][]target),
			result: &ComponentResult{
				InstanceID: node.ID,
				Type:       inst.Spec.Type,
				Status:     state.ComponentStatusPending,
			},
		}
		result.Components[node.ID] = ir.result
		runs = append(runs, ir)
		byID[node.ID] = ir
	}

	for _, ir := range runs {
		for _, e := range plan.Graph.OutEdges(ir.id) {
			ir.targets[e.FromPort] = append(ir.targets[e.FromPort], target{inbox: byID[e.To].inbox, port: e.ToPort})
		}
	}

	var initialized []*instanceRun
	for _, ir := range runs {
		comp, desc, err := r.registry.New(ir.inst.Spec.Type)
		if err != nil {
			return nil, r.abortInit(ctx, initialized, fmt.Errorf("component %q: %w", ir.id, err))
		}

		ir.comp = component.Wrap(comp, desc)
		props := component.NewProperties(desc.Properties, ir.inst.Spec.Properties)
		if err := ir.comp.Initialize(ctx, props); err != nil {
			ir.result.Status = state.ComponentStatusFailed
			ir.result.Err = err
			r.record(ir)
			return nil, r.abortInit(ctx, initialized, fmt.Errorf("component %q: initialize: %w", ir.id, err))
		}
		initialized = append(initialized, ir)
		ir.logger = logger.With("component", ir.inst.Spec.Type, "instance", ir.id)
		r.record(ir)
	}
	return runs, nil
}

func (r *Runner) abortInit(ctx context.Context, initialized []*instanceRun, cause error) error {
	errs := []error{cause}
	for _, ir := range initialized {
		ir.result.Status = state.ComponentStatusSkipped
		r.record(ir)
		if err := ir.comp.Dispose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("component %q: dispose: %w", ir.id, err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) execute(ctx context.Context, runs []*instanceRun) error {
	eg, egctx := errgroup.WithContext(ctx)

	for _, ir := range runs {
		ir.cc = component.NewContext(component.ContextConfig{
			FlowID:           ir.runID,
			InstanceID:       ir.id,
			StreamID:         ir.streamID(),
			ConnectedInputs:  ir.inst.ConnectedInputs,
			ConnectedOutputs: ir.inst.ConnectedOutputs,
			Emit:             ir.emitter(egctx),
			Logger:           ir.logger,
			WebUI:            r.web,
		})
		eg.Go(func() error {
			return ir.run(egctx)
		})
	}

	err := eg.Wait()

	for _, ir := range runs {
		if ir.result.Status == state.ComponentStatusRunning || ir.result.Status == state.ComponentStatusPending {
			ir.result.Status = state.ComponentStatusCancelled
			r.record(ir)
		}
	}
	return err
}

func (ir *instanceRun) streamID() int {
	id, _ := ir.comp.StreamID()
	return id
}

func (ir *instanceRun) emitter(ctx context.Context) component.EmitFunc {
	return func(port string, value any) error {
		for _, t := range ir.targets[port] {
			select {
			case t.inbox <- message{port: t.port, value: value}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}
}

func (ir *instanceRun) run(ctx context.Context) (err error) {
	ir.result.Status = state.ComponentStatusRunning
	ir.result.StartedAt = time.Now().UTC()
	ir.runner.record(ir)

	defer func() {
		if err == nil {
			err = ir.closeOutputs(ctx)
		}
		ir.result.CompletedAt = time.Now().UTC()
		switch {
		case err == nil:
			ir.result.Status = state.ComponentStatusSuccess
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			ir.result.Status = state.ComponentStatusCancelled
		default:
			ir.result.Status = state.ComponentStatusFailed
			ir.result.Err = err
		}
		ir.runner.record(ir)
	}()

	inputs := ir.inst.ConnectedInputs
	if len(inputs) == 0 {
		return ir.fire(ctx, map[string]any{})
	}

	policy := ir.inst.Descriptor.Policy()
	cache := component.NewInputCache()
	open := len(ir.inst.ConnectedInputs)

	for open > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-ir.inbox:
			if m.eof {
				open--
				continue
			}
			if policy == component.FireAny {
				if err := ir.fire(ctx, map[string]any{m.port: m.value}); err != nil {
					return err
				}
				continue
			}

			cache.Add(m.port, m.value)
			for ready(cache, inputs) {
				values := make(map[string]any, len(inputs))
				for _, p := range inputs {
					values[p], _ = cache.Pop(p)
				}
				if err := ir.fire(ctx, values); err != nil {
					return err
				}
			}
		}
	}

	for _, p := range inputs {
		if n := cache.Len(p); n > 0 {
			ir.cc.Logger().Warn("discarding unpaired inputs at end of flow", "port", p, "count", n)
		}
	}
	return nil
}

func ready(cache *component.InputCache, ports []string) bool {
	for _, p := range ports {
		if cache.Empty(p) {
			return false
		}
	}
	return true
}

func (ir *instanceRun) fire(ctx context.Context, inputs map[string]any) error {
	ir.cc.SetInputs(inputs)
	ir.result.Firings++
	if err := ir.comp.Execute(ctx, ir.cc); err != nil {
		return fmt.Errorf("component %q: %w", ir.id, err)
	}
	return nil
}

func (ir *instanceRun) closeOutputs(ctx context.Context) error {
	for _, targets := range ir.targets {
		for _, t := range targets {
			select {
			case t.inbox <- message{port: t.port, eof: true}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

func (r *Runner) record(ir *instanceRun) {
	res := ir.result
	var errMsg string
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	if r.store != nil {
		exec := &state.ComponentExecution{
			RunID:         ir.runID,
			InstanceID:    ir.id,
			ComponentType: res.Type,
			Status:        res.Status,
			Firings:       res.Firings,
			Error:         errMsg,
		}
		if !res.StartedAt.IsZero() {
			started := res.StartedAt
			exec.StartedAt = &started
		}
		if !res.CompletedAt.IsZero() {
			completed := res.CompletedAt
			exec.CompletedAt = &completed
		}
		if err := r.store.RecordComponent(exec); err != nil {
			r.logger.Warn("failed to record component", "instance", ir.id, "error", err)
		}
	}

	if r.onEvent != nil {
		r.onEvent(Event{
			RunID:      ir.runID,
			InstanceID: ir.id,
			Type:       res.Type,
			Status:     res.Status,
			Firings:    res.Firings,
			Error:      errMsg,
		})
	}
}

func (r *Runner) completeRun(runID string, status state.RunStatus, err error) {
	if r.store == nil {
		return
	}
	var msg string
	if err != nil {
		msg = err.Error()
	}
	if cerr := r.store.CompleteRun(runID, status, msg); cerr != nil {
		r.logger.Warn("failed to complete run", "run_id", runID, "error", cerr)
	}
}
