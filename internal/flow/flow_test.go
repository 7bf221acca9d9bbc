package flow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seasr/flowkit/internal/dag"
	"github.com/seasr/flowkit/internal/state"
	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sink collects values received by Collect instances, keyed by instance.
type sink struct {
	mu     sync.Mutex
	values map[string][]any
}

func (s *sink) add(id string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[id] = append(s.values[id], v)
}

func (s *sink) get(id string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.values[id]...)
}

type source struct {
	values []string
	stream bool
}

func (s *source) Initialize(_ context.Context, p *component.Properties) error {
	s.values = p.List("values", ",")
	var err error
	s.stream, err = p.Bool("stream")
	return err
}

func (s *source) Execute(_ context.Context, cc *component.Context) error {
	if s.stream {
		if err := cc.Push("out", component.NewStreamInitiator(9)); err != nil {
			return err
		}
	}
	for _, v := range s.values {
		if err := cc.Push("out", v); err != nil {
			return err
		}
	}
	if s.stream {
		return cc.Push("out", component.NewStreamTerminator(9))
	}
	return nil
}

func (s *source) Dispose(context.Context) error { return nil }

type upper struct{ failOn string }

func (u *upper) Initialize(_ context.Context, p *component.Properties) error {
	u.failOn = p.String("fail_on")
	return nil
}

func (u *upper) Execute(_ context.Context, cc *component.Context) error {
	v := cc.Input("in").(string)
	if u.failOn != "" && v == u.failOn {
		return errors.New("refusing " + v)
	}
	return cc.Push("out", strings.ToUpper(v))
}

func (u *upper) Dispose(context.Context) error { return nil }

type joiner struct{}

func (joiner) Initialize(context.Context, *component.Properties) error { return nil }
func (joiner) Dispose(context.Context) error                           { return nil }
func (joiner) Execute(_ context.Context, cc *component.Context) error {
	return cc.Push("out", cc.Input("left").(string)+"+"+cc.Input("right").(string))
}

type collect struct {
	sink *sink
	id   string
}

func (c *collect) Initialize(_ context.Context, p *component.Properties) error {
	c.id = p.String("name")
	return nil
}

func (c *collect) Execute(_ context.Context, cc *component.Context) error {
	c.sink.add(c.id, cc.Input("in"))
	return nil
}

func (c *collect) HandleStreamInitiators(_ context.Context, cc *component.Context) error {
	c.sink.add(c.id, cc.Input("in"))
	return nil
}

func (c *collect) HandleStreamTerminators(_ context.Context, cc *component.Context) error {
	c.sink.add(c.id, cc.Input("in"))
	return nil
}

func (c *collect) Dispose(context.Context) error { return nil }

func testRegistry(t *testing.T, s *sink) *component.Registry {
	t.Helper()
	r := component.NewRegistry()
	r.MustRegister(component.Descriptor{Name: "Source", Outputs: []string{"out"}},
		func() component.Component { return &source{} })
	r.MustRegister(component.Descriptor{Name: "Upper", Inputs: []string{"in"}, Outputs: []string{"out"}},
		func() component.Component { return &upper{} })
	r.MustRegister(component.Descriptor{Name: "Join", Inputs: []string{"left", "right"}, Outputs: []string{"out"}},
		func() component.Component { return joiner{} })
	r.MustRegister(component.Descriptor{Name: "Collect", Inputs: []string{"in"}},
		func() component.Component { return &collect{sink: s} })
	return r
}

const pipelineYAML = `
name: pipeline
components:
  - id: src
    type: Source
    properties:
      values: a,b,c
  - id: up
    type: Upper
  - id: out
    type: Collect
    properties:
      name: out
connections:
  - from: src.out
    to: up.in
  - from: up.out
    to: out.in
`

func newRunner(t *testing.T, reg *component.Registry, store state.Store) *Runner {
	t.Helper()
	r, err := New(Config{Registry: reg, Store: store, Logger: testutil.NewTestLogger(t)})
	require.NoError(t, err)
	return r
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in      string
		want    Endpoint
		wantErr bool
	}{
		{in: "src.out", want: Endpoint{Instance: "src", Port: "out"}},
		{in: "ns.src.out", want: Endpoint{Instance: "ns.src", Port: "out"}},
		{in: "noport", wantErr: true},
		{in: ".out", wantErr: true},
		{in: "src.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_NamesFlowAfterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components:\n  - id: a\n    type: Source\n"), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", d.Name)
	assert.Equal(t, path, d.Path())
}

func TestParse_NumericPropertiesBecomeStrings(t *testing.T) {
	d, err := Parse([]byte("components:\n  - id: a\n    type: Source\n    properties:\n      times: 5\n      wrap: true\n"))
	require.NoError(t, err)
	assert.Equal(t, "5", d.Components[0].Properties["times"])
	assert.Equal(t, "true", d.Components[0].Properties["wrap"])
}

func TestBuild_ReportsEveryProblem(t *testing.T) {
	reg := testRegistry(t, &sink{values: map[string][]any{}})
	d, err := Parse([]byte(`
components:
  - id: src
    type: Source
  - id: src
    type: Source
  - id: ghost
    type: Nope
  - id: out
    type: Collect
connections:
  - from: src.missing
    to: out.in
  - from: src.out
    to: out.nope
  - from: bad
    to: out.in
`))
	require.NoError(t, err)

	err = Validate(d, reg)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `duplicate component id "src"`)
	assert.True(t, errors.Is(err, component.ErrUnknownComponent))
	assert.Contains(t, msg, `no output port "missing"`)
	assert.Contains(t, msg, `no input port "nope"`)
	assert.Contains(t, msg, "invalid endpoint")
}

func TestBuild_InputFedTwice(t *testing.T) {
	reg := testRegistry(t, &sink{values: map[string][]any{}})
	d, err := Parse([]byte(`
components:
  - {id: a, type: Source}
  - {id: b, type: Source}
  - {id: out, type: Collect}
connections:
  - {from: a.out, to: out.in}
  - {from: b.out, to: out.in}
`))
	require.NoError(t, err)
	assert.ErrorContains(t, Validate(d, reg), "already fed")
}

func TestBuild_DetectsCycle(t *testing.T) {
	reg := testRegistry(t, &sink{values: map[string][]any{}})
	d, err := Parse([]byte(`
components:
  - {id: a, type: Upper}
  - {id: b, type: Upper}
connections:
  - {from: a.out, to: b.in}
  - {from: b.out, to: a.in}
`))
	require.NoError(t, err)
	assert.ErrorIs(t, Validate(d, reg), dag.ErrCycle)
}

func TestBuild_ConnectedPorts(t *testing.T) {
	reg := testRegistry(t, &sink{values: map[string][]any{}})
	d, err := Parse([]byte(pipelineYAML))
	require.NoError(t, err)

	plan, err := Build(d, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"in"}, plan.Instances["up"].ConnectedInputs)
	assert.Equal(t, []string{"out"}, plan.Instances["up"].ConnectedOutputs)
	assert.Empty(t, plan.Instances["src"].ConnectedInputs)

	levels, err := plan.Graph.ExecutionLevels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"src"}, {"up"}, {"out"}}, levels)
}

func TestRunner_RunsPipeline(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(pipelineYAML))
	require.NoError(t, err)

	res, err := newRunner(t, testRegistry(t, s), nil).Run(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, state.RunStatusCompleted, res.Status)
	assert.Equal(t, []any{"A", "B", "C"}, s.get("out"))
	assert.Equal(t, 3, res.Components["up"].Firings)
	assert.Equal(t, 1, res.Components["src"].Firings)
	assert.Equal(t, state.ComponentStatusSuccess, res.Components["out"].Status)
	assert.Equal(t, []string{"out", "src", "up"}, res.InstanceIDs())
}

func TestRunner_FiringPolicyAllPairsInputs(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(`
components:
  - {id: l, type: Source, properties: {values: "x,y"}}
  - {id: r, type: Source, properties: {values: "1,2,3"}}
  - {id: j, type: Join}
  - {id: out, type: Collect, properties: {name: out}}
connections:
  - {from: l.out, to: j.left}
  - {from: r.out, to: j.right}
  - {from: j.out, to: out.in}
`))
	require.NoError(t, err)

	res, err := newRunner(t, testRegistry(t, s), nil).Run(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, []any{"x+1", "y+2"}, s.get("out"))
	assert.Equal(t, 2, res.Components["j"].Firings, "the unpaired third value never fires")
}

func TestRunner_PropagatesDelimiters(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(strings.Replace(pipelineYAML, "values: a,b,c", "values: a\n      stream: \"true\"", 1)))
	require.NoError(t, err)

	_, err = newRunner(t, testRegistry(t, s), nil).Run(context.Background(), d)
	require.NoError(t, err)

	got := s.get("out")
	require.Len(t, got, 3)
	assert.True(t, component.IsInitiator(got[0]))
	assert.Equal(t, "A", got[1])
	assert.True(t, component.IsTerminator(got[2]))
}

func TestRunner_AbortsOnError(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	defer store.Close()

	d, err := Parse([]byte(strings.Replace(pipelineYAML, "type: Upper", "type: Upper\n    properties:\n      fail_on: b", 1)))
	require.NoError(t, err)

	res, err := newRunner(t, testRegistry(t, s), store).Run(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `component "up"`)
	assert.Contains(t, err.Error(), "refusing b")
	assert.Equal(t, state.RunStatusFailed, res.Status)
	assert.Equal(t, state.ComponentStatusFailed, res.Components["up"].Status)

	run, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "refusing b")

	execs, err := store.GetComponentExecutions(res.RunID)
	require.NoError(t, err)
	assert.Len(t, execs, 3)
}

func TestRunner_IgnoreErrors(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(strings.Replace(pipelineYAML, "type: Upper",
		"type: Upper\n    properties:\n      fail_on: b\n      ignore_errors: \"true\"", 1)))
	require.NoError(t, err)

	res, err := newRunner(t, testRegistry(t, s), nil).Run(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, res.Status)
	assert.Equal(t, []any{"A", "C"}, s.get("out"))
}

type blocker struct{}

func (blocker) Initialize(context.Context, *component.Properties) error { return nil }
func (blocker) Dispose(context.Context) error                           { return nil }
func (blocker) Execute(ctx context.Context, _ *component.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunner_Cancellation(t *testing.T) {
	reg := component.NewRegistry()
	reg.MustRegister(component.Descriptor{Name: "Block"}, func() component.Component { return blocker{} })
	d, err := Parse([]byte("components:\n  - {id: b, type: Block}\n"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := newRunner(t, reg, nil).Run(ctx, d)
	require.Error(t, err)
	assert.Equal(t, state.RunStatusCancelled, res.Status)
	assert.Equal(t, state.ComponentStatusCancelled, res.Components["b"].Status)
}

func TestRunner_InitializeFailure(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(strings.Replace(pipelineYAML, "values: a,b,c", "values: a\n      stream: maybe", 1)))
	require.NoError(t, err)

	res, err := newRunner(t, testRegistry(t, s), nil).Run(context.Background(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize")
	assert.Equal(t, state.RunStatusFailed, res.Status)
	assert.Empty(t, s.get("out"))
}

func TestRunner_EmitsEvents(t *testing.T) {
	s := &sink{values: map[string][]any{}}
	d, err := Parse([]byte(pipelineYAML))
	require.NoError(t, err)

	var mu sync.Mutex
	var events []Event
	r, err := New(Config{Registry: testRegistry(t, s), OnEvent: func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}})
	require.NoError(t, err)

	_, err = r.Run(context.Background(), d)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var finished int
	for _, e := range events {
		if e.Status == state.ComponentStatusSuccess {
			finished++
		}
	}
	assert.Equal(t, 3, finished)
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
