package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/seasr/flowkit/pkg/component"
)

// Harness runs one component outside a flow. Every declared port is
// connected unless restricted with WithOutputs/WithInputs, and pushed
// values are captured per output port.
type Harness struct {
	t       testing.TB
	comp    *component.Guarded
	cc      *component.Context
	mu      sync.Mutex
	outputs map[string][]any
	order   []string
}

type harnessConfig struct {
	inputs  []string
	outputs []string
	web     component.WebUI
}

// HarnessOption customizes a Harness.
type HarnessOption func(*harnessConfig)

// WithInputs restricts the connected input ports.
func WithInputs(ports ...string) HarnessOption {
	return func(c *harnessConfig) { c.inputs = ports }
}

// WithOutputs restricts the connected output ports.
func WithOutputs(ports ...string) HarnessOption {
	return func(c *harnessConfig) { c.outputs = ports }
}

// WithWebUI exposes a fragment registry to the component.
func WithWebUI(w component.WebUI) HarnessOption {
	return func(c *harnessConfig) { c.web = w }
}

// NewHarness initializes c with props and registers its disposal with t.
func NewHarness(t testing.TB, c component.Component, desc component.Descriptor, props map[string]string, opts ...HarnessOption) *Harness {
	t.Helper()
	h, err := TryNewHarness(t, c, desc, props, opts...)
	if err != nil {
		t.Fatalf("initialize %s: %v", desc.Name, err)
	}
	return h
}

// TryNewHarness is NewHarness returning the initialization error instead
// of failing the test.
func TryNewHarness(t testing.TB, c component.Component, desc component.Descriptor, props map[string]string, opts ...HarnessOption) (*Harness, error) {
	t.Helper()

	cfg := harnessConfig{inputs: desc.Inputs, outputs: desc.Outputs}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Harness{t: t, outputs: make(map[string][]any)}
	properties := component.NewProperties(desc.Properties, props)
	h.comp = component.Wrap(c, desc)
	if err := h.comp.Initialize(context.Background(), properties); err != nil {
		return nil, err
	}

	streamID, _ := h.comp.StreamID()
	h.cc = component.NewContext(component.ContextConfig{
		FlowID:           "test-flow",
		InstanceID:       desc.Name,
		StreamID:         streamID,
		ConnectedInputs:  cfg.inputs,
		ConnectedOutputs: cfg.outputs,
		Emit:             h.capture,
		Logger:           NewTestLogger(t),
		WebUI:            cfg.web,
	})

	t.Cleanup(func() {
		if err := h.comp.Dispose(context.Background()); err != nil {
			t.Errorf("dispose %s: %v", desc.Name, err)
		}
	})
	return h, nil
}

func (h *Harness) capture(port string, v any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outputs[port] = append(h.outputs[port], v)
	h.order = append(h.order, port)
	return nil
}

// Fire runs one firing with the given inputs.
func (h *Harness) Fire(inputs map[string]any) error {
	h.cc.SetInputs(inputs)
	return h.comp.Execute(context.Background(), h.cc)
}

// MustFire runs one firing and fails the test on error.
func (h *Harness) MustFire(inputs map[string]any) {
	h.t.Helper()
	if err := h.Fire(inputs); err != nil {
		h.t.Fatalf("fire: %v", err)
	}
}

// Outputs returns every value pushed on port.
func (h *Harness) Outputs(port string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]any(nil), h.outputs[port]...)
}

// Last returns the last value pushed on port, or nil.
func (h *Harness) Last(port string) any {
	out := h.Outputs(port)
	if len(out) == 0 {
		return nil
	}
	return out[len(out)-1]
}

// PushOrder returns the ports in the order values were pushed.
func (h *Harness) PushOrder() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Reset forgets the captured outputs.
func (h *Harness) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.outputs = make(map[string][]any)
	h.order = nil
}

// Context returns the component context used by the harness.
func (h *Harness) Context() *component.Context {
	return h.cc
}

// FakeWebUI records registered fragments and serves them through
// httptest.
type FakeWebUI struct {
	mu       sync.Mutex
	handlers map[string]http.Handler
}

// NewFakeWebUI creates an empty fragment registry.
func NewFakeWebUI() *FakeWebUI {
	return &FakeWebUI{handlers: make(map[string]http.Handler)}
}

func (f *FakeWebUI) Register(path string, h http.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[path] = h
}

func (f *FakeWebUI) Unregister(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, path)
}

// Handler returns the fragment registered at path.
func (f *FakeWebUI) Handler(path string) (http.Handler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.handlers[path]
	return h, ok
}

// Get serves a GET request for target against the fragment at path.
func (f *FakeWebUI) Get(t testing.TB, path, target string) *httptest.ResponseRecorder {
	t.Helper()
	h, ok := f.Handler(path)
	if !ok {
		t.Fatalf("no fragment registered at %s", path)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}
