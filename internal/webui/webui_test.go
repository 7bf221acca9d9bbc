package webui

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasr/flowkit/internal/flow"
	"github.com/seasr/flowkit/internal/state"
	"github.com/seasr/flowkit/internal/testutil"
)

func newStore(t *testing.T) *state.SQLiteStore {
	t.Helper()
	store := state.NewSQLiteStore(nil)
	require.NoError(t, store.Open(":memory:"))
	require.NoError(t, store.InitSchema())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestNotifier(t *testing.T) {
	n := NewNotifier()
	ch1 := n.Subscribe()
	ch2 := n.Subscribe()
	assert.Equal(t, 2, n.Len())

	n.Publish(flow.Event{RunID: "r1", InstanceID: "a"})
	for _, ch := range []chan flow.Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "a", ev.InstanceID)
		case <-time.After(time.Second):
			t.Fatal("listener did not receive the event")
		}
	}

	n.Unsubscribe(ch1)
	n.Unsubscribe(ch2)
	assert.Equal(t, 0, n.Len())
}

func TestNotifier_PublishDoesNotBlock(t *testing.T) {
	n := NewNotifier()
	ch := n.Subscribe()
	defer n.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			n.Publish(flow.Event{Firings: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full listener")
	}
}

func TestServer_Fragments(t *testing.T) {
	s := NewServer(Config{Logger: testutil.NewTestLogger(t)})
	h := s.Handler()

	s.Register("/twitter", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "tweets")
	}))
	s.Register("/fragments/GenericTemplate", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<p>hi</p>")
	}))
	assert.Equal(t, []string{"/fragments/GenericTemplate", "/twitter"}, s.Fragments())

	rec := get(t, h, "/twitter")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tweets", rec.Body.String())

	rec = get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<a href="/twitter">`)
	assert.Contains(t, rec.Body.String(), "No runs recorded.")

	s.Unregister("/twitter")
	assert.Equal(t, http.StatusNotFound, get(t, h, "/twitter").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/nothing").Code)
}

func TestServer_Runs(t *testing.T) {
	store := newStore(t)
	run, err := store.CreateRun("wordcount", "flows/wordcount.yaml")
	require.NoError(t, err)
	completed := time.Now()
	started := completed.Add(-2 * time.Second)
	require.NoError(t, store.RecordComponent(&state.ComponentExecution{
		RunID:         run.ID,
		InstanceID:    "push",
		ComponentType: "PushText",
		Status:        state.ComponentStatusSuccess,
		Firings:       1,
		StartedAt:     &started,
		CompletedAt:   &completed,
	}))
	require.NoError(t, store.CompleteRun(run.ID, state.RunStatusCompleted, ""))

	s := NewServer(Config{Store: store, Logger: testutil.NewTestLogger(t)})
	h := s.Handler()

	rec := get(t, h, "/runs?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "wordcount", runs[0].FlowName)
	assert.Equal(t, state.RunStatusCompleted, runs[0].Status)

	rec = get(t, h, "/runs/"+run.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail RunDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Len(t, detail.Components, 1)
	assert.Equal(t, "PushText", detail.Components[0].Type)
	assert.GreaterOrEqual(t, detail.Components[0].DurationMS, int64(1000))

	assert.Equal(t, http.StatusNotFound, get(t, h, "/runs/unknown").Code)
	assert.Contains(t, get(t, h, "/").Body.String(), "wordcount")
}

func TestServer_RunsWithoutStore(t *testing.T) {
	h := NewServer(Config{}).Handler()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/runs").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/runs/abc").Code)
}

func TestServer_RunEvents(t *testing.T) {
	s := NewServer(Config{Logger: testutil.NewTestLogger(t)})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/runs/run-1/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return s.Notifier().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Publish(flow.Event{RunID: "run-2", InstanceID: "other", Status: state.ComponentStatusRunning})
	s.Publish(flow.Event{RunID: "run-1", InstanceID: "fetch", Type: "ReadText", Status: state.ComponentStatusSuccess, Firings: 3})

	reader := bufio.NewReader(resp.Body)
	var seen strings.Builder
	for !strings.Contains(seen.String(), "component-fetch") {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		seen.WriteString(line)
	}
	assert.Contains(t, seen.String(), "datastar-patch-elements")
	assert.Contains(t, seen.String(), "ReadText")
	assert.NotContains(t, seen.String(), "component-other")
}

func TestServer_ServeListener(t *testing.T) {
	s := NewServer(Config{Logger: testutil.NewTestLogger(t)})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.ServeListener(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_Addr(t *testing.T) {
	assert.Equal(t, "localhost:8080", NewServer(Config{Host: "localhost", Port: 8080}).Addr())
}
