package webui

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/seasr/flowkit/internal/flow"
	"github.com/seasr/flowkit/internal/state"
)

const defaultRunLimit = 50

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>flowkit</title></head>
<body>
<h1>flowkit</h1>
<h2>Fragments</h2>
{{if .Fragments}}<ul>{{range .Fragments}}<li><a href="{{.}}">{{.}}</a></li>{{end}}</ul>{{else}}<p>No component is serving a fragment.</p>{{end}}
<h2>Runs</h2>
{{if .Runs}}<table>
<tr><th>ID</th><th>Flow</th><th>Status</th><th>Started</th><th>Error</th></tr>
{{range .Runs}}<tr><td><a href="/runs/{{.ID}}">{{.ID}}</a></td><td>{{.FlowName}}</td><td>{{.Status}}</td><td>{{.StartedAt.Format "2006-01-02 15:04:05"}}</td><td>{{.Error}}</td></tr>
{{end}}</table>{{else}}<p>No runs recorded.</p>{{end}}
</body>
</html>
`))

var componentRowTmpl = template.Must(template.New("row").Parse(
	`<tr id="component-{{.InstanceID}}"><td>{{.InstanceID}}</td><td>{{.Type}}</td><td>{{.Status}}</td><td>{{.Firings}}</td><td>{{.Error}}</td></tr>`))

var componentTableTmpl = template.Must(template.New("table").Parse(
	`<tbody id="components">{{range .}}<tr id="component-{{.InstanceID}}"><td>{{.InstanceID}}</td><td>{{.Type}}</td><td>{{.Status}}</td><td>{{.Firings}}</td><td>{{.Error}}</td></tr>{{end}}</tbody>`))

// RunView is the JSON form of a run.
type RunView struct {
	ID          string          `json:"id"`
	FlowName    string          `json:"flow_name"`
	FlowPath    string          `json:"flow_path,omitempty"`
	Status      state.RunStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ComponentView is the JSON form of a component execution.
type ComponentView struct {
	InstanceID string                `json:"instance_id"`
	Type       string                `json:"type"`
	Status     state.ComponentStatus `json:"status"`
	Firings    int                   `json:"firings"`
	DurationMS int64                 `json:"duration_ms"`
	Error      string                `json:"error,omitempty"`
}

// RunDetail is a run with its component executions.
type RunDetail struct {
	RunView
	Components []ComponentView `json:"components"`
}

func toRunView(r *state.Run) RunView {
	return RunView{
		ID:          r.ID,
		FlowName:    r.FlowName,
		FlowPath:    r.FlowPath,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
}

func toComponentView(c *state.ComponentExecution) ComponentView {
	return ComponentView{
		InstanceID: c.InstanceID,
		Type:       c.ComponentType,
		Status:     c.Status,
		Firings:    c.Firings,
		DurationMS: c.Duration().Milliseconds(),
		Error:      c.Error,
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Fragments []string
		Runs      []*state.Run
	}{Fragments: s.Fragments()}

	if s.store != nil {
		runs, err := s.store.ListRuns(defaultRunLimit)
		if err != nil {
			s.logger.Warn("failed to list runs", "error", err)
		}
		data.Runs = runs
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no state store configured", http.StatusServiceUnavailable)
		return
	}

	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	views := make([]RunView, len(runs))
	for i, run := range runs {
		views[i] = toRunView(run)
	}
	writeJSON(w, views)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no state store configured", http.StatusServiceUnavailable)
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(id)
	if errors.Is(err, state.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	execs, err := s.store.GetComponentExecutions(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	detail := RunDetail{RunView: toRunView(run), Components: make([]ComponentView, len(execs))}
	for i, e := range execs {
		detail.Components[i] = toComponentView(e)
	}
	writeJSON(w, detail)
}

// handleRunEvents streams component status changes of one run. The
// component table known so far is sent first, then one row per event.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	// subscribe before reading the store so no event falls in between
	updates := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(updates)

	sse := datastar.NewSSE(w, r)

	if s.store != nil {
		execs, err := s.store.GetComponentExecutions(runID)
		if err != nil {
			_ = sse.ConsoleError(err)
		} else {
			views := make([]ComponentView, len(execs))
			for i, e := range execs {
				views[i] = toComponentView(e)
			}
			var buf bytes.Buffer
			if err := componentTableTmpl.Execute(&buf, views); err == nil {
				_ = sse.PatchElements(buf.String())
			}
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			if ev.RunID != runID {
				continue
			}
			if err := s.sendComponentRow(sse, ev); err != nil {
				s.logger.Debug("event stream closed", "run_id", runID, "error", err)
				return
			}
		}
	}
}

func (s *Server) sendComponentRow(sse *datastar.ServerSentEventGenerator, ev flow.Event) error {
	var buf bytes.Buffer
	if err := componentRowTmpl.Execute(&buf, ev); err != nil {
		return err
	}
	return sse.PatchElements(buf.String())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
