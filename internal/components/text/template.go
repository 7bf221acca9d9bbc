package text

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// GenericTemplateDescriptor describes GenericTemplate.
var GenericTemplateDescriptor = component.Descriptor{
	Name:        "GenericTemplate",
	Description: "Renders an HTML template over its input and serves the result as a web fragment",
	Inputs:      []string{"object"},
	Outputs:     []string{portText, "object"},
	Properties: map[string]string{
		"template":      "",
		"template_file": "",
		"properties":    "",
		"path":          "",
	},
}

// TemplateData is the value a template is executed with.
type TemplateData struct {
	Data     any
	Instance string
	User     map[string]string
	Date     time.Time
}

// GenericTemplate renders the template once per input. The last rendering
// is served at /fragments/<instance> unless path is set.
type GenericTemplate struct {
	tmpl *template.Template
	user map[string]string
	path string

	mu       sync.RWMutex
	rendered []byte
	web      component.WebUI
}

// NewGenericTemplate creates the component.
func NewGenericTemplate() component.Component { return &GenericTemplate{} }

func (g *GenericTemplate) Initialize(_ context.Context, props *component.Properties) error {
	src := props.String("template")
	if file := props.String("template_file"); file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("property template_file: %w", err)
		}
		src = string(b)
	}
	if strings.TrimSpace(src) == "" {
		return fmt.Errorf("%w: template or template_file", component.ErrMissingProperty)
	}

	tmpl, err := template.New("fragment").Parse(src)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	g.tmpl = tmpl
	g.user = ParseKeyValues(props.String("properties"))
	g.path = props.String("path")
	return nil
}

func (g *GenericTemplate) Execute(_ context.Context, cc *component.Context) error {
	in := cc.Input("object")
	values, err := datatypes.ParseAsStrings(in)
	if err != nil {
		return err
	}
	var data any = values
	if len(values) == 1 {
		data = values[0]
	}

	var buf bytes.Buffer
	if err := g.tmpl.Execute(&buf, TemplateData{
		Data:     data,
		Instance: cc.InstanceID(),
		User:     g.user,
		Date:     time.Now(),
	}); err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	g.mu.Lock()
	g.rendered = buf.Bytes()
	g.mu.Unlock()

	if g.web == nil && cc.WebUI() != nil {
		if g.path == "" {
			g.path = "/fragments/" + cc.InstanceID()
		}
		g.web = cc.WebUI()
		g.web.Register(g.path, g)
		cc.Logger().Info("serving template fragment", "path", g.path)
	}

	if err := cc.Push(portText, datatypes.NewStrings(buf.String())); err != nil {
		return err
	}
	return cc.Push("object", in)
}

// ServeHTTP serves the last rendering.
func (g *GenericTemplate) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	g.mu.RLock()
	body := g.rendered
	g.mu.RUnlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(body)
}

func (g *GenericTemplate) Dispose(context.Context) error {
	if g.web != nil {
		g.web.Unregister(g.path)
		g.web = nil
	}
	return nil
}

// ParseKeyValues parses "k1=v1,k2=v2". Items without a key are ignored.
func ParseKeyValues(s string) map[string]string {
	out := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if k = strings.TrimSpace(k); !ok || k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}
