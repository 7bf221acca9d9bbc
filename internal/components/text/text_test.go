package text

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

func strs(t *testing.T, values []any) []string {
	t.Helper()
	var out []string
	for _, v := range values {
		if component.IsDelimiter(v) {
			out = append(out, "<delimiter>")
			continue
		}
		s, err := datatypes.ParseAsString(v)
		require.NoError(t, err)
		out = append(out, s)
	}
	return out
}

func TestPushText(t *testing.T) {
	h := testutil.NewHarness(t, NewPushText(), PushTextDescriptor, map[string]string{
		"message":     "hi",
		"times":       "2",
		"wrap_stream": "true",
		"_stream_id":  "4",
	})
	h.MustFire(map[string]any{})

	out := h.Outputs("text")
	assert.Equal(t, []string{"<delimiter>", "hi", "hi", "<delimiter>"}, strs(t, out))
	assert.True(t, component.IsInitiator(out[0]))
	assert.True(t, component.IsTerminator(out[3]))
	assert.Equal(t, 4, out[0].(component.Delimiter).StreamID())
}

func TestPushText_Defaults(t *testing.T) {
	h := testutil.NewHarness(t, NewPushText(), PushTextDescriptor, nil)
	h.MustFire(map[string]any{})
	assert.Equal(t, []string{"Hello World!"}, strs(t, h.Outputs("text")))

	_, err := testutil.TryNewHarness(t, NewPushText(), PushTextDescriptor, map[string]string{"times": "-1"})
	assert.Error(t, err)
}

func TestReadText_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("file contents"), 0o600))

	h := testutil.NewHarness(t, NewReadText(), ReadTextDescriptor, nil)
	h.MustFire(map[string]any{"location": path})
	h.MustFire(map[string]any{"location": datatypes.NewStrings("file://" + path)})

	assert.Equal(t, []string{"file contents", "file contents"}, strs(t, h.Outputs("text")))
	assert.Equal(t, []string{path, "file://" + path}, strs(t, h.Outputs("location")))

	assert.Error(t, h.Fire(map[string]any{"location": filepath.Join(t.TempDir(), "missing.txt")}))
}

func TestReadText_HTTPRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("remote text"))
	}))
	defer srv.Close()

	h := testutil.NewHarness(t, NewReadText(), ReadTextDescriptor, map[string]string{
		"max_attempts":        "3",
		"retry_delay":         "1ms",
		"retry_on_http_error": "500, 503",
	})
	h.MustFire(map[string]any{"location": srv.URL + "/doc"})

	assert.Equal(t, "remote text", strs(t, h.Outputs("text"))[0])
	assert.Equal(t, int32(2), hits.Load())
}

func TestReadText_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := testutil.NewHarness(t, NewReadText(), ReadTextDescriptor, map[string]string{"max_attempts": "3"})
	err := h.Fire(map[string]any{"location": srv.URL})
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Empty(t, h.Outputs("text"))
}

func TestWriteText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "doc.txt")

	h := testutil.NewHarness(t, NewWriteText(), WriteTextDescriptor, map[string]string{"append": "true"})
	h.MustFire(map[string]any{"location": path, "text": "one "})
	h.MustFire(map[string]any{"location": path, "text": datatypes.NewStrings("two")})

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one two", string(b))
	assert.Equal(t, []string{path, path}, strs(t, h.Outputs("location")))

	over := testutil.NewHarness(t, NewWriteText(), WriteTextDescriptor, nil)
	over.MustFire(map[string]any{"location": path, "text": "fresh"})
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(b))
}

func TestWriteText_Delimiters(t *testing.T) {
	h := testutil.NewHarness(t, NewWriteText(), WriteTextDescriptor, nil)

	h.MustFire(map[string]any{"location": component.NewStreamInitiator(1), "text": component.NewStreamInitiator(1)})
	// misaligned: the location delimiter is reused for the text
	h.MustFire(map[string]any{"location": component.NewStreamTerminator(1), "text": "stray"})

	loc, text := h.Outputs("location"), h.Outputs("text")
	require.Len(t, loc, 2)
	require.Len(t, text, 2)
	assert.True(t, component.IsInitiator(text[0]))
	assert.True(t, component.IsTerminator(loc[1]))
	assert.True(t, component.IsTerminator(text[1]))
}

func TestExtractText(t *testing.T) {
	doc := `<html><head><title>T</title><style>x{}</style></head><body>
<h1>Hello</h1><p>Some   <b>bold</b> text.</p><script>var a;</script><!-- note -->
<ul><li>one</li><li>two</li></ul></body></html>`

	text, err := ExtractText(doc)
	require.NoError(t, err)
	assert.Equal(t, "Hello\nSome bold text.\none\ntwo", text)

	_, err = ExtractText("<script>only()</script>")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestHTMLTextExtractor(t *testing.T) {
	h := testutil.NewHarness(t, NewHTMLTextExtractor(), HTMLTextExtractorDescriptor, nil)
	h.MustFire(map[string]any{"html": datatypes.NewStrings("<p>a</p>", "<p>b</p>")})
	assert.Equal(t, []string{"a", "b"}, strs(t, h.Outputs("text")))

	assert.ErrorIs(t, h.Fire(map[string]any{"html": "<style>p{}</style>"}), ErrNoText)
}

func TestHTMLToMarkdown(t *testing.T) {
	h := testutil.NewHarness(t, NewHTMLToMarkdown(), HTMLToMarkdownDescriptor, nil)
	h.MustFire(map[string]any{"html": `<h1>Title</h1><p>Some <strong>bold</strong> text</p>`})

	md := strs(t, h.Outputs("text"))[0]
	assert.Contains(t, md, "# Title")
	assert.Contains(t, md, "**bold**")
}

func TestGenericTemplate(t *testing.T) {
	web := testutil.NewFakeWebUI()
	h := testutil.NewHarness(t, NewGenericTemplate(), GenericTemplateDescriptor, map[string]string{
		"template":   `<p>{{.Data}} by {{index .User "author"}} in {{.Instance}}</p>`,
		"properties": "author = mike, broken, =x",
	}, testutil.WithWebUI(web))

	h.MustFire(map[string]any{"object": "<x>"})

	want := "<p>&lt;x&gt; by mike in GenericTemplate</p>"
	assert.Equal(t, []string{want}, strs(t, h.Outputs("text")))
	assert.Equal(t, []any{"<x>"}, h.Outputs("object"))

	rec := web.Get(t, "/fragments/GenericTemplate", "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, rec.Body.String())
}

func TestGenericTemplate_Errors(t *testing.T) {
	_, err := testutil.TryNewHarness(t, NewGenericTemplate(), GenericTemplateDescriptor, nil)
	assert.ErrorIs(t, err, component.ErrMissingProperty)

	_, err = testutil.TryNewHarness(t, NewGenericTemplate(), GenericTemplateDescriptor, map[string]string{
		"template": "{{.Data",
	})
	assert.ErrorContains(t, err, "parse template")
}

func TestParseKeyValues(t *testing.T) {
	assert.Equal(t, map[string]string{"key": "value", "author": "mike"}, ParseKeyValues("key=value,author=mike"))
	assert.Empty(t, ParseKeyValues(""))
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r))
	assert.Equal(t, 6, r.Len())
}
