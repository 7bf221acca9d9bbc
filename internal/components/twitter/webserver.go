package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/seasr/flowkit/internal/entitycache"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/tuple"
)

// Export limits of the web server formats.
const (
	DefaultTopN    = 50
	MaxExportWords = 6
	MaxExportV1    = 16
)

// TupleWebServerDescriptor describes TwitterTupleWebServer.
var TupleWebServerDescriptor = component.Descriptor{
	Name:        "TwitterTupleWebServer",
	Description: "Serves the most frequent named entities of a tweet stream, with the words tweeted around them",
	Inputs:      []string{"tuples", "meta_tuple", "neTuples", "neMeta_tuple"},
	Properties: map[string]string{
		"path": "/twitter",
	},
}

// TupleWebServer feeds an entity cache and serves it over HTTP.
type TupleWebServer struct {
	path     string
	cache    *entitycache.Cache
	resolver *HostResolver
	web      component.WebUI
	logger   *slog.Logger
	once     sync.Once
}

// NewTupleWebServer creates the component.
func NewTupleWebServer() component.Component { return &TupleWebServer{} }

func (s *TupleWebServer) Initialize(_ context.Context, props *component.Properties) error {
	s.path = props.String("path")
	if !strings.HasPrefix(s.path, "/") {
		s.path = "/" + s.path
	}
	s.resolver = NewHostResolver(3*time.Second, 500)
	return nil
}

func (s *TupleWebServer) Execute(_ context.Context, cc *component.Context) error {
	s.once.Do(func() {
		s.logger = cc.Logger()
		s.cache = entitycache.New(s.logger)
		s.web = cc.WebUI()
		if s.web == nil {
			cc.Logger().Warn("no web server available; entities are cached but not served")
			return
		}
		s.web.Register(s.path, s)
		cc.Logger().Info("serving entities", "path", s.path)
	})

	_, tweets, err := tuple.Decode(cc.Input("meta_tuple"), cc.Input("tuples"))
	if err != nil {
		return err
	}
	_, entities, err := tuple.Decode(cc.Input("neMeta_tuple"), cc.Input("neTuples"))
	if err != nil {
		return err
	}
	cc.Logger().Debug("caching entities", "entities", len(entities), "tweets", len(tweets))
	return s.cache.Add(tweets, entities)
}

func (s *TupleWebServer) Dispose(context.Context) error {
	if s.web != nil {
		s.web.Unregister(s.path)
	}
	return nil
}

// Cache returns the entity cache, or nil before the first firing.
func (s *TupleWebServer) Cache() *entitycache.Cache { return s.cache }

// ServeHTTP answers GET ?type=<type>[.<format>]&topN=<n>.
func (s *TupleWebServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	q := r.URL.Query()

	format, typ := "html", q.Get("type")
	if typ == "" {
		typ = entitycache.AllTypes
	} else if i := strings.LastIndex(typ, "."); i > 0 {
		format, typ = typ[i+1:], typ[:i]
	}

	n := DefaultTopN
	if raw := q.Get("topN"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid topN %q", raw), http.StatusBadRequest)
			return
		}
		n = v
	}

	entities, typ := s.cache.Entities(typ)
	top := tuple.TopNValues(entities, "text", n)

	switch format {
	case "json":
		resolve, _ := strconv.ParseBool(q.Get("doResolve"))
		s.writeJSON(r.Context(), w, typ, n, top, resolve)
	case "v1":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, s.formatV1(typ, top))
	default:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintln(w, s.formatHTML(typ, top, entities))
	}
}

type jsonResponse struct {
	Type   string      `json:"type"`
	Num    int         `json:"num"`
	Values []jsonValue `json:"values"`
}

type jsonValue struct {
	Key   string      `json:"key"`
	Count int         `json:"count"`
	Host  string      `json:"host,omitempty"`
	Words *[]WordEntry `json:"words,omitempty"`
}

// WordEntry is one word tweeted together with an entity value. p is the
// word's share of all counted words, p5 its share of the exported ones.
type WordEntry struct {
	K    string  `json:"k"`
	Rank int     `json:"rank"`
	P    float64 `json:"p"`
	P5   float64 `json:"p5"`
}

func (s *TupleWebServer) writeJSON(ctx context.Context, w http.ResponseWriter, typ string, n int, top []tuple.Entry[string], resolve bool) {
	resp := jsonResponse{Type: typ, Num: n, Values: make([]jsonValue, 0, len(top))}
	for _, e := range top {
		v := jsonValue{Key: e.Key, Count: e.Count}
		if typ != entitycache.AllTypes {
			words := s.appendWords(typ, e.Key)
			v.Words = &words
		}
		if resolve && strings.HasPrefix(e.Key, "http") {
			v.Host = s.resolver.ResolveHost(ctx, e.Key)
		}
		resp.Values = append(resp.Values, v)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write entity response", "error", err)
	}
}

var quotesRe = regexp.MustCompile(`["']+`)

// formatV1 renders the compact legacy format:
// "value:rank:count:size:pct":{"word:rank:p":p5,...},...
func (s *TupleWebServer) formatV1(typ string, top []tuple.Entry[string]) string {
	var sum float64
	for i, e := range top {
		if i >= MaxExportV1 {
			break
		}
		sum += float64(e.Count)
	}

	entries := make([]string, 0, MaxExportV1)
	for i, e := range top {
		if i >= MaxExportV1 {
			break
		}
		tweets, _ := s.cache.Tweets(typ, e.Key)

		var sb strings.Builder
		fmt.Fprintf(&sb, "\"%s:%d:%d:%d:%s\":{", e.Key, i+1, e.Count, len(tweets), javaDouble(truncate2(float64(e.Count)/sum)))
		for j, word := range s.appendWords(typ, e.Key) {
			if j > 0 {
				sb.WriteByte(',')
			}
			k := quotesRe.ReplaceAllString(word.K, "")
			fmt.Fprintf(&sb, "\"%s:%d:%s\":%s", k, word.Rank, javaDouble(word.P), javaDouble(word.P5))
		}
		sb.WriteByte('}')
		entries = append(entries, sb.String())
	}
	return strings.Join(entries, ",")
}

func (s *TupleWebServer) formatHTML(typ string, top []tuple.Entry[string], entities []*tuple.Tuple) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Top %d</br>", len(top))
	for _, e := range top {
		fmt.Fprintf(&sb, "%s %d", e.Key, e.Count)
		if typ != entitycache.AllTypes {
			words, _ := json.Marshal(s.appendWords(typ, e.Key))
			sb.Write(words)
		}
		sb.WriteString("</br>")
	}
	fmt.Fprintf(&sb, "ALL tuples %d </br>", len(entities))
	for _, t := range entities {
		sb.WriteString(t.String())
		sb.WriteString("</br>")
	}
	return sb.String()
}

// appendWords returns the top words tweeted with value followed by a
// remainder entry. Values without a tweet list have no words.
func (s *TupleWebServer) appendWords(typ, value string) []WordEntry {
	items := []WordEntry{}
	sorted, ok := s.cache.TopWords(typ, value)
	if !ok {
		return items
	}

	var total, sum float64
	stop := 0
	for i, e := range sorted {
		total += float64(e.Count)
		if i < MaxExportWords {
			sum += float64(e.Count)
			stop = i + 1
		}
	}

	left, leftExported := 100.0, 100.0
	for _, e := range sorted[:stop] {
		p := truncate2(float64(e.Count) / total)
		p5 := truncate2(float64(e.Count) / sum)
		left -= p * 100
		leftExported -= p5 * 100
		items = append(items, WordEntry{K: e.Key, Rank: len(items) + 1, P: p, P5: p5})
	}

	items = append(items, WordEntry{
		K:    fmt.Sprintf("rem %d/%s%%", len(sorted)-stop, javaDouble(truncate2(left))),
		Rank: stop + 1,
		P:    truncate2(left / 100),
		P5:   truncate2(leftExported / 100),
	})
	return items
}

// truncate2 drops everything after the second decimal.
func truncate2(v float64) float64 {
	r := math.Trunc(v*100) / 100
	if r == 0 {
		return 0
	}
	return r
}

// javaDouble formats v with at least one decimal, as in "1.0" or "0.33".
func javaDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
