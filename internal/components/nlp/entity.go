package nlp

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strconv"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/seasr/flowkit/internal/textspan"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// Entity types.
const (
	TypeDate         = "date"
	TypeLocation     = "location"
	TypeMoney        = "money"
	TypeOrganization = "organization"
	TypePercentage   = "percentage"
	TypePerson       = "person"
	TypeTime         = "time"
	TypeURL          = "url"
)

// DefaultEntityTypes is the default NEType filter.
const DefaultEntityTypes = "person,location,date,organization"

var knownTypes = []string{
	TypeDate, TypeLocation, TypeMoney, TypeOrganization,
	TypePercentage, TypePerson, TypeTime, TypeURL,
}

// Pattern rules for the types the statistical model does not label.
var (
	percentageRe = regexp.MustCompile(`^[-+]?\d+(\.\d+)?%`)
	timeRe       = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?([aApP]\.?[mM]\.?)?`)
)

// Entity is a named entity reported by a recognizer.
type Entity struct {
	Type string
	Text string
}

// EntityRecognizer finds named entities in a sentence.
type EntityRecognizer interface {
	Recognize(sentence string) ([]Entity, error)
}

// proseLabels maps the model labels onto entity types.
var proseLabels = map[string]string{
	"PERSON": TypePerson,
	"GPE":    TypeLocation,
	"ORG":    TypeOrganization,
}

// ProseRecognizer recognizes people, places and organizations with the
// prose averaged perceptron model.
type ProseRecognizer struct{}

func (ProseRecognizer) Recognize(sentence string) ([]Entity, error) {
	doc, err := prose.NewDocument(sentence, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("prose: %w", err)
	}
	var out []Entity
	for _, ent := range doc.Entities() {
		typ, ok := proseLabels[ent.Label]
		if !ok {
			continue
		}
		out = append(out, Entity{Type: typ, Text: ent.Text})
	}
	return out, nil
}

// Mention is an entity located in a sentence by byte offsets.
type Mention struct {
	Type  string
	Start int
	End   int
	Text  string
}

// Extractor combines a recognizer with the pattern rules and keeps the
// requested types.
type Extractor struct {
	recognizer EntityRecognizer
	types      map[string]bool
	logger     *slog.Logger
}

// NewExtractor creates an extractor for the given types. A nil logger
// discards.
func NewExtractor(r EntityRecognizer, types []string, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	x := &Extractor{recognizer: r, types: make(map[string]bool), logger: logger}
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if !slices.Contains(knownTypes, t) {
			return nil, fmt.Errorf("unknown entity type %q, want one of %s", t, strings.Join(knownTypes, ","))
		}
		x.types[t] = true
	}
	if len(x.types) == 0 {
		return nil, fmt.Errorf("no entity types selected")
	}
	return x, nil
}

// ParseTypes splits a comma separated NEType value.
func ParseTypes(s string) []string {
	return strings.Split(s, ",")
}

// Extract returns the mentions in sentence ordered by start offset. Runs
// of same-type mentions less than two bytes apart are merged.
func (x *Extractor) Extract(sentence string) ([]Mention, error) {
	var mentions []Mention

	if x.wantsModel() {
		entities, err := x.recognizer.Recognize(sentence)
		if err != nil {
			return nil, err
		}
		cursor := 0
		for _, e := range entities {
			if !x.types[e.Type] {
				continue
			}
			m, ok := label(sentence, e, cursor)
			if !ok {
				x.logger.Debug("entity not found in sentence", "type", e.Type, "text", e.Text)
				continue
			}
			cursor = m.End
			mentions = append(mentions, m)
		}
	}

	for _, rule := range []struct {
		typ  string
		find func(string) []textspan.Span
	}{
		{TypeMoney, textspan.FindMoney},
		{TypeDate, textspan.FindDates},
		{TypePercentage, func(s string) []textspan.Span { return textspan.FindPattern(percentageRe, s) }},
		{TypeTime, func(s string) []textspan.Span { return textspan.FindPattern(timeRe, s) }},
		{TypeURL, textspan.FindURLs},
	} {
		if !x.types[rule.typ] {
			continue
		}
		for _, sp := range rule.find(sentence) {
			mentions = append(mentions, Mention{Type: rule.typ, Start: sp.Start, End: sp.End, Text: sp.Text})
		}
	}

	return merge(mentions), nil
}

func (x *Extractor) wantsModel() bool {
	for _, t := range proseLabels {
		if x.types[t] {
			return true
		}
	}
	return false
}

// label finds e in sentence at or after cursor, falling back to the first
// occurrence.
func label(sentence string, e Entity, cursor int) (Mention, bool) {
	i := strings.Index(sentence[cursor:], e.Text)
	if i >= 0 {
		i += cursor
	} else if i = strings.Index(sentence, e.Text); i < 0 {
		return Mention{}, false
	}
	return Mention{Type: e.Type, Start: i, End: i + len(e.Text), Text: e.Text}, true
}

func merge(mentions []Mention) []Mention {
	slices.SortStableFunc(mentions, func(a, b Mention) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(a.Start, b.Start))
	})

	var out []Mention
	for _, m := range mentions {
		if n := len(out); n > 0 {
			last := &out[n-1]
			if last.Type == m.Type && m.Start >= last.End && m.Start-last.End < 2 {
				last.Text += " " + m.Text
				last.End = m.End
				continue
			}
		}
		out = append(out, m)
	}

	slices.SortStableFunc(out, func(a, b Mention) int {
		return cmp.Or(cmp.Compare(a.Start, b.Start), cmp.Compare(a.Type, b.Type))
	})
	return out
}

// EntityPeer is the tuple layout emitted by NamedEntity.
var EntityPeer = tuple.NewPeer("sentenceId", "type", "textStart", "textEnd", "text")

func mentionValues(sentenceID int, m Mention) []string {
	return []string{
		strconv.Itoa(sentenceID),
		m.Type,
		strconv.Itoa(m.Start),
		strconv.Itoa(m.End),
		m.Text,
	}
}

// NamedEntityDescriptor describes NamedEntity.
var NamedEntityDescriptor = component.Descriptor{
	Name:        "NamedEntity",
	Description: "Finds the named entities of each sentence",
	Inputs:      []string{"sentences"},
	Outputs:     []string{"tuples", "meta_tuple"},
	Properties: map[string]string{
		"lang_code": "en",
		"NEType":    DefaultEntityTypes,
	},
}

// NamedEntity emits one tuple per entity. textStart and textEnd are byte
// offsets within the sentence.
type NamedEntity struct {
	recognizer EntityRecognizer
	extractor  *Extractor
}

// NewNamedEntity creates the component with the prose recognizer.
func NewNamedEntity() component.Component {
	return &NamedEntity{recognizer: ProseRecognizer{}}
}

func (n *NamedEntity) Initialize(_ context.Context, props *component.Properties) error {
	if err := initLanguage(props); err != nil {
		return err
	}
	x, err := NewExtractor(n.recognizer, ParseTypes(props.String("NEType")), nil)
	if err != nil {
		return fmt.Errorf("NEType: %w", err)
	}
	n.extractor = x
	return nil
}

func (n *NamedEntity) Execute(_ context.Context, cc *component.Context) error {
	sentences, err := datatypes.ParseAsStrings(cc.Input("sentences"))
	if err != nil {
		return err
	}
	n.extractor.logger = cc.Logger()

	var out []*tuple.Tuple
	for i, sentence := range sentences {
		mentions, err := n.extractor.Extract(sentence)
		if err != nil {
			return fmt.Errorf("sentence %d: %w", i, err)
		}
		for _, m := range mentions {
			t := EntityPeer.NewTuple()
			_ = t.SetValues(mentionValues(i, m))
			out = append(out, t)
		}
	}
	return pushTuples(cc, EntityPeer, out)
}

func (n *NamedEntity) Dispose(context.Context) error {
	n.extractor = nil
	return nil
}
