package nlp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/jdkato/prose/chunk"
	"github.com/jdkato/prose/tag"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// PosPeer is the tuple layout emitted by PosTagger.
var PosPeer = tuple.NewPeer("pos", "sentenceId", "offset", "token")

// PosTaggerDescriptor describes PosTagger.
var PosTaggerDescriptor = component.Descriptor{
	Name:        "PosTagger",
	Description: "Tags the tokens of each sentence with their part of speech",
	Inputs:      []string{"tokenized_sentences"},
	Outputs:     []string{"tuples", "meta_tuple"},
	Properties: map[string]string{
		"lang_code": "en",
		// e.g. "NN.*" keeps nouns only
		"pos_filter_regex": "",
	},
}

// PosTagger emits one tuple per tagged token. Offsets are byte positions
// counted across all the sentences of a firing.
type PosTagger struct {
	filter *regexp.Regexp
}

// NewPosTagger creates the component.
func NewPosTagger() component.Component { return &PosTagger{} }

func (p *PosTagger) Initialize(_ context.Context, props *component.Properties) error {
	if err := initLanguage(props); err != nil {
		return err
	}
	if expr := props.String("pos_filter_regex"); expr != "" {
		re, err := regexp.Compile("^(?:" + expr + ")$")
		if err != nil {
			return fmt.Errorf("pos_filter_regex: %w", err)
		}
		p.filter = re
	}
	return nil
}

func (p *PosTagger) Execute(_ context.Context, cc *component.Context) error {
	sentences, err := datatypes.ParseAsStringsMap(cc.Input("tokenized_sentences"))
	if err != nil {
		return err
	}

	var out []*tuple.Tuple
	sentenceOffset := 0
	for i, sentence := range sentences.Key {
		tokens := sentences.Value[i].Value
		offsets := tokenOffsets(sentence, tokens)
		for j, tok := range Tag(tokens) {
			if p.filter != nil && !p.filter.MatchString(tok.Tag) {
				continue
			}
			t := PosPeer.NewTuple()
			_ = t.SetValues([]string{
				tok.Tag,
				strconv.Itoa(i),
				strconv.Itoa(sentenceOffset + offsets[j]),
				tok.Text,
			})
			out = append(out, t)
		}
		sentenceOffset += len(sentence)
	}
	return pushTuples(cc, PosPeer, out)
}

func (p *PosTagger) Dispose(context.Context) error { return nil }

// NounPhrase matches determiner, adjectives and nouns over the four
// character tag quads chunk.Locate works on.
const NounPhrase = `(DT__|PRP\$)?(JJ__|JJR_|JJS_|CD__)*(NN__|NNS_|NNP_|NNPS)+`

// ChunkPeer is the tuple layout emitted by Chunker.
var ChunkPeer = tuple.NewPeer("sentenceId", "offset", "token", "pos", "chunk")

// ChunkerDescriptor describes Chunker.
var ChunkerDescriptor = component.Descriptor{
	Name:        "Chunker",
	Description: "Marks the noun phrases of each sentence with IOB chunk tags",
	Inputs:      []string{"tokenized_sentences"},
	Outputs:     []string{"tuples", "meta_tuple"},
	Properties: map[string]string{
		"lang_code":     "en",
		"chunk_pattern": NounPhrase,
		"chunk_label":   "NP",
	},
}

// Chunker emits one tuple per token with its tag and B-/I-/O chunk tag.
type Chunker struct {
	pattern *regexp.Regexp
	label   string
}

// NewChunker creates the component.
func NewChunker() component.Component { return &Chunker{} }

func (c *Chunker) Initialize(_ context.Context, props *component.Properties) error {
	if err := initLanguage(props); err != nil {
		return err
	}
	re, err := regexp.Compile(props.String("chunk_pattern"))
	if err != nil {
		return fmt.Errorf("chunk_pattern: %w", err)
	}
	c.pattern = re
	c.label = props.String("chunk_label")
	return nil
}

func (c *Chunker) Execute(_ context.Context, cc *component.Context) error {
	sentences, err := datatypes.ParseAsStringsMap(cc.Input("tokenized_sentences"))
	if err != nil {
		return err
	}

	var out []*tuple.Tuple
	sentenceOffset := 0
	for i, sentence := range sentences.Key {
		tokens := sentences.Value[i].Value
		offsets := tokenOffsets(sentence, tokens)
		tagged := Tag(tokens)
		chunks := IOBTags(tagged, c.pattern, c.label)
		for j, tok := range tagged {
			t := ChunkPeer.NewTuple()
			_ = t.SetValues([]string{
				strconv.Itoa(i),
				strconv.Itoa(sentenceOffset + offsets[j]),
				tok.Text,
				tok.Tag,
				chunks[j],
			})
			out = append(out, t)
		}
		sentenceOffset += len(sentence)
	}
	return pushTuples(cc, ChunkPeer, out)
}

func (c *Chunker) Dispose(context.Context) error { return nil }

// IOBTags labels the tokens covered by pattern matches B-label for the
// first token and I-label for the rest. Every other token is O.
func IOBTags(tagged []tag.Token, pattern *regexp.Regexp, label string) []string {
	tags := make([]string, len(tagged))
	for i := range tags {
		tags[i] = "O"
	}
	for _, loc := range chunk.Locate(tagged, pattern) {
		if loc[0] >= loc[1] {
			continue
		}
		tags[loc[0]] = "B-" + label
		for k := loc[0] + 1; k < loc[1] && k < len(tags); k++ {
			tags[k] = "I-" + label
		}
	}
	return tags
}

func pushTuples(cc *component.Context, peer *tuple.Peer, tuples []*tuple.Tuple) error {
	if err := cc.Push("meta_tuple", peer.Strings()); err != nil {
		return err
	}
	return cc.Push("tuples", tuple.Encode(tuples))
}
