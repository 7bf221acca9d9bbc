package nlp

import (
	"context"
	"strings"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
)

// SentenceDetectorDescriptor describes SentenceDetector.
var SentenceDetectorDescriptor = component.Descriptor{
	Name:        "SentenceDetector",
	Description: "Breaks text into sentences",
	Inputs:      []string{"text"},
	Outputs:     []string{"sentences"},
	Properties: map[string]string{
		"lang_code":      "en",
		"remove_newline": "false",
	},
}

// SentenceDetector splits every incoming text into sentences.
type SentenceDetector struct {
	removeNewline bool
}

// NewSentenceDetector creates the component.
func NewSentenceDetector() component.Component { return &SentenceDetector{} }

func (d *SentenceDetector) Initialize(_ context.Context, props *component.Properties) error {
	if err := initLanguage(props); err != nil {
		return err
	}
	var err error
	d.removeNewline, err = props.Bool("remove_newline")
	return err
}

var newlines = strings.NewReplacer("\r\n", " ", "\n", " ")

func (d *SentenceDetector) Execute(_ context.Context, cc *component.Context) error {
	texts, err := datatypes.ParseAsStrings(cc.Input("text"))
	if err != nil {
		return err
	}

	var sentences []string
	for _, text := range texts {
		for _, s := range SplitSentences(text) {
			if d.removeNewline {
				s = newlines.Replace(s)
			}
			sentences = append(sentences, s)
		}
	}
	return cc.Push("sentences", datatypes.NewStrings(sentences...))
}

func (d *SentenceDetector) Dispose(context.Context) error { return nil }

// TokenizerDescriptor describes Tokenizer.
var TokenizerDescriptor = component.Descriptor{
	Name:        "Tokenizer",
	Description: "Breaks text into word tokens",
	Inputs:      []string{"text"},
	Outputs:     []string{"tokens"},
	Properties: map[string]string{
		"lang_code": "en",
	},
}

// Tokenizer emits the word tokens of every incoming text.
type Tokenizer struct{}

// NewTokenizer creates the component.
func NewTokenizer() component.Component { return &Tokenizer{} }

func (t *Tokenizer) Initialize(_ context.Context, props *component.Properties) error {
	return initLanguage(props)
}

func (t *Tokenizer) Execute(_ context.Context, cc *component.Context) error {
	texts, err := datatypes.ParseAsStrings(cc.Input("text"))
	if err != nil {
		return err
	}
	var tokens []string
	for _, text := range texts {
		tokens = append(tokens, Tokenize(text)...)
	}
	return cc.Push("tokens", datatypes.NewStrings(tokens...))
}

func (t *Tokenizer) Dispose(context.Context) error { return nil }

// SentenceTokenizerDescriptor describes SentenceTokenizer.
var SentenceTokenizerDescriptor = component.Descriptor{
	Name:        "SentenceTokenizer",
	Description: "Tokenizes each sentence, keyed by the sentence text",
	Inputs:      []string{"sentences"},
	Outputs:     []string{"tokenized_sentences"},
	Properties: map[string]string{
		"lang_code": "en",
	},
}

// SentenceTokenizer maps every sentence to its tokens.
type SentenceTokenizer struct{}

// NewSentenceTokenizer creates the component.
func NewSentenceTokenizer() component.Component { return &SentenceTokenizer{} }

func (t *SentenceTokenizer) Initialize(_ context.Context, props *component.Properties) error {
	return initLanguage(props)
}

func (t *SentenceTokenizer) Execute(_ context.Context, cc *component.Context) error {
	sentences, err := datatypes.ParseAsStrings(cc.Input("sentences"))
	if err != nil {
		return err
	}
	out := &datatypes.StringsMap{}
	for _, s := range sentences {
		out.Put(s, datatypes.NewStrings(Tokenize(s)...))
	}
	return cc.Push("tokenized_sentences", out)
}

func (t *SentenceTokenizer) Dispose(context.Context) error { return nil }
