// Package nlp provides the text analysis components: sentence detection,
// tokenization, part-of-speech tagging, noun phrase chunking and named
// entity recognition.
//
// The models come bundled with prose and are English only, so every
// component validates its lang_code property at initialization.
package nlp

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jdkato/prose/tag"
	"github.com/jdkato/prose/tokenize"
	"golang.org/x/text/language"

	"github.com/seasr/flowkit/pkg/component"
)

// ErrUnsupportedLanguage is returned for a lang_code without bundled models.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Shared models. Loading the tagger weights is slow, so each model is built
// once per process on first use.
var (
	sentenceModel = sync.OnceValue(tokenize.NewPunktSentenceTokenizer)
	wordModel     = sync.OnceValue(tokenize.NewTreebankWordTokenizer)
	taggerModel   = sync.OnceValue(tag.NewPerceptronTagger)
)

// CheckLanguage validates a BCP-47 language code against the bundled models.
func CheckLanguage(code string) error {
	t, err := language.Parse(code)
	if err != nil {
		return fmt.Errorf("lang_code %q: %w", code, err)
	}
	base, _ := t.Base()
	english, _ := language.English.Base()
	if base != english {
		return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, t)
	}
	return nil
}

func initLanguage(props *component.Properties) error {
	return CheckLanguage(props.String("lang_code"))
}

// SplitSentences splits text into sentences.
func SplitSentences(text string) []string {
	return sentenceModel().Tokenize(text)
}

// Tokenize splits text into Penn Treebank tokens.
func Tokenize(text string) []string {
	return wordModel().Tokenize(text)
}

// Tag assigns a part-of-speech tag to every token.
func Tag(tokens []string) []tag.Token {
	return taggerModel().Tag(tokens)
}

// tokenOffsets returns the byte offset of every token in sentence. Tokens
// the tokenizer rewrote (quotes become `` and '') take the position right
// after their predecessor.
func tokenOffsets(sentence string, tokens []string) []int {
	offsets := make([]int, len(tokens))
	last := 0
	for i, tok := range tokens {
		j := strings.Index(sentence[last:], tok)
		if j < 0 {
			offsets[i] = last
			continue
		}
		offsets[i] = last + j
		last += j + len(tok)
	}
	return offsets
}
