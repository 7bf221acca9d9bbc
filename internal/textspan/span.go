// Package textspan locates whitespace-delimited tokens inside a sentence
// and reports their byte offsets.
package textspan

import (
	"regexp"
	"strings"
)

// Span is a byte range of a sentence.
type Span struct {
	Start int
	End   int
	Text  string
}

// Common patterns, matched at the start of a token.
var (
	MoneyRe  = regexp.MustCompile(`^[-+]?\$\d+\.?\d*`)
	NumberRe = regexp.MustCompile(`^[-+]?\$?\d+\.?\d*`)
	DateRe   = regexp.MustCompile(`^[0-9]+[-/]+[0-9]+[-/]+[0-9]+`)
)

// minURLLength is "http" plus "://" plus one character.
const minURLLength = 8

// FindPattern returns the span of the first match of re in every token of
// sentence.
func FindPattern(re *regexp.Regexp, sentence string) []Span {
	var spans []Span
	end := 0
	for _, tok := range strings.Fields(sentence) {
		sub := re.FindString(tok)
		if sub == "" {
			continue
		}
		if s, ok := locate(sentence, sub, end); ok {
			spans = append(spans, s)
			end = s.End
		}
	}
	return spans
}

// FindToken returns, for every token containing needle (case-insensitive),
// the span from needle to the end of the token. Spans shorter than minLen
// are skipped.
func FindToken(needle string, minLen int, sentence string) []Span {
	needle = strings.ToLower(needle)
	var spans []Span
	end := 0
	for _, tok := range strings.Fields(sentence) {
		lower := strings.ToLower(tok)
		if len(lower) != len(tok) {
			lower = tok
		}
		i := strings.Index(lower, needle)
		if i < 0 {
			continue
		}
		sub := tok[i:]
		if len(sub) < minLen {
			continue
		}
		if s, ok := locate(sentence, sub, end); ok {
			spans = append(spans, s)
			end = s.End
		}
	}
	return spans
}

// FindURLs returns the spans of http(s) links.
func FindURLs(sentence string) []Span {
	return FindToken("http", minURLLength, sentence)
}

// FindMoney returns the spans of amounts such as $1 or -$2.50.
func FindMoney(sentence string) []Span {
	return FindPattern(MoneyRe, sentence)
}

// FindDates returns the spans of numeric dates such as 12-12-2009.
func FindDates(sentence string) []Span {
	return FindPattern(DateRe, sentence)
}

func locate(sentence, sub string, from int) (Span, bool) {
	i := strings.Index(sentence[from:], sub)
	if i < 0 {
		return Span{}, false
	}
	start := from + i
	return Span{Start: start, End: start + len(sub), Text: sub}, true
}
