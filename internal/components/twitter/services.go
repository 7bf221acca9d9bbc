package twitter

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/seasr/flowkit/internal/textspan"
)

// NoLocation marks a status without a usable location.
const NoLocation = "-1,-1"

// Token patterns, matched at the start of a token.
var (
	HashtagRe = regexp.MustCompile(`^#[A-Za-z0-9_]+`)
	UserRe    = regexp.MustCompile(`^@[A-Za-z0-9_]+`)
)

// FindHashtags returns the spans of #tags in sentence.
func FindHashtags(sentence string) []textspan.Span {
	return textspan.FindPattern(HashtagRe, sentence)
}

// FindUsers returns the spans of @user mentions in sentence.
func FindUsers(sentence string) []textspan.Span {
	return textspan.FindPattern(UserRe, sentence)
}

// ConvertToASCII maps control characters to spaces. It returns false when s
// holds any non-ASCII rune.
func ConvertToASCII(s string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r > unicode.MaxASCII:
			return "", false
		case r < 32 || r == 127:
			sb.WriteByte(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String(), true
}

// ParsingPercentage is the share of letters and digits among the
// non-space characters of s, or 0 when s has fewer than two of them.
func ParsingPercentage(s string) float64 {
	count, total := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			count++
		}
		if !unicode.IsSpace(r) {
			total++
		}
	}
	if count < 2 {
		return 0
	}
	return float64(count) / float64(total)
}

var domains = []string{"com", "org", "edu", "info", "biz", "tv", "gov", "mil"}

// ContainsDomain reports whether token ends in a well known top level
// domain, such as cnn.com.
func ContainsDomain(token string) bool {
	idx := strings.LastIndex(token, ".")
	if idx <= 1 || len(token) <= 3 {
		return false
	}
	suffix := token[idx+1:]
	if len(suffix) < 2 || len(suffix) > 4 {
		return false
	}
	before, _ := utf8.DecodeLastRuneInString(token[:idx])
	after, _ := utf8.DecodeRuneInString(suffix)
	if !unicode.IsLetter(before) || !unicode.IsLetter(after) {
		return false
	}
	for _, d := range domains {
		if suffix == d {
			return true
		}
	}
	return false
}

var (
	letterThenMark = regexp.MustCompile(`([A-Za-z])([^A-Za-z0-9])`)
	markThenLetter = regexp.MustCompile(`([^A-Za-z0-9])([A-Za-z])`)
)

// Clean prepares tweet text for tokenization. Links, mentions, tags,
// domains and contractions are kept as they are; other tokens get runs of
// punctuation collapsed and punctuation split from letters.
func Clean(tweet string) string {
	tweet = strings.NewReplacer("(", "", ")", "").Replace(tweet)

	tokens := strings.Fields(tweet)
	keep := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if keepToken(tok) {
			keep = append(keep, tok)
			continue
		}
		tok = collapsePunctuation(tok)
		tok = letterThenMark.ReplaceAllString(tok, "${1} ${2}")
		tok = markThenLetter.ReplaceAllString(tok, "${1} ${2}")
		keep = append(keep, tok)
	}
	return strings.Join(keep, " ")
}

func keepToken(tok string) bool {
	for _, prefix := range []string{"http", "www", "@", "#"} {
		if strings.HasPrefix(tok, prefix) {
			return true
		}
	}
	if ContainsDomain(tok) {
		return true
	}
	n := len(tok)
	// contractions: don't, we'll
	return (n > 2 && tok[n-2] == '\'') || (n > 3 && tok[n-3] == '\'')
}

// collapsePunctuation squeezes repeated punctuation ("!!!" to "!").
func collapsePunctuation(tok string) string {
	var sb strings.Builder
	var prev rune = -1
	for _, r := range tok {
		if r == prev && !isASCIIAlnum(r) {
			continue
		}
		sb.WriteRune(r)
		prev = r
	}
	return sb.String()
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

// HostResolver follows redirects of short links and reports the final
// host. Results are cached.
type HostResolver struct {
	client *http.Client
	cache  *lru.Cache[string, string]
}

// NewHostResolver creates a resolver with the given request timeout and
// cache size.
func NewHostResolver(timeout time.Duration, size int) *HostResolver {
	cache, err := lru.New[string, string](size)
	if err != nil {
		cache, _ = lru.New[string, string](500)
	}
	return &HostResolver{client: &http.Client{Timeout: timeout}, cache: cache}
}

// ResolveHost returns the host rawURL finally redirects to. On any
// failure it returns rawURL itself.
func (h *HostResolver) ResolveHost(ctx context.Context, rawURL string) string {
	if len(rawURL) <= len("http://.com") {
		return rawURL
	}
	if host, ok := h.cache.Get(rawURL); ok {
		return host
	}

	host := rawURL
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err == nil {
		resp, err := h.client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			host = resp.Request.URL.Host
		}
	}
	h.cache.Add(rawURL, host)
	return host
}
