// Package entitycache keeps the recent named entities of a tweet stream
// together with the tweets that mention them, bounded per entity type and
// per entity value.
package entitycache

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/seasr/flowkit/pkg/tuple"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Cache bounds.
const (
	GlobalSize       = 5000
	MaxKeep          = 5000
	TweetsPerValue   = 1000
	CompactThreshold = 5000
	KeepTopValues    = 100
	MinTextLength    = 3
)

// AllTypes is the pseudo type naming the global entity list.
const AllTypes = "all"

// ErrBadEntityTuple is returned when entity tuples lack the type, text or
// pid field.
var ErrBadEntityTuple = errors.New("entity tuple needs type, text and pid fields")

var quoteRe = regexp.MustCompile(`["'()]+`)

var stopWords = []string{
	"for", "and", "the", "you", "when", "can", "this", "from", "your", "would", "could", "should",
	"into", "was", "with", "what", "that", "but", "nor", "has", "are", "get", "were", "then", "i'm",
	"how", "too", "it's", "got",
}

// boundedList keeps the most recent values up to a fixed capacity.
type boundedList struct {
	seq uint64
	lru *lru.Cache[uint64, *tuple.Tuple]
}

func newBoundedList(size int) *boundedList {
	c, err := lru.New[uint64, *tuple.Tuple](size)
	if err != nil {
		panic(fmt.Sprintf("entitycache: %v", err))
	}
	return &boundedList{lru: c}
}

func (b *boundedList) add(t *tuple.Tuple) {
	b.seq++
	b.lru.Add(b.seq, t)
}

// values returns the kept tuples, oldest first.
func (b *boundedList) values() []*tuple.Tuple { return b.lru.Values() }

func (b *boundedList) len() int { return b.lru.Len() }

// Cache is safe for one writer and any number of readers.
type Cache struct {
	mu     sync.RWMutex
	global *boundedList
	types  map[string]*boundedList
	tweets map[string]*boundedList
	stop   map[string]struct{}
	lower  cases.Caser
	logger *slog.Logger
}

// New creates an empty cache. A nil logger discards output.
func New(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Cache{
		global: newBoundedList(GlobalSize),
		types:  make(map[string]*boundedList),
		tweets: make(map[string]*boundedList),
		stop:   make(map[string]struct{}, len(stopWords)),
		lower:  cases.Lower(language.Und),
		logger: logger,
	}
	for _, w := range stopWords {
		c.stop[w] = struct{}{}
	}
	return c
}

// Normalize strips quotes and parentheses, trims and lowercases s.
func (c *Cache) Normalize(s string) string {
	return c.lower.String(strings.TrimSpace(quoteRe.ReplaceAllString(s, "")))
}

// Key builds the tweet list key of an entity value.
func Key(typ, value string) string { return typ + ":" + value }

// Add records a batch of entity tuples and their parent tweets. Entities
// reference their tweet through pid, which must match a tweet id.
func (c *Cache) Add(tweets, entities []*tuple.Tuple) error {
	if len(entities) == 0 {
		return nil
	}
	if !entities[0].Peer().Has("type", "text", "pid") {
		return fmt.Errorf("%w: got %s", ErrBadEntityTuple, entities[0].Peer())
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var parent *tuple.Tuple
	for _, e := range entities {
		ne := e.Clone()
		_ = ne.Set("text", c.Normalize(ne.Get("text")))

		typ, text, pid := ne.Get("type"), ne.Get("text"), ne.Get("pid")
		if utf8.RuneCountInString(text) < MinTextLength {
			continue
		}

		if parent == nil || parent.Get("id") != pid {
			parent = findByID(tweets, pid)
			if parent == nil {
				c.logger.Warn("unable to find parent tweet", "pid", pid)
				continue
			}
			parent = parent.Clone()
			_ = parent.Set("text", c.Normalize(parent.Get("text")))
		}

		c.global.add(ne)

		tl, ok := c.types[typ]
		if !ok {
			tl = newBoundedList(MaxKeep)
			c.types[typ] = tl
		}
		tl.add(ne)

		key := Key(typ, text)
		vl, ok := c.tweets[key]
		if !ok {
			vl = newBoundedList(TweetsPerValue)
			c.tweets[key] = vl
		}
		vl.add(parent)
	}

	if len(c.tweets) > CompactThreshold {
		before := len(c.tweets)
		c.compact()
		c.logger.Info("compacted entity cache", "keys_before", before, "keys_after", len(c.tweets))
	}
	return nil
}

func findByID(tweets []*tuple.Tuple, id string) *tuple.Tuple {
	for _, t := range tweets {
		if t.Get("id") == id {
			return t
		}
	}
	return nil
}

// compact keeps only the tweet lists of the top values of every type.
// Callers hold the write lock.
func (c *Cache) compact() {
	kept := make(map[string]*boundedList)
	for typ, tl := range c.types {
		for _, e := range tuple.TopNValues(tl.values(), "text", KeepTopValues) {
			key := Key(typ, e.Key)
			if vl, ok := c.tweets[key]; ok {
				kept[key] = vl
			}
		}
	}
	c.tweets = kept
}

// Types returns the entity types seen so far, sorted.
func (c *Cache) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.types))
	for t := range c.types {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Entities returns the kept entities of typ, oldest first, and the type
// actually resolved. Unknown types resolve to the global list.
func (c *Cache) Entities(typ string) ([]*tuple.Tuple, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if tl, ok := c.types[typ]; ok {
		return tl.values(), typ
	}
	return c.global.values(), AllTypes
}

// TopValues returns the n most frequent entity texts of typ. A
// non-positive n returns none.
func (c *Cache) TopValues(typ string, n int) ([]tuple.Entry[string], string) {
	entities, resolved := c.Entities(typ)
	return tuple.TopNValues(entities, "text", n), resolved
}

// Tweets returns the kept tweets mentioning value, oldest first.
func (c *Cache) Tweets(typ, value string) ([]*tuple.Tuple, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vl, ok := c.tweets[Key(typ, value)]
	if !ok {
		return nil, false
	}
	return vl.values(), true
}

// KeyCount returns the number of entity values with a tweet list.
func (c *Cache) KeyCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tweets)
}

// Len returns the size of the global entity list.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.global.len()
}

// TopWords counts the words of the tweets mentioning value. Short words
// (except "rt"), stop words and parts of value itself are skipped, and a
// word counts once per tweet.
func (c *Cache) TopWords(typ, value string) ([]tuple.Entry[string], bool) {
	tweets, ok := c.Tweets(typ, value)
	if !ok {
		return nil, false
	}

	freq := tuple.NewFrequencyMap[string]()
	for _, t := range tweets {
		seen := make(map[string]struct{})
		for _, w := range strings.Fields(t.Get("text")) {
			if utf8.RuneCountInString(w) < MinTextLength && w != "rt" {
				continue
			}
			if strings.Contains(value, w) {
				continue
			}
			if _, stop := c.stop[w]; stop {
				continue
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			freq.Add(w)
		}
	}
	return freq.SortedEntries(), true
}
