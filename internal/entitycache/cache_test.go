package entitycache

import (
	"fmt"
	"testing"

	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/tuple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tweetPeer  = tuple.NewPeer("id", "text")
	entityPeer = tuple.NewPeer("type", "text", "pid")
)

func tweet(t *testing.T, id, text string) *tuple.Tuple {
	t.Helper()
	tp := tweetPeer.NewTuple()
	require.NoError(t, tp.SetValues([]string{id, text}))
	return tp
}

func entity(t *testing.T, typ, text, pid string) *tuple.Tuple {
	t.Helper()
	tp := entityPeer.NewTuple()
	require.NoError(t, tp.SetValues([]string{typ, text, pid}))
	return tp
}

func TestNormalize(t *testing.T) {
	c := New(nil)
	tests := []struct {
		in, want string
	}{
		{`"Barack Obama"`, "barack obama"},
		{"  (Paris)  ", "paris"},
		{"Microsoft's", "microsofts"},
		{"http://t.co/AbC", "http://t.co/abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Normalize(tt.in), tt.in)
	}
}

func TestAdd_RejectsBadPeer(t *testing.T) {
	c := New(testutil.NewTestLogger(t))
	bad := tuple.NewPeer("type", "text").NewTuple()
	err := c.Add(nil, []*tuple.Tuple{bad})
	require.ErrorIs(t, err, ErrBadEntityTuple)
}

func TestAdd_IndexesEntities(t *testing.T) {
	c := New(testutil.NewTestLogger(t))
	tweets := []*tuple.Tuple{
		tweet(t, "1", "Obama visits Paris today"),
		tweet(t, "2", "Paris is lovely"),
	}
	entities := []*tuple.Tuple{
		entity(t, "person", "Obama", "1"),
		entity(t, "location", "(Paris)", "1"),
		entity(t, "location", "Paris", "2"),
		entity(t, "location", "LA", "2"),      // too short
		entity(t, "person", "Nobody", "404"), // no parent
	}
	require.NoError(t, c.Add(tweets, entities))

	assert.Equal(t, []string{"location", "person"}, c.Types())
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, 2, c.KeyCount())

	top, resolved := c.TopValues("location", 10)
	assert.Equal(t, "location", resolved)
	require.Len(t, top, 1)
	assert.Equal(t, tuple.Entry[string]{Key: "paris", Count: 2}, top[0])

	parents, ok := c.Tweets("location", "paris")
	require.True(t, ok)
	require.Len(t, parents, 2)
	assert.Equal(t, "obama visits paris today", parents[0].Get("text"))

	// input tuples are left untouched
	assert.Equal(t, "Obama visits Paris today", tweets[0].Get("text"))
	assert.Equal(t, "(Paris)", entities[1].Get("text"))
}

func TestEntities_UnknownTypeFallsBackToAll(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Add(
		[]*tuple.Tuple{tweet(t, "1", "hello world")},
		[]*tuple.Tuple{entity(t, "person", "alice", "1")},
	))

	got, resolved := c.Entities("planet")
	assert.Equal(t, AllTypes, resolved)
	assert.Len(t, got, 1)
}

func TestBounds(t *testing.T) {
	c := New(nil)
	tweets := []*tuple.Tuple{tweet(t, "1", "some tweet text")}
	for i := 0; i < GlobalSize+50; i++ {
		require.NoError(t, c.Add(tweets, []*tuple.Tuple{entity(t, "person", "alice", "1")}))
	}
	assert.Equal(t, GlobalSize, c.Len())

	parents, ok := c.Tweets("person", "alice")
	require.True(t, ok)
	assert.Len(t, parents, TweetsPerValue)
}

func TestCompaction_KeepsTopValues(t *testing.T) {
	c := New(nil)
	tweets := []*tuple.Tuple{tweet(t, "1", "some tweet text")}

	// one popular value, then enough distinct values to cross the threshold
	var batch []*tuple.Tuple
	for i := 0; i < 5; i++ {
		batch = append(batch, entity(t, "person", "popular", "1"))
	}
	require.NoError(t, c.Add(tweets, batch))

	batch = batch[:0]
	for i := 0; i <= CompactThreshold; i++ {
		batch = append(batch, entity(t, "organization", fmt.Sprintf("org-%05d", i), "1"))
	}
	require.NoError(t, c.Add(tweets, batch))

	assert.LessOrEqual(t, c.KeyCount(), 2*KeepTopValues)
	_, ok := c.Tweets("person", "popular")
	assert.True(t, ok, "top value must survive compaction")

	// org-00000 fell out of the type list; ties are broken by key, so
	// the next organizations survive
	_, ok = c.Tweets("organization", "org-00000")
	assert.False(t, ok)
	_, ok = c.Tweets("organization", "org-00001")
	assert.True(t, ok)
	_, ok = c.Tweets("organization", fmt.Sprintf("org-%05d", CompactThreshold))
	assert.False(t, ok)
}

func TestTopWords(t *testing.T) {
	c := New(nil)
	tweets := []*tuple.Tuple{
		tweet(t, "1", "RT RT janet jackson sings well and sings loud"),
		tweet(t, "2", "janet jackson sings"),
		tweet(t, "3", "we go to the show with janet jackson"),
	}
	entities := []*tuple.Tuple{
		entity(t, "person", "Janet Jackson", "1"),
		entity(t, "person", "Janet Jackson", "2"),
		entity(t, "person", "Janet Jackson", "3"),
	}
	require.NoError(t, c.Add(tweets, entities))

	words, ok := c.TopWords("person", "janet jackson")
	require.True(t, ok)

	counts := map[string]int{}
	for _, e := range words {
		counts[e.Key] = e.Count
	}
	assert.Equal(t, 2, counts["sings"], "a word counts once per tweet")
	assert.Equal(t, 1, counts["rt"])
	assert.Equal(t, 1, counts["show"])
	assert.NotContains(t, counts, "janet")
	assert.NotContains(t, counts, "the")
	assert.NotContains(t, counts, "with")
	assert.NotContains(t, counts, "we")
	assert.Equal(t, "sings", words[0].Key)

	_, ok = c.TopWords("person", "nobody")
	assert.False(t, ok)
}
