package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_UnmarshalJSON(t *testing.T) {
	var st Status
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": 42, "text": "hi there",
		"user": {"id": 7, "location": "Urbana, IL", "favourites_count": 3},
		"geo": {"coordinates": [40.1, -88.2]},
		"retweeted_status": {"id": 1}
	}`), &st))

	assert.Equal(t, int64(42), st.ID)
	assert.Equal(t, int64(7), st.UserID)
	assert.Equal(t, 3, st.FavouritesCount)
	assert.True(t, st.Retweet)
	assert.Equal(t, "40.1,-88.2", st.Location())
}

func TestStatus_Location(t *testing.T) {
	assert.Equal(t, "Urbana", Status{UserLocation: "Urbana"}.Location())
	assert.Equal(t, NoLocation, Status{UserLocation: "null"}.Location())
	assert.Equal(t, NoLocation, Status{UserLocation: " x "}.Location())
	assert.Equal(t, NoLocation, Status{}.Location())
	assert.Equal(t, "Paris", Status{Geo: &GeoPoint{Lat: -1, Lon: -1}, UserLocation: "Paris"}.Location())
}

func writeStatuses(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statuses.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600))
	return path
}

func collect(t *testing.T, src StatusSource) []Status {
	t.Helper()
	out := make(chan Status, 100)
	require.NoError(t, src.Run(context.Background(), out))
	close(out)
	var got []Status
	for st := range out {
		got = append(got, st)
	}
	return got
}

func TestFileSource_SkipsNoticesAndBlankLines(t *testing.T) {
	path := writeStatuses(t,
		`{"id":1,"text":"first"}`,
		``,
		`{"delete":{"status":{"id":1}}}`,
		`{"id":2,"text":"second"}`,
	)
	got := collect(t, &FileSource{Path: path})
	require.Len(t, got, 2)
	assert.Equal(t, "second", got[1].Text)
}

func TestFileSource_BadJSON(t *testing.T) {
	path := writeStatuses(t, `{"id":1,`)
	err := (&FileSource{Path: path}).Run(context.Background(), make(chan Status, 1))
	require.Error(t, err)
}

func TestStreamClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "u" || pass != "p" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = fmt.Fprintln(w, `{"id":1,"text":"streamed"}`)
	}))
	defer srv.Close()

	got := collect(t, &StreamClient{URL: srv.URL, User: "u", Password: "p"})
	require.Len(t, got, 1)
	assert.Equal(t, "streamed", got[0].Text)

	err := (&StreamClient{URL: srv.URL}).Run(context.Background(), make(chan Status, 1))
	require.Error(t, err)
}

func searchServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "":
			assert.Equal(t, "go lang", r.URL.Query().Get("q"))
			_, _ = fmt.Fprint(w, `{"results":[{"from_user":"a","from_user_id_str":"1","profile_image_url":"i","created_at":"c","text":"fish &amp; chips"}],"next_page":"?page=2&q=go+lang"}`)
		case "2":
			_, _ = fmt.Fprint(w, `{"results":[{"from_user":"b","from_user_id_str":"2","text":"second"}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestSearchClient_FollowsPages(t *testing.T) {
	srv := searchServer(t)
	defer srv.Close()

	c := NewSearchClient(srv.URL, 100)
	var got []SearchResult
	require.NoError(t, c.Search(context.Background(), "go lang", func(r SearchResult) error {
		got = append(got, r)
		return nil
	}))
	require.Len(t, got, 2)
	assert.Equal(t, "fish & chips", got[0].Text)
	assert.Equal(t, "b", got[1].FromUser)

	c.MaxPages = 1
	got = got[:0]
	require.NoError(t, c.Search(context.Background(), "go lang", func(r SearchResult) error {
		got = append(got, r)
		return nil
	}))
	assert.Len(t, got, 1)
}

func TestSearchComponent(t *testing.T) {
	srv := searchServer(t)
	defer srv.Close()

	h := testutil.NewHarness(t, NewSearch(), SearchDescriptor, map[string]string{
		"search_url": srv.URL,
		"rate_limit": "100",
	})
	h.MustFire(map[string]any{"text": "go lang"})

	peer, tuples, err := tuple.Decode(h.Last("meta_tuple"), h.Last("tuples"))
	require.NoError(t, err)
	assert.Equal(t, SearchPeer.Fields(), peer.Fields())
	require.Len(t, tuples, 2)
	assert.Equal(t, "1", tuples[0].Get("from_user_id"))
}

func TestToTuple_FromFile(t *testing.T) {
	var lines []string
	for i := 1; i <= 8; i++ {
		lines = append(lines, fmt.Sprintf(`{"id":%d,"text":"tweet number %d!!","user":{"id":9,"location":"Urbana","favourites_count":2}}`, i, i))
	}
	lines = append(lines,
		`{"id":100,"text":"non ascii café"}`,
		`{"id":101,"text":"?? !! ..."}`,
	)
	path := writeStatuses(t, lines...)

	h := testutil.NewHarness(t, NewToTuple(), ToTupleDescriptor, map[string]string{
		"source":         "file",
		"file":           path,
		"flush_interval": "1h",
	})
	h.MustFire(nil)

	batches := h.Outputs("tuples")
	require.Len(t, batches, 2, "one batch when the window overflows, one at the end")

	var all []*tuple.Tuple
	for i, b := range batches {
		_, ts, err := tuple.Decode(h.Outputs("meta_tuple")[i], b)
		require.NoError(t, err)
		all = append(all, ts...)
	}
	require.Len(t, all, 8)
	first := all[0]
	assert.Equal(t, "1", first.Get("id"))
	assert.Equal(t, "tweet number 1!!", first.Get("tweet"))
	assert.Equal(t, "tweet number 1!", first.Get("text"))
	assert.Equal(t, "Urbana", first.Get("location"))
	assert.Equal(t, "2", first.Get("followers"))
	assert.Equal(t, "8", all[7].Get("id"))

	firstBatch, err := datatypes.ParseAsStringsArray(batches[0])
	require.NoError(t, err)
	assert.Equal(t, 6, firstBatch.Len())
}

func TestToTuple_RequireLocation(t *testing.T) {
	path := writeStatuses(t,
		`{"id":1,"text":"somewhere nice","user":{"location":"Paris"}}`,
		`{"id":2,"text":"nowhere at all"}`,
	)
	h := testutil.NewHarness(t, NewToTuple(), ToTupleDescriptor, map[string]string{
		"source":           "file",
		"file":             path,
		"require_location": "true",
	})
	h.MustFire(nil)

	_, ts, err := tuple.Decode(h.Last("meta_tuple"), h.Last("tuples"))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "Paris", ts[0].Get("location"))
}

func TestToTuple_InitErrors(t *testing.T) {
	_, err := testutil.TryNewHarness(t, NewToTuple(), ToTupleDescriptor, map[string]string{"source": "carrier-pigeon"})
	require.Error(t, err)
	_, err = testutil.TryNewHarness(t, NewToTuple(), ToTupleDescriptor, map[string]string{"source": "file"})
	require.Error(t, err)
}
