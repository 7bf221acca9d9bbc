package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasr/flowkit/internal/testutil"
	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

const champaign = `<?xml version="1.0"?>
<ResultSet xmlns="urn:yahoo:maps">
  <Result precision="city">
    <Latitude>40.116402</Latitude>
    <Longitude>-88.243383</Longitude>
    <Address></Address>
    <City>Champaign</City>
    <State>IL</State>
    <Zip></Zip>
    <Country>US</Country>
  </Result>
  <Result precision="zip+4">
    <Latitude>40.1</Latitude>
    <Longitude>-88.2</Longitude>
    <City>Champaign</City>
    <State>IL</State>
    <Zip>61820</Zip>
    <Country>US</Country>
  </Result>
</ResultSet>`

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "key", r.URL.Query().Get("appid"))
		switch r.URL.Query().Get("location") {
		case "Champaign, IL":
			_, _ = w.Write([]byte(champaign))
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		case "empty":
			_, _ = w.Write([]byte("<html>nothing</html>"))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestParsePrecision(t *testing.T) {
	assert.Equal(t, PrecisionZip, ParsePrecision("zip+4"))
	assert.Equal(t, PrecisionCity, ParsePrecision("City"))
	assert.Equal(t, PrecisionCountry, ParsePrecision("planet"))
	assert.Equal(t, "street", PrecisionStreet.String())
	assert.True(t, PrecisionCountry < PrecisionState && PrecisionZip < PrecisionAddress)
}

func TestLocation_Within(t *testing.T) {
	madison := Location{Lat: 43.07, Lon: -89.4, Precision: PrecisionCity, Country: "US", State: "WI", City: "Madison"}
	wisconsin := Location{Lat: 44.5, Lon: -89.5, Precision: PrecisionState, Country: "US", State: "WI"}
	arizona := Location{Lat: 34, Lon: -111, Precision: PrecisionState, Country: "US", State: "AZ"}

	assert.True(t, madison.Within(wisconsin))
	assert.False(t, wisconsin.Within(madison))
	assert.False(t, madison.Within(arizona))
	assert.True(t, madison.Within(madison))
	assert.False(t, Location{Lat: -1, Lon: -1}.Valid())
}

func TestParseCoordinates(t *testing.T) {
	loc, ok := ParseCoordinates(" 37.843075, -122.27787 ")
	require.True(t, ok)
	assert.Equal(t, 37.843075, loc.Lat)
	assert.Equal(t, -122.27787, loc.Lon)

	for _, s := range []string{"-1,-1", "91,0", "0,181", "Paris", "1,2,3"} {
		_, ok := ParseCoordinates(s)
		assert.False(t, ok, s)
	}
}

func TestGeocoder_Geocode(t *testing.T) {
	srv, hits := newServer(t)
	g := NewGeocoder(srv.URL, "key", 1000, 10)
	ctx := context.Background()

	locs, err := g.Geocode(ctx, "Champaign, IL")
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, PrecisionCity, locs[0].Precision)
	assert.Equal(t, "IL", locs[0].State)
	assert.Equal(t, "Champaign, IL", locs[0].Query)
	assert.Equal(t, PrecisionZip, locs[1].Precision)

	_, err = g.Geocode(ctx, "champaign, il ")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load(), "second lookup is served from the cache")

	locs, err = g.Geocode(ctx, "Atlantis")
	require.NoError(t, err)
	assert.Empty(t, locs)

	locs, err = g.Geocode(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, locs)

	_, err = g.Geocode(ctx, "broken")
	assert.ErrorContains(t, err, "unexpected status")
}

func TestGeocoder_FindLocation(t *testing.T) {
	srv, hits := newServer(t)
	g := NewGeocoder(srv.URL, "key", 1000, 10)
	ctx := context.Background()

	loc, err := g.FindLocation(ctx, "40.5,-88")
	require.NoError(t, err)
	assert.Equal(t, 40.5, loc.Lat)
	assert.Equal(t, int32(0), hits.Load())

	_, err = g.FindLocation(ctx, "-1,-1")
	assert.ErrorIs(t, err, ErrNoLocation)
	assert.Equal(t, int32(0), hits.Load())

	loc, err = g.FindLocation(ctx, "Champaign, IL")
	require.NoError(t, err)
	assert.Equal(t, "Champaign", loc.City)

	_, err = g.FindLocation(ctx, "Atlantis")
	assert.ErrorIs(t, err, ErrNoLocation)
	_, err = g.FindLocation(ctx, "")
	assert.ErrorIs(t, err, ErrNoLocation)
}

func geoTuples() (*datatypes.Strings, *datatypes.StringsArray) {
	peer := tuple.NewPeer("id", "text")
	var ts []*tuple.Tuple
	for _, v := range [][]string{{"1", "Champaign, IL"}, {"2", "Atlantis"}, {"3", "10,20"}} {
		t := peer.NewTuple()
		_ = t.SetValues(v)
		ts = append(ts, t)
	}
	return peer.Strings(), tuple.Encode(ts)
}

func TestTupleGeocoder(t *testing.T) {
	srv, _ := newServer(t)
	props := map[string]string{"base_url": srv.URL, "app_id": "key", "rate_limit": "1000"}

	h := testutil.NewHarness(t, NewTupleGeocoder(), TupleGeocoderDescriptor, props)
	meta, batch := geoTuples()
	h.MustFire(map[string]any{"meta_tuple": meta, "tuples": batch})

	assert.Equal(t, []string{"meta_tuple", "tuples"}, h.PushOrder())
	peer, out, err := tuple.Decode(h.Last("meta_tuple"), h.Last("tuples"))
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "text", "lat", "lon"}, peer.Fields())
	require.Len(t, out, 2)
	assert.Equal(t, []string{"1", "Champaign, IL", "40.116402", "-88.243383"}, out[0].Values())
	assert.Equal(t, []string{"3", "10,20", "10", "20"}, out[1].Values())
}

func TestTupleGeocoder_KeepUnknown(t *testing.T) {
	srv, _ := newServer(t)
	props := map[string]string{"base_url": srv.URL, "app_id": "key", "rate_limit": "1000", "remove_unknown": "false"}

	h := testutil.NewHarness(t, NewTupleGeocoder(), TupleGeocoderDescriptor, props)
	meta, batch := geoTuples()
	h.MustFire(map[string]any{"meta_tuple": meta, "tuples": batch})

	_, out, err := tuple.Decode(h.Last("meta_tuple"), h.Last("tuples"))
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []string{"2", "Atlantis", "", ""}, out[1].Values())

	// a single record is accepted as a batch of one
	h.Reset()
	h.MustFire(map[string]any{"meta_tuple": meta, "tuples": batch.Value[2]})
	_, out, err = tuple.Decode(h.Last("meta_tuple"), h.Last("tuples"))
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestTupleGeocoder_Errors(t *testing.T) {
	srv, _ := newServer(t)
	meta, batch := geoTuples()

	h := testutil.NewHarness(t, NewTupleGeocoder(), TupleGeocoderDescriptor, map[string]string{
		"base_url": srv.URL, "app_id": "key", "rate_limit": "1000", "loc_field": "place",
	})
	assert.ErrorContains(t, h.Fire(map[string]any{"meta_tuple": meta, "tuples": batch}), `field named "place"`)

	peer := tuple.NewPeer("text")
	bad := peer.NewTuple()
	_ = bad.SetValues([]string{"broken"})
	h = testutil.NewHarness(t, NewTupleGeocoder(), TupleGeocoderDescriptor, map[string]string{
		"base_url": srv.URL, "app_id": "key", "rate_limit": "1000",
	})
	assert.Error(t, h.Fire(map[string]any{"meta_tuple": peer.Strings(), "tuples": tuple.Encode([]*tuple.Tuple{bad})}))
}

func TestRegister(t *testing.T) {
	r := component.NewRegistry()
	require.NoError(t, Register(r, Options{BaseURL: "http://geo.local/geocode", AppID: "abc", RateLimit: 5}))

	desc, err := r.Lookup("TupleGeocoder")
	require.NoError(t, err)
	assert.Equal(t, "http://geo.local/geocode", desc.Properties["base_url"])
	assert.Equal(t, "abc", desc.Properties["app_id"])
	assert.Equal(t, "5", desc.Properties["rate_limit"])
	assert.Equal(t, DefaultBaseURL, TupleGeocoderDescriptor.Properties["base_url"])
}
