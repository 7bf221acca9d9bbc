package geo

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the geocoding endpoint used when none is configured.
const DefaultBaseURL = "http://local.yahooapis.com/MapsService/V1/geocode"

// DefaultCacheSize bounds the number of cached queries.
const DefaultCacheSize = 500

type resultSet struct {
	XMLName xml.Name `xml:"ResultSet"`
	Results []result `xml:"Result"`
}

type result struct {
	Precision string `xml:"precision,attr"`
	Latitude  string `xml:"Latitude"`
	Longitude string `xml:"Longitude"`
	Address   string `xml:"Address"`
	City      string `xml:"City"`
	County    string `xml:"County"`
	State     string `xml:"State"`
	Zip       string `xml:"Zip"`
	Country   string `xml:"Country"`
}

// Geocoder resolves place names through an HTTP endpoint answering with
// an XML ResultSet. Requests are rate limited and answers are cached.
type Geocoder struct {
	BaseURL string
	AppID   string
	Client  *http.Client

	limiter *rate.Limiter
	cache   *lru.Cache[string, []Location]
}

// NewGeocoder creates a geocoder issuing at most perSecond requests per
// second and caching up to cacheSize answers.
func NewGeocoder(baseURL, appID string, perSecond float64, cacheSize int) *Geocoder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	cache, err := lru.New[string, []Location](cacheSize)
	if err != nil {
		cache, _ = lru.New[string, []Location](DefaultCacheSize)
	}
	return &Geocoder{
		BaseURL: baseURL,
		AppID:   appID,
		Client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		cache:   cache,
	}
}

// Geocode returns every location the endpoint knows for query, most
// relevant first. An empty slice means the place is unknown.
func (g *Geocoder) Geocode(ctx context.Context, query string) ([]Location, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	key := strings.ToLower(query)
	if locs, ok := g.cache.Get(key); ok {
		return locs, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("appid", g.AppID)
	params.Set("location", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var locs []Location
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		// unknown places are answered with 400
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("geocode %q: unexpected status %s", query, resp.Status)
	default:
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("geocode %q: %w", query, err)
		}
		if locs, err = parseResultSet(query, body); err != nil {
			return nil, fmt.Errorf("geocode %q: %w", query, err)
		}
	}

	g.cache.Add(key, locs)
	return locs, nil
}

func parseResultSet(query string, body []byte) ([]Location, error) {
	if !strings.Contains(string(body), "ResultSet") {
		return nil, nil
	}
	var rs resultSet
	if err := xml.Unmarshal(body, &rs); err != nil {
		return nil, fmt.Errorf("decode result set: %w", err)
	}

	locs := make([]Location, 0, len(rs.Results))
	for _, r := range rs.Results {
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(r.Latitude), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(r.Longitude), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		locs = append(locs, Location{
			Query:     query,
			Lat:       lat,
			Lon:       lon,
			Precision: ParsePrecision(r.Precision),
			Country:   r.Country,
			State:     r.State,
			County:    r.County,
			City:      r.City,
			Zip:       r.Zip,
			Address:   r.Address,
		})
	}
	return locs, nil
}

var coordinates = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*[,;\s]\s*(-?\d+(?:\.\d+)?)\s*$`)

// ParseCoordinates reads "lat,lon". It fails for anything else, including
// out of range values and the -1,-1 unknown marker.
func ParseCoordinates(text string) (Location, bool) {
	m := coordinates.FindStringSubmatch(text)
	if m == nil {
		return Location{}, false
	}
	lat, _ := strconv.ParseFloat(m[1], 64)
	lon, _ := strconv.ParseFloat(m[2], 64)
	loc := Location{Query: text, Lat: lat, Lon: lon, Precision: PrecisionAddress}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 || !loc.Valid() {
		return Location{}, false
	}
	return loc, true
}

// FindLocation resolves text. Two numbers are taken as lat,lon; anything
// else goes to the geocoder and its first answer wins.
func (g *Geocoder) FindLocation(ctx context.Context, text string) (Location, error) {
	if loc, ok := ParseCoordinates(text); ok {
		return loc, nil
	}
	if _, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil || coordinates.MatchString(text) {
		return Location{}, fmt.Errorf("%w: %q", ErrNoLocation, text)
	}

	locs, err := g.Geocode(ctx, text)
	if err != nil {
		return Location{}, err
	}
	if len(locs) == 0 {
		return Location{}, fmt.Errorf("%w: %q", ErrNoLocation, text)
	}
	return locs[0], nil
}
