package twitter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Status is one tweet as delivered by a StatusSource.
type Status struct {
	ID              int64
	Text            string
	UserID          int64
	UserLocation    string
	FavouritesCount int
	Geo             *GeoPoint
	Retweet         bool
}

// GeoPoint is the coordinate a tweet was sent from.
type GeoPoint struct {
	Lat float64
	Lon float64
}

// Location returns "lat,lon" when the status is geotagged, else the
// user's profile location, else NoLocation.
func (s Status) Location() string {
	if s.Geo != nil && s.Geo.Lat != -1 && s.Geo.Lon != -1 {
		return strconv.FormatFloat(s.Geo.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(s.Geo.Lon, 'f', -1, 64)
	}
	loc := strings.TrimSpace(s.UserLocation)
	if loc == "" || loc == "null" || len(loc) < 2 {
		return NoLocation
	}
	return s.UserLocation
}

type wireStatus struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	User struct {
		ID              int64  `json:"id"`
		Location        string `json:"location"`
		FavouritesCount int    `json:"favourites_count"`
	} `json:"user"`
	Geo *struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"geo"`
	RetweetedStatus json.RawMessage `json:"retweeted_status"`
}

// UnmarshalJSON decodes the public status JSON format.
func (s *Status) UnmarshalJSON(b []byte) error {
	var w wireStatus
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Status{
		ID:              w.ID,
		Text:            w.Text,
		UserID:          w.User.ID,
		UserLocation:    w.User.Location,
		FavouritesCount: w.User.FavouritesCount,
		Retweet:         len(w.RetweetedStatus) > 0 && string(w.RetweetedStatus) != "null",
	}
	if w.Geo != nil && len(w.Geo.Coordinates) == 2 {
		s.Geo = &GeoPoint{Lat: w.Geo.Coordinates[0], Lon: w.Geo.Coordinates[1]}
	}
	return nil
}

// StatusSource produces statuses until it is exhausted, fails or ctx is
// done. Run closes nothing; the caller owns out.
type StatusSource interface {
	Run(ctx context.Context, out chan<- Status) error
}

// readStatuses decodes newline delimited statuses from r. Blank lines and
// records without text (deletion notices, limits) are skipped.
func readStatuses(ctx context.Context, r io.Reader, out chan<- Status) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var st Status
		if err := json.Unmarshal([]byte(line), &st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
		if st.Text == "" {
			continue
		}
		select {
		case out <- st:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return sc.Err()
}

// FileSource replays statuses stored one JSON object per line.
type FileSource struct {
	Path string
}

func (f *FileSource) Run(ctx context.Context, out chan<- Status) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("open status file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return readStatuses(ctx, file, out)
}

// StreamClient reads a long lived HTTP stream of newline delimited
// statuses.
type StreamClient struct {
	URL      string
	User     string
	Password string
	Client   *http.Client
}

func (c *StreamClient) Run(ctx context.Context, out chan<- Status) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("open stream: unexpected status %s", resp.Status)
	}
	return readStatuses(ctx, resp.Body, out)
}

// SearchResult is one hit of the search API.
type SearchResult struct {
	FromUser        string `json:"from_user"`
	FromUserID      string `json:"from_user_id_str"`
	ProfileImageURL string `json:"profile_image_url"`
	CreatedAt       string `json:"created_at"`
	Text            string `json:"text"`
}

type searchPage struct {
	Results  []SearchResult `json:"results"`
	NextPage string         `json:"next_page"`
}

// SearchClient queries the paginated JSON search API, following
// next_page links. Requests are rate limited.
type SearchClient struct {
	BaseURL  string
	Query    string
	MaxPages int // 0 means no limit
	Client   *http.Client
	limiter  *rate.Limiter
}

// NewSearchClient creates a client issuing at most perSecond requests per
// second.
func NewSearchClient(baseURL string, perSecond float64) *SearchClient {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &SearchClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Search runs query and calls fn for every result, page by page.
func (c *SearchClient) Search(ctx context.Context, query string, fn func(SearchResult) error) error {
	next := "?q=" + url.QueryEscape(query) + "&since_id=0"
	for page := 1; next != ""; page++ {
		if c.MaxPages > 0 && page > c.MaxPages {
			break
		}
		p, err := c.fetch(ctx, c.BaseURL+next)
		if err != nil {
			return fmt.Errorf("search page %d: %w", page, err)
		}
		for _, r := range p.Results {
			r.Text = html.UnescapeString(r.Text)
			if err := fn(r); err != nil {
				return err
			}
		}
		next = p.NextPage
	}
	return nil
}

func (c *SearchClient) fetch(ctx context.Context, target string) (*searchPage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var p searchPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &p, nil
}

// Run streams the results of the client's Query as statuses.
func (c *SearchClient) Run(ctx context.Context, out chan<- Status) error {
	var seq int64
	return c.Search(ctx, c.Query, func(r SearchResult) error {
		seq++
		uid, _ := strconv.ParseInt(r.FromUserID, 10, 64)
		select {
		case out <- Status{ID: seq, Text: r.Text, UserID: uid}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
