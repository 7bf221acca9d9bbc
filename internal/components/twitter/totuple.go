package twitter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/tuple"
	"golang.org/x/sync/errgroup"
)

// MinParsingPercentage is the share of letters and digits a tweet needs
// to be kept.
const MinParsingPercentage = 0.40

// TweetPeer is the field layout of the tuples TwitterToTuple emits.
var TweetPeer = tuple.NewPeer("id", "tweet", "text", "userId", "followers", "location")

// ToTupleDescriptor describes TwitterToTuple.
var ToTupleDescriptor = component.Descriptor{
	Name:        "TwitterToTuple",
	Description: "Reads tweets from a status source and emits them as tuples in small batches",
	Outputs:     []string{"tuples", "meta_tuple"},
	Properties: map[string]string{
		"source":           "stream",
		"stream_url":       DefaultStreamURL,
		"search_url":       DefaultSearchURL,
		"query":            "",
		"file":             "",
		"twitterUser":      "",
		"twitterPassword":  "",
		"rate_limit":       "1",
		"window_size":      "5",
		"flush_interval":   "1s",
		"require_location": "false",
	},
}

// ToTuple turns a live status source into tuple batches. A producer
// goroutine reads the source while the component batches and pushes.
type ToTuple struct {
	source          StatusSource
	window          int
	flushEvery      time.Duration
	requireLocation bool
	nextID          int
}

// NewToTuple creates the component.
func NewToTuple() component.Component { return &ToTuple{} }

func (c *ToTuple) Initialize(_ context.Context, props *component.Properties) error {
	var cfg struct {
		Source          string        `prop:"source"`
		StreamURL       string        `prop:"stream_url"`
		SearchURL       string        `prop:"search_url"`
		Query           string        `prop:"query"`
		File            string        `prop:"file"`
		User            string        `prop:"twitterUser"`
		Password        string        `prop:"twitterPassword"`
		RateLimit       float64       `prop:"rate_limit"`
		WindowSize      int           `prop:"window_size"`
		FlushInterval   time.Duration `prop:"flush_interval"`
		RequireLocation bool          `prop:"require_location"`
	}
	if err := props.Decode(&cfg); err != nil {
		return err
	}

	switch cfg.Source {
	case "stream":
		c.source = &StreamClient{URL: cfg.StreamURL, User: cfg.User, Password: cfg.Password}
	case "search":
		if cfg.Query == "" {
			return fmt.Errorf("%w: query", component.ErrMissingProperty)
		}
		sc := NewSearchClient(cfg.SearchURL, cfg.RateLimit)
		sc.Query = cfg.Query
		c.source = sc
	case "file":
		if cfg.File == "" {
			return fmt.Errorf("%w: file", component.ErrMissingProperty)
		}
		c.source = &FileSource{Path: cfg.File}
	default:
		return fmt.Errorf("unknown status source %q (want stream, search or file)", cfg.Source)
	}

	c.window = cfg.WindowSize
	c.flushEvery = cfg.FlushInterval
	if c.flushEvery <= 0 {
		c.flushEvery = time.Second
	}
	c.requireLocation = cfg.RequireLocation
	c.nextID = 1
	return nil
}

func (c *ToTuple) Execute(ctx context.Context, cc *component.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	statuses := make(chan Status, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(statuses)
		return c.source.Run(gctx, statuses)
	})

	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	var buffer []*tuple.Tuple
	flush := func() error {
		if len(buffer) == 0 {
			return nil
		}
		batch := buffer
		buffer = nil
		if err := cc.Push("meta_tuple", TweetPeer.Strings()); err != nil {
			return err
		}
		return cc.Push("tuples", tuple.Encode(batch))
	}

	logger := cc.Logger()
	for {
		select {
		case st, ok := <-statuses:
			if !ok {
				if err := flush(); err != nil {
					cancel()
					_ = g.Wait()
					return err
				}
				if err := g.Wait(); err != nil {
					return fmt.Errorf("status source: %w", err)
				}
				logger.Info("status source exhausted", "last_id", c.nextID-1)
				return nil
			}
			if t := c.toTuple(st, logger); t != nil {
				buffer = append(buffer, t)
			}
			if len(buffer) > c.window {
				if err := flush(); err != nil {
					cancel()
					_ = g.Wait()
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				cancel()
				_ = g.Wait()
				return err
			}
		}
	}
}

// toTuple filters and converts one status. Dropped statuses return nil.
func (c *ToTuple) toTuple(st Status, logger *slog.Logger) *tuple.Tuple {
	text, ok := ConvertToASCII(st.Text)
	if !ok {
		return nil
	}
	if ParsingPercentage(text) < MinParsingPercentage {
		return nil
	}
	loc := st.Location()
	if c.requireLocation && loc == NoLocation {
		return nil
	}
	if st.Retweet {
		logger.Debug("retweet", "text", st.Text)
	}

	t := TweetPeer.NewTuple()
	_ = t.SetValues([]string{
		strconv.Itoa(c.nextID),
		text,
		Clean(text),
		strconv.FormatInt(st.UserID, 10),
		strconv.Itoa(st.FavouritesCount),
		loc,
	})
	c.nextID++
	return t
}

func (c *ToTuple) Dispose(context.Context) error { return nil }
