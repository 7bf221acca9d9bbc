package twitter

import (
	"context"
	"fmt"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/datatypes"
	"github.com/seasr/flowkit/pkg/tuple"
)

// Default endpoints. Flows and the configuration file override them.
const (
	DefaultSearchURL = "http://search.twitter.com/search.json"
	DefaultStreamURL = "https://stream.twitter.com/1/statuses/sample.json"
)

// SearchPeer is the field layout of the tuples TwitterSearch emits.
var SearchPeer = tuple.NewPeer("from_user", "from_user_id", "profile_image_url", "created_at", "text")

// SearchDescriptor describes TwitterSearch.
var SearchDescriptor = component.Descriptor{
	Name:        "TwitterSearch",
	Description: "Searches tweets and emits every result page as one tuple batch",
	Inputs:      []string{"text"},
	Outputs:     []string{"tuples", "meta_tuple"},
	Properties: map[string]string{
		"search_url": DefaultSearchURL,
		"query":      "",
		"max_pages":  "0",
		"rate_limit": "1",
	},
}

// Search runs one query per firing. The query comes from the text input
// or, for unconnected inputs, from the query property.
type Search struct {
	client *SearchClient
	query  string
}

// NewSearch creates the component.
func NewSearch() component.Component { return &Search{} }

func (s *Search) Initialize(_ context.Context, props *component.Properties) error {
	rl, err := props.Float("rate_limit")
	if err != nil {
		return err
	}
	pages, err := props.Int("max_pages")
	if err != nil {
		return err
	}
	s.client = NewSearchClient(props.String("search_url"), rl)
	s.client.MaxPages = pages
	s.query = props.String("query")
	return nil
}

func (s *Search) Execute(ctx context.Context, cc *component.Context) error {
	query := s.query
	if cc.IsInputAvailable("text") {
		q, err := datatypes.ParseAsString(cc.Input("text"))
		if err != nil {
			return err
		}
		query = q
	}
	if query == "" {
		return fmt.Errorf("%w: query", component.ErrMissingProperty)
	}

	var out []*tuple.Tuple
	err := s.client.Search(ctx, query, func(r SearchResult) error {
		t := SearchPeer.NewTuple()
		_ = t.SetValues([]string{r.FromUser, r.FromUserID, r.ProfileImageURL, r.CreatedAt, r.Text})
		out = append(out, t)
		return nil
	})
	if err != nil {
		return err
	}
	cc.Logger().Debug("search done", "query", query, "results", len(out))

	if err := cc.Push("meta_tuple", SearchPeer.Strings()); err != nil {
		return err
	}
	return cc.Push("tuples", tuple.Encode(out))
}

func (s *Search) Dispose(context.Context) error { return nil }
