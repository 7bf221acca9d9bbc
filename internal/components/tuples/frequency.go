package tuples

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/seasr/flowkit/pkg/component"
	"github.com/seasr/flowkit/pkg/tuple"
)

// TupleValueFrequencyCounterDescriptor describes TupleValueFrequencyCounter.
var TupleValueFrequencyCounterDescriptor = component.Descriptor{
	Name:        "TupleValueFrequencyCounter",
	Description: "Counts the distinct value combinations of the selected fields",
	Inputs:      []string{portTuples, portMeta},
	Outputs:     []string{portTuples, portMeta},
	Properties: map[string]string{
		"tupleField":       "",
		"threshold":        "0",
		"normalize_fields": "",
		"trim_fields":      "",
		"max_size":         "-1",
	},
}

// TupleValueFrequencyCounter emits one tuple per distinct key with its
// count, most frequent first. Only keys seen more than threshold times
// are kept, at most max_size of them.
type TupleValueFrequencyCounter struct {
	fields    []string
	normalize map[string]bool
	trim      map[string]bool
	threshold int
	maxSize   int
	lower     cases.Caser
	discarded []string
}

// NewTupleValueFrequencyCounter creates the component.
func NewTupleValueFrequencyCounter() component.Component { return &TupleValueFrequencyCounter{} }

func (c *TupleValueFrequencyCounter) Initialize(_ context.Context, props *component.Properties) error {
	if _, err := props.Required("tupleField"); err != nil {
		return err
	}
	c.fields = props.List("tupleField", ",")

	var err error
	if c.threshold, err = props.Int("threshold"); err != nil {
		return err
	}
	if c.maxSize, err = props.Int("max_size"); err != nil {
		return err
	}

	c.discarded = nil
	c.normalize = c.subset(props.List("normalize_fields", ","))
	c.trim = c.subset(props.List("trim_fields", ","))
	c.lower = cases.Lower(language.Und)
	return nil
}

// subset keeps the names that are counted fields. The others are
// reported on the first firing.
func (c *TupleValueFrequencyCounter) subset(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if !slices.Contains(c.fields, n) {
			c.discarded = append(c.discarded, n)
			continue
		}
		out[n] = true
	}
	return out
}

func (c *TupleValueFrequencyCounter) Execute(_ context.Context, cc *component.Context) error {
	if len(c.discarded) > 0 {
		cc.Logger().Warn("normalize/trim fields are not listed in tupleField, discarding them", "fields", c.discarded)
		c.discarded = nil
	}

	peer, tuples, err := tuple.Decode(cc.Input(portMeta), cc.Input(portTuples))
	if err != nil {
		return err
	}
	if !peer.Has(c.fields...) {
		return fmt.Errorf("incoming tuples %s do not contain all the fields of tupleField %v", peer, c.fields)
	}

	idx := make([]int, len(c.fields))
	for i, f := range c.fields {
		idx[i] = peer.Index(f)
	}

	freq := tuple.NewFrequencyMap[string]()
	keys := make(map[string][]string)
	for _, t := range tuples {
		key := make([]string, len(c.fields))
		for i, f := range c.fields {
			v := t.Value(idx[i])
			if c.normalize[f] {
				v = c.lower.String(v)
			}
			if c.trim[f] {
				v = strings.TrimSpace(v)
			}
			key[i] = v
		}
		k := joinKey(key)
		if _, ok := keys[k]; !ok {
			keys[k] = key
		}
		freq.Add(k)
	}

	outPeer := tuple.NewPeer(append(slices.Clone(c.fields), "count")...)
	var out []*tuple.Tuple
	for _, e := range freq.SortedEntries() {
		if e.Count <= c.threshold {
			break
		}
		if c.maxSize > 0 && len(out) >= c.maxSize {
			break
		}
		values := append(slices.Clone(keys[e.Key]), strconv.Itoa(e.Count))
		t := outPeer.NewTuple()
		if err := t.SetValues(values); err != nil {
			return fmt.Errorf("frequency tuple for %v: %w", keys[e.Key], err)
		}
		out = append(out, t)
	}

	cc.Logger().Debug("counted tuple values", "fields", c.fields, "distinct", freq.Len(), "emitted", len(out))
	return pushTuples(cc, outPeer, out)
}

// joinKey quotes every value so distinct value lists never share a key.
func joinKey(values []string) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(v))
	}
	return b.String()
}

func (c *TupleValueFrequencyCounter) Dispose(context.Context) error { return nil }
