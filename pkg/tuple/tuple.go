// Package tuple provides named-field records over the Strings wire type.
//
// A tuple travels as two values: the field names (the peer) encoded once as
// a Strings, and the records encoded as a StringsArray. Every record of a
// batch has exactly as many values as the peer has fields.
package tuple

import (
	"errors"
	"fmt"
	"strings"

	"github.com/seasr/flowkit/pkg/datatypes"
)

// Stream boundary markers used by components that embed begin/end rows in
// a tuple batch.
const (
	BeginMarker = "___begin___"
	EndMarker   = "___end___"
)

// ErrFieldCount is returned when a record does not match its peer.
var ErrFieldCount = errors.New("field count mismatch")

// IsMarker reports whether v is a begin or end marker.
func IsMarker(v string) bool {
	return v == BeginMarker || v == EndMarker
}

// Peer is the ordered list of field names shared by a batch of tuples.
type Peer struct {
	fields []string
	index  map[string]int
}

// NewPeer creates a peer with the given field names. Duplicate names keep
// the index of their first occurrence.
func NewPeer(fields ...string) *Peer {
	p := &Peer{
		fields: append([]string(nil), fields...),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range p.fields {
		if _, ok := p.index[f]; !ok {
			p.index[f] = i
		}
	}
	return p
}

// PeerFromStrings creates a peer from its wire form.
func PeerFromStrings(s *datatypes.Strings) *Peer {
	if s == nil {
		return NewPeer()
	}
	return NewPeer(s.Value...)
}

// Extend returns a new peer holding p's fields followed by extra.
func Extend(p *Peer, extra ...string) *Peer {
	fields := make([]string, 0, p.Size()+len(extra))
	fields = append(fields, p.fields...)
	fields = append(fields, extra...)
	return NewPeer(fields...)
}

// Index returns the position of the named field, or -1.
func (p *Peer) Index(name string) int {
	if i, ok := p.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the peer contains every named field.
func (p *Peer) Has(names ...string) bool {
	for _, n := range names {
		if p.Index(n) < 0 {
			return false
		}
	}
	return true
}

// FieldName returns the name of the i-th field, or "" when out of range.
func (p *Peer) FieldName(i int) string {
	if i < 0 || i >= len(p.fields) {
		return ""
	}
	return p.fields[i]
}

// Size returns the number of fields.
func (p *Peer) Size() int {
	if p == nil {
		return 0
	}
	return len(p.fields)
}

// Fields returns a copy of the field names.
func (p *Peer) Fields() []string {
	return append([]string(nil), p.fields...)
}

// NewTuple creates an empty tuple bound to p.
func (p *Peer) NewTuple() *Tuple {
	return &Tuple{peer: p, values: make([]string, len(p.fields))}
}

// Strings returns the wire form of the peer.
func (p *Peer) Strings() *datatypes.Strings {
	return datatypes.NewStrings(p.fields...)
}

func (p *Peer) String() string {
	return strings.Join(p.fields, ",")
}

// Tuple is a record of values bound to a peer.
type Tuple struct {
	peer   *Peer
	values []string
}

// Peer returns the tuple's peer.
func (t *Tuple) Peer() *Peer {
	return t.peer
}

// SetValues replaces all values. The number of values must match the peer.
func (t *Tuple) SetValues(values []string) error {
	if len(values) != t.peer.Size() {
		return fmt.Errorf("%w: peer has %d fields, got %d values", ErrFieldCount, t.peer.Size(), len(values))
	}
	copy(t.values, values)
	return nil
}

// SetValue sets the i-th value. Out of range indices are ignored.
func (t *Tuple) SetValue(i int, v string) {
	if i >= 0 && i < len(t.values) {
		t.values[i] = v
	}
}

// Set sets the named field.
func (t *Tuple) Set(name, v string) error {
	i := t.peer.Index(name)
	if i < 0 {
		return fmt.Errorf("field %q not in peer %s", name, t.peer)
	}
	t.values[i] = v
	return nil
}

// SetFrom copies the values of every field other shares with t.
func (t *Tuple) SetFrom(other *Tuple) {
	for i, name := range other.peer.fields {
		if j := t.peer.Index(name); j >= 0 {
			t.values[j] = other.values[i]
		}
	}
}

// Value returns the i-th value, or "" when out of range.
func (t *Tuple) Value(i int) string {
	if i < 0 || i >= len(t.values) {
		return ""
	}
	return t.values[i]
}

// Get returns the named value, or "" when the field is missing.
func (t *Tuple) Get(name string) string {
	return t.Value(t.peer.Index(name))
}

// Values returns a copy of the values.
func (t *Tuple) Values() []string {
	return append([]string(nil), t.values...)
}

// Strings returns the wire form of the record.
func (t *Tuple) Strings() *datatypes.Strings {
	return datatypes.NewStrings(t.values...)
}

// Clone returns a copy of t bound to the same peer.
func (t *Tuple) Clone() *Tuple {
	return &Tuple{peer: t.peer, values: t.Values()}
}

func (t *Tuple) String() string {
	return strings.Join(t.values, ",")
}

// FromStrings binds a wire record to p.
func FromStrings(p *Peer, s *datatypes.Strings) (*Tuple, error) {
	t := p.NewTuple()
	if err := t.SetValues(s.Value); err != nil {
		return nil, err
	}
	return t, nil
}

// Decode binds a batch of wire records to the peer carried by meta.
func Decode(meta, batch any) (*Peer, []*Tuple, error) {
	metaValues, err := datatypes.ParseAsStrings(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("tuple meta: %w", err)
	}
	records, err := datatypes.ParseAsStringsArray(batch)
	if err != nil {
		return nil, nil, fmt.Errorf("tuple batch: %w", err)
	}

	peer := NewPeer(metaValues...)
	tuples := make([]*Tuple, 0, records.Len())
	for i, rec := range records.Value {
		t, err := FromStrings(peer, rec)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		tuples = append(tuples, t)
	}
	return peer, tuples, nil
}

// Encode converts tuples into a wire batch.
func Encode(tuples []*Tuple) *datatypes.StringsArray {
	out := &datatypes.StringsArray{Value: make([]*datatypes.Strings, 0, len(tuples))}
	for _, t := range tuples {
		out.Append(t.Strings())
	}
	return out
}
