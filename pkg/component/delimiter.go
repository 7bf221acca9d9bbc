package component

import "maps"

// Delimiter marks the start or end of a stream of data.
type Delimiter interface {
	StreamID() int
	Attributes() map[string]string
	delimiter()
}

// StreamInitiator opens a stream.
type StreamInitiator struct {
	ID    int
	Attrs map[string]string
}

// NewStreamInitiator creates an initiator for stream id.
func NewStreamInitiator(id int) *StreamInitiator {
	return &StreamInitiator{ID: id, Attrs: map[string]string{}}
}

func (s *StreamInitiator) StreamID() int                 { return s.ID }
func (s *StreamInitiator) Attributes() map[string]string { return s.Attrs }
func (s *StreamInitiator) delimiter()                    {}

// StreamTerminator closes a stream.
type StreamTerminator struct {
	ID    int
	Attrs map[string]string
}

// NewStreamTerminator creates a terminator for stream id.
func NewStreamTerminator(id int) *StreamTerminator {
	return &StreamTerminator{ID: id, Attrs: map[string]string{}}
}

func (s *StreamTerminator) StreamID() int                 { return s.ID }
func (s *StreamTerminator) Attributes() map[string]string { return s.Attrs }
func (s *StreamTerminator) delimiter()                    {}

// IsDelimiter reports whether v is a stream delimiter.
func IsDelimiter(v any) bool {
	_, ok := v.(Delimiter)
	return ok
}

// IsInitiator reports whether v is a stream initiator.
func IsInitiator(v any) bool {
	_, ok := v.(*StreamInitiator)
	return ok
}

// IsTerminator reports whether v is a stream terminator.
func IsTerminator(v any) bool {
	_, ok := v.(*StreamTerminator)
	return ok
}

// CloneDelimiter returns a copy of d with its own attribute map.
func CloneDelimiter(d Delimiter) Delimiter {
	switch v := d.(type) {
	case *StreamInitiator:
		return &StreamInitiator{ID: v.ID, Attrs: maps.Clone(v.Attrs)}
	case *StreamTerminator:
		return &StreamTerminator{ID: v.ID, Attrs: maps.Clone(v.Attrs)}
	default:
		return d
	}
}
