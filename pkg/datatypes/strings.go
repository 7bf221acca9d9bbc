package datatypes

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const valueField protowire.Number = 1

// Strings is an ordered list of string values.
type Strings struct {
	Value []string
}

// NewStrings creates a Strings holding the given values.
func NewStrings(values ...string) *Strings {
	return &Strings{Value: append([]string(nil), values...)}
}

// Len returns the number of values.
func (s *Strings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Value)
}

// Get returns the i-th value, or "" when out of range.
func (s *Strings) Get(i int) string {
	if s == nil || i < 0 || i >= len(s.Value) {
		return ""
	}
	return s.Value[i]
}

// Marshal encodes the value list.
func (s *Strings) Marshal() []byte {
	return s.appendTo(nil)
}

func (s *Strings) appendTo(b []byte) []byte {
	if s == nil {
		return b
	}
	for _, v := range s.Value {
		b = protowire.AppendTag(b, valueField, protowire.BytesType)
		b = protowire.AppendString(b, v)
	}
	return b
}

// Unmarshal decodes b into s, replacing its contents.
func (s *Strings) Unmarshal(b []byte) error {
	s.Value = s.Value[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("strings: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num == valueField && typ == protowire.BytesType {
			v, m := protowire.ConsumeString(b)
			if m < 0 {
				return fmt.Errorf("strings value: %w", protowire.ParseError(m))
			}
			s.Value = append(s.Value, v)
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("strings field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

// StringsArray is a list of Strings records; a batch of tuples travels
// in this form.
type StringsArray struct {
	Value []*Strings
}

// Append adds a record to the array.
func (a *StringsArray) Append(s *Strings) {
	a.Value = append(a.Value, s)
}

// Len returns the number of records.
func (a *StringsArray) Len() int {
	if a == nil {
		return 0
	}
	return len(a.Value)
}

// Marshal encodes the array.
func (a *StringsArray) Marshal() []byte {
	var b []byte
	if a == nil {
		return b
	}
	for _, s := range a.Value {
		b = protowire.AppendTag(b, valueField, protowire.BytesType)
		b = protowire.AppendBytes(b, s.Marshal())
	}
	return b
}

// Unmarshal decodes b into a, replacing its contents.
func (a *StringsArray) Unmarshal(b []byte) error {
	a.Value = a.Value[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("strings array: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num == valueField && typ == protowire.BytesType {
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("strings array value: %w", protowire.ParseError(m))
			}
			s := &Strings{}
			if err := s.Unmarshal(raw); err != nil {
				return fmt.Errorf("strings array record %d: %w", len(a.Value), err)
			}
			a.Value = append(a.Value, s)
			b = b[m:]
			continue
		}

		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("strings array field %d: %w", num, protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}
