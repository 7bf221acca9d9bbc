package datatypes

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	keyField   protowire.Number = 1
	mapValueNo protowire.Number = 2
)

// StringsMap is an ordered multimap from string keys to Strings values.
// Keys and values are stored in parallel slices.
type StringsMap struct {
	Key   []string
	Value []*Strings
}

// Put appends a key/value pair.
func (m *StringsMap) Put(key string, value *Strings) {
	m.Key = append(m.Key, key)
	m.Value = append(m.Value, value)
}

// Len returns the number of pairs.
func (m *StringsMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Key)
}

// Marshal encodes the map.
func (m *StringsMap) Marshal() []byte {
	var b []byte
	if m == nil {
		return b
	}
	for _, k := range m.Key {
		b = protowire.AppendTag(b, keyField, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range m.Value {
		b = protowire.AppendTag(b, mapValueNo, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Marshal())
	}
	return b
}

// Unmarshal decodes b into m, replacing its contents.
func (m *StringsMap) Unmarshal(b []byte) error {
	m.Key, m.Value = m.Key[:0], m.Value[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("strings map: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == keyField && typ == protowire.BytesType:
			k, l := protowire.ConsumeString(b)
			if l < 0 {
				return fmt.Errorf("strings map key: %w", protowire.ParseError(l))
			}
			m.Key = append(m.Key, k)
			b = b[l:]
		case num == mapValueNo && typ == protowire.BytesType:
			raw, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return fmt.Errorf("strings map value: %w", protowire.ParseError(l))
			}
			s := &Strings{}
			if err := s.Unmarshal(raw); err != nil {
				return err
			}
			m.Value = append(m.Value, s)
			b = b[l:]
		default:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return fmt.Errorf("strings map field %d: %w", num, protowire.ParseError(l))
			}
			b = b[l:]
		}
	}
	if len(m.Key) != len(m.Value) {
		return fmt.Errorf("strings map: %d keys but %d values", len(m.Key), len(m.Value))
	}
	return nil
}

// Integers is a packed list of int32 values.
type Integers struct {
	Value []int32
}

// Marshal encodes the list in packed form.
func (in *Integers) Marshal() []byte {
	var b []byte
	if in == nil || len(in.Value) == 0 {
		return b
	}
	var packed []byte
	for _, v := range in.Value {
		packed = protowire.AppendVarint(packed, uint64(int64(v)))
	}
	b = protowire.AppendTag(b, valueField, protowire.BytesType)
	return protowire.AppendBytes(b, packed)
}

// Unmarshal decodes b into in. Both packed and unpacked encodings are
// accepted.
func (in *Integers) Unmarshal(b []byte) error {
	in.Value = in.Value[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("integers: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == valueField && typ == protowire.BytesType:
			packed, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return fmt.Errorf("integers packed: %w", protowire.ParseError(l))
			}
			for len(packed) > 0 {
				v, vl := protowire.ConsumeVarint(packed)
				if vl < 0 {
					return fmt.Errorf("integers packed value: %w", protowire.ParseError(vl))
				}
				in.Value = append(in.Value, int32(v))
				packed = packed[vl:]
			}
			b = b[l:]
		case num == valueField && typ == protowire.VarintType:
			v, l := protowire.ConsumeVarint(b)
			if l < 0 {
				return fmt.Errorf("integers value: %w", protowire.ParseError(l))
			}
			in.Value = append(in.Value, int32(v))
			b = b[l:]
		default:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return fmt.Errorf("integers field %d: %w", num, protowire.ParseError(l))
			}
			b = b[l:]
		}
	}
	return nil
}

// IntegersMap is an ordered multimap from string keys to Integers values.
type IntegersMap struct {
	Key   []string
	Value []*Integers
}

// Put appends a key/value pair.
func (m *IntegersMap) Put(key string, values ...int32) {
	m.Key = append(m.Key, key)
	m.Value = append(m.Value, &Integers{Value: values})
}

// Len returns the number of pairs.
func (m *IntegersMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Key)
}

// Marshal encodes the map.
func (m *IntegersMap) Marshal() []byte {
	var b []byte
	if m == nil {
		return b
	}
	for _, k := range m.Key {
		b = protowire.AppendTag(b, keyField, protowire.BytesType)
		b = protowire.AppendString(b, k)
	}
	for _, v := range m.Value {
		b = protowire.AppendTag(b, mapValueNo, protowire.BytesType)
		b = protowire.AppendBytes(b, v.Marshal())
	}
	return b
}

// Unmarshal decodes b into m, replacing its contents.
func (m *IntegersMap) Unmarshal(b []byte) error {
	m.Key, m.Value = m.Key[:0], m.Value[:0]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("integers map: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == keyField && typ == protowire.BytesType:
			k, l := protowire.ConsumeString(b)
			if l < 0 {
				return fmt.Errorf("integers map key: %w", protowire.ParseError(l))
			}
			m.Key = append(m.Key, k)
			b = b[l:]
		case num == mapValueNo && typ == protowire.BytesType:
			raw, l := protowire.ConsumeBytes(b)
			if l < 0 {
				return fmt.Errorf("integers map value: %w", protowire.ParseError(l))
			}
			in := &Integers{}
			if err := in.Unmarshal(raw); err != nil {
				return err
			}
			m.Value = append(m.Value, in)
			b = b[l:]
		default:
			l := protowire.ConsumeFieldValue(num, typ, b)
			if l < 0 {
				return fmt.Errorf("integers map field %d: %w", num, protowire.ParseError(l))
			}
			b = b[l:]
		}
	}
	if len(m.Key) != len(m.Value) {
		return fmt.Errorf("integers map: %d keys but %d values", len(m.Key), len(m.Value))
	}
	return nil
}
