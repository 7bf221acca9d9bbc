package datatypes

import (
	"errors"
	"fmt"
	"net/url"
	"unicode/utf8"
)

// ErrUnsupportedType is returned when a value cannot be viewed as strings.
var ErrUnsupportedType = errors.New("unsupported data type")

// ParseAsStrings converts the payloads components commonly receive into a
// list of strings.
func ParseAsStrings(v any) ([]string, error) {
	switch val := v.(type) {
	case string:
		return []string{val}, nil
	case []string:
		return val, nil
	case *Strings:
		if val == nil {
			return nil, nil
		}
		return val.Value, nil
	case Strings:
		return val.Value, nil
	case []byte:
		if !utf8.Valid(val) {
			return nil, fmt.Errorf("%w: bytes are not valid UTF-8", ErrUnsupportedType)
		}
		return []string{string(val)}, nil
	case *url.URL:
		return []string{val.String()}, nil
	case fmt.Stringer:
		return []string{val.String()}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// ParseAsString returns the first string of ParseAsStrings, or "" when the
// value is empty.
func ParseAsString(v any) (string, error) {
	values, err := ParseAsStrings(v)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// ParseAsStringsArray accepts a *StringsArray or its encoded bytes.
func ParseAsStringsArray(v any) (*StringsArray, error) {
	switch val := v.(type) {
	case *StringsArray:
		return val, nil
	case []byte:
		a := &StringsArray{}
		if err := a.Unmarshal(val); err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a strings array", ErrUnsupportedType, v)
	}
}

// ParseAsStringsMap accepts a *StringsMap or its encoded bytes.
func ParseAsStringsMap(v any) (*StringsMap, error) {
	switch val := v.(type) {
	case *StringsMap:
		return val, nil
	case []byte:
		m := &StringsMap{}
		if err := m.Unmarshal(val); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a strings map", ErrUnsupportedType, v)
	}
}
