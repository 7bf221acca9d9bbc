// Package geo resolves place names to coordinates and provides the
// components that attach coordinates to tuples.
package geo

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoLocation is returned when a text cannot be resolved to coordinates.
var ErrNoLocation = errors.New("no location found")

// Precision is how specific a resolved location is.
type Precision int

const (
	PrecisionCountry Precision = iota
	PrecisionState
	PrecisionCity
	PrecisionZip
	PrecisionStreet
	PrecisionAddress
)

var precisionNames = [...]string{"country", "state", "city", "zip", "street", "address"}

func (p Precision) String() string {
	if p < 0 || int(p) >= len(precisionNames) {
		return "unknown"
	}
	return precisionNames[p]
}

// ParsePrecision maps a geocoder precision attribute to a Precision.
// Variants such as "zip+4" count as zip and unknown values as country.
func ParsePrecision(s string) Precision {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(s, "zip") {
		return PrecisionZip
	}
	for i, name := range precisionNames {
		if s == name {
			return Precision(i)
		}
	}
	return PrecisionCountry
}

// Location is a resolved place.
type Location struct {
	Query     string
	Lat       float64
	Lon       float64
	Precision Precision
	Country   string
	State     string
	County    string
	City      string
	Zip       string
	Address   string
}

// label returns the place name at precision p.
func (l Location) label(p Precision) string {
	switch p {
	case PrecisionCountry:
		return l.Country
	case PrecisionState:
		return l.State
	case PrecisionCity:
		return l.City
	case PrecisionZip:
		return l.Zip
	default:
		return l.Address
	}
}

// Valid reports whether the coordinates are set. -1,-1 marks an unknown
// location.
func (l Location) Valid() bool {
	return l.Lat != -1 || l.Lon != -1
}

// SameCoordinates reports whether l and other share lat and lon.
func (l Location) SameCoordinates(other Location) bool {
	return l.Lat == other.Lat && l.Lon == other.Lon
}

// Within reports whether l lies inside other: other is no more precise
// than l and both agree on every label up to other's precision. A city
// is within its state, a state is not within one of its cities.
func (l Location) Within(other Location) bool {
	if l.SameCoordinates(other) {
		return true
	}
	if other.Precision > l.Precision {
		return false
	}
	for p := PrecisionCountry; p <= other.Precision; p++ {
		if !strings.EqualFold(l.label(p), other.label(p)) {
			return false
		}
	}
	return true
}

// LatString and LonString format the coordinates for tuple fields.
func (l Location) LatString() string { return strconv.FormatFloat(l.Lat, 'f', -1, 64) }
func (l Location) LonString() string { return strconv.FormatFloat(l.Lon, 'f', -1, 64) }

func (l Location) String() string {
	return fmt.Sprintf("%s,%s %s:%s,%s,%s", l.LatString(), l.LonString(), l.Precision, l.Country, l.State, l.City)
}
