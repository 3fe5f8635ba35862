package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressMode identifies how a LocationQuery resolves to a place.
type AddressMode int

const (
	AddressNone AddressMode = iota
	AddressCity
	AddressCoords
)

// LocationQuery addresses a place either by city (plus optional country)
// or by a lat/lon pair. When both are present the coordinates win.
type LocationQuery struct {
	City    string   `json:"city,omitempty"`
	Country string   `json:"country,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// CityQuery builds a city-addressed query.
func CityQuery(city, country string) LocationQuery {
	return LocationQuery{City: city, Country: country}
}

// CoordsQuery builds a coordinate-addressed query.
func CoordsQuery(lat, lon float64) LocationQuery {
	return LocationQuery{Lat: &lat, Lon: &lon}
}

// Mode reports which addressing mode the query resolves to.
func (q LocationQuery) Mode() AddressMode {
	if q.Lat != nil && q.Lon != nil {
		return AddressCoords
	}
	if strings.TrimSpace(q.City) != "" {
		return AddressCity
	}
	return AddressNone
}

// Key returns the canonical form of the query used in cache keys.
// City names are lowercased, countries uppercased and coordinates fixed to
// four decimals so identical inputs always map to the same key.
func (q LocationQuery) Key() string {
	switch q.Mode() {
	case AddressCoords:
		return "coords:" + formatCoord(*q.Lat) + "," + formatCoord(*q.Lon)
	case AddressCity:
		k := "city:" + strings.ToLower(strings.TrimSpace(q.City))
		if c := strings.TrimSpace(q.Country); c != "" {
			k += "," + strings.ToUpper(c)
		}
		return k
	default:
		return "none"
	}
}

// String is the human-readable form used in logs and alert messages.
func (q LocationQuery) String() string {
	switch q.Mode() {
	case AddressCoords:
		return fmt.Sprintf("%s,%s", formatCoord(*q.Lat), formatCoord(*q.Lon))
	case AddressCity:
		if c := strings.TrimSpace(q.Country); c != "" {
			return strings.TrimSpace(q.City) + "," + c
		}
		return strings.TrimSpace(q.City)
	default:
		return ""
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
