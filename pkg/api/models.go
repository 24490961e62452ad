package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StationWithDistance associates a Station with a computed distance in meters.
type StationWithDistance struct {
	Station  Station `json:"station"`
	Distance float64 `json:"distance"`
}

// Station represents a single air quality monitoring station as returned by
// the stations endpoint.
type Station struct {
	ID           int                `json:"id"`
	Name         string             `json:"name"`
	Comment      *string            `json:"comment,omitempty"`
	Status       int                `json:"status"`
	Latitude     string             `json:"latitude"`
	Longitude    string             `json:"longitude"`
	Measurements map[string]*string `json:"measurements"`
}

// stationRecord mirrors Station with pointer fields so missing and null keys
// can be told apart from zero values.
type stationRecord struct {
	ID           *int                `json:"id"`
	Name         *string             `json:"name"`
	Comment      *string             `json:"comment"`
	Status       *int                `json:"status"`
	Latitude     *string             `json:"latitude"`
	Longitude    *string             `json:"longitude"`
	Measurements *map[string]*string `json:"measurements"`
}

// UnmarshalJSON decodes a station record. Every key but comment is required
// and must not be null; individual measurement values may be null.
func (s *Station) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("station record is null")
	}

	var rec stationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	var missing []string
	if rec.ID == nil {
		missing = append(missing, "id")
	}
	if rec.Name == nil {
		missing = append(missing, "name")
	}
	if rec.Status == nil {
		missing = append(missing, "status")
	}
	if rec.Latitude == nil {
		missing = append(missing, "latitude")
	}
	if rec.Longitude == nil {
		missing = append(missing, "longitude")
	}
	if rec.Measurements == nil {
		missing = append(missing, "measurements")
	}
	if len(missing) > 0 {
		return fmt.Errorf("station record missing %s", strings.Join(missing, ", "))
	}

	*s = Station{
		ID:           *rec.ID,
		Name:         *rec.Name,
		Comment:      rec.Comment,
		Status:       *rec.Status,
		Latitude:     *rec.Latitude,
		Longitude:    *rec.Longitude,
		Measurements: *rec.Measurements,
	}
	if s.Measurements == nil {
		s.Measurements = map[string]*string{}
	}
	return nil
}

// Stat is a single measurement ready for display.
type Stat struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Location returns the station coordinates. Unparseable values become 0.
func (s Station) Location() Coordinate {
	lat, _ := ParseLatLong(s.Latitude)
	lng, _ := ParseLatLong(s.Longitude)
	return Coordinate{Lat: lat, Lng: lng}
}

// DistanceTo returns the great-circle distance in meters between the station
// and the observer.
func (s Station) DistanceTo(observer Coordinate) float64 {
	loc := s.Location()
	return gpx.Distance2D(observer.Lat, observer.Lng, loc.Lat, loc.Lng, true)
}

// Stats flattens the measurements into key/value pairs, sorted by key.
// Null readings are rendered as an empty string.
func (s Station) Stats() []Stat {
	stats := make([]Stat, 0, len(s.Measurements))
	for k, v := range s.Measurements {
		value := ""
		if v != nil {
			value = *v
		}
		stats = append(stats, Stat{Key: k, Value: value})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Key < stats[j].Key
	})
	return stats
}

// ParseLatLong parses a latitude or longitude string (with comma or dot) to float64.
// The returned value is 0 whenever err is not nil.
func ParseLatLong(s string) (float64, error) {
	s = strings.Replace(strings.TrimSpace(s), ",", ".", 1)
	m, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(m) || math.IsInf(m, 0) {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}

	return m, nil
}
