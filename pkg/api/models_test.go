package api

import (
	"math"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestParseLatLong(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
		hasError bool
	}{
		{"64.1355", 64.1355, false},
		{"64,1355", 64.1355, false},
		{"-21.8954", -21.8954, false},
		{"-21,8954", -21.8954, false},
		{" 64.0 ", 64.0, false},
		{"invalid", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
	}

	for _, test := range tests {
		result, err := ParseLatLong(test.input)

		if test.hasError {
			if err == nil {
				t.Errorf("ParseLatLong(%q) expected error but got none", test.input)
			}
			if result != 0 {
				t.Errorf("ParseLatLong(%q) = %f on error, expected 0", test.input, result)
			}
		} else {
			if err != nil {
				t.Errorf("ParseLatLong(%q) unexpected error: %v", test.input, err)
			}
			if result != test.expected {
				t.Errorf("ParseLatLong(%q) = %f, expected %f", test.input, result, test.expected)
			}
		}
	}
}

func TestStation_Location(t *testing.T) {
	s := Station{Latitude: "64.0", Longitude: "-22.0"}
	if loc := s.Location(); loc != (Coordinate{Lat: 64.0, Lng: -22.0}) {
		t.Errorf("Location() = %+v", loc)
	}

	bad := Station{Latitude: "abc", Longitude: "-"}
	if loc := bad.Location(); loc != (Coordinate{}) {
		t.Errorf("Expected (0, 0) for malformed coordinates, got %+v", loc)
	}

	half := Station{Latitude: "64.0", Longitude: "west"}
	if loc := half.Location(); loc != (Coordinate{Lat: 64.0}) {
		t.Errorf("Expected (64, 0) when only longitude is malformed, got %+v", loc)
	}
}

func TestStation_DistanceTo(t *testing.T) {
	s := Station{Latitude: "64.0", Longitude: "-22.0"}

	if d := s.DistanceTo(Coordinate{Lat: 64.0, Lng: -22.0}); d != 0 {
		t.Errorf("Expected zero distance to own location, got %f", d)
	}

	// One degree of latitude is roughly 111km
	d := s.DistanceTo(Coordinate{Lat: 65.0, Lng: -22.0})
	if d < 110000 || d > 112500 {
		t.Errorf("Expected ~111km for one degree of latitude, got %f", d)
	}

	other := Station{Latitude: "65.0", Longitude: "-18.0"}
	observer := Coordinate{Lat: 64.0, Lng: -22.0}
	back := Station{Latitude: "64.0", Longitude: "-22.0"}
	there := other.DistanceTo(observer)
	fromThere := back.DistanceTo(other.Location())
	if math.Abs(there-fromThere) > 1e-3 {
		t.Errorf("Distance is not symmetric: %f vs %f", there, fromThere)
	}
}

func TestStation_Stats(t *testing.T) {
	s := Station{
		Measurements: map[string]*string{
			"pm10": strPtr("12"),
			"no2":  nil,
		},
	}

	stats := s.Stats()
	if len(stats) != 2 {
		t.Fatalf("Expected 2 stats, got %d", len(stats))
	}

	got := make(map[Stat]bool, len(stats))
	for _, st := range stats {
		got[st] = true
	}
	for _, want := range []Stat{{Key: "pm10", Value: "12"}, {Key: "no2", Value: ""}} {
		if !got[want] {
			t.Errorf("Missing stat %+v in %+v", want, stats)
		}
	}
}

func TestStation_StatsEmpty(t *testing.T) {
	if stats := (Station{}).Stats(); len(stats) != 0 {
		t.Errorf("Expected no stats for nil measurements, got %+v", stats)
	}
}
