package api

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
)

func station(id int, lat, lng string) Station {
	return Station{ID: id, Name: fmt.Sprintf("station-%d", id), Latitude: lat, Longitude: lng}
}

func ids(stations []Station) []int {
	out := make([]int, len(stations))
	for i, s := range stations {
		out[i] = s.ID
	}
	return out
}

func equalIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func randomStations(r *rand.Rand, n int) []Station {
	stations := make([]Station, n)
	for i := range stations {
		lat := fmt.Sprintf("%.4f", 63+r.Float64()*3)
		lng := fmt.Sprintf("%.4f", -24+r.Float64()*11)
		// a few duplicate ids and unparseable coordinates
		id := i
		if i%7 == 3 {
			id = i - 1
		}
		if i%11 == 5 {
			lat = "n/a"
		}
		stations[i] = station(id, lat, lng)
	}
	return stations
}

func TestRank_Scenario(t *testing.T) {
	stations := []Station{
		station(2, "65.0", "-18.0"),
		station(1, "64.0", "-22.0"),
	}
	observer := &Coordinate{Lat: 64.0, Lng: -22.0}

	ranked := Rank(stations, observer)
	if got := ids(ranked); !equalIDs(got, []int{1, 2}) {
		t.Errorf("Expected [1 2], got %v", got)
	}

	// Already ordered input stays ordered
	ranked = Rank([]Station{station(1, "64.0", "-22.0"), station(2, "65.0", "-18.0")}, observer)
	if got := ids(ranked); !equalIDs(got, []int{1, 2}) {
		t.Errorf("Expected [1 2], got %v", got)
	}
}

func TestRank_NoObserver(t *testing.T) {
	stations := []Station{
		station(3, "66.0", "-18.0"),
		station(1, "64.0", "-22.0"),
		station(2, "65.0", "-20.0"),
	}

	ranked := Rank(stations, nil)
	if got := ids(ranked); !equalIDs(got, []int{3, 1, 2}) {
		t.Errorf("Expected fetch order [3 1 2], got %v", got)
	}
}

func TestRank_Empty(t *testing.T) {
	observer := &Coordinate{Lat: 64.0, Lng: -22.0}

	if ranked := Rank(nil, observer); len(ranked) != 0 {
		t.Errorf("Expected empty result for nil input, got %v", ids(ranked))
	}
	if ranked := Rank([]Station{}, observer); len(ranked) != 0 {
		t.Errorf("Expected empty result for empty input, got %v", ids(ranked))
	}
	if ranked := Rank(nil, nil); len(ranked) != 0 {
		t.Errorf("Expected empty result without observer, got %v", ids(ranked))
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	stations := []Station{
		station(2, "65.0", "-18.0"),
		station(1, "64.0", "-22.0"),
	}
	observer := &Coordinate{Lat: 64.0, Lng: -22.0}

	_ = Rank(stations, observer)
	if got := ids(stations); !equalIDs(got, []int{2, 1}) {
		t.Errorf("Input was reordered: %v", got)
	}

	ranked := Rank(stations, nil)
	ranked[0].Name = "changed"
	if stations[0].Name == "changed" {
		t.Error("Rank without observer returned the input slice")
	}
}

func TestRank_StableTies(t *testing.T) {
	// Same coordinates, and malformed ones that all fall back to (0, 0)
	stations := []Station{
		station(5, "64.0", "-22.0"),
		station(9, "abc", "abc"),
		station(1, "64.0", "-22.0"),
		station(7, "", ""),
		station(3, "64.0", "-22.0"),
	}
	observer := &Coordinate{Lat: 64.0, Lng: -22.0}

	ranked := Rank(stations, observer)
	if got := ids(ranked); !equalIDs(got, []int{5, 1, 3, 9, 7}) {
		t.Errorf("Expected stable tie order [5 1 3 9 7], got %v", got)
	}
}

func TestRank_DuplicateIDs(t *testing.T) {
	stations := []Station{
		station(1, "66.0", "-18.0"),
		station(1, "64.0", "-22.0"),
	}
	ranked := Rank(stations, &Coordinate{Lat: 64.0, Lng: -22.0})
	if len(ranked) != 2 {
		t.Fatalf("Expected both duplicates kept, got %d", len(ranked))
	}
	if ranked[0].Latitude != "64.0" {
		t.Errorf("Expected the nearer duplicate first, got %+v", ranked[0])
	}
}

func TestRank_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		stations := randomStations(r, r.Intn(40))
		observer := &Coordinate{Lat: 63 + r.Float64()*3, Lng: -24 + r.Float64()*11}

		ranked := Rank(stations, observer)

		// permutation: same multiset of ids
		before := ids(stations)
		after := ids(ranked)
		sort.Ints(before)
		sort.Ints(after)
		if !equalIDs(before, after) {
			t.Fatalf("Round %d: not a permutation: %v vs %v", round, before, after)
		}

		// ascending distance
		for i := 1; i < len(ranked); i++ {
			a := ranked[i-1].DistanceTo(*observer)
			b := ranked[i].DistanceTo(*observer)
			if a > b {
				t.Fatalf("Round %d: position %d out of order: %f > %f", round, i, a, b)
			}
		}

		// idempotent
		again := Rank(ranked, observer)
		if !equalIDs(ids(again), ids(ranked)) {
			t.Fatalf("Round %d: ranking is not idempotent", round)
		}

		// identity without observer
		if !equalIDs(ids(Rank(stations, nil)), ids(stations)) {
			t.Fatalf("Round %d: ranking without observer changed order", round)
		}
	}
}

func TestRankWithDistance(t *testing.T) {
	stations := []Station{
		station(2, "65.0", "-18.0"),
		station(1, "64.0", "-22.0"),
	}
	observer := &Coordinate{Lat: 64.0, Lng: -22.0}

	ranked := RankWithDistance(stations, observer)
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(ranked))
	}
	if ranked[0].Station.ID != 1 || ranked[0].Distance != 0 {
		t.Errorf("Expected station 1 at distance 0 first, got %+v", ranked[0])
	}
	if ranked[1].Distance != stations[0].DistanceTo(*observer) {
		t.Errorf("Distance mismatch for station 2: %f", ranked[1].Distance)
	}

	for _, s := range RankWithDistance(stations, nil) {
		if s.Distance != 0 {
			t.Errorf("Expected zero distance without observer, got %f", s.Distance)
		}
	}
}

func TestWithinRadius(t *testing.T) {
	ranked := []StationWithDistance{
		{Station: station(1, "", ""), Distance: 10},
		{Station: station(2, "", ""), Distance: 1000},
		{Station: station(3, "", ""), Distance: 5000},
	}

	if got := WithinRadius(ranked, 1000); len(got) != 2 {
		t.Errorf("Expected 2 stations within 1000m, got %d", len(got))
	}
	if got := WithinRadius(ranked, 0); len(got) != 3 {
		t.Errorf("Expected all stations with radius 0, got %d", len(got))
	}
	if got := WithinRadius(ranked, 1); len(got) != 0 {
		t.Errorf("Expected no stations within 1m, got %d", len(got))
	}
}

func BenchmarkRank(b *testing.B) {
	stations := randomStations(rand.New(rand.NewSource(1)), 100)
	observer := &Coordinate{Lat: 64.1, Lng: -21.9}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Rank(stations, observer)
	}
}
