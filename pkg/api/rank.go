package api

import "sort"

// Rank orders stations by ascending distance from observer. With a nil
// observer the input order is kept. Stations at equal distance keep their
// relative order. The input slice is never modified.
func Rank(stations []Station, observer *Coordinate) []Station {
	withDistance := RankWithDistance(stations, observer)
	ranked := make([]Station, len(withDistance))
	for i := range withDistance {
		ranked[i] = withDistance[i].Station
	}
	return ranked
}

// RankWithDistance is like Rank but pairs each station with its distance to
// the observer. Distances are zero when observer is nil.
func RankWithDistance(stations []Station, observer *Coordinate) []StationWithDistance {
	result := make([]StationWithDistance, len(stations))
	for i := range stations {
		result[i].Station = stations[i]
		if observer != nil {
			result[i].Distance = stations[i].DistanceTo(*observer)
		}
	}
	if observer == nil {
		return result
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Distance < result[j].Distance
	})
	return result
}
