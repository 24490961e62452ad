package location

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muesli/gominatim"
	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/airdb/pkg/api"
)

const (
	DefaultNominatimServer = "https://nominatim.openstreetmap.org/"

	geocodeCacheExpiry  = 30 * time.Minute
	geocodeCacheCleanup = 90 * time.Minute
)

var ErrNotFound = errors.New("location not found")

// Place is a geocoded location.
type Place struct {
	Name       string
	Coordinate api.Coordinate
}

// SearchFunc runs a Nominatim search.
type SearchFunc func(q gominatim.SearchQuery) ([]gominatim.SearchResult, error)

// Geocoder resolves place names to coordinates, caching results.
type Geocoder struct {
	cache  *cache.Cache
	search SearchFunc
}

// NewGeocoder returns a Geocoder backed by the given Nominatim server.
func NewGeocoder(server string) *Geocoder {
	if server == "" {
		server = DefaultNominatimServer
	}
	gominatim.SetServer(server)
	return NewGeocoderWithSearch(func(q gominatim.SearchQuery) ([]gominatim.SearchResult, error) {
		return q.Get()
	})
}

// NewGeocoderWithSearch returns a Geocoder using search for lookups.
func NewGeocoderWithSearch(search SearchFunc) *Geocoder {
	return &Geocoder{
		cache:  cache.New(geocodeCacheExpiry, geocodeCacheCleanup),
		search: search,
	}
}

// Lookup returns the first match for name.
func (g *Geocoder) Lookup(name string) (Place, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return Place{}, fmt.Errorf("%w: empty query", ErrNotFound)
	}
	if cached, ok := g.cache.Get(key); ok {
		return cached.(Place), nil
	}

	results, err := g.search(gominatim.SearchQuery{Q: name})
	if err != nil {
		return Place{}, fmt.Errorf("geocoding error: %w", err)
	}
	if len(results) == 0 {
		return Place{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	place, err := resultToPlace(results[0])
	if err != nil {
		return Place{}, err
	}
	g.cache.Set(key, place, cache.DefaultExpiration)

	return place, nil
}

func resultToPlace(result gominatim.SearchResult) (Place, error) {
	lat, err := strconv.ParseFloat(result.Lat, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing latitude: %w", err)
	}

	lng, err := strconv.ParseFloat(result.Lon, 64)
	if err != nil {
		return Place{}, fmt.Errorf("error parsing longitude: %w", err)
	}

	return Place{Name: result.DisplayName, Coordinate: api.Coordinate{Lat: lat, Lng: lng}}, nil
}
