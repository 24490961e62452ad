// Package api provides types and functions to fetch air quality monitoring
// stations from the stations endpoint and rank them by distance.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultBaseURL is a placeholder. Point it at a real provider with
	// WithBaseURL (--url or AIRDB_URL on the command line).
	DefaultBaseURL = "https://airquality.example.org/api/stations"
	DefaultTimeout = 30 * time.Second

	maxBodySize = 8 << 20
)

var (
	// ErrNetwork is the kind of FetchError caused by transport failures and
	// non-OK responses.
	ErrNetwork = errors.New("network error")
	// ErrDecode is the kind of FetchError caused by a malformed body.
	ErrDecode = errors.New("decode error")
)

// FetchError is returned by FetchStations. Kind is ErrNetwork or ErrDecode.
type FetchError struct {
	Kind error
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// StationAPI fetches the current list of monitoring stations.
type StationAPI struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a StationAPI.
type Option func(*StationAPI)

// WithBaseURL overrides the stations endpoint.
func WithBaseURL(url string) Option {
	return func(a *StationAPI) {
		a.baseURL = url
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *StationAPI) {
		a.httpClient = c
	}
}

// NewStationAPI creates a new StationAPI client with default settings.
func NewStationAPI(opts ...Option) *StationAPI {
	a := &StationAPI{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the endpoint the client fetches from.
func (api *StationAPI) BaseURL() string {
	return api.baseURL
}

// FetchStations fetches the current station list. The whole fetch fails if
// any record cannot be decoded.
func (api *StationAPI) FetchStations(ctx context.Context) ([]Station, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.baseURL, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := api.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("error fetching data: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &FetchError{Kind: ErrNetwork, Err: fmt.Errorf("error reading response body: %w", err)}
	}

	stations, err := DecodeStations(body)
	if err != nil {
		return nil, &FetchError{Kind: ErrDecode, Err: err}
	}

	return stations, nil
}

// DecodeStations decodes a JSON array of station records.
func DecodeStations(data []byte) ([]Station, error) {
	var stations []Station
	if err := json.Unmarshal(data, &stations); err != nil {
		return nil, fmt.Errorf("error unmarshaling JSON: %w", err)
	}
	if stations == nil {
		// a literal null is not an array
		return nil, errors.New("error unmarshaling JSON: expected array, got null")
	}
	return stations, nil
}

// NearbyStations fetches the current stations and returns those within
// radius meters of observer, nearest first. A radius <= 0 keeps every station.
func (api *StationAPI) NearbyStations(ctx context.Context, observer Coordinate, radius float64) ([]StationWithDistance, error) {
	stations, err := api.FetchStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching current stations: %w", err)
	}

	return WithinRadius(RankWithDistance(stations, &observer), radius), nil
}

// WithinRadius keeps the entries at most radius meters away. A radius <= 0
// keeps every entry.
func WithinRadius(ranked []StationWithDistance, radius float64) []StationWithDistance {
	if radius <= 0 {
		return ranked
	}
	nearby := make([]StationWithDistance, 0, len(ranked))
	for _, s := range ranked {
		if s.Distance <= radius {
			nearby = append(nearby, s)
		}
	}
	return nearby
}
