// Package server exposes the ranked station view over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/httprate"
	"github.com/rubiojr/airdb/internal/live"
	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
)

const (
	DefaultRadius    = 0.0 // km, unlimited
	DefaultRateLimit = 60  // requests per minute per IP
	metersPerKm      = 1000.0
)

// Geocoder resolves place names.
type Geocoder interface {
	Lookup(name string) (location.Place, error)
}

// SearchLogger records observer searches.
type SearchLogger interface {
	LogSearchLocation(ctx context.Context, observer api.Coordinate, distance float64) error
}

type Config struct {
	RateLimit int
	Geocoder  Geocoder
	// SearchLog is optional.
	SearchLog SearchLogger
}

type Server struct {
	view     *live.View
	geocoder Geocoder
	search   SearchLogger
	log      *slog.Logger
	limit    int
}

type stationResponse struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Comment  *string        `json:"comment"`
	Status   int            `json:"status"`
	Location api.Coordinate `json:"location"`
	Distance *float64       `json:"distance,omitempty"`
	Stats    []api.Stat     `json:"stats"`
}

type stationsResponse struct {
	State     string            `json:"state"`
	Observer  *api.Coordinate   `json:"observer,omitempty"`
	Place     string            `json:"place,omitempty"`
	FetchedAt *time.Time        `json:"fetched_at,omitempty"`
	Error     string            `json:"error,omitempty"`
	Stations  []stationResponse `json:"stations"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func New(view *live.View, cfg Config, logger *slog.Logger) *Server {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &Server{
		view:     view,
		geocoder: cfg.Geocoder,
		search:   cfg.SearchLog,
		log:      logger,
		limit:    limit,
	}
}

// Routes returns the HTTP handler. requestLogger may be nil.
func (s *Server) Routes(requestLogger *httplog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	if requestLogger != nil {
		r.Use(httplog.RequestLogger(requestLogger))
	}
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(s.limit, time.Minute))

	r.Get("/healthz", s.handleHealth)
	r.Get("/stations", s.handleStations)
	r.Get("/stations/{id}", s.handleStation)
	r.Get("/live", s.handleLive)
	r.Post("/refresh", s.handleRefresh)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.view.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"state":    snap.State.String(),
		"stations": len(snap.Stations),
	})
}

func (s *Server) handleStations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	radius := DefaultRadius
	if radiusStr := query.Get("radius"); radiusStr != "" {
		var err error
		radius, err = strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius < 0 {
			writeError(w, http.StatusBadRequest, "invalid radius value")
			return
		}
	}

	observer, place, status, err := s.observerFromQuery(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}

	snap, err := s.ensureLoaded(r.Context())
	if err != nil {
		writeError(w, fetchErrorStatus(err), fetchErrorMessage(err))
		return
	}

	if observer == nil {
		observer = snap.Observer
	} else if s.search != nil {
		if err := s.search.LogSearchLocation(r.Context(), *observer, radius*metersPerKm); err != nil {
			s.log.Error("Failed to log search location", "error", err)
		}
	}

	stations := make([]api.Station, len(snap.Stations))
	for i, st := range snap.Stations {
		stations[i] = st.Station
	}
	ranked := api.RankWithDistance(stations, observer)
	if observer != nil {
		ranked = api.WithinRadius(ranked, radius*metersPerKm)
	}

	resp := stationsResponse{
		State:    snap.State.String(),
		Observer: observer,
		Place:    place,
		Stations: make([]stationResponse, 0, len(ranked)),
	}
	if !snap.FetchedAt.IsZero() {
		fetchedAt := snap.FetchedAt
		resp.FetchedAt = &fetchedAt
	}
	if snap.LastError != nil {
		resp.Error = snap.LastError.Error()
	}
	for _, st := range ranked {
		resp.Stations = append(resp.Stations, toStationResponse(st, observer != nil))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid station id")
		return
	}

	snap, err := s.ensureLoaded(r.Context())
	if err != nil {
		writeError(w, fetchErrorStatus(err), fetchErrorMessage(err))
		return
	}

	st, ok := snap.Station(id)
	if !ok {
		writeError(w, http.StatusNotFound, "station not found")
		return
	}
	writeJSON(w, http.StatusOK, toStationResponse(st, snap.Observer != nil))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.view.Refresh(r.Context()); err != nil {
		writeError(w, fetchErrorStatus(err), fetchErrorMessage(err))
		return
	}
	snap := s.view.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    snap.State.String(),
		"stations": len(snap.Stations),
	})
}

// ensureLoaded triggers the first fetch when nothing has been loaded yet.
func (s *Server) ensureLoaded(ctx context.Context) (live.Snapshot, error) {
	snap := s.view.Snapshot()
	if !snap.FetchedAt.IsZero() {
		return snap, nil
	}
	if err := s.view.Refresh(ctx); err != nil {
		return live.Snapshot{}, err
	}
	return s.view.Snapshot(), nil
}

// observerFromQuery reads the observer from location or lat/lng. A nil
// coordinate means none was given.
func (s *Server) observerFromQuery(r *http.Request) (*api.Coordinate, string, int, error) {
	query := r.URL.Query()

	if name := query.Get("location"); name != "" {
		if s.geocoder == nil {
			return nil, "", http.StatusBadRequest, errors.New("location search is not available")
		}
		place, err := s.geocoder.Lookup(name)
		if err != nil {
			if errors.Is(err, location.ErrNotFound) {
				return nil, "", http.StatusNotFound, err
			}
			s.log.Error("Geocoding failed", "location", name, "error", err)
			return nil, "", http.StatusBadGateway, errors.New("geocoding failed")
		}
		return &place.Coordinate, place.Name, http.StatusOK, nil
	}

	latStr, lngStr := query.Get("lat"), query.Get("lng")
	if latStr == "" && lngStr == "" {
		return nil, "", http.StatusOK, nil
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, "", http.StatusBadRequest, errors.New("invalid latitude value")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, "", http.StatusBadRequest, errors.New("invalid longitude value")
	}
	return &api.Coordinate{Lat: lat, Lng: lng}, "", http.StatusOK, nil
}

func toStationResponse(st api.StationWithDistance, withDistance bool) stationResponse {
	resp := stationResponse{
		ID:       st.Station.ID,
		Name:     st.Station.Name,
		Comment:  st.Station.Comment,
		Status:   st.Station.Status,
		Location: st.Station.Location(),
		Stats:    st.Station.Stats(),
	}
	if withDistance {
		d := st.Distance
		resp.Distance = &d
	}
	return resp
}

func fetchErrorStatus(err error) int {
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func fetchErrorMessage(err error) string {
	switch {
	case errors.Is(err, api.ErrDecode):
		return "station source returned malformed data"
	case errors.Is(err, api.ErrNetwork):
		return "station source unavailable"
	default:
		return "error fetching stations"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
