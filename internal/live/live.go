// Package live keeps a continuously ranked view of the station list. It is fed
// by station fetches and observer location updates and republishes a ranked
// snapshot whenever either of them changes.
package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rubiojr/airdb/internal/location"
	"github.com/rubiojr/airdb/pkg/api"
	"golang.org/x/sync/singleflight"
)

// State of the view.
type State int

const (
	Idle State = iota
	Fetching
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Fetcher returns the current station list.
type Fetcher interface {
	FetchStations(ctx context.Context) ([]api.Station, error)
}

// Recorder receives every successfully fetched batch.
type Recorder interface {
	SaveStations(ctx context.Context, fetchedAt time.Time, stations []api.Station) error
}

// Snapshot is an immutable ranked view. Callers must not modify Stations.
type Snapshot struct {
	State     State
	Stations  []api.StationWithDistance
	Observer  *api.Coordinate
	FetchedAt time.Time
	UpdatedAt time.Time
	// LastError is the error of the most recent failed fetch, cleared by the
	// next successful one.
	LastError error
}

// Station looks up a station by id in the snapshot.
func (s Snapshot) Station(id int) (api.StationWithDistance, bool) {
	for _, st := range s.Stations {
		if st.Station.ID == id {
			return st, true
		}
	}
	return api.StationWithDistance{}, false
}

// Option configures a View.
type Option func(*View)

// WithRecorder archives every successful fetch. Recorder failures are logged
// and do not fail the refresh.
func WithRecorder(r Recorder) Option {
	return func(v *View) {
		v.recorder = r
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(v *View) {
		v.now = now
	}
}

// View owns the current station batch and observer location.
type View struct {
	fetcher  Fetcher
	recorder Recorder
	log      *slog.Logger
	now      func() time.Time
	group    singleflight.Group

	mu        sync.RWMutex
	state     State
	loaded    bool
	stations  []api.Station
	observer  *api.Coordinate
	fetchedAt time.Time
	lastErr   error
	snapshot  Snapshot
	subs      map[int]chan Snapshot
	nextSubID int
	closed    bool
}

func New(fetcher Fetcher, logger *slog.Logger, opts ...Option) *View {
	v := &View{
		fetcher: fetcher,
		log:     logger,
		now:     time.Now,
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.snapshot = Snapshot{State: Idle, Stations: []api.StationWithDistance{}}
	return v
}

// Refresh fetches a new station batch and re-ranks it. On failure the
// previous batch and state are kept and the error is returned. Concurrent
// calls share a single in-flight fetch, run with the first caller's context.
func (v *View) Refresh(ctx context.Context) error {
	_, err, shared := v.group.Do("refresh", func() (any, error) {
		return nil, v.refresh(ctx)
	})
	if shared {
		v.log.Debug("joined in-flight refresh")
	}
	return err
}

func (v *View) refresh(ctx context.Context) error {
	v.mu.Lock()
	prev := v.state
	v.state = Fetching
	v.publishLocked()
	v.mu.Unlock()

	stations, err := v.fetcher.FetchStations(ctx)

	v.mu.Lock()
	if err != nil {
		v.state = prev
		v.lastErr = err
		kept := len(v.stations)
		v.publishLocked()
		v.mu.Unlock()
		v.log.Error("Error fetching stations", "error", err, "kept", kept)
		return err
	}

	fetchedAt := v.now()
	v.stations = stations
	v.loaded = true
	v.fetchedAt = fetchedAt
	v.lastErr = nil
	v.state = Ready
	v.publishLocked()
	v.mu.Unlock()

	v.log.Debug("Stations refreshed", "count", len(stations))

	if v.recorder != nil {
		if err := v.recorder.SaveStations(ctx, fetchedAt, stations); err != nil {
			v.log.Error("Failed to archive stations", "error", err)
		}
	}
	return nil
}

// UpdateLocation sets the observer location. Once a batch has been loaded the
// view is re-ranked and published without re-fetching; before that the
// location is kept for the first successful fetch.
func (v *View) UpdateLocation(c api.Coordinate) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.observer = &c
	if !v.loaded {
		v.snapshot.Observer = &api.Coordinate{Lat: c.Lat, Lng: c.Lng}
		return
	}
	v.publishLocked()
}

// Snapshot returns the current ranked view.
func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshot
}

// Subscribe returns a channel receiving every published snapshot, starting
// with the current one. A slow reader only sees the newest snapshot. The
// returned function unsubscribes and closes the channel.
func (v *View) Subscribe() (<-chan Snapshot, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if v.closed {
		close(ch)
		return ch, func() {}
	}

	id := v.nextSubID
	v.nextSubID++
	v.subs[id] = ch
	ch <- v.snapshot

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			if c, ok := v.subs[id]; ok {
				delete(v.subs, id)
				close(c)
			}
		})
	}
}

// Run applies location updates from provider until ctx is done or the
// provider stops.
func (v *View) Run(ctx context.Context, provider location.Provider) error {
	updates, cancel := provider.Subscribe()
	defer cancel()

	if c, ok := provider.CurrentLocation(); ok {
		v.UpdateLocation(c)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-updates:
			if !ok {
				return nil
			}
			v.log.Debug("Observer location updated", "latitude", c.Lat, "longitude", c.Lng)
			v.UpdateLocation(c)
		}
	}
}

// Close closes every subscriber channel. Later subscriptions get a closed
// channel.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	for id, ch := range v.subs {
		delete(v.subs, id)
		close(ch)
	}
}

func (v *View) publishLocked() {
	var observer *api.Coordinate
	if v.observer != nil {
		c := *v.observer
		observer = &c
	}

	v.snapshot = Snapshot{
		State:     v.state,
		Stations:  api.RankWithDistance(v.stations, observer),
		Observer:  observer,
		FetchedAt: v.fetchedAt,
		UpdatedAt: v.now(),
		LastError: v.lastErr,
	}

	for _, ch := range v.subs {
		select {
		case ch <- v.snapshot:
		default:
			// drop the stale snapshot
			select {
			case <-ch:
			default:
			}
			ch <- v.snapshot
		}
	}
}
