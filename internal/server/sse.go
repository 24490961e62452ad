package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rubiojr/airdb/internal/live"
	"github.com/rubiojr/airdb/pkg/api"
)

var keepaliveInterval = 30 * time.Second

type liveEvent struct {
	State     string            `json:"state"`
	Observer  *api.Coordinate   `json:"observer,omitempty"`
	FetchedAt *time.Time        `json:"fetched_at,omitempty"`
	Error     string            `json:"error,omitempty"`
	Stations  []stationResponse `json:"stations"`
}

// handleLive streams every published snapshot as a server-sent event.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	updates, cancel := s.view.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	var id int64
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			id++
			if err := writeSSEMessage(w, id, "snapshot", snapshotEvent(snap)); err != nil {
				s.log.Debug("Live client gone", "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func snapshotEvent(snap live.Snapshot) liveEvent {
	ev := liveEvent{
		State:    snap.State.String(),
		Observer: snap.Observer,
		Stations: make([]stationResponse, 0, len(snap.Stations)),
	}
	if !snap.FetchedAt.IsZero() {
		fetchedAt := snap.FetchedAt
		ev.FetchedAt = &fetchedAt
	}
	if snap.LastError != nil {
		ev.Error = snap.LastError.Error()
	}
	for _, st := range snap.Stations {
		ev.Stations = append(ev.Stations, toStationResponse(st, snap.Observer != nil))
	}
	return ev
}

func writeSSEMessage(w io.Writer, id int64, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling event: %w", err)
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, payload); err != nil {
		return fmt.Errorf("error writing event: %w", err)
	}
	return nil
}
