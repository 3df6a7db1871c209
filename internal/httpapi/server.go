// Package httpapi exposes the pipeline's public surface (spec.md §6):
// liveness/readiness probes, event lookup and range queries, a live
// WebSocket event tail, and Prometheus metrics, grounded on the teacher's
// stdlib net/http server with Go 1.22+ pattern-matching ServeMux
// (internal/adapter/http, deleted after grounding) and the Finpull example
// repo's gorilla/websocket live-tail handler for the streaming endpoint
// (spec.md's live-transport Open Question resolved in favor of WebSocket —
// see DESIGN.md).
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/config"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/store"
)

// EventReader is the read surface the API needs from the event store.
type EventReader interface {
	Get(id string) (domain.ClassifiedEvent, error)
	Range(q store.Query) ([]domain.ClassifiedEvent, error)
}

// Server is the pipeline's public HTTP API.
type Server struct {
	mux   *http.ServeMux
	log   *slog.Logger
	store EventReader
	ready func() bool

	upgrader websocket.Upgrader

	tailMu sync.Mutex
	tails  map[*websocket.Conn]chan domain.ClassifiedEvent
}

// NewServer builds a Server backed by store, gated by readyFn for /ready.
func NewServer(cfg config.AuthConfig, log *slog.Logger, store EventReader, readyFn func() bool) *Server {
	s := &Server{
		mux:   http.NewServeMux(),
		log:   log,
		store: store,
		ready: readyFn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		tails: make(map[*websocket.Conn]chan domain.ClassifiedEvent),
	}

	// spec.md §6 marks /health, /ready, and /metrics as Auth: none — liveness
	// probes and Prometheus scraping must work unauthenticated, so only the
	// /events* routes are wrapped in authMiddleware.
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.Handle("GET /events/{id}", authMiddleware(cfg, http.HandlerFunc(s.handleGetEvent)))
	s.mux.Handle("GET /events", authMiddleware(cfg, http.HandlerFunc(s.handleRangeEvents)))
	s.mux.Handle("GET /events/stream", authMiddleware(cfg, http.HandlerFunc(s.handleStream)))

	return s
}

var _ http.Handler = (*Server)(nil)

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ev, err := s.store.Get(id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleRangeEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	startStr := q.Get("start")
	endStr := q.Get("end")
	if startStr == "" || endStr == "" {
		writeError(w, http.StatusBadRequest, "start and end query parameters are required")
		return
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start timestamp")
		return
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end timestamp")
		return
	}

	query := store.Query{Start: start, End: end, Label: q.Get("label")}

	if minMagStr := q.Get("min_magnitude"); minMagStr != "" {
		minMag, err := strconv.ParseFloat(minMagStr, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_magnitude")
			return
		}
		query.MinMagnitude = minMag
	}

	if bbox, set, err := parseBbox(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	} else if set {
		query.Bbox = &bbox
	}

	events, err := s.store.Range(query)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// parseBbox reads min_lat/max_lat/min_lon/max_lon from q. All four must be
// present together, or none at all.
func parseBbox(q url.Values) (domain.BoundingBox, bool, error) {
	keys := []string{"min_lat", "max_lat", "min_lon", "max_lon"}
	present := 0
	for _, k := range keys {
		if q.Get(k) != "" {
			present++
		}
	}
	if present == 0 {
		return domain.BoundingBox{}, false, nil
	}
	if present != len(keys) {
		return domain.BoundingBox{}, false, fmt.Errorf("min_lat, max_lat, min_lon, max_lon must all be set together")
	}

	vals := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, err := strconv.ParseFloat(q.Get(k), 64)
		if err != nil {
			return domain.BoundingBox{}, false, fmt.Errorf("invalid %s", k)
		}
		vals[k] = v
	}
	return domain.BoundingBox{
		MinLat: vals["min_lat"], MaxLat: vals["max_lat"],
		MinLon: vals["min_lon"], MaxLon: vals["max_lon"],
	}, true, nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}

	ch := make(chan domain.ClassifiedEvent, 16)
	s.tailMu.Lock()
	s.tails[conn] = ch
	s.tailMu.Unlock()

	defer func() {
		s.tailMu.Lock()
		delete(s.tails, conn)
		s.tailMu.Unlock()
		close(ch)
		_ = conn.Close()
	}()

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast pushes a newly committed ClassifiedEvent to every connected
// /events/stream subscriber, dropping it for subscribers whose channel is
// full rather than blocking the committing goroutine.
func (s *Server) Broadcast(ev domain.ClassifiedEvent) {
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	for _, ch := range s.tails {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Notify implements alert.Subscriber by broadcasting matched alerts over
// the same WebSocket tail used for classified events.
func (s *Server) Notify(ctx context.Context, a domain.Alert) error {
	s.tailMu.Lock()
	defer s.tailMu.Unlock()
	for conn := range s.tails {
		_ = conn.WriteJSON(a)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAppError(w http.ResponseWriter, err error) {
	writeError(w, apperr.HTTPStatus(apperr.KindOf(err)), err.Error())
}
