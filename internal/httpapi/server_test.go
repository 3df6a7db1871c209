package httpapi

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/config"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/store"
)

type fakeStore struct {
	events map[string]domain.ClassifiedEvent
}

func (f *fakeStore) Get(id string) (domain.ClassifiedEvent, error) {
	ev, ok := f.events[id]
	if !ok {
		return domain.ClassifiedEvent{}, apperr.New(apperr.Validation, "not found")
	}
	return ev, nil
}

func (f *fakeStore) Range(q store.Query) ([]domain.ClassifiedEvent, error) {
	var out []domain.ClassifiedEvent
	for _, ev := range f.events {
		out = append(out, ev)
	}
	return out, nil
}

func testServer(hmacKey string) *Server {
	s := &fakeStore{events: map[string]domain.ClassifiedEvent{
		"evt-1": {ID: "evt-1", Classification: domain.ClassificationResult{Label: "earthquake"}},
	}}
	cfg := config.AuthConfig{HMACKey: hmacKey}
	return NewServer(cfg, slog.Default(), s, func() bool { return true })
}

func TestServer_HealthReadyMetricsBypassAuth(t *testing.T) {
	srv := testServer("secret-key")

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusUnauthorized, rec.Code, "path %s must not require auth", path)
	}
}

func TestServer_EventsRequireAuthWhenHMACKeySet(t *testing.T) {
	srv := testServer("secret-key")

	req := httptest.NewRequest(http.MethodGet, "/events/evt-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_EventsUnauthenticatedWhenNoHMACKeyConfigured(t *testing.T) {
	srv := testServer("")

	req := httptest.NewRequest(http.MethodGet, "/events/evt-1", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RangeEventsParsesBboxAndMagnitudeFilters(t *testing.T) {
	srv := testServer("")

	now := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/events?start="+now.Add(-time.Hour).Format(time.RFC3339)+
		"&end="+now.Format(time.RFC3339)+"&min_magnitude=3.0&min_lat=30&max_lat=40&min_lon=-120&max_lon=-110", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RangeEventsRejectsPartialBbox(t *testing.T) {
	srv := testServer("")

	now := time.Now()
	req := httptest.NewRequest(http.MethodGet, "/events?start="+now.Add(-time.Hour).Format(time.RFC3339)+
		"&end="+now.Format(time.RFC3339)+"&min_lat=30", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
