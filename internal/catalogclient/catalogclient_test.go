package catalogclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/resilience"
)

func newTestCaller() *resilience.Caller {
	return resilience.New(resilience.Config{
		Name:             "catalog",
		RateLimitRPS:     1000,
		Burst:            1000,
		Timeout:          time.Second,
		RetryMax:         1,
		RetryBackoff:     time.Millisecond,
		BreakerThreshold: 5,
		BreakerCoolDown:  time.Second,
		Clock:            clockwork.NewFakeClock(),
	}, nil)
}

func TestFetchWindow_ParsesGeoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [
				{
					"id": "us7000abcd",
					"geometry": {"coordinates": [-122.4, 37.7, 10.5]},
					"properties": {"mag": 4.2, "magType": "Mw", "time": 1700000000000, "net": "us"}
				}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	events, err := c.FetchWindow(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "us7000abcd", e.ID)
	assert.Equal(t, 37.7, e.Hypocenter.Latitude)
	assert.Equal(t, -122.4, e.Hypocenter.Longitude)
	assert.Equal(t, 10.5, e.Hypocenter.DepthKM)
	assert.Equal(t, 4.2, e.Magnitude)
	assert.Equal(t, "Mw", string(e.Scale))
	assert.Equal(t, "us", e.SourceAgency)
}

func TestFetchWindow_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	_, err := c.FetchWindow(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unavailable))
}

func TestFetchEvents_DedupsAndSortsByOriginTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"features": [
				{"id": "us2", "geometry": {"coordinates": [-122.4, 37.7, 10.5]}, "properties": {"mag": 4.2, "magType": "Mw", "time": 1700000020000, "net": "us"}},
				{"id": "us1", "geometry": {"coordinates": [-122.4, 37.7, 10.5]}, "properties": {"mag": 4.2, "magType": "Mw", "time": 1700000010000, "net": "us"}},
				{"id": "us1", "geometry": {"coordinates": [-122.4, 37.7, 10.5]}, "properties": {"mag": 4.2, "magType": "Mw", "time": 1700000010000, "net": "us"}}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	events, err := c.FetchEvents(context.Background(), Query{Start: time.Now().Add(-time.Hour), End: time.Now()})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "us1", events[0].ID)
	assert.Equal(t, "us2", events[1].ID)
}

func TestFetchEvent_NotFoundIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	_, err := c.FetchEvent(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestFetchWindow_MalformedBodyIsSchemaMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	_, err := c.FetchWindow(context.Background(), time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.SchemaMismatch))
}
