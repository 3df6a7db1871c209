package waveformclient

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
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/resilience"
)

func newTestCaller() *resilience.Caller {
	return resilience.New(resilience.Config{
		Name: "waveform", RateLimitRPS: 1000, Burst: 1000, Timeout: time.Second,
		RetryMax: 1, RetryBackoff: time.Millisecond,
		BreakerThreshold: 5, BreakerCoolDown: time.Second,
		Clock: clockwork.NewFakeClock(),
	}, nil)
}

func TestFetchSegment_ParsesWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"network": "NC", "station": "PFO", "location": "00", "channel": "HHZ",
			"start": "2026-01-01T00:00:00Z", "rate_hz": 100,
			"samples": [0.1, 0.2, 0.3],
			"gaps": [{"start": "2026-01-01T00:00:01Z", "end": "2026-01-01T00:00:01.5Z"}],
			"quality": "good"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	seg, err := c.FetchSegment(context.Background(),
		domain.ChannelID{Network: "NC", Station: "PFO", Location: "00", Channel: "HHZ"},
		time.Now(), time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "NC.PFO.00.HHZ", seg.Channel.String())
	assert.Equal(t, 100.0, seg.Rate)
	assert.Len(t, seg.Samples, 3)
	assert.Len(t, seg.Gaps, 1)
	assert.Equal(t, domain.QualityGood, seg.Quality)
}

func TestFetchSegment_NotFoundIsValidationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client(), newTestCaller())
	_, err := c.FetchSegment(context.Background(), domain.ChannelID{}, time.Now(), time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Validation))
}
