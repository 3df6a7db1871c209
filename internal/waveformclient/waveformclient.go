// Package waveformclient implements the resilient client for the waveform
// data center (spec.md C2): it fetches Segments for a channel/time window
// over the same resilience stack as catalogclient (C1), wrapping a JSON
// wire format rather than a binary miniSEED one, since no example repo in
// the pack carries a miniSEED codec.
package waveformclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/resilience"
)

// Client fetches waveform Segments from an upstream data center service.
type Client struct {
	baseURL string
	http    *http.Client
	caller  *resilience.Caller
}

// New builds a Client.
func New(baseURL string, httpClient *http.Client, caller *resilience.Caller) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, caller: caller}
}

type wireSegment struct {
	Network  string    `json:"network"`
	Station  string    `json:"station"`
	Location string    `json:"location"`
	Channel  string    `json:"channel"`
	Start    time.Time `json:"start"`
	RateHz   float64   `json:"rate_hz"`
	Samples  []float64 `json:"samples"`
	Gaps     []struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"gaps"`
	Quality string `json:"quality"`
}

// FetchSegment retrieves the waveform segment for ch covering [start, end].
func (c *Client) FetchSegment(ctx context.Context, ch domain.ChannelID, start, end time.Time) (domain.Segment, error) {
	cacheKey := ch.String() + "|" + start.UTC().Format(time.RFC3339) + "|" + end.UTC().Format(time.RFC3339)

	v, err := c.caller.Do(ctx, cacheKey, func(ctx context.Context) (any, error) {
		return c.fetch(ctx, ch, start, end)
	})
	if err != nil {
		return domain.Segment{}, err
	}
	return v.(domain.Segment), nil
}

func (c *Client) fetch(ctx context.Context, ch domain.ChannelID, start, end time.Time) (domain.Segment, error) {
	url := fmt.Sprintf("%s/segment?net=%s&sta=%s&loc=%s&cha=%s&start=%s&end=%s",
		c.baseURL, ch.Network, ch.Station, ch.Location, ch.Channel,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.Segment{}, apperr.Wrap(apperr.Internal, "build waveform request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Segment{}, apperr.Wrap(apperr.Transient, "waveform request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Segment{}, apperr.Wrap(apperr.Transient, "read waveform response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.Segment{}, apperr.New(apperr.RateLimited, "waveform service rate limited us")
	case resp.StatusCode == http.StatusNotFound:
		return domain.Segment{}, apperr.New(apperr.Validation, "no data for requested channel/window")
	case resp.StatusCode >= 500:
		return domain.Segment{}, apperr.New(apperr.Unavailable, "waveform service unavailable")
	case resp.StatusCode >= 400:
		return domain.Segment{}, apperr.New(apperr.Validation, "waveform request rejected: "+string(body))
	}

	var w wireSegment
	if err := json.Unmarshal(body, &w); err != nil {
		return domain.Segment{}, apperr.Wrap(apperr.SchemaMismatch, "waveform response malformed", err)
	}

	seg := domain.Segment{
		Channel: domain.ChannelID{Network: w.Network, Station: w.Station, Location: w.Location, Channel: w.Channel},
		Start:   w.Start,
		Rate:    w.RateHz,
		Samples: w.Samples,
		Quality: domain.QualityFlag(w.Quality),
	}
	for _, g := range w.Gaps {
		seg.Gaps = append(seg.Gaps, domain.Interval{Start: g.Start, End: g.End})
	}
	if seg.Quality == "" {
		seg.Quality = domain.QualityUnknown
	}
	return seg, nil
}
