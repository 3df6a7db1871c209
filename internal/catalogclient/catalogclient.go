// Package catalogclient implements the resilient client for the external
// authoritative event catalog (spec.md C1), grounded on the teacher's HTTP
// adapter: a rate-limited, cached, circuit-broken, retrying GET wrapped
// around net/http, now fetching USGS-shaped GeoJSON catalog events instead
// of weather report pages.
package catalogclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/resilience"
)

// Client fetches CatalogEvents near a time window from an upstream catalog
// service speaking the USGS GeoJSON feed format.
type Client struct {
	baseURL string
	http    *http.Client
	caller  *resilience.Caller
}

// New builds a Client. httpClient may be a *http.Client configured with a
// custom Transport for testing (httptest.Server).
func New(baseURL string, httpClient *http.Client, caller *resilience.Caller) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, caller: caller}
}

// geoJSONFeed is the subset of the USGS GeoJSON feed schema this client
// consumes.
type geoJSONFeed struct {
	Features []geoJSONFeature `json:"features"`
}

type geoJSONFeature struct {
	ID         string  `json:"id"`
	Geometry   struct {
		Coordinates [3]float64 `json:"coordinates"` // lon, lat, depth
	} `json:"geometry"`
	Properties struct {
		Mag    float64 `json:"mag"`
		MagType string `json:"magType"`
		Time   int64   `json:"time"` // epoch millis
		Net    string  `json:"net"`
	} `json:"properties"`
}

// Query parameterizes FetchEvents per spec.md §4.1's
// fetchEvents(timeRange, bbox?, minMagnitude?). Start/End are required;
// Bbox (nil) and MinMagnitude (zero) each disable their filter.
type Query struct {
	Start        time.Time
	End          time.Time
	Bbox         *domain.BoundingBox
	MinMagnitude float64
}

// FetchWindow retrieves catalog events with origin times in [start, end],
// with no additional filters. A thin convenience wrapper around
// FetchEvents for callers (like the periodic backfill) that don't need
// bbox/magnitude filtering.
func (c *Client) FetchWindow(ctx context.Context, start, end time.Time) ([]domain.CatalogEvent, error) {
	return c.FetchEvents(ctx, Query{Start: start, End: end})
}

// FetchEvents retrieves catalog events matching q, deduplicated by ID and
// ordered by origin time ascending.
func (c *Client) FetchEvents(ctx context.Context, q Query) ([]domain.CatalogEvent, error) {
	cacheKey := fmt.Sprintf("%d-%d-%s-%g", q.Start.Unix(), q.End.Unix(), bboxCacheKey(q.Bbox), q.MinMagnitude)

	v, err := c.caller.Do(ctx, cacheKey, func(ctx context.Context) (any, error) {
		return c.fetch(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.CatalogEvent), nil
}

func bboxCacheKey(b *domain.BoundingBox) string {
	if b == nil {
		return "-"
	}
	return fmt.Sprintf("%g,%g,%g,%g", b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
}

// FetchEvent retrieves a single catalog event by its upstream ID, or an
// apperr.Validation error if the catalog has no such event.
func (c *Client) FetchEvent(ctx context.Context, id string) (domain.CatalogEvent, error) {
	cacheKey := "event:" + id

	v, err := c.caller.Do(ctx, cacheKey, func(ctx context.Context) (any, error) {
		return c.fetchOne(ctx, id)
	})
	if err != nil {
		return domain.CatalogEvent{}, err
	}
	return v.(domain.CatalogEvent), nil
}

func (c *Client) fetchOne(ctx context.Context, id string) (domain.CatalogEvent, error) {
	reqURL := fmt.Sprintf("%s/query?eventid=%s&format=geojson", c.baseURL, url.QueryEscape(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.CatalogEvent{}, apperr.Wrap(apperr.Internal, "build catalog request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.CatalogEvent{}, apperr.Wrap(apperr.Transient, "catalog request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.CatalogEvent{}, apperr.Wrap(apperr.Transient, "read catalog response", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.CatalogEvent{}, apperr.New(apperr.Validation, "no such catalog event: "+id)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.CatalogEvent{}, apperr.New(apperr.RateLimited, "catalog service rate limited us")
	case resp.StatusCode >= 500:
		return domain.CatalogEvent{}, apperr.New(apperr.Unavailable, "catalog service unavailable")
	case resp.StatusCode >= 400:
		return domain.CatalogEvent{}, apperr.New(apperr.Validation, "catalog request rejected: "+string(body))
	}

	var f geoJSONFeature
	if err := json.Unmarshal(body, &f); err != nil {
		return domain.CatalogEvent{}, apperr.Wrap(apperr.SchemaMismatch, "catalog response not valid GeoJSON", err)
	}
	return toCatalogEvent(f), nil
}

func (c *Client) fetch(ctx context.Context, q Query) ([]domain.CatalogEvent, error) {
	reqURL := fmt.Sprintf("%s/query?starttime=%s&endtime=%s&format=geojson",
		c.baseURL, q.Start.UTC().Format(time.RFC3339), q.End.UTC().Format(time.RFC3339))
	if q.Bbox != nil {
		reqURL += fmt.Sprintf("&minlatitude=%g&maxlatitude=%g&minlongitude=%g&maxlongitude=%g",
			q.Bbox.MinLat, q.Bbox.MaxLat, q.Bbox.MinLon, q.Bbox.MaxLon)
	}
	if q.MinMagnitude != 0 {
		reqURL += "&minmagnitude=" + strconv.FormatFloat(q.MinMagnitude, 'g', -1, 64)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "build catalog request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "catalog request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "read catalog response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, apperr.New(apperr.RateLimited, "catalog service rate limited us")
	case resp.StatusCode >= 500:
		return nil, apperr.New(apperr.Unavailable, "catalog service unavailable")
	case resp.StatusCode >= 400:
		return nil, apperr.New(apperr.Validation, "catalog request rejected: "+string(body))
	}

	var feed geoJSONFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, apperr.Wrap(apperr.SchemaMismatch, "catalog response not valid GeoJSON", err)
	}

	seen := make(map[string]bool, len(feed.Features))
	events := make([]domain.CatalogEvent, 0, len(feed.Features))
	for _, f := range feed.Features {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		events = append(events, toCatalogEvent(f))
	}
	sort.Slice(events, func(i, j int) bool { return events[i].OriginTime.Before(events[j].OriginTime) })
	return events, nil
}

func toCatalogEvent(f geoJSONFeature) domain.CatalogEvent {
	scale := domain.MagnitudeScale(f.Properties.MagType)
	if !domain.KnownScale(scale) {
		scale = domain.MagnitudeScale("")
	}
	return domain.CatalogEvent{
		ID:         f.ID,
		OriginTime: time.UnixMilli(f.Properties.Time).UTC(),
		Hypocenter: domain.Hypocenter{
			Latitude:  f.Geometry.Coordinates[1],
			Longitude: f.Geometry.Coordinates[0],
			DepthKM:   f.Geometry.Coordinates[2],
		},
		Magnitude:    f.Properties.Mag,
		Scale:        scale,
		SourceAgency: f.Properties.Net,
		RawPayload:   nil,
	}
}
