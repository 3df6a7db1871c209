// Command validate runs a waveform-segment or catalog-event fixture file
// through the ingest Validator (C3) and prints an accept/reject line per
// record, for CI and for operators debugging a suspect upstream feed.
// Adapted from the teacher's cmd/validate, which ran a fixed four-phase
// integrity check across CSV/JSON storm-report fixtures; here a single
// fixture is checked against one validation gate instead.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/validator"
)

// wireSegment mirrors the waveform service's JSON wire format
// (internal/waveformclient), so a captured live response can be fed
// straight into this CLI without reshaping it.
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

// wireCatalogEvent mirrors the catalog service's USGS-shaped GeoJSON
// feature (internal/catalogclient), flattened for fixture readability.
type wireCatalogEvent struct {
	ID           string  `json:"id"`
	OriginTime   int64   `json:"origin_time_epoch_ms"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	DepthKM      float64 `json:"depth_km"`
	Magnitude    float64 `json:"magnitude"`
	Scale        string  `json:"scale"`
	SourceAgency string  `json:"source_agency"`
}

func main() {
	kind := flag.String("kind", "segments", "fixture kind: \"segments\" or \"events\"")
	path := flag.String("file", "", "path to the fixture JSON file (array of records)")
	flag.Parse()

	if *path == "" {
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*kind, *path); err != nil {
		fmt.Fprintln(os.Stderr, "FATAL:", err)
		os.Exit(1)
	}
}

func run(kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}

	v := validator.New(validator.DefaultLimits())

	switch kind {
	case "segments":
		return validateSegments(v, data)
	case "events":
		return validateEvents(v, data)
	default:
		return fmt.Errorf("unknown -kind %q (want \"segments\" or \"events\")", kind)
	}
}

func validateSegments(v *validator.Validator, data []byte) error {
	var wires []wireSegment
	if err := json.Unmarshal(data, &wires); err != nil {
		return fmt.Errorf("parse segments fixture: %w", err)
	}

	rejected := 0
	for i, w := range wires {
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

		if err := v.ValidateSegment(seg); err != nil {
			rejected++
			fmt.Printf("[%d] REJECT %s: %v\n", i, seg.Channel, err)
			continue
		}
		fmt.Printf("[%d] ACCEPT %s\n", i, seg.Channel)
	}

	fmt.Printf("\n%d accepted, %d rejected of %d segments\n", len(wires)-rejected, rejected, len(wires))
	if rejected > 0 {
		os.Exit(1)
	}
	return nil
}

func validateEvents(v *validator.Validator, data []byte) error {
	var wires []wireCatalogEvent
	if err := json.Unmarshal(data, &wires); err != nil {
		return fmt.Errorf("parse events fixture: %w", err)
	}

	rejected := 0
	for i, w := range wires {
		ev := domain.CatalogEvent{
			ID:         w.ID,
			OriginTime: time.UnixMilli(w.OriginTime).UTC(),
			Hypocenter: domain.Hypocenter{Latitude: w.Latitude, Longitude: w.Longitude, DepthKM: w.DepthKM},
			Magnitude:  w.Magnitude,
			Scale:      domain.MagnitudeScale(w.Scale),
			SourceAgency: w.SourceAgency,
		}

		if err := v.ValidateCatalogEvent(ev); err != nil {
			rejected++
			fmt.Printf("[%d] REJECT %s: %v\n", i, ev.ID, err)
			continue
		}
		fmt.Printf("[%d] ACCEPT %s\n", i, ev.ID)
	}

	fmt.Printf("\n%d accepted, %d rejected of %d events\n", len(wires)-rejected, rejected, len(wires))
	if rejected > 0 {
		os.Exit(1)
	}
	return nil
}
