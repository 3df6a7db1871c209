// Package associator correlates Confirmed candidates across the detector
// set into the multi-station arrival sets the Locator (C9) needs, since a
// single Detector (C6) only ever sees one channel. Grounded on the
// teacher's in-memory correlation window pattern used elsewhere in this
// transformation for the pipeline orchestrator's sequence-reorder buffer:
// a short-lived, time-bounded lookback map rather than a database join.
package associator

import (
	"sync"
	"time"

	"github.com/seismonet/pipeline/internal/domain"
	"github.com/seismonet/pipeline/internal/locator"
)

// Station is a fixed station position and its vertical-component channel,
// loaded from the locator's station registry file.
type Station struct {
	Code      string
	Channel   domain.ChannelID
	Latitude  float64
	Longitude float64
}

// Associator tracks recent per-station trigger instants so that, when a
// candidate from one station confirms, it can be combined with other
// stations' recent confirmations into a locator.StationArrival set.
type Associator struct {
	window   time.Duration
	stations map[string]Station

	mu      sync.Mutex
	recent  []arrival
}

type arrival struct {
	station string
	at      time.Time
}

// New builds an Associator. window bounds how far apart two stations'
// trigger instants may be to be considered the same physical event.
func New(window time.Duration, stations []Station) *Associator {
	byCode := make(map[string]Station, len(stations))
	for _, s := range stations {
		byCode[s.Code] = s
	}
	return &Associator{window: window, stations: byCode}
}

// Observe records a station's trigger instant and returns the
// locator.StationArrival set for every station (including this one) whose
// trigger instant falls within window of it — the epoch is the earliest
// instant in the group, so ArrivalS values are non-negative offsets.
func (a *Associator) Observe(station string, triggerInstant time.Time) []locator.StationArrival {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := triggerInstant.Add(-a.window)
	kept := a.recent[:0]
	for _, r := range a.recent {
		if r.at.After(cutoff) {
			kept = append(kept, r)
		}
	}
	kept = append(kept, arrival{station: station, at: triggerInstant})
	a.recent = kept

	group := make([]arrival, 0, len(a.recent))
	for _, r := range a.recent {
		if absDuration(r.at.Sub(triggerInstant)) <= a.window {
			group = append(group, r)
		}
	}

	epoch := group[0].at
	for _, r := range group {
		if r.at.Before(epoch) {
			epoch = r.at
		}
	}

	out := make([]locator.StationArrival, 0, len(group))
	for _, r := range group {
		st, ok := a.stations[r.station]
		if !ok {
			continue
		}
		out = append(out, locator.StationArrival{
			Station:   r.station,
			Latitude:  st.Latitude,
			Longitude: st.Longitude,
			ArrivalS:  r.at.Sub(epoch).Seconds(),
		})
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
