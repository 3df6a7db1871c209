// Command genmock runs a local HTTP listener that speaks the waveform data
// center's wire format (internal/waveformclient), synthesizing one of
// spec.md §8's literal end-to-end scenarios (clean earthquake, sub-threshold
// blip, back-pressured surge) instead of serving real station data. Point
// WAVEFORM_URL at it to exercise cmd/pipeline end to end without a live data
// center. Adapted from the teacher's cmd/genmock, which read NOAA SPC CSVs
// through the ETL domain package to produce fixture files; here the
// generator runs live behind an HTTP handler instead of writing files,
// since the new domain's fixtures are continuous waveforms, not discrete
// CSV rows.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"time"
)

type scenario struct {
	name string
	// valueAt returns the signal value (noise + any injected transient) at
	// elapsed seconds since the scenario's t0.
	valueAt func(elapsedS float64) float64
}

var scenarios = map[string]scenario{
	"clean-earthquake": {
		name: "clean-earthquake",
		valueAt: func(t float64) float64 {
			return burstAt(t, 60, 5, 5.0, 20)
		},
	},
	"sub-threshold-blip": {
		name: "sub-threshold-blip",
		valueAt: func(t float64) float64 {
			return burstAt(t, 60, 0.2, 8.0, 20)
		},
	},
	"back-pressured-surge": {
		name: "back-pressured-surge",
		valueAt: func(t float64) float64 {
			const period = 0.5
			const burstDur = 0.1
			local := math.Mod(t, period)
			if local < 0 {
				local += period
			}
			if local >= burstDur {
				return 0
			}
			return 20 * math.Sin(2*math.Pi*6.0*local)
		},
	},
}

// burstAt adds a windowed sinusoid of the given frequency and amplitude,
// centered at centerS and lasting durationS, to whatever noise is added
// separately by the caller.
func burstAt(t, centerS, durationS, freqHz, amplitude float64) float64 {
	half := durationS / 2
	start := centerS - half
	end := centerS + half
	if t < start || t >= end {
		return 0
	}
	local := t - start
	// Hann taper so the burst's onset/offset don't look like a step.
	taper := 0.5 * (1 - math.Cos(2*math.Pi*local/durationS))
	return amplitude * taper * math.Sin(2*math.Pi*freqHz*local)
}

func main() {
	addr := flag.String("addr", ":9090", "address to listen on, serving the waveform service's GET /segment endpoint")
	scenarioName := flag.String("scenario", "clean-earthquake", "scenario to synthesize: clean-earthquake, sub-threshold-blip, back-pressured-surge")
	rateHz := flag.Float64("rate", 100.0, "sample rate in Hz")
	network := flag.String("network", "XX", "default FDSN network code used when a request omits one")
	station := flag.String("station", "MOCK1", "default station code used when a request omits one")
	location := flag.String("location", "00", "default location code used when a request omits one")
	channel := flag.String("channel", "HHZ", "default channel code used when a request omits one")
	flag.Parse()

	sc, ok := scenarios[*scenarioName]
	if !ok {
		log.Fatalf("unknown -scenario %q (want one of clean-earthquake, sub-threshold-blip, back-pressured-surge)", *scenarioName)
	}

	srv := &mockServer{
		scenario: sc,
		rate:     *rateHz,
		t0:       time.Now().UTC(),
		defaults: defaultChannel{network: *network, station: *station, location: *location, channel: *channel},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /segment", srv.handleSegment)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Printf("genmock serving scenario %q at %s (rate=%gHz, t0=%s)", sc.name, *addr, *rateHz, srv.t0.Format(time.RFC3339))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal(err)
	}
}

type defaultChannel struct {
	network, station, location, channel string
}

type mockServer struct {
	scenario scenario
	rate     float64
	t0       time.Time
	defaults defaultChannel
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

func (s *mockServer) handleSegment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := time.Parse(time.RFC3339, q.Get("start"))
	if err != nil {
		http.Error(w, fmt.Sprintf("bad start: %v", err), http.StatusBadRequest)
		return
	}
	end, err := time.Parse(time.RFC3339, q.Get("end"))
	if err != nil {
		http.Error(w, fmt.Sprintf("bad end: %v", err), http.StatusBadRequest)
		return
	}
	if !end.After(start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}

	n := int(end.Sub(start).Seconds() * s.rate)
	samples := make([]float64, n)
	dt := time.Duration(float64(time.Second) / s.rate)
	t := start
	for i := 0; i < n; i++ {
		elapsed := t.Sub(s.t0).Seconds()
		samples[i] = gaussianAt(indexFor(t, s.rate)) + s.scenario.valueAt(elapsed)
		t = t.Add(dt)
	}

	resp := wireSegment{
		Network:  valueOr(q.Get("net"), s.defaults.network),
		Station:  valueOr(q.Get("sta"), s.defaults.station),
		Location: valueOr(q.Get("loc"), s.defaults.location),
		Channel:  valueOr(q.Get("cha"), s.defaults.channel),
		Start:    start,
		RateHz:   s.rate,
		Samples:  samples,
		Quality:  "good",
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// indexFor maps an absolute instant to a stable integer sample index so
// repeated, overlapping fetches of the same instant reproduce the same
// noise value.
func indexFor(t time.Time, rate float64) int64 {
	return int64(math.Round(float64(t.UnixNano()) / 1e9 * rate))
}

// gaussianAt deterministically derives a unit-normal pseudo-random value
// from a sample index via a splitmix64 hash feeding a Box-Muller transform,
// so the same index always yields the same noise sample without needing a
// stateful PRNG shared across requests.
func gaussianAt(index int64) float64 {
	u1 := uniformFrom(splitmix64(uint64(index)))
	u2 := uniformFrom(splitmix64(uint64(index) ^ 0x9E3779B97F4A7C15))
	if u1 < 1e-12 {
		u1 = 1e-12
	}
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

func uniformFrom(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}
