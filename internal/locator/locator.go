// Package locator estimates a hypocenter from multi-station arrival times
// (spec.md C9): a station-centroid initial guess, refined by a
// coordinate-descent search with a shrinking step that minimizes the
// unweighted RMS travel-time residual, with bootstrap uncertainty,
// grounded on
// _examples/original_source/src/seismic_classifier/advanced_analytics/location_determination.py's
// LocationDeterminer (Nelder-Mead minimize seeded from a station centroid,
// bootstrap resampling for the error ellipse). The Nelder-Mead step is
// replaced with the coordinate descent, both being local descent methods
// over the same residual; no pack example ships a general-purpose
// nonlinear optimizer. There is no coarse lattice scan, and arrivals carry
// no per-pick weights.
package locator

import (
	"math"
	"math/rand"
	"sort"

	"github.com/seismonet/pipeline/internal/apperr"
	"github.com/seismonet/pipeline/internal/domain"
)

const earthRadiusKM = 6371.0

// StationArrival is one station's observed P-wave arrival time, relative to
// an arbitrary shared epoch (e.g. seconds since the trigger instant), and
// its fixed position.
type StationArrival struct {
	Station   string
	Latitude  float64
	Longitude float64
	ArrivalS  float64 // seconds since shared epoch
}

// Config parameterizes the search.
type Config struct {
	MinStations int
	GridStepDeg float64
	MaxIter     int
	EpsKM       float64
	VelocityKMS float64 // constant P-wave velocity assumption
	BootstrapN  int
}

// Locator estimates hypocenters from station arrivals.
type Locator struct {
	cfg Config
	rng *rand.Rand
}

// New builds a Locator. rng may be nil for a default source; bootstrap
// uncertainty doesn't need to be bit-reproducible, only statistically
// stable — inject rng only for deterministic tests.
func New(cfg Config, rng *rand.Rand) *Locator {
	if cfg.VelocityKMS <= 0 {
		cfg.VelocityKMS = 6.0
	}
	if cfg.BootstrapN <= 0 {
		cfg.BootstrapN = 100
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Locator{cfg: cfg, rng: rng}
}

// Locate estimates a hypocenter from a set of station arrivals.
func (l *Locator) Locate(arrivals []StationArrival) (domain.Location, error) {
	if len(arrivals) < l.cfg.MinStations {
		return domain.Location{}, apperr.New(apperr.Validation, "insufficient stations for location")
	}

	guess := centroidGuess(arrivals)
	depth := 10.0

	lat, lon, depth, rms, converged := l.refine(arrivals, guess.lat, guess.lon, depth)
	if !converged {
		return domain.Location{}, apperr.New(apperr.Internal, "location inversion did not converge")
	}

	horizErr, depthErr := l.bootstrapUncertainty(arrivals, lat, lon, depth)

	stations := make([]string, 0, len(arrivals))
	for _, a := range arrivals {
		stations = append(stations, a.Station)
	}
	sort.Strings(stations)

	return domain.Location{
		Hypocenter:      domain.Hypocenter{Latitude: lat, Longitude: lon, DepthKM: depth},
		HorizontalErrKM: horizErr,
		DepthErrKM:      depthErr,
		RMSResidualS:    rms,
		StationsUsed:    stations,
	}, nil
}

type point struct{ lat, lon float64 }

// centroidGuess seeds the search at the station centroid, matching the
// original pipeline's initial-guess heuristic.
func centroidGuess(arrivals []StationArrival) point {
	var sumLat, sumLon float64
	for _, a := range arrivals {
		sumLat += a.Latitude
		sumLon += a.Longitude
	}
	n := float64(len(arrivals))
	return point{lat: sumLat / n, lon: sumLon / n}
}

// refine performs a coordinate-descent grid search around guess, shrinking
// step size each pass, minimizing the RMS travel-time residual — a
// deterministic, dependency-free stand-in for Nelder-Mead simplex descent.
func (l *Locator) refine(arrivals []StationArrival, lat, lon, depth float64) (outLat, outLon, outDepth, rms float64, converged bool) {
	step := l.cfg.GridStepDeg
	if step <= 0 {
		step = 0.5
	}
	depthStep := 20.0

	best := rmsResidual(arrivals, lat, lon, depth, l.cfg.VelocityKMS)
	maxIter := l.cfg.MaxIter
	if maxIter <= 0 {
		maxIter = 50
	}

	for iter := 0; iter < maxIter; iter++ {
		improved := false
		for _, d := range []struct{ dLat, dLon, dDepth float64 }{
			{step, 0, 0}, {-step, 0, 0},
			{0, step, 0}, {0, -step, 0},
			{0, 0, depthStep}, {0, 0, -depthStep},
		} {
			cLat, cLon, cDepth := lat+d.dLat, lon+d.dLon, math.Max(0, depth+d.dDepth)
			r := rmsResidual(arrivals, cLat, cLon, cDepth, l.cfg.VelocityKMS)
			if r < best {
				best, lat, lon, depth = r, cLat, cLon, cDepth
				improved = true
			}
		}
		if !improved {
			step /= 2
			depthStep /= 2
			if step < l.cfg.EpsKM/111.0 {
				return lat, lon, depth, best, true
			}
		}
	}
	return lat, lon, depth, best, best < math.Inf(1)
}

// rmsResidual computes the RMS travel-time residual for a candidate
// hypocenter against observed arrivals, after removing the best-fit origin
// time offset (so only relative arrival patterns matter).
func rmsResidual(arrivals []StationArrival, lat, lon, depth, velocityKMS float64) float64 {
	predicted := make([]float64, len(arrivals))
	for i, a := range arrivals {
		distKM := haversineKM(lat, lon, a.Latitude, a.Longitude)
		slantKM := math.Hypot(distKM, depth)
		predicted[i] = slantKM / velocityKMS
	}

	var sumResidual float64
	for i, a := range arrivals {
		sumResidual += a.ArrivalS - predicted[i]
	}
	originOffset := sumResidual / float64(len(arrivals))

	var sumSq float64
	for i, a := range arrivals {
		residual := a.ArrivalS - predicted[i] - originOffset
		sumSq += residual * residual
	}
	return math.Sqrt(sumSq / float64(len(arrivals)))
}

func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKM * c
}

// bootstrapUncertainty estimates horizontal and depth error by resampling
// stations with replacement and re-locating, reporting the resulting
// standard deviation of each coordinate in kilometers.
func (l *Locator) bootstrapUncertainty(arrivals []StationArrival, lat, lon, depth float64) (horizKM, depthKM float64) {
	if len(arrivals) < 2 {
		return 0, 0
	}
	lats := make([]float64, l.cfg.BootstrapN)
	lons := make([]float64, l.cfg.BootstrapN)
	depths := make([]float64, l.cfg.BootstrapN)

	for i := 0; i < l.cfg.BootstrapN; i++ {
		resampled := make([]StationArrival, len(arrivals))
		for j := range resampled {
			resampled[j] = arrivals[l.rng.Intn(len(arrivals))]
		}
		rLat, rLon, rDepth, _, ok := l.refine(resampled, lat, lon, depth)
		if !ok {
			rLat, rLon, rDepth = lat, lon, depth
		}
		lats[i], lons[i], depths[i] = rLat, rLon, rDepth
	}

	latStdDeg := stddev(lats)
	lonStdDeg := stddev(lons)
	horizKM = math.Hypot(latStdDeg, lonStdDeg) * 111.0
	depthKM = stddev(depths)
	return horizKM, depthKM
}

func stddev(values []float64) float64 {
	n := float64(len(values))
	if n == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / n)
}
