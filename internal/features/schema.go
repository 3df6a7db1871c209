package features

// Schema names the ordered list of feature names a FeatureVector's Values
// slice corresponds to, keyed by schema ID so the classifier and magnitude
// estimator can validate compatibility (spec.md C5/C7's SchemaMismatch
// check).
type Schema struct {
	ID    string
	Names []string
}

var registry = map[string]Schema{
	"v1": {
		ID: "v1",
		Names: []string{
			"time.mean", "time.std", "time.skewness", "time.kurtosis",
			"time.peak_amplitude", "time.rms", "time.zero_crossing_rate",
			"time.duration_above_threshold_s",
			"freq.dominant_hz", "freq.centroid_hz", "freq.bandwidth_hz",
			"freq.spectral_rolloff_hz", "freq.spectral_entropy",
			"freq.band_power_ratio_1", "freq.band_power_ratio_2", "freq.band_power_ratio_3",
			"wavelet.energy_d1", "wavelet.energy_d2", "wavelet.energy_d3", "wavelet.energy_d4",
		},
	},
	"v2": {
		ID: "v2",
		Names: []string{
			"time.mean", "time.std", "time.skewness", "time.kurtosis",
			"time.peak_amplitude", "time.rms", "time.zero_crossing_rate",
			"time.duration_above_threshold_s",
			"time.p10", "time.p50", "time.p90",
			"time.autocorr_peak_lag_s", "time.autocorr_peak_value",
			"freq.dominant_hz", "freq.centroid_hz", "freq.bandwidth_hz",
			"freq.spectral_rolloff_hz", "freq.spectral_entropy",
			"freq.band_power_ratio_1", "freq.band_power_ratio_2", "freq.band_power_ratio_3",
			"wavelet.energy_d1", "wavelet.energy_d2", "wavelet.energy_d3", "wavelet.energy_d4",
		},
	},
}

// Lookup returns the named Schema and whether it is registered.
func Lookup(id string) (Schema, bool) {
	s, ok := registry[id]
	return s, ok
}

// Width returns len(Names), the expected FeatureVector.Values length.
func (s Schema) Width() int { return len(s.Names) }
