// Package config loads the pipeline's configuration surface from
// environment variables (scalar keys) and a YAML rules file (the
// list-shaped parts: alert rules), following the teacher's
// environment-variable Load() pattern generalized with gopkg.in/yaml.v3 for
// the parts that don't fit flat env vars. The teacher's private
// storm-data-shared env-helper module is not fetchable outside its origin
// org, so its helpers are folded directly into this package rather than
// imported.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig holds the rate-limit, retry, and breaker settings shared by
// the Catalog and Waveform clients (spec.md §6's catalog.*/waveform.* keys).
type ClientConfig struct {
	BaseURL           string
	RateLimitRPS      float64
	Burst             int
	Timeout           time.Duration
	RetryMax          int
	RetryBackoff      time.Duration
	BreakerThreshold  int
	BreakerCoolDown   time.Duration
	CacheTTL          time.Duration
	CacheMaxEntries   int
}

// DetectorConfig holds the STA/LTA trigger parameters (spec.md §4.6).
type DetectorConfig struct {
	STA        time.Duration
	LTA        time.Duration
	ROn        float64
	ROff       float64
	DMin       time.Duration
	DMax       time.Duration
	PreRoll    time.Duration
	PostRoll   time.Duration
	Refractory time.Duration
}

// ProcessorConfig holds the Signal Processor's bandpass and resample
// settings. TargetRateHz of zero disables resampling (segments are
// conditioned at their native rate).
type ProcessorConfig struct {
	BandpassLowHz  float64
	BandpassHighHz float64
	BandpassOrder  int
	TaperFraction  float64
	TargetRateHz   float64
	AllowUpsample  bool
}

// FeaturesConfig holds the Feature Extractor's schema selection.
type FeaturesConfig struct {
	SchemaID      string
	Bands         [][2]float64
	Wavelet       string
	WaveletLevels int
}

// ModelConfig locates the classifier/magnitude artifact.
type ModelConfig struct {
	Path             string
	ExpectedSchemaID string
}

// LocatorConfig holds the multi-station inversion's search parameters.
type LocatorConfig struct {
	MinStations  int
	GridStepDeg  float64
	MaxIter      int
	EpsKM        float64
	StationsFile string
}

// PipelineConfig holds the orchestrator's concurrency knobs.
type PipelineConfig struct {
	QueueCapacity int
	ReorderWindow time.Duration
	WorkerCount   int
}

// AlertRule is one entry of alerts.rules: a predicate expression, the level
// it raises, and a Go template for the dedup key.
type AlertRule struct {
	Predicate     string `yaml:"predicate"`
	Level         string `yaml:"level"`
	DedupTemplate string `yaml:"dedup_template"`
}

// AlertsConfig holds the Alert Dispatcher's rule set and rate limits.
type AlertsConfig struct {
	Rules            []AlertRule
	DedupWindow      time.Duration
	PerSubscriberRPS float64
}

// StoreConfig holds the Event Store's durability settings.
type StoreConfig struct {
	Dir   string
	Fsync string // "per_write" or "periodic"
}

// AuthConfig holds the public HTTP API's bearer-JWT validation settings.
type AuthConfig struct {
	Issuer   string
	Audience string
	HMACKey  string
}

// Config is the fully parsed configuration surface from spec.md §6.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	Catalog   ClientConfig
	Waveform  ClientConfig
	Detector  DetectorConfig
	Processor ProcessorConfig
	Features  FeaturesConfig
	Model     ModelConfig
	Locator   LocatorConfig
	Pipeline  PipelineConfig
	Alerts    AlertsConfig
	Store     StoreConfig
	Auth      AuthConfig

	KafkaBrokers   []string
	KafkaSinkTopic string

	RulesFile string
}

// Load reads configuration from environment variables, applying defaults
// where unset, then loads the YAML rules file if one is configured.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	if shutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "seismic-classified-events"),

		RulesFile: os.Getenv("ALERTS_RULES_FILE"),
	}

	cfg.Catalog, err = loadClientConfig("CATALOG")
	if err != nil {
		return nil, err
	}
	cfg.Waveform, err = loadClientConfig("WAVEFORM")
	if err != nil {
		return nil, err
	}

	cfg.Detector, err = loadDetectorConfig()
	if err != nil {
		return nil, err
	}

	cfg.Processor = ProcessorConfig{
		BandpassLowHz:  envFloat("PROCESSOR_BANDPASS_LOW_HZ", 1.0),
		BandpassHighHz: envFloat("PROCESSOR_BANDPASS_HIGH_HZ", 20.0),
		BandpassOrder:  envInt("PROCESSOR_BANDPASS_ORDER", 4),
		TaperFraction:  envFloat("PROCESSOR_TAPER_FRACTION", 0.05),
		TargetRateHz:   envFloat("PROCESSOR_TARGET_RATE_HZ", 0),
		AllowUpsample:  envBool("PROCESSOR_ALLOW_UPSAMPLE", false),
	}

	cfg.Features = FeaturesConfig{
		SchemaID:      envOrDefault("FEATURES_SCHEMA_ID", "v1"),
		Bands:         [][2]float64{{1, 3}, {3, 10}, {10, 20}},
		Wavelet:       envOrDefault("FEATURES_WAVELET", "db4"),
		WaveletLevels: envInt("FEATURES_WAVELET_LEVELS", 4),
	}

	cfg.Model = ModelConfig{
		Path:             envOrDefault("MODEL_PATH", ""),
		ExpectedSchemaID: envOrDefault("MODEL_EXPECTED_SCHEMA_ID", cfg.Features.SchemaID),
	}

	cfg.Locator = LocatorConfig{
		MinStations:  envInt("LOCATOR_MIN_STATIONS", 4),
		GridStepDeg:  envFloat("LOCATOR_GRID_STEP_DEG", 0.5),
		MaxIter:      envInt("LOCATOR_MAX_ITER", 50),
		EpsKM:        envFloat("LOCATOR_EPS_KM", 0.1),
		StationsFile: os.Getenv("LOCATOR_STATIONS_FILE"),
	}
	if cfg.Locator.MinStations < 4 {
		return nil, errors.New("LOCATOR_MIN_STATIONS must be at least 4")
	}

	queueCapacity := envInt("PIPELINE_QUEUE_CAPACITY", 256)
	if queueCapacity <= 0 {
		return nil, errors.New("PIPELINE_QUEUE_CAPACITY must be positive")
	}
	workerCount := envInt("PIPELINE_WORKER_COUNT", 4)
	if workerCount <= 0 {
		return nil, errors.New("PIPELINE_WORKER_COUNT must be positive")
	}
	reorderWindow, err := parseDurationEnv("PIPELINE_REORDER_WINDOW", "5s")
	if err != nil {
		return nil, err
	}
	cfg.Pipeline = PipelineConfig{
		QueueCapacity: queueCapacity,
		ReorderWindow: reorderWindow,
		WorkerCount:   workerCount,
	}

	dedupWindow, err := parseDurationEnv("ALERTS_DEDUP_WINDOW", "10m")
	if err != nil {
		return nil, err
	}
	cfg.Alerts = AlertsConfig{
		DedupWindow:      dedupWindow,
		PerSubscriberRPS: envFloat("ALERTS_PER_SUBSCRIBER_RPS", 1.0),
	}
	if cfg.RulesFile != "" {
		rules, err := loadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("ALERTS_RULES_FILE: %w", err)
		}
		cfg.Alerts.Rules = rules
	}

	cfg.Store = StoreConfig{
		Dir:   envOrDefault("STORE_DIR", "./data"),
		Fsync: envOrDefault("STORE_FSYNC", "per_write"),
	}
	if cfg.Store.Fsync != "per_write" && cfg.Store.Fsync != "periodic" {
		return nil, errors.New("STORE_FSYNC must be 'per_write' or 'periodic'")
	}

	cfg.Auth = AuthConfig{
		Issuer:   os.Getenv("AUTH_ISSUER"),
		Audience: os.Getenv("AUTH_AUDIENCE"),
		HMACKey:  os.Getenv("AUTH_HMAC_KEY"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}

	return cfg, nil
}

func loadClientConfig(prefix string) (ClientConfig, error) {
	rps := envFloat(prefix+"_RATE_LIMIT_RPS", 5.0)
	if rps <= 0 {
		return ClientConfig{}, fmt.Errorf("%s_RATE_LIMIT_RPS must be positive", prefix)
	}
	burst := envInt(prefix+"_BURST", 5)
	if burst <= 0 {
		return ClientConfig{}, fmt.Errorf("%s_BURST must be positive", prefix)
	}
	timeout, err := parseDurationEnv(prefix+"_TIMEOUT", "10s")
	if err != nil {
		return ClientConfig{}, err
	}
	retryBackoff, err := parseDurationEnv(prefix+"_RETRY_BACKOFF", "200ms")
	if err != nil {
		return ClientConfig{}, err
	}
	breakerCoolDown, err := parseDurationEnv(prefix+"_BREAKER_COOL_DOWN", "30s")
	if err != nil {
		return ClientConfig{}, err
	}
	return ClientConfig{
		BaseURL:          envOrDefault(prefix+"_URL", "http://localhost:9090"),
		RateLimitRPS:     rps,
		Burst:            burst,
		Timeout:          timeout,
		RetryMax:         envInt(prefix+"_RETRY_MAX", 3),
		RetryBackoff:     retryBackoff,
		BreakerThreshold: envInt(prefix+"_BREAKER_THRESHOLD", 5),
		BreakerCoolDown:  breakerCoolDown,
		CacheTTL:         time.Minute,
		CacheMaxEntries:  1000,
	}, nil
}

func loadDetectorConfig() (DetectorConfig, error) {
	sta, err := parseDurationEnv("DETECTOR_STA_S", "1s")
	if err != nil {
		return DetectorConfig{}, err
	}
	lta, err := parseDurationEnv("DETECTOR_LTA_S", "10s")
	if err != nil {
		return DetectorConfig{}, err
	}
	dMin, err := parseDurationEnv("DETECTOR_D_MIN_S", "1s")
	if err != nil {
		return DetectorConfig{}, err
	}
	dMax, err := parseDurationEnv("DETECTOR_D_MAX_S", "30s")
	if err != nil {
		return DetectorConfig{}, err
	}
	preRoll, err := parseDurationEnv("DETECTOR_PRE_ROLL_S", "5s")
	if err != nil {
		return DetectorConfig{}, err
	}
	postRoll, err := parseDurationEnv("DETECTOR_POST_ROLL_S", "5s")
	if err != nil {
		return DetectorConfig{}, err
	}
	refractory, err := parseDurationEnv("DETECTOR_REFRACTORY_S", "2s")
	if err != nil {
		return DetectorConfig{}, err
	}
	rOn := envFloat("DETECTOR_R_ON", 4.0)
	rOff := envFloat("DETECTOR_R_OFF", 2.0)
	if rOff >= rOn {
		return DetectorConfig{}, errors.New("DETECTOR_R_OFF must be less than DETECTOR_R_ON")
	}
	return DetectorConfig{
		STA: sta, LTA: lta, ROn: rOn, ROff: rOff,
		DMin: dMin, DMax: dMax, PreRoll: preRoll, PostRoll: postRoll, Refractory: refractory,
	}, nil
}

// rulesFile is the on-disk YAML shape for alerts.rules, loaded from a
// small, rarely-changed, operator-maintained file.
type rulesFile struct {
	Rules []AlertRule `yaml:"rules"`
}

func loadRulesFile(path string) ([]AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf rulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, err
	}
	return rf.Rules, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key, def string) (time.Duration, error) {
	s := envOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
