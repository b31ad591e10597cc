package config

import (
	"dashplayer/internal/adaptation"
	"dashplayer/internal/control"
	"dashplayer/internal/models"
	"dashplayer/internal/session"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the config file.
const (
	EnvManifestURL = "DASHPLAYER_MANIFEST_URL"
	EnvListenAddr  = "DASHPLAYER_LISTEN_ADDR"
	EnvLogLevel    = "DASHPLAYER_LOG_LEVEL"
	EnvAdaptation  = "DASHPLAYER_ADAPTATION"
	EnvDumpDir     = "DASHPLAYER_DUMP_DIR"
	EnvRateLimit   = "DASHPLAYER_RATE_LIMIT"
)

// Config holds the fully processed player configuration.
type Config struct {
	ManifestURL string
	UserAgent   string
	ListenAddr  string
	LogLevel    string
	LogFormat   string

	Resolution   models.ResolutionPolicy
	StartSegment int64
	MaxSegments  int64

	Adaptation           adaptation.Params
	MinCompletedRequests int

	Workers        int
	RequestTimeout time.Duration
	// RateLimit caps downloads in bytes per second. 0 means unlimited.
	RateLimit int

	KeepBehind       int64
	EvictionInterval time.Duration

	// DumpTarget is a directory or gs://bucket/prefix. Empty disables dumping.
	DumpTarget string
}

// rawConfig is the intermediate structure that maps directly to the file.
// Durations and the adaptation string are kept as text until processed.
type rawConfig struct {
	ManifestURL      string `json:"Manifest" yaml:"manifest"`
	UserAgent        string `json:"UserAgent" yaml:"user_agent"`
	ListenAddr       string `json:"Listen" yaml:"listen"`
	LogLevel         string `json:"LogLevel" yaml:"log_level"`
	LogFormat        string `json:"LogFormat" yaml:"log_format"`
	Resolution       string `json:"Resolution" yaml:"resolution"`
	StartSegment     int64  `json:"StartSegment" yaml:"start_segment"`
	MaxSegments      int64  `json:"MaxSegments" yaml:"max_segments"`
	Adaptation       string `json:"Adaptation" yaml:"adaptation"`
	Workers          int    `json:"Workers" yaml:"workers"`
	RequestTimeout   string `json:"RequestTimeout" yaml:"request_timeout"`
	RateLimit        int    `json:"RateLimit" yaml:"rate_limit"`
	KeepBehind       *int64 `json:"KeepBehind" yaml:"keep_behind"`
	EvictionInterval string `json:"EvictionInterval" yaml:"eviction_interval"`
	DumpTarget       string `json:"Dump" yaml:"dump"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() *Config {
	return &Config{
		ListenAddr:           ":8080",
		LogLevel:             "info",
		LogFormat:            "json",
		Resolution:           models.ResolutionPolicy{Kind: models.PolicyHighest},
		Adaptation:           adaptation.DefaultParams(),
		MinCompletedRequests: 1,
		Workers:              2,
		RequestTimeout:       10 * time.Second,
		KeepBehind:           2,
		EvictionInterval:     10 * time.Second,
	}
}

// Load reads the configuration file at path (JSON, or YAML for .yaml/.yml),
// loads envFiles (".env" when none are given; a missing file is ignored),
// and applies environment overrides. An empty path starts from the defaults.
// Callers apply their own overrides and then call Validate.
func Load(path string, envFiles ...string) (*Config, error) {
	raw := rawConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
		if err := unmarshal(path, data, &raw); err != nil {
			return nil, err
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	if err := applyEnv(&raw); err != nil {
		return nil, err
	}

	return process(&raw)
}

func unmarshal(path string, data []byte, raw *rawConfig) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, raw); err != nil {
			return fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, raw); err != nil {
			return fmt.Errorf("failed to unmarshal config JSON: %w", err)
		}
	}
	return nil
}

func applyEnv(raw *rawConfig) error {
	if v := os.Getenv(EnvManifestURL); v != "" {
		raw.ManifestURL = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		raw.ListenAddr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		raw.LogLevel = v
	}
	if v := os.Getenv(EnvAdaptation); v != "" {
		raw.Adaptation = v
	}
	if v := os.Getenv(EnvDumpDir); v != "" {
		raw.DumpTarget = v
	}
	if v := os.Getenv(EnvRateLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		raw.RateLimit = n
	}
	return nil
}

// process turns the raw values into a Config, starting from Default.
func process(raw *rawConfig) (*Config, error) {
	cfg := Default()
	cfg.ManifestURL = raw.ManifestURL
	cfg.UserAgent = raw.UserAgent
	cfg.StartSegment = raw.StartSegment
	cfg.MaxSegments = raw.MaxSegments
	cfg.RateLimit = raw.RateLimit
	cfg.DumpTarget = raw.DumpTarget
	if raw.ListenAddr != "" {
		cfg.ListenAddr = raw.ListenAddr
	}
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.LogFormat != "" {
		cfg.LogFormat = raw.LogFormat
	}
	if raw.Workers != 0 {
		cfg.Workers = raw.Workers
	}
	if raw.KeepBehind != nil {
		cfg.KeepBehind = *raw.KeepBehind
	}

	policy, err := models.ParseResolutionPolicy(raw.Resolution)
	if err != nil {
		return nil, fmt.Errorf("invalid resolution: %w", err)
	}
	cfg.Resolution = policy

	if cfg.RequestTimeout, err = parseDuration(raw.RequestTimeout, cfg.RequestTimeout); err != nil {
		return nil, fmt.Errorf("invalid request timeout: %w", err)
	}
	if cfg.EvictionInterval, err = parseDuration(raw.EvictionInterval, cfg.EvictionInterval); err != nil {
		return nil, fmt.Errorf("invalid eviction interval: %w", err)
	}

	if raw.Adaptation != "" {
		cfg.Adaptation, cfg.MinCompletedRequests, err = ParseAdaptationString(raw.Adaptation, cfg.Adaptation, cfg.MinCompletedRequests)
		if err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// ParseAdaptationString overrides fields of base from a comma separated
// key=value list, for example "bmin=10,blow=20,bhigh=50,alpha1=0.75,delta_t=10s,min_requests=2".
// delta_t takes a Go duration or a number of seconds.
func ParseAdaptationString(s string, base adaptation.Params, minRequests int) (adaptation.Params, int, error) {
	p := base
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return base, minRequests, fmt.Errorf("malformed adaptation parameter %q: expected key=value", field)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "bmin":
			p.BMin, err = strconv.ParseFloat(value, 64)
		case "blow":
			p.BLow, err = strconv.ParseFloat(value, 64)
		case "bhigh":
			p.BHigh, err = strconv.ParseFloat(value, 64)
		case "alpha1":
			p.Alpha1, err = strconv.ParseFloat(value, 64)
		case "alpha2":
			p.Alpha2, err = strconv.ParseFloat(value, 64)
		case "alpha3":
			p.Alpha3, err = strconv.ParseFloat(value, 64)
		case "alpha4":
			p.Alpha4, err = strconv.ParseFloat(value, 64)
		case "alpha5":
			p.Alpha5, err = strconv.ParseFloat(value, 64)
		case "delta_t":
			p.DeltaT, err = parseSeconds(value)
		case "min_requests":
			minRequests, err = strconv.Atoi(value)
		default:
			return base, minRequests, fmt.Errorf("unknown adaptation parameter %q", key)
		}
		if err != nil {
			return base, minRequests, fmt.Errorf("invalid value for adaptation parameter %s: %w", key, err)
		}
	}
	return p, minRequests, nil
}

func parseSeconds(value string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(value)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.ManifestURL == "" {
		result = multierror.Append(result, errors.New("manifest url is required"))
	} else if !strings.HasPrefix(c.ManifestURL, "http://") && !strings.HasPrefix(c.ManifestURL, "https://") {
		result = multierror.Append(result, fmt.Errorf("manifest url must be http or https, got %q", c.ManifestURL))
	}
	if err := c.Adaptation.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.MinCompletedRequests < 1 {
		result = multierror.Append(result, fmt.Errorf("min_requests must be at least 1, got %d", c.MinCompletedRequests))
	}
	if c.StartSegment < 0 {
		result = multierror.Append(result, fmt.Errorf("start segment must not be negative, got %d", c.StartSegment))
	}
	if c.MaxSegments < 0 {
		result = multierror.Append(result, fmt.Errorf("max segments must not be negative, got %d", c.MaxSegments))
	}
	if c.Workers < 1 {
		result = multierror.Append(result, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.RateLimit < 0 {
		result = multierror.Append(result, fmt.Errorf("rate limit must not be negative, got %d", c.RateLimit))
	}
	if c.KeepBehind < 0 {
		result = multierror.Append(result, fmt.Errorf("keep behind must not be negative, got %d", c.KeepBehind))
	}
	if c.EvictionInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("eviction interval must be positive, got %s", c.EvictionInterval))
	}
	return result.ErrorOrNil()
}

// SessionOptions returns the options of the playback session.
func (c *Config) SessionOptions() session.Options {
	return session.Options{
		ManifestURL: c.ManifestURL,
		Control: control.Options{
			Params:               c.Adaptation,
			MinCompletedRequests: c.MinCompletedRequests,
			Resolution:           c.Resolution,
			StartSegment:         c.StartSegment,
			MaxSegments:          c.MaxSegments,
		},
		Workers:          c.Workers,
		RequestTimeout:   c.RequestTimeout,
		RateLimit:        c.RateLimit,
		KeepBehind:       c.KeepBehind,
		EvictionInterval: c.EvictionInterval,
	}
}
