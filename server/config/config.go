package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	DefaultListenAddress = "0.0.0.0:8545"

	DefaultInterval        = "60s"
	DefaultScrapeTimeout   = "120s"
	DefaultCacheTTL        = "30s"
	DefaultHistoryMaxLimit = 500
	DefaultNATSSubject     = "rates.ves"
)

var (
	ErrInvalidListenAddress = errors.New("invalid listen address")
	ErrInvalidInterval      = errors.New("invalid pipeline interval")
	ErrInvalidScrapeTimeout = errors.New("invalid pipeline scrape timeout")
	ErrInvalidCacheTTL      = errors.New("invalid pipeline cache TTL")
	ErrCacheTTLExceedsPoll  = errors.New("pipeline cache TTL exceeds the interval")
	ErrInvalidHistoryLimit  = errors.New("invalid pipeline history max limit")
)

var listenAddressRegex = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}:\d+$`)

// Config defines the base-level server configuration
type Config struct {
	// The associated CORS config, if any
	CORSConfig *CORS `toml:"cors_config"`

	// The rate pipeline configuration
	Pipeline *Pipeline `toml:"pipeline"`

	// The address at which the server will be served.
	// Format should be: <IP>:<PORT>
	ListenAddress string `toml:"listen_address"`
}

// CORS defines the allowed cross-origin requests
type CORS struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	AllowedMethods []string `toml:"allowed_methods"`
	AllowedHeaders []string `toml:"allowed_headers"`
}

// Pipeline defines the rate pipeline configuration.
// Durations use the Go duration format (ex. "60s")
type Pipeline struct {
	// Autostart starts the pipeline on boot (default true)
	Autostart *bool `toml:"autostart"`

	// Interval is the delay between consecutive scrapes
	Interval string `toml:"interval"`

	// ScrapeTimeout bounds a single scrape
	ScrapeTimeout string `toml:"scrape_timeout"`

	// CacheTTL is how long a scraped sample is reused (0 disables)
	CacheTTL string `toml:"cache_ttl"`

	// NATSSubject is the subject samples are published on, if NATS is set
	NATSSubject string `toml:"nats_subject"`

	// HistoryMaxLimit caps the history query size
	HistoryMaxLimit int `toml:"history_max_limit"`
}

// DefaultCORSConfig returns the default CORS configuration
func DefaultCORSConfig() *CORS {
	return &CORS{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
}

// DefaultPipelineConfig returns the default pipeline configuration
func DefaultPipelineConfig() *Pipeline {
	autostart := true

	return &Pipeline{
		Autostart:       &autostart,
		Interval:        DefaultInterval,
		ScrapeTimeout:   DefaultScrapeTimeout,
		CacheTTL:        DefaultCacheTTL,
		NATSSubject:     DefaultNATSSubject,
		HistoryMaxLimit: DefaultHistoryMaxLimit,
	}
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddress: DefaultListenAddress,
		CORSConfig:    DefaultCORSConfig(),
		Pipeline:      DefaultPipelineConfig(),
	}
}

// ValidateConfig validates the server configuration
func ValidateConfig(config *Config) error {
	// Validate the listen address
	if !listenAddressRegex.MatchString(config.ListenAddress) {
		return ErrInvalidListenAddress
	}

	if config.Pipeline == nil {
		return nil
	}

	// Validate the pipeline
	interval, err := time.ParseDuration(config.Pipeline.Interval)
	if err != nil || interval <= 0 {
		return ErrInvalidInterval
	}

	if d, err := time.ParseDuration(config.Pipeline.ScrapeTimeout); err != nil || d <= 0 {
		return ErrInvalidScrapeTimeout
	}

	cacheTTL, err := time.ParseDuration(config.Pipeline.CacheTTL)
	if err != nil || cacheTTL < 0 {
		return ErrInvalidCacheTTL
	}

	// A longer TTL would hand the same sample to consecutive ticks
	if cacheTTL > interval {
		return ErrCacheTTLExceedsPoll
	}

	if config.Pipeline.HistoryMaxLimit <= 0 {
		return ErrInvalidHistoryLimit
	}

	return nil
}

// Read reads the configuration from the given path.
// Omitted pipeline values keep their defaults
func Read(path string) (*Config, error) {
	// Read the config file
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Parse it
	var cfg Config

	if err = toml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// applyDefaults fills in the omitted values
func (c *Config) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}

	defaults := DefaultPipelineConfig()

	if c.Pipeline == nil {
		c.Pipeline = defaults

		return
	}

	if c.Pipeline.Autostart == nil {
		c.Pipeline.Autostart = defaults.Autostart
	}

	if c.Pipeline.Interval == "" {
		c.Pipeline.Interval = defaults.Interval
	}

	if c.Pipeline.ScrapeTimeout == "" {
		c.Pipeline.ScrapeTimeout = defaults.ScrapeTimeout
	}

	if c.Pipeline.CacheTTL == "" {
		c.Pipeline.CacheTTL = defaults.CacheTTL
	}

	if c.Pipeline.NATSSubject == "" {
		c.Pipeline.NATSSubject = defaults.NATSSubject
	}

	if c.Pipeline.HistoryMaxLimit == 0 {
		c.Pipeline.HistoryMaxLimit = defaults.HistoryMaxLimit
	}
}

// AutostartEnabled returns true if the pipeline starts on boot
func (p *Pipeline) AutostartEnabled() bool {
	return p.Autostart == nil || *p.Autostart
}

// IntervalDuration returns the parsed scrape interval.
// The config is expected to be validated
func (p *Pipeline) IntervalDuration() time.Duration {
	return mustDuration(p.Interval)
}

// ScrapeTimeoutDuration returns the parsed scrape timeout
func (p *Pipeline) ScrapeTimeoutDuration() time.Duration {
	return mustDuration(p.ScrapeTimeout)
}

// CacheTTLDuration returns the parsed cache TTL
func (p *Pipeline) CacheTTLDuration() time.Duration {
	return mustDuration(p.CacheTTL)
}

func mustDuration(v string) time.Duration {
	d, _ := time.ParseDuration(v) //nolint:errcheck // validated in ValidateConfig

	return d
}
