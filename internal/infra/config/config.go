package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Logger   LoggerConfig `yaml:"logger"`
	Tracer   TracerConfig `yaml:"tracer"`
	Web      WebConfig    `yaml:"web"`
	Audit    AuditConfig  `yaml:"audit"`
	Includes []string     `yaml:"includes,omitempty"`
}

// WebConfig holds search, fetch and cache settings.
type WebConfig struct {
	SearchEndpoint string        `yaml:"search_endpoint"`
	Cache          CacheConfig   `yaml:"cache"`
	Fetch          FetchConfig   `yaml:"fetch"`
	RateLimit      RateConfig    `yaml:"rate_limit"`
	CircuitBreaker BreakerConfig `yaml:"circuit_breaker"`
	// SSRFSafeDial re-checks every resolved address at dial time, closing the
	// gap between URL validation and DNS resolution.
	SSRFSafeDial bool `yaml:"ssrf_safe_dial"`
	// FetchCallsPerMinute bounds web_fetch tool calls per caller.
	FetchCallsPerMinute int `yaml:"fetch_calls_per_minute"`
}

// CacheConfig sizes the search and page caches.
type CacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// FetchConfig holds the retry and redirect policy of the fetcher.
type FetchConfig struct {
	BaseTimeout  time.Duration `yaml:"base_timeout"`
	MaxRedirects int           `yaml:"max_redirects"`
	MaxRetries   int           `yaml:"max_retries"`
	PendingDelay time.Duration `yaml:"pending_delay"`
	BackoffDelay time.Duration `yaml:"backoff_delay"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// RateConfig limits requests sent to the search endpoint.
// RequestsPerSecond 0 disables limiting.
type RateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// BreakerConfig holds per-host circuit breaker settings.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// AuditConfig controls the JSONL log of outbound searches and page fetches.
// An empty Path disables auditing.
type AuditConfig struct {
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"`
	MaxSize string        `yaml:"max_size"` // e.g. "50MB"
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Web: WebConfig{
			SearchEndpoint: "https://html.duckduckgo.com/html/",
			Cache: CacheConfig{
				Size: 100,
				TTL:  5 * time.Minute,
			},
			Fetch: FetchConfig{
				BaseTimeout:  15 * time.Second,
				MaxRedirects: 5,
				MaxRetries:   5,
				PendingDelay: 1500 * time.Millisecond,
				BackoffDelay: time.Second,
				MaxBodyBytes: 5 * 1024 * 1024,
			},
			RateLimit: RateConfig{
				RequestsPerSecond: 1,
				Burst:             3,
			},
			CircuitBreaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     60 * time.Second,
			},
			SSRFSafeDial:        true,
			FetchCallsPerMinute: 30,
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error: defaults plus env overrides are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass picks up the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := newIncludeWalker(absPath).expand(cfg, filepath.Dir(absPath), 0); err != nil {
			return nil, err
		}

		// Second pass: the main file wins over anything it includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides maps WEBSCOUT_* env vars to config fields.
// Unparseable values are ignored.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WEBSCOUT_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("WEBSCOUT_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("WEBSCOUT_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("WEBSCOUT_TRACER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = b
		}
	}
	if v := os.Getenv("WEBSCOUT_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	if v := os.Getenv("WEBSCOUT_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}

	if v := os.Getenv("WEBSCOUT_WEB_SEARCH_ENDPOINT"); v != "" {
		cfg.Web.SearchEndpoint = v
	}
	if v := os.Getenv("WEBSCOUT_WEB_CACHE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Web.Cache.Size = n
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Web.Cache.TTL = d
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_FETCH_BASE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Web.Fetch.BaseTimeout = d
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_FETCH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Web.Fetch.MaxRetries = n
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_FETCH_MAX_REDIRECTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Web.Fetch.MaxRedirects = n
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.Web.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_SSRF_SAFE_DIAL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Web.SSRFSafeDial = b
		}
	}
	if v := os.Getenv("WEBSCOUT_WEB_FETCH_CALLS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Web.FetchCallsPerMinute = n
		}
	}
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// 0600 and 0644 are fine; anything group/world writable is not.
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
