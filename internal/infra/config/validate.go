package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateWeb(cfg, ve)
	validateAudit(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
	validExporters  = map[string]bool{"": true, "noop": true, "stdout": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want debug, info, warn or error)", cfg.Logger.Level)
	}
	if !validLogFormats[strings.ToLower(cfg.Logger.Format)] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
	if cfg.Logger.Output == "" {
		ve.Add("logger.output must not be empty")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is not supported (want noop or stdout)", cfg.Tracer.Exporter)
	}
}

func validateWeb(cfg *Config, ve *ValidationError) {
	w := cfg.Web

	if w.SearchEndpoint == "" {
		ve.Add("web.search_endpoint must not be empty")
	} else if u, err := url.Parse(w.SearchEndpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		ve.Add("web.search_endpoint %q must be an absolute http(s) URL", w.SearchEndpoint)
	}

	if w.Cache.Size <= 0 {
		ve.Add("web.cache.size must be > 0")
	}
	if w.Cache.TTL <= 0 {
		ve.Add("web.cache.ttl must be > 0")
	}

	if w.Fetch.BaseTimeout <= 0 {
		ve.Add("web.fetch.base_timeout must be > 0")
	}
	if w.Fetch.MaxRedirects <= 0 {
		ve.Add("web.fetch.max_redirects must be > 0")
	}
	if w.Fetch.MaxRetries <= 0 {
		ve.Add("web.fetch.max_retries must be > 0")
	}
	if w.Fetch.PendingDelay < 0 {
		ve.Add("web.fetch.pending_delay must be >= 0")
	}
	if w.Fetch.BackoffDelay < 0 {
		ve.Add("web.fetch.backoff_delay must be >= 0")
	}
	if w.Fetch.MaxBodyBytes <= 0 {
		ve.Add("web.fetch.max_body_bytes must be > 0")
	}

	if w.RateLimit.RequestsPerSecond < 0 {
		ve.Add("web.rate_limit.requests_per_second must be >= 0")
	}
	if w.RateLimit.RequestsPerSecond > 0 && w.RateLimit.Burst <= 0 {
		ve.Add("web.rate_limit.burst must be > 0 when rate limiting is enabled")
	}

	if w.CircuitBreaker.MaxFailures == 0 {
		ve.Add("web.circuit_breaker.max_failures must be > 0")
	}
	if w.CircuitBreaker.Timeout <= 0 {
		ve.Add("web.circuit_breaker.timeout must be > 0")
	}

	if w.FetchCallsPerMinute <= 0 {
		ve.Add("web.fetch_calls_per_minute must be > 0")
	}
}

var sizePattern = regexp.MustCompile(`(?i)^\s*\d+\s*(b|kb|mb|gb)?\s*$`)

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must be >= 0")
	}
	if cfg.Audit.MaxSize != "" && !sizePattern.MatchString(cfg.Audit.MaxSize) {
		ve.Add("audit.max_size %q is invalid (want e.g. 500KB, 50MB or 1GB)", cfg.Audit.MaxSize)
	}
}
