package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/trace"

	"webscout/internal/domain"
	"webscout/internal/infra/tracer"
)

// Default fetch policy.
const (
	DefaultBaseTimeout     = 15 * time.Second
	DefaultMaxRedirects    = 5
	DefaultMaxRetries      = 5
	DefaultPendingDelay    = 1500 * time.Millisecond
	DefaultBackoffDelay    = 1000 * time.Millisecond
	DefaultMaxBodyBytes    = 5 * 1024 * 1024
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 60 * time.Second
)

// FetcherConfig tunes the retry, redirect and breaker policy of a Fetcher.
// Zero values fall back to the defaults above.
type FetcherConfig struct {
	BaseTimeout     time.Duration
	MaxRedirects    int
	MaxRetries      int
	PendingDelay    time.Duration
	BackoffDelay    time.Duration
	MaxBodyBytes    int64
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Transport is used for outbound requests; nil means http.DefaultTransport.
	Transport http.RoundTripper
	// RedirectValidator vets every redirect target before it is followed.
	RedirectValidator func(rawURL string) error
	// Identities overrides the built-in identity pool.
	Identities []Identity
}

func (c *FetcherConfig) applyDefaults() {
	if c.BaseTimeout <= 0 {
		c.BaseTimeout = DefaultBaseTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.PendingDelay <= 0 {
		c.PendingDelay = DefaultPendingDelay
	}
	if c.BackoffDelay <= 0 {
		c.BackoffDelay = DefaultBackoffDelay
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}
}

// Attempt is the state of one logical fetch as it moves through redirects
// and retries. It is owned by a single Fetch call.
type Attempt struct {
	ID                 string
	URL                string
	RedirectsRemaining int
	RetryCount         int
	IdentitiesTried    map[string]struct{}
}

// StatusError reports a non-200 response that survived every retry.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string { return fmt.Sprintf("HTTP %d", e.StatusCode) }

// Is lets errors.Is match domain.ErrFetchExhausted.
func (e *StatusError) Is(target error) bool { return target == domain.ErrFetchExhausted }

// Fetcher performs GET requests with manual redirect following, identity
// rotation and backoff. Safe for concurrent use.
type Fetcher struct {
	client *http.Client
	cfg    FetcherConfig
	pool   *identityPool
	logger *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error // for testing

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[string]
}

// NewFetcher creates a Fetcher. Redirects are never followed by the HTTP
// client itself; the fetch loop handles them so every hop is budgeted.
func NewFetcher(cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	cfg.applyDefaults()
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:      cfg,
		pool:     newIdentityPool(cfg.Identities),
		logger:   logger,
		sleep:    sleepContext,
		breakers: make(map[string]*gobreaker.CircuitBreaker[string]),
	}
}

// Fetch returns the body of rawURL once it answers 200.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", domain.NewSubSystemError("fetch", "Fetcher.Fetch", domain.ErrInvalidInput,
			fmt.Sprintf("invalid URL %q", rawURL))
	}

	attempt := &Attempt{
		ID:                 ulid.Make().String(),
		URL:                rawURL,
		RedirectsRemaining: f.cfg.MaxRedirects,
		IdentitiesTried:    make(map[string]struct{}, f.pool.size()),
	}

	ctx, span := tracer.StartSpan(ctx, "web.fetch",
		trace.WithAttributes(
			tracer.StringAttr("fetch.id", attempt.ID),
			tracer.StringAttr("fetch.url", rawURL),
		),
	)
	defer span.End()

	body, err := f.breaker(u.Hostname()).Execute(func() (string, error) {
		return f.run(ctx, attempt)
	})
	span.SetAttributes(
		tracer.IntAttr("fetch.retries", attempt.RetryCount),
		tracer.IntAttr("fetch.redirects", f.cfg.MaxRedirects-attempt.RedirectsRemaining),
		tracer.StringAttr("fetch.final_url", attempt.URL),
	)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewSubSystemError("fetch", "Fetcher.Fetch", domain.ErrCircuitOpen, u.Hostname())
		}
		tracer.RecordError(span, err)
		f.logger.Warn("fetch failed", "id", attempt.ID, "url", rawURL, "error", err)
		return "", err
	}
	tracer.SetOK(span)
	f.logger.Debug("fetch completed", "id", attempt.ID, "url", attempt.URL, "size", len(body),
		"retries", attempt.RetryCount)
	return body, nil
}

// outcome is the result of one HTTP exchange.
type outcome struct {
	status   int
	location string
	body     string
	err      error
	fatal    bool // err cannot be fixed by retrying
}

// run drives the attempt until it succeeds or the policy gives up.
func (f *Fetcher) run(ctx context.Context, a *Attempt) (string, error) {
	identity, _ := f.pool.pick(a.IdentitiesTried)
	a.IdentitiesTried[identity.UserAgent] = struct{}{}

	for {
		res := f.do(ctx, a, identity)
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if res.fatal {
			return "", res.err
		}

		switch {
		case res.err == nil && res.status == http.StatusOK:
			return res.body, nil

		case res.err == nil && isRedirect(res.status) && res.location != "":
			next, err := f.redirect(a, res.location)
			if err != nil {
				return "", err
			}
			f.logger.Debug("following redirect", "id", a.ID, "status", res.status, "to", next)
			a.URL = next
			continue

		case res.err == nil && res.status == http.StatusAccepted:
			if a.RetryCount >= f.cfg.MaxRetries {
				return "", &StatusError{StatusCode: res.status, URL: a.URL}
			}
			delay := f.cfg.PendingDelay * time.Duration(a.RetryCount+1)
			f.logger.Debug("response pending, waiting", "id", a.ID, "url", a.URL, "delay", delay)
			if err := f.sleep(ctx, delay); err != nil {
				return "", err
			}
			a.RetryCount++
			continue
		}

		// Rejected or failed: rotate identity first, back off second.
		if next, ok := f.pool.pick(a.IdentitiesTried); ok {
			f.logger.Debug("rotating identity", "id", a.ID, "url", a.URL,
				"status", res.status, "error", res.err, "identity", next.Name)
			identity = next
			a.IdentitiesTried[identity.UserAgent] = struct{}{}
			continue
		}

		if a.RetryCount >= f.cfg.MaxRetries {
			if res.err != nil {
				return "", fmt.Errorf("fetch %s: %w: %w", a.URL, domain.ErrFetchExhausted, res.err)
			}
			return "", &StatusError{StatusCode: res.status, URL: a.URL}
		}

		delay := f.cfg.BackoffDelay * time.Duration(a.RetryCount+1)
		f.logger.Debug("identities exhausted, backing off", "id", a.ID, "url", a.URL,
			"status", res.status, "error", res.err, "delay", delay)
		if err := f.sleep(ctx, delay); err != nil {
			return "", err
		}
		a.RetryCount++
		clear(a.IdentitiesTried)
		identity, _ = f.pool.pick(a.IdentitiesTried)
		a.IdentitiesTried[identity.UserAgent] = struct{}{}
	}
}

// do issues a single GET for the attempt's current URL.
func (f *Fetcher) do(ctx context.Context, a *Attempt, identity Identity) outcome {
	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.BaseTimeout*time.Duration(a.RetryCount+1))
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, a.URL, nil)
	if err != nil {
		return outcome{err: fmt.Errorf("create request: %w", err), fatal: true}
	}
	identity.Apply(req)

	resp, err := f.client.Do(req)
	if err != nil {
		// A refused address stays refused under any identity.
		if errors.Is(err, domain.ErrSSRFBlocked) {
			return outcome{err: err, fatal: true}
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = domain.NewSubSystemError("fetch", "Fetcher.Fetch", domain.ErrTimeout, err.Error())
		}
		return outcome{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return outcome{status: resp.StatusCode, location: resp.Header.Get("Location")}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return outcome{err: fmt.Errorf("read body: %w", err)}
	}
	return outcome{status: resp.StatusCode, body: string(body)}
}

// redirect resolves location against the current URL and spends one unit of
// the redirect budget.
func (f *Fetcher) redirect(a *Attempt, location string) (string, error) {
	if a.RedirectsRemaining <= 0 {
		return "", domain.NewSubSystemError("fetch", "Fetcher.Fetch", domain.ErrTooManyRedirects, a.URL)
	}
	base, err := url.Parse(a.URL)
	if err != nil {
		return "", fmt.Errorf("parse redirect base: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", fmt.Errorf("parse redirect location %q: %w", location, err)
	}
	next := base.ResolveReference(ref).String()
	if f.cfg.RedirectValidator != nil {
		if err := f.cfg.RedirectValidator(next); err != nil {
			return "", err
		}
	}
	a.RedirectsRemaining--
	return next, nil
}

// breaker returns the circuit breaker guarding host, creating it on first use.
func (f *Fetcher) breaker(host string) *gobreaker.CircuitBreaker[string] {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cb, ok := f.breakers[host]; ok {
		return cb
	}
	maxFailures := f.cfg.BreakerFailures
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "fetch:" + host,
		MaxRequests: 1,
		Timeout:     f.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			f.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: isHostHealthy,
	})
	f.breakers[host] = cb
	return cb
}

// isHostHealthy counts only exhausted retries against a host's breaker.
// Caller cancellation, blocked redirects and redirect loops say nothing about
// whether the host is up.
func isHostHealthy(err error) bool {
	if err == nil {
		return true
	}
	return !errors.Is(err, domain.ErrFetchExhausted)
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
