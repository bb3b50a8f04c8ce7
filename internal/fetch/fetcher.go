// Package fetch is the engine's only network I/O: HTTP GET with bounded retry
// and linear backoff. It never logs; callers fold failures into run summaries.
package fetch

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

const (
	DefaultMaxAttempts  = 3
	DefaultBackoffStep  = 300 * time.Millisecond
	DefaultTimeout      = 20 * time.Second
	DefaultMaxBodyBytes = 4 << 20
	DefaultUserAgent    = "jobsync/1.0 (+job-board-sync)"
)

var (
	// ErrAttemptsExhausted wraps the last transport error once every attempt failed.
	ErrAttemptsExhausted = errors.New("fetch: attempts exhausted")
	// ErrInvalidURL marks a URL no request can be built for. It is not retried.
	ErrInvalidURL = errors.New("fetch: invalid url")
)

// Response is a completed GET. Non-2xx statuses are returned as-is; judging
// them is the caller's job.
type Response struct {
	Status   int
	FinalURL string
	Header   http.Header
	Body     []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Doer is the subset of *http.Client the Fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher performs GET requests with retry.
type Fetcher struct {
	client       Doer
	limiter      *HostLimiter
	maxAttempts  int
	backoffStep  time.Duration
	maxBodyBytes int64
	userAgent    string
	sleep        func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client.
func WithClient(c Doer) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithLimiter paces requests per host.
func WithLimiter(l *HostLimiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithMaxAttempts sets how many times a transport failure is tried.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBackoffStep sets the per-attempt backoff unit (step × attempt).
func WithBackoffStep(d time.Duration) Option {
	return func(f *Fetcher) {
		if d >= 0 {
			f.backoffStep = d
		}
	}
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// New builds a Fetcher. Without WithClient it uses an http.Client with
// DefaultTimeout.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       &http.Client{Timeout: DefaultTimeout},
		maxAttempts:  DefaultMaxAttempts,
		backoffStep:  DefaultBackoffStep,
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    DefaultUserAgent,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// RequestOption adjusts a single request.
type RequestOption func(*http.Request)

// WithHeader sets a request header.
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) { r.Header.Set(key, value) }
}

// WithBearerToken sets an Authorization bearer header. Empty tokens are ignored.
func WithBearerToken(token string) RequestOption {
	return func(r *http.Request) {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
	}
}

// Fetch GETs rawURL. Transport errors are retried up to maxAttempts times,
// sleeping backoffStep × attempt between tries. An unusable URL fails at once
// with ErrInvalidURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := f.sleep(ctx, f.backoffStep*time.Duration(attempt-1)); err != nil {
				return nil, errors.Wrap(err, "fetch: cancelled during backoff")
			}
		}

		resp, err := f.do(ctx, rawURL, opts)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, ErrInvalidURL) {
			return nil, err
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "fetch: cancelled")
		}
	}

	return nil, errors.Mark(
		errors.Wrapf(lastErr, "fetch %s: %d attempts", rawURL, f.maxAttempts),
		ErrAttemptsExhausted,
	)
}

func (f *Fetcher) do(ctx context.Context, rawURL string, opts []RequestOption) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "build request for %q", rawURL), ErrInvalidURL)
	}
	if (req.URL.Scheme != "http" && req.URL.Scheme != "https") || req.URL.Host == "" {
		return nil, errors.Wrapf(ErrInvalidURL, "%q is not an absolute http(s) url", rawURL)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return nil, errors.Wrap(err, "rate limiter")
		}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	for _, opt := range opts {
		opt(req)
	}

	res, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, f.maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	final := rawURL
	if res.Request != nil && res.Request.URL != nil {
		final = res.Request.URL.String()
	}

	return &Response{
		Status:   res.StatusCode,
		FinalURL: final,
		Header:   res.Header,
		Body:     body,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
