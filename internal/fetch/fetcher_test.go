package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyDoer fails the first n calls with a transport error, then delegates.
type flakyDoer struct {
	fails int32
	calls int32
	next  Doer
}

func (d *flakyDoer) Do(req *http.Request) (*http.Response, error) {
	n := atomic.AddInt32(&d.calls, 1)
	if n <= d.fails {
		return nil, errors.New("connection reset by peer")
	}
	return d.next.Do(req)
}

func recordSleeps(f *Fetcher) *[]time.Duration {
	var slept []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestFetch_ReturnsNon2xxWithoutRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone"))
	}))
	defer srv.Close()

	f := New()
	resp, err := f.Fetch(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.False(t, resp.OK())
	assert.Equal(t, "gone", string(resp.Body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestFetch_RetriesTransportErrorsWithLinearBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	doer := &flakyDoer{fails: 2, next: srv.Client()}
	f := New(WithClient(doer))
	slept := recordSleeps(f)

	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, int32(3), atomic.LoadInt32(&doer.calls))
	assert.Equal(t, []time.Duration{300 * time.Millisecond, 600 * time.Millisecond}, *slept)
}

func TestFetch_ExhaustedAttemptsReturnsLastError(t *testing.T) {
	doer := &flakyDoer{fails: 10}
	f := New(WithClient(doer), WithMaxAttempts(3))
	recordSleeps(f)

	_, err := f.Fetch(context.Background(), "https://boards.example.com/jobs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, int32(3), atomic.LoadInt32(&doer.calls))
}

func TestFetch_InvalidURLIsNotRetried(t *testing.T) {
	for _, raw := range []string{"https://acme.io/jobs/%zz", "acme.io/careers/1", "ftp://acme.io/jobs", "https:///jobs"} {
		t.Run(raw, func(t *testing.T) {
			doer := &flakyDoer{fails: 10}
			f := New(WithClient(doer))
			slept := recordSleeps(f)

			_, err := f.Fetch(context.Background(), raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidURL))
			assert.False(t, errors.Is(err, ErrAttemptsExhausted))
			assert.Zero(t, atomic.LoadInt32(&doer.calls))
			assert.Empty(t, *slept)
		})
	}
}

func TestFetch_StopsOnCancelledContext(t *testing.T) {
	doer := &flakyDoer{fails: 10}
	f := New(WithClient(doer))

	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := f.Fetch(ctx, "https://boards.example.com/jobs")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), atomic.LoadInt32(&doer.calls))
}

func TestFetch_FollowsRedirectsAndReportsFinalURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/jobs/1", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/careers", http.StatusFound)
	})
	mux.HandleFunc("/careers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("listing"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := New().Fetch(context.Background(), srv.URL+"/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, srv.URL+"/careers", resp.FinalURL)
}

func TestFetch_SetsHeadersAndCapsBody(t *testing.T) {
	var gotUA, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	f := New(WithUserAgent("jobsync-test"), WithMaxBodyBytes(4))
	resp, err := f.Fetch(context.Background(), srv.URL, WithBearerToken("s3cret"))
	require.NoError(t, err)

	assert.Equal(t, "jobsync-test", gotUA)
	assert.Equal(t, "Bearer s3cret", gotAuth)
	assert.Equal(t, "0123", string(resp.Body))
}

func TestHostLimiter_SeparateHosts(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	a := hl.forHost(hostKey("https://a.example.com/x"))
	assert.NotSame(t, a, hl.forHost(hostKey("https://b.example.com/x")))
	assert.Same(t, a, hl.forHost(hostKey("https://A.example.com:443/other")))
	assert.Equal(t, unknownHost, hostKey("::not a url"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, hl.Wait(ctx, "https://a.example.com/x"))
	require.NoError(t, hl.Wait(ctx, "https://b.example.com/x"))
	require.NoError(t, hl.Wait(ctx, "::not a url"))
}

func TestHostLimiter_SharedHostWaits(t *testing.T) {
	hl := NewHostLimiter(1, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, hl.Wait(ctx, "https://boards.example.com/acme"))
	assert.Error(t, hl.Wait(ctx, "https://boards.example.com/globex"))
}

func TestHostLimiter_ZeroRateIsUnlimited(t *testing.T) {
	hl := NewHostLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 50; i++ {
		require.NoError(t, hl.Wait(ctx, "https://a.example.com/"))
	}
}
