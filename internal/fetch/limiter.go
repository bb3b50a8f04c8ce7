package fetch

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// unknownHost buckets URLs that do not parse to a host.
const unknownHost = "-"

// HostLimiter paces requests per board host so that sources sharing a host
// (several companies on boards.greenhouse.io, say) share one budget.
type HostLimiter struct {
	every rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

// NewHostLimiter allows reqPerSec per host with the given burst. A
// non-positive rate turns pacing off.
func NewHostLimiter(reqPerSec float64, burst int) *HostLimiter {
	every := rate.Limit(reqPerSec)
	if reqPerSec <= 0 {
		every = rate.Inf
	}
	return &HostLimiter{
		every: every,
		burst: max(burst, 1),
		hosts: map[string]*rate.Limiter{},
	}
}

// Wait blocks until a request to rawURL's host may go out, or ctx ends.
func (hl *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return hl.forHost(hostKey(rawURL)).Wait(ctx)
}

func (hl *HostLimiter) forHost(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	lim := hl.hosts[host]
	if lim == nil {
		lim = rate.NewLimiter(hl.every, hl.burst)
		hl.hosts[host] = lim
	}
	return lim
}

// hostKey ignores the port, so https://x.io and https://x.io:443 share a limiter.
func hostKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return unknownHost
	}
	return strings.ToLower(u.Hostname())
}
