package websocket

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleExpiry      = 10 * time.Minute
)

type limitReason string

const (
	limitReasonGlobal limitReason = "global_limit"
	limitReasonPerIP  limitReason = "per_ip_limit"
	limitReasonRate   limitReason = "rate_limit"
)

// status is the HTTP answer for a rejected upgrade.
func (r limitReason) status() int {
	if r == limitReasonGlobal {
		return http.StatusServiceUnavailable
	}
	return http.StatusTooManyRequests
}

// ConnectionLimits caps concurrent browser connections, in total and per IP,
// and the rate at which one IP may open new ones.
type ConnectionLimits struct {
	clock    clockwork.Clock
	maxTotal int
	maxPerIP int
	rate     rate.Limit
	burst    int

	mu        sync.Mutex
	total     int
	perIP     map[string]int
	limiters  map[string]*rateEntry
	cleanupAt time.Time
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(clock clockwork.Clock, maxTotal, maxPerIP int, connectsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		maxPerIP:  maxPerIP,
		rate:      rate.Limit(connectsPerSecond),
		burst:     burst,
		perIP:     make(map[string]int),
		limiters:  make(map[string]*rateEntry),
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

// acquire takes a slot for ip. The rate check runs first and consumes a
// token even when a later check rejects.
func (l *ConnectionLimits) acquire(ip string) (bool, limitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return false, limitReasonRate
	}

	if l.total >= l.maxTotal {
		return false, limitReasonGlobal
	}
	if l.perIP[ip] >= l.maxPerIP {
		return false, limitReasonPerIP
	}

	l.total++
	l.perIP[ip]++
	return true, ""
}

func (l *ConnectionLimits) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total > 0 {
		l.total--
	}
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
}

// cleanup drops rate limiters idle for longer than limiterIdleExpiry. Caller holds mu.
func (l *ConnectionLimits) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleExpiry)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
