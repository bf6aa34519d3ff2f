package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the single-process implementation: per-key timestamp
// lists guarded by one mutex, so the purge-count-insert sequence is atomic
// with respect to concurrent callers sharing a key. Multi-instance
// deployments should use RedisLimiter instead.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limits  Limits
	now     func() time.Time
}

// NewMemoryLimiter creates an in-process sliding-window limiter.
func NewMemoryLimiter(limits Limits) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string][]time.Time),
		limits:  limits,
		now:     time.Now,
	}
	go l.evictIdleKeys()
	return l
}

// Allow checks both windows and records the attempt only when both have
// capacity.
func (l *MemoryLimiter) Allow(_ context.Context, req Request) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pKey := patientKey(req.PatientID)
	iKey := ipKey(req.IP)

	pWindow := purge(l.windows[pKey], now)
	iWindow := purge(l.windows[iKey], now)

	pFull := len(pWindow) >= l.limits.PerMinuteByPatient
	iFull := len(iWindow) >= l.limits.PerMinuteByIP

	if pFull || iFull {
		d := Decision{OK: false}
		if pFull {
			d.Scope = ScopePatient
			d.RetryAfter = retryAfter(pWindow, now)
		}
		if iFull {
			if r := retryAfter(iWindow, now); r > d.RetryAfter {
				d.Scope = ScopeIP
				d.RetryAfter = r
			}
		}
		// Keep the purged windows so rejected bursts do not resurrect
		// expired entries.
		l.windows[pKey] = pWindow
		l.windows[iKey] = iWindow
		return d, nil
	}

	l.windows[pKey] = append(pWindow, now)
	l.windows[iKey] = append(iWindow, now)
	return Decision{OK: true}, nil
}

func purge(window []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(window) && !window[i].After(cutoff) {
		i++
	}
	return window[i:]
}

func retryAfter(window []time.Time, now time.Time) time.Duration {
	if len(window) == 0 {
		return 0
	}
	return Window - now.Sub(window[0])
}

// evictIdleKeys drops keys whose newest entry is older than the TTL, to
// keep memory bounded across many distinct patients/IPs.
func (l *MemoryLimiter) evictIdleKeys() {
	ticker := time.NewTicker(KeyTTL)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := l.now().Add(-KeyTTL)
		for key, window := range l.windows {
			if len(window) == 0 || window[len(window)-1].Before(cutoff) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}
