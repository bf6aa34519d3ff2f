// Package ratelimit provides sliding-window admission control for the
// answering pipeline, keyed by patient identity and by client IP. Both
// windows are evaluated on every call and the most restrictive outcome
// wins, bounding per-user and per-network abuse independently.
package ratelimit

import (
	"context"
	"time"
)

const (
	// Window is the trailing interval over which attempts are counted.
	Window = 60 * time.Second
	// KeyTTL outlives the window slightly so idle keys are garbage
	// collected instead of retained forever.
	KeyTTL = 70 * time.Second
)

// Scope identifies which window rejected a request.
type Scope string

const (
	ScopePatient Scope = "patient"
	ScopeIP      Scope = "ip"
)

// Request identifies the caller for both windows.
type Request struct {
	PatientID string
	IP        string
}

// Decision is the admission outcome. When OK is false, RetryAfter is the
// time until the oldest surviving attempt falls out of the window.
type Decision struct {
	OK         bool
	RetryAfter time.Duration
	Scope      Scope
}

// RetryAfterSec rounds RetryAfter up to whole seconds for Retry-After
// style hints. Never returns zero for a rejection.
func (d Decision) RetryAfterSec() int {
	if d.OK {
		return 0
	}
	sec := int((d.RetryAfter + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

// Limiter admits or rejects a request against both windows.
type Limiter interface {
	Allow(ctx context.Context, req Request) (Decision, error)
}

// Limits carries the per-window capacities.
type Limits struct {
	PerMinuteByPatient int
	PerMinuteByIP      int
}

func patientKey(id string) string { return "rate:patient:" + id }
func ipKey(addr string) string    { return "rate:ip:" + addr }
