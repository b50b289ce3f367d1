// Package ratelimit implements an in-memory sliding-window rate limiter
// used to gate the expensive provider-facing endpoints (speech synthesis,
// narration start).
//
// The limiter counts requests per identifier within a trailing time window.
// State is process-local and ephemeral: restarting the server resets all
// counters. This is a best-effort gate, not a distributed consistency
// mechanism — run one limiter per process and size the limits accordingly.
//
// All methods are safe for concurrent use.
package ratelimit

import (
	"sync"
	"time"
)

// sweepInterval is the minimum time between full sweeps of the entry map.
// Sweeps remove identifiers whose every timestamp has aged out of the
// window, bounding memory for one-off callers.
const sweepInterval = 60 * time.Second

// Config holds the window parameters for a single check.
type Config struct {
	// MaxRequests is the number of requests allowed within Window.
	MaxRequests int

	// Window is the trailing look-back interval.
	Window time.Duration
}

// Result is the outcome of a single rate-limit check. Check never fails;
// callers branch on Allowed and map the rest onto HTTP headers.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// Remaining is the number of additional requests permitted in the
	// current window. Zero when Allowed is false.
	Remaining int

	// Reset is when the window constraint next relaxes: now+Window on
	// success, or the expiry of the oldest blocking timestamp on rejection.
	Reset time.Time

	// RetryAfter is how long the caller should wait before retrying.
	// Only set when Allowed is false, rounded up to whole seconds.
	RetryAfter time.Duration
}

// Limiter is a sliding-window request counter keyed by identifier.
type Limiter struct {
	mu        sync.Mutex
	entries   map[string][]time.Time
	lastSweep time.Time

	// maxWindow is the largest cfg.Window any check has used. Sweeps must
	// not discard timestamps still valid under it.
	maxWindow time.Duration

	// now is the clock source, replaceable in tests.
	now func() time.Time
}

// New creates an empty [Limiter] using the real clock.
func New() *Limiter {
	return &Limiter{
		entries: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check records an access attempt for identifier under cfg and reports
// whether it is allowed.
//
// Timestamps older than the window are pruned before counting. When the
// pruned count has reached cfg.MaxRequests the attempt is rejected and no
// timestamp is recorded; otherwise the current time is appended and the
// attempt succeeds. Exhausting the limit for one identifier never affects
// another.
func (l *Limiter) Check(identifier string, cfg Config) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cfg.Window > l.maxWindow {
		l.maxWindow = cfg.Window
	}
	l.maybeSweep(now)

	cutoff := now.Add(-cfg.Window)
	valid := pruneBefore(l.entries[identifier], cutoff)

	if len(valid) >= cfg.MaxRequests {
		l.entries[identifier] = valid
		oldest := valid[0]
		reset := oldest.Add(cfg.Window)
		return Result{
			Allowed:    false,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: ceilSeconds(reset.Sub(now)),
		}
	}

	valid = append(valid, now)
	l.entries[identifier] = valid
	return Result{
		Allowed:   true,
		Remaining: cfg.MaxRequests - len(valid),
		Reset:     now.Add(cfg.Window),
	}
}

// Len reports the number of tracked identifiers. Intended for tests and
// health diagnostics.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// maybeSweep drops identifiers whose newest timestamp has aged out of the
// largest window any check has used, so no still-countable timestamp is ever
// discarded. Called under l.mu at most once per sweepInterval.
func (l *Limiter) maybeSweep(now time.Time) {
	if now.Sub(l.lastSweep) < sweepInterval {
		return
	}
	l.lastSweep = now

	retention := l.maxWindow
	if retention < sweepInterval {
		retention = sweepInterval
	}
	horizon := now.Add(-retention)
	for id, stamps := range l.entries {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(horizon) {
			delete(l.entries, id)
		}
	}
}

// pruneBefore returns stamps with every element before cutoff removed.
// Stamps are appended in time order, so a single scan for the first
// surviving element suffices.
func pruneBefore(stamps []time.Time, cutoff time.Time) []time.Time {
	for i, ts := range stamps {
		if !ts.Before(cutoff) {
			return stamps[i:]
		}
	}
	return nil
}

// ceilSeconds rounds d up to a whole number of seconds, minimum 1s for any
// positive remainder. A Retry-After of zero would invite an immediate
// retry that is guaranteed to fail.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := d / time.Second
	if d%time.Second != 0 {
		secs++
	}
	return secs * time.Second
}
