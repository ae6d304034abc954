package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBackendUnavailable is returned by a [GuardedStore] while its backend is
// tripped and the retry window has not yet elapsed.
var ErrBackendUnavailable = errors.New("history: backend unavailable")

// guardState is the operating mode of a GuardedStore.
type guardState int

const (
	// guardClosed forwards every call to the backend.
	guardClosed guardState = iota

	// guardTripped rejects calls until the retry window elapses.
	guardTripped

	// guardProbing lets a limited number of calls through to test whether
	// the backend has recovered.
	guardProbing
)

func (s guardState) String() string {
	switch s {
	case guardClosed:
		return "closed"
	case guardTripped:
		return "tripped"
	case guardProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// GuardConfig tunes a [GuardedStore].
type GuardConfig struct {
	// TripAfter is the number of consecutive backend failures before the
	// guard trips. Default: 5.
	TripAfter int

	// RetryAfter is how long a tripped guard rejects calls before probing
	// the backend again. Default: 30s.
	RetryAfter time.Duration

	// Probes is how many calls may pass while probing before the guard
	// decides whether to close or re-trip. Default: 3.
	Probes int
}

// GuardedStore wraps a [Store] and sheds load from a failing backend.
//
// While the backend keeps erroring, calls fail fast with
// [ErrBackendUnavailable] instead of stacking up on a dead connection pool.
// After RetryAfter the guard probes the backend and closes again once the
// probes succeed. Ping reflects guard state, so readiness checks report an
// unavailable backend without touching it.
type GuardedStore struct {
	inner Store
	log   *slog.Logger

	tripAfter  int
	retryAfter time.Duration
	probes     int

	mu         sync.Mutex
	state      guardState
	failures   int
	trippedAt  time.Time
	probeCalls int
	probeFails int
}

var _ Store = (*GuardedStore)(nil)

// NewGuardedStore wraps inner with failure shedding. Zero-value config
// fields get defaults. A nil logger falls back to slog.Default().
func NewGuardedStore(inner Store, cfg GuardConfig, logger *slog.Logger) *GuardedStore {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuardedStore{
		inner:      inner,
		log:        logger,
		tripAfter:  cfg.TripAfter,
		retryAfter: cfg.RetryAfter,
		probes:     cfg.Probes,
	}
}

// Append archives rec unless the guard is tripped.
func (g *GuardedStore) Append(ctx context.Context, rec *Record) error {
	return g.do(func() error { return g.inner.Append(ctx, rec) })
}

// Recent reads from the backend unless the guard is tripped.
func (g *GuardedStore) Recent(ctx context.Context, clientID string, limit int) ([]Record, error) {
	var recs []Record
	err := g.do(func() error {
		var err error
		recs, err = g.inner.Recent(ctx, clientID, limit)
		return err
	})
	return recs, err
}

// Ping reports [ErrBackendUnavailable] while tripped; otherwise it probes
// the backend and feeds the result back into the guard.
func (g *GuardedStore) Ping(ctx context.Context) error {
	return g.do(func() error { return g.inner.Ping(ctx) })
}

// Close closes the backend. It bypasses the guard: shutdown must release
// the pool even when the guard is tripped.
func (g *GuardedStore) Close() error {
	return g.inner.Close()
}

// do runs fn under the guard's admission rules and records the outcome.
func (g *GuardedStore) do(fn func() error) error {
	g.mu.Lock()
	switch g.state {
	case guardTripped:
		if time.Since(g.trippedAt) < g.retryAfter {
			g.mu.Unlock()
			return ErrBackendUnavailable
		}
		g.state = guardProbing
		g.probeCalls = 0
		g.probeFails = 0
		g.log.Info("history backend guard probing")

	case guardProbing:
		if g.probeCalls >= g.probes {
			// Probe budget spent, decision pending.
			g.mu.Unlock()
			return ErrBackendUnavailable
		}
	}
	probing := g.state == guardProbing
	if probing {
		g.probeCalls++
	}
	g.mu.Unlock()

	err := fn()

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.onFailure(probing)
	} else {
		g.onSuccess(probing)
	}
	return err
}

// onFailure updates counters after a backend error. Caller holds g.mu.
func (g *GuardedStore) onFailure(probing bool) {
	g.trippedAt = time.Now()

	if probing {
		g.probeFails++
		g.state = guardTripped
		g.failures = g.tripAfter
		g.log.Warn("history backend guard re-tripped during probe")
		return
	}

	g.failures++
	if g.state == guardClosed && g.failures >= g.tripAfter {
		g.state = guardTripped
		g.log.Warn("history backend guard tripped",
			"consecutive_failures", g.failures)
	}
}

// onSuccess updates counters after a successful call. Caller holds g.mu.
func (g *GuardedStore) onSuccess(probing bool) {
	if probing {
		if g.probeCalls-g.probeFails >= g.probes {
			g.state = guardClosed
			g.failures = 0
			g.probeCalls = 0
			g.probeFails = 0
			g.log.Info("history backend guard closed after successful probes")
		}
		return
	}
	g.failures = 0
}

// currentState reports the guard's state, accounting for an elapsed retry
// window on a tripped guard.
func (g *GuardedStore) currentState() guardState {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == guardTripped && time.Since(g.trippedAt) >= g.retryAfter {
		return guardProbing
	}
	return g.state
}
