// Package breaker implements the per-(error_type, resource) circuit breaker
// fabric the executor consults before attempting a recovery action.
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pipelineguard/remediator/pkg/shared/errors"
)

// State mirrors gobreaker's three states under the names the spec uses.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func stateFromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitState is a point-in-time snapshot of one key's breaker, returned to
// callers (including the operator surface) without exposing gobreaker types.
type CircuitState struct {
	Key                 string
	State               State
	ConsecutiveFailures int
	OpenedAt            time.Time
	LastOutcomeAt       time.Time
}

// Config is the subset of playbook.Config the fabric needs to create or
// reconfigure a key's breaker. Declared locally (rather than importing
// pkg/playbook) so the fabric has no dependency on the registry package.
type Config struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

type entry struct {
	cb            *gobreaker.TwoStepCircuitBreaker
	openedAt      time.Time
	lastOutcomeAt time.Time

	mu sync.Mutex
}

// Ticket is the single-use token Allow returns for one admitted call. The
// caller that obtained it — and only that caller — must report its outcome
// exactly once via Succeed or Fail; a zero-value Ticket (from a rejected
// Allow) makes both calls harmless no-ops. Because each concurrent Execute
// call for the same key gets its own Ticket, two in-flight calls on a
// shared breaker key can never clobber each other's outcome the way a
// single per-key pending-callback field would.
type Ticket struct {
	e    *entry
	done func(bool)
}

// Succeed reports that the call this ticket admitted completed
// successfully, resetting the key's consecutive failure counter.
func (t Ticket) Succeed() {
	t.record(true)
}

// Fail reports that the call this ticket admitted failed, incrementing the
// key's consecutive failure counter and opening the breaker once its
// configured threshold is reached.
func (t Ticket) Fail() {
	t.record(false)
}

func (t Ticket) record(success bool) {
	if t.done == nil {
		return
	}
	t.e.mu.Lock()
	t.e.lastOutcomeAt = time.Now()
	t.e.mu.Unlock()
	t.done(success)
}

// Fabric holds one breaker per derived key, created lazily on first
// reference and never destroyed except by an explicit Reset.
type Fabric struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	onOpen   func(key string)
}

// NewFabric builds an empty fabric. onOpen, if non-nil, is invoked whenever
// a key transitions to OPEN (used to fire notification sink events).
func NewFabric(onOpen func(key string)) *Fabric {
	return &Fabric{
		entries: make(map[string]*entry),
		onOpen:  onOpen,
	}
}

func (f *Fabric) getOrCreate(key string, cfg Config) *entry {
	f.mu.RLock()
	e, ok := f.entries[key]
	f.mu.RUnlock()
	if ok {
		return e
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[key]; ok {
		return e
	}

	e = &entry{}
	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				e.mu.Lock()
				e.openedAt = time.Now()
				e.mu.Unlock()
				if f.onOpen != nil {
					f.onOpen(key)
				}
			}
		},
	}
	e.cb = gobreaker.NewTwoStepCircuitBreaker(settings)
	f.entries[key] = e
	return e
}

// Allow reports whether a call for key is currently permitted and, if so,
// returns the Ticket that call must use to report its own outcome. A
// rejected call gets a zero-value Ticket; it must not invoke the call at
// all, and reporting against the zero Ticket is a safe no-op.
func (f *Fabric) Allow(key string, cfg Config) (allowed bool, state CircuitState, ticket Ticket, err error) {
	e := f.getOrCreate(key, cfg)

	done, cbErr := e.cb.Allow()
	if cbErr != nil {
		return false, f.snapshot(key, e), Ticket{}, errors.FailedToWithDetails("allow", "circuit_breaker", key, cbErr)
	}

	return true, f.snapshot(key, e), Ticket{e: e, done: done}, nil
}

// Reset forces key back to CLOSED with a fresh counter. Any number of
// resets is equivalent to one: a reset of an already-CLOSED key with no
// failures is a no-op observationally.
func (f *Fabric) Reset(key string) {
	f.mu.Lock()
	delete(f.entries, key)
	f.mu.Unlock()
}

// Snapshot returns the current state of key, creating it (as CLOSED) if it
// has never been referenced.
func (f *Fabric) Snapshot(key string, cfg Config) CircuitState {
	e := f.getOrCreate(key, cfg)
	return f.snapshot(key, e)
}

// SnapshotAll returns the state of every key the fabric has ever created.
func (f *Fabric) SnapshotAll() []CircuitState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]CircuitState, 0, len(f.entries))
	for key, e := range f.entries {
		out = append(out, f.snapshot(key, e))
	}
	return out
}

func (f *Fabric) snapshot(key string, e *entry) CircuitState {
	counts := e.cb.Counts()
	e.mu.Lock()
	openedAt := e.openedAt
	lastOutcomeAt := e.lastOutcomeAt
	e.mu.Unlock()
	return CircuitState{
		Key:                 key,
		State:               stateFromGobreaker(e.cb.State()),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
		OpenedAt:            openedAt,
		LastOutcomeAt:       lastOutcomeAt,
	}
}
