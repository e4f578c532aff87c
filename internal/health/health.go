// Package health tracks external provider availability with per-provider
// circuit breakers and a system-wide pause flag. State is process-local; the
// durable job state lives in the external job store.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is a provider circuit state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Well-known provider names.
const (
	ProviderSearch = "search"
	ProviderLLM    = "llm"
)

// ErrCircuitOpen is returned when a provider call is rejected because its
// circuit is open, or a half-open probe is already in flight.
var ErrCircuitOpen = eris.New("health: provider circuit is open")

// Config controls circuit behavior for all providers.
type Config struct {
	// FailureThreshold is the number of consecutive failures before a
	// provider's circuit opens. Default: 3.
	FailureThreshold int

	// ResetTimeout is how long an open circuit waits before allowing a
	// half-open probe. Default: 60s.
	ResetTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 60 * time.Second
	}
	return c
}

// Event is a health state change published to the configured notifier.
type Event struct {
	Type        string                    `json:"type"`
	Reason      string                    `json:"reason"`
	Provider    string                    `json:"provider,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
	HealthState map[string]ProviderStatus `json:"healthState"`
}

// Event types.
const (
	EventSystemPaused  = "system_paused"
	EventSystemResumed = "system_resumed"
)

// Notifier receives health events. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// ProviderStatus is an observable snapshot of one provider's circuit.
type ProviderStatus struct {
	State               State `json:"state"`
	ConsecutiveFailures int   `json:"consecutiveFailures"`
	ProbeInFlight       bool  `json:"probeInFlight"`
}

type providerState struct {
	state               State
	consecutiveFailures int
	lastFailureTime     time.Time
	probeInFlight       bool
}

// Tracker holds process-wide provider health. Construct one per process and
// pass it explicitly to the runner and pipeline; provider entries are
// lazily and idempotently initialized on first use.
type Tracker struct {
	cfg      Config
	notifier Notifier

	mu          sync.Mutex
	providers   map[string]*providerState
	paused      bool
	pausedAt    time.Time
	pauseReason string

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewTracker creates a Tracker. notifier may be nil.
func NewTracker(cfg Config, notifier Notifier) *Tracker {
	return &Tracker{
		cfg:       cfg.withDefaults(),
		notifier:  notifier,
		providers: make(map[string]*providerState),
		nowFunc:   time.Now,
	}
}

// provider returns the state entry for name, creating it closed if absent.
// Callers must hold mu.
func (t *Tracker) provider(name string) *providerState {
	ps, ok := t.providers[name]
	if !ok {
		ps = &providerState{state: StateClosed}
		t.providers[name] = ps
	}
	return ps
}

// Allow reports whether a call to the named provider may proceed. An open
// circuit past its reset timeout transitions to half-open and admits exactly
// one probe; a second concurrent probe is rejected.
func (t *Tracker) Allow(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.provider(name)
	switch ps.state {
	case StateClosed:
		return nil
	case StateOpen:
		if t.nowFunc().Sub(ps.lastFailureTime) >= t.cfg.ResetTimeout {
			ps.state = StateHalfOpen
			ps.probeInFlight = true
			zap.L().Info("health: circuit half-open, probing",
				zap.String("provider", name),
			)
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if ps.probeInFlight {
			return ErrCircuitOpen
		}
		ps.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess resets the provider's failure count and closes a half-open
// circuit after a successful probe.
func (t *Tracker) RecordSuccess(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ps := t.provider(name)
	wasHalfOpen := ps.state == StateHalfOpen
	ps.state = StateClosed
	ps.consecutiveFailures = 0
	ps.probeInFlight = false

	if wasHalfOpen {
		zap.L().Info("health: circuit closed after successful probe",
			zap.String("provider", name),
		)
	}
}

// RecordFailure increments the provider's consecutive failure count. Hitting
// the threshold (or failing a half-open probe) opens the circuit, pauses the
// system, and notifies.
func (t *Tracker) RecordFailure(name string, reason string) {
	t.mu.Lock()

	ps := t.provider(name)
	ps.consecutiveFailures++
	ps.lastFailureTime = t.nowFunc()

	opened := false
	switch ps.state {
	case StateClosed:
		if ps.consecutiveFailures >= t.cfg.FailureThreshold {
			ps.state = StateOpen
			opened = true
		}
	case StateHalfOpen:
		ps.state = StateOpen
		ps.probeInFlight = false
		opened = true
	}

	var event *Event
	if opened && !t.paused {
		t.paused = true
		t.pausedAt = t.nowFunc()
		t.pauseReason = reason
		event = &Event{
			Type:        EventSystemPaused,
			Reason:      reason,
			Provider:    name,
			Timestamp:   t.pausedAt,
			HealthState: t.snapshotLocked(),
		}
	}
	t.mu.Unlock()

	if opened {
		zap.L().Error("health: provider circuit opened",
			zap.String("provider", name),
			zap.String("reason", reason),
		)
	}
	if event != nil && t.notifier != nil {
		t.notifier.Notify(context.Background(), *event)
	}
}

// Paused reports the system pause flag with its reason and start time.
func (t *Tracker) Paused() (bool, string, time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused, t.pauseReason, t.pausedAt
}

// Pause sets the system pause flag without touching provider circuits.
func (t *Tracker) Pause(reason string) {
	t.mu.Lock()
	wasPaused := t.paused
	t.paused = true
	t.pausedAt = t.nowFunc()
	t.pauseReason = reason
	var event Event
	if !wasPaused {
		event = Event{
			Type:        EventSystemPaused,
			Reason:      reason,
			Timestamp:   t.pausedAt,
			HealthState: t.snapshotLocked(),
		}
	}
	t.mu.Unlock()

	if !wasPaused && t.notifier != nil {
		t.notifier.Notify(context.Background(), event)
	}
}

// Resume clears the pause flag and closes all provider circuits. This is the
// admin recovery path; circuits otherwise reset only via recorded successes.
func (t *Tracker) Resume(reason string) {
	t.mu.Lock()
	wasPaused := t.paused
	t.paused = false
	t.pauseReason = ""
	for _, ps := range t.providers {
		ps.state = StateClosed
		ps.consecutiveFailures = 0
		ps.probeInFlight = false
	}
	event := Event{
		Type:        EventSystemResumed,
		Reason:      reason,
		Timestamp:   t.nowFunc(),
		HealthState: t.snapshotLocked(),
	}
	t.mu.Unlock()

	if wasPaused && t.notifier != nil {
		t.notifier.Notify(context.Background(), event)
	}
}

// Snapshot returns the current status of every known provider.
func (t *Tracker) Snapshot() map[string]ProviderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() map[string]ProviderStatus {
	snap := make(map[string]ProviderStatus, len(t.providers))
	for name, ps := range t.providers {
		state := ps.state
		if state == StateOpen && t.nowFunc().Sub(ps.lastFailureTime) >= t.cfg.ResetTimeout {
			state = StateHalfOpen
		}
		snap[name] = ProviderStatus{
			State:               state,
			ConsecutiveFailures: ps.consecutiveFailures,
			ProbeInFlight:       ps.probeInFlight,
		}
	}
	return snap
}
