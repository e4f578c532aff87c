package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type captureNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureNotifier) Notify(_ context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureNotifier) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...)
}

func TestTracker_OpensAtExactThreshold(t *testing.T) {
	tr := NewTracker(Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)

	tr.RecordFailure(ProviderSearch, "quota")
	tr.RecordFailure(ProviderSearch, "quota")
	if tr.Snapshot()[ProviderSearch].State != StateClosed {
		t.Fatal("circuit must stay closed below threshold")
	}

	tr.RecordFailure(ProviderSearch, "quota")
	if tr.Snapshot()[ProviderSearch].State != StateOpen {
		t.Fatal("circuit must open at exactly the threshold")
	}
	if err := tr.Allow(ProviderSearch); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open circuit must reject, got %v", err)
	}
}

func TestTracker_SuccessResetsCounter(t *testing.T) {
	tr := NewTracker(Config{FailureThreshold: 3, ResetTimeout: time.Minute}, nil)

	tr.RecordFailure(ProviderLLM, "err")
	tr.RecordFailure(ProviderLLM, "err")
	tr.RecordSuccess(ProviderLLM)

	if got := tr.Snapshot()[ProviderLLM].ConsecutiveFailures; got != 0 {
		t.Errorf("success must reset counter, got %d", got)
	}

	// Two more failures must not open (counter restarted).
	tr.RecordFailure(ProviderLLM, "err")
	tr.RecordFailure(ProviderLLM, "err")
	if tr.Snapshot()[ProviderLLM].State != StateClosed {
		t.Error("circuit opened despite reset counter")
	}
}

func TestTracker_HalfOpenSingleProbe(t *testing.T) {
	now := time.Now()
	tr := NewTracker(Config{FailureThreshold: 1, ResetTimeout: time.Minute}, nil)
	tr.nowFunc = func() time.Time { return now }

	tr.RecordFailure(ProviderSearch, "down")

	// Before reset timeout: rejected.
	if err := tr.Allow(ProviderSearch); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection before reset timeout, got %v", err)
	}

	// After reset timeout: exactly one probe admitted.
	tr.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	if err := tr.Allow(ProviderSearch); err != nil {
		t.Fatalf("first probe must be admitted, got %v", err)
	}
	if err := tr.Allow(ProviderSearch); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent probe must be rejected, got %v", err)
	}

	// Probe success closes the circuit.
	tr.RecordSuccess(ProviderSearch)
	if tr.Snapshot()[ProviderSearch].State != StateClosed {
		t.Error("probe success must close the circuit")
	}
	if err := tr.Allow(ProviderSearch); err != nil {
		t.Errorf("closed circuit must admit calls, got %v", err)
	}
}

func TestTracker_FailedProbeReopens(t *testing.T) {
	now := time.Now()
	tr := NewTracker(Config{FailureThreshold: 1, ResetTimeout: time.Minute}, nil)
	tr.nowFunc = func() time.Time { return now }

	tr.RecordFailure(ProviderSearch, "down")
	tr.nowFunc = func() time.Time { return now.Add(2 * time.Minute) }
	if err := tr.Allow(ProviderSearch); err != nil {
		t.Fatalf("probe must be admitted: %v", err)
	}

	tr.RecordFailure(ProviderSearch, "still down")
	if err := tr.Allow(ProviderSearch); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("failed probe must reopen the circuit, got %v", err)
	}
}

func TestTracker_OpeningPausesSystemAndNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	tr := NewTracker(Config{FailureThreshold: 1, ResetTimeout: time.Minute}, notifier)

	tr.RecordFailure(ProviderLLM, "quota exhausted")

	paused, reason, _ := tr.Paused()
	if !paused || reason != "quota exhausted" {
		t.Errorf("open circuit must pause the system, got paused=%v reason=%q", paused, reason)
	}

	events := notifier.all()
	if len(events) != 1 || events[0].Type != EventSystemPaused {
		t.Fatalf("expected one system_paused event, got %+v", events)
	}
	if events[0].Provider != ProviderLLM {
		t.Errorf("event provider = %q, want llm", events[0].Provider)
	}
	if events[0].HealthState[ProviderLLM].State != StateOpen {
		t.Errorf("event must carry health state, got %+v", events[0].HealthState)
	}
}

func TestTracker_ResumeClearsEverything(t *testing.T) {
	notifier := &captureNotifier{}
	tr := NewTracker(Config{FailureThreshold: 1, ResetTimeout: time.Hour}, notifier)

	tr.RecordFailure(ProviderSearch, "down")
	tr.Resume("admin resume")

	paused, _, _ := tr.Paused()
	if paused {
		t.Error("resume must clear pause flag")
	}
	if tr.Snapshot()[ProviderSearch].State != StateClosed {
		t.Error("resume must close provider circuits")
	}

	events := notifier.all()
	if len(events) != 2 || events[1].Type != EventSystemResumed {
		t.Fatalf("expected paused then resumed events, got %+v", events)
	}
}

func TestTracker_PauseIdempotentNotification(t *testing.T) {
	notifier := &captureNotifier{}
	tr := NewTracker(Config{}, notifier)

	tr.Pause("manual")
	tr.Pause("manual again")

	if got := len(notifier.all()); got != 1 {
		t.Errorf("repeated pause must notify once, got %d events", got)
	}
}

func TestWebhookNotifier_PostsEvent(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Notify(context.Background(), Event{Type: EventSystemPaused, Reason: "test", Timestamp: time.Now()})

	if received.Type != EventSystemPaused || received.Reason != "test" {
		t.Errorf("webhook payload = %+v", received)
	}
}

func TestWebhookNotifier_EmptyURLDropsEvent(t *testing.T) {
	n := NewWebhookNotifier("")
	// Must not panic or attempt delivery.
	n.Notify(context.Background(), Event{Type: EventSystemResumed})
}
