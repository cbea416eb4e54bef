package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// recordingSender keeps every delivered message and fails on any message
// containing failOn.
type recordingSender struct {
	mu     sync.Mutex
	sent   []string
	failOn string
}

func (s *recordingSender) SendMessage(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn != "" && strings.Contains(text, s.failOn) {
		return errors.New("telegram API error 502: Bad Gateway")
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSender) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

type memDedup struct {
	keys map[string]time.Duration
}

func (m *memDedup) AlreadySent(_ context.Context, key string) bool {
	_, ok := m.keys[key]
	return ok
}

func (m *memDedup) Record(_ context.Context, key string, ttl time.Duration) {
	m.keys[key] = ttl
}

func TestDispatchContinuesAfterFailure(t *testing.T) {
	sender := &recordingSender{failOn: "second"}
	d := NewDispatcher(sender, testLogger())

	d.Dispatch(context.Background(), []AlertEvent{
		{Severity: SeverityInfo, Category: CategoryVolumeChange, Message: "first"},
		{Severity: SeverityInfo, Category: CategoryRatioChange, Message: "second"},
		{Severity: SeverityInfo, Category: CategoryTVLChange, Message: "third"},
	})

	got := sender.messages()
	if len(got) != 2 || got[0] != "first" || got[1] != "third" {
		t.Errorf("sent = %v, want [first third]", got)
	}
}

func TestDeliverReportsOutcome(t *testing.T) {
	sender := &recordingSender{failOn: "boom"}
	d := NewDispatcher(sender, testLogger())
	ctx := context.Background()

	if !d.Deliver(ctx, AlertEvent{Category: CategoryLifecycle, Message: "ok"}) {
		t.Error("Deliver(ok) = false, want true")
	}
	if d.Deliver(ctx, AlertEvent{Category: CategoryError, Message: "boom"}) {
		t.Error("Deliver(boom) = true, want false")
	}
}

type deadlineSender struct {
	deadline    time.Time
	hasDeadline bool
}

func (s *deadlineSender) SendMessage(ctx context.Context, _ string) error {
	s.deadline, s.hasDeadline = ctx.Deadline()
	return nil
}

func TestDeliverAppliesTimeout(t *testing.T) {
	sender := &deadlineSender{}
	d := NewDispatcher(sender, testLogger())

	d.Deliver(context.Background(), AlertEvent{Category: CategoryLifecycle, Message: "hi"})
	if !sender.hasDeadline {
		t.Fatal("sender context has no deadline")
	}
	if time.Until(sender.deadline) > deliverTimeout {
		t.Errorf("deadline %v exceeds %v", time.Until(sender.deadline), deliverTimeout)
	}
}

func TestDispatchDedup(t *testing.T) {
	sender := &recordingSender{}
	dd := &memDedup{keys: map[string]time.Duration{}}
	d := NewDispatcher(sender, testLogger()).WithDedup(dd, time.Hour)
	ctx := context.Background()

	a := AlertEvent{Severity: SeverityWarning, Category: CategoryApproachingBound, Message: "near lower"}
	if !d.Deliver(ctx, a) {
		t.Fatal("first delivery suppressed")
	}
	if d.Deliver(ctx, a) {
		t.Error("identical alert delivered twice inside the window")
	}

	other := AlertEvent{Severity: SeverityWarning, Category: CategoryApproachingBound, Message: "near upper"}
	if !d.Deliver(ctx, other) {
		t.Error("different message suppressed")
	}
	if len(sender.messages()) != 2 {
		t.Errorf("sent %d messages, want 2", len(sender.messages()))
	}
	for _, ttl := range dd.keys {
		if ttl != time.Hour {
			t.Errorf("recorded ttl = %v, want 1h", ttl)
		}
	}
}

func TestDedupDoesNotRecordFailures(t *testing.T) {
	sender := &recordingSender{failOn: "flaky"}
	dd := &memDedup{keys: map[string]time.Duration{}}
	d := NewDispatcher(sender, testLogger()).WithDedup(dd, time.Hour)

	d.Deliver(context.Background(), AlertEvent{Category: CategoryError, Message: "flaky"})
	if len(dd.keys) != 0 {
		t.Errorf("failed delivery was recorded: %v", dd.keys)
	}
}

func TestWithDedupDisabledByZeroTTL(t *testing.T) {
	sender := &recordingSender{}
	dd := &memDedup{keys: map[string]time.Duration{}}
	d := NewDispatcher(sender, testLogger()).WithDedup(dd, 0)

	a := AlertEvent{Category: CategoryOutOfRange, Message: "below"}
	d.Deliver(context.Background(), a)
	d.Deliver(context.Background(), a)
	if len(sender.messages()) != 2 {
		t.Errorf("sent %d messages, want 2 with dedup off", len(sender.messages()))
	}
}

func TestDedupKey(t *testing.T) {
	a := AlertEvent{Category: CategoryOutOfRange, Message: "below"}
	b := AlertEvent{Category: CategoryOutOfRange, Message: "above"}
	if dedupKey(a) == dedupKey(b) {
		t.Error("distinct messages share a dedup key")
	}
	if !strings.HasPrefix(dedupKey(a), "alert:OUT_OF_RANGE:") {
		t.Errorf("dedupKey = %q, want category prefix", dedupKey(a))
	}
}
