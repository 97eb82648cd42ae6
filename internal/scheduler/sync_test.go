package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
)

type fakeRegistry struct {
	mu      sync.Mutex
	entries []domain.Entry
	err     error
	calls   int
	block   chan struct{} // when set, ActiveEntries waits on it
	started chan struct{} // signals a call has begun
}

func (f *fakeRegistry) ActiveEntries(ctx context.Context) ([]domain.Entry, error) {
	f.mu.Lock()
	f.calls++
	entries, err, block, started := f.entries, f.err, f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return entries, err
}

func (f *fakeRegistry) set(entries []domain.Entry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries, f.err = entries, err
}

func (f *fakeRegistry) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func entry(userID, tz, at string) domain.Entry {
	return domain.Entry{
		UserID:         userID,
		Timezone:       tz,
		DeliveryTime:   at,
		RecipientID:    "rcpt-" + userID,
		ContactAddress: userID + "@example.com",
	}
}

func newTestSync(reg *fakeRegistry) (*Synchronizer, *TriggerSet) {
	triggers := NewTriggerSet(zap.NewNop())
	s := NewSynchronizer(reg, triggers, func(domain.Entry, string) {}, time.Hour, zap.NewNop())
	return s, triggers
}

func TestSyncNow_InstallsOnlyValidEntries(t *testing.T) {
	noRecipient := entry("u3", "UTC", "08:00")
	noRecipient.RecipientID = ""
	reg := &fakeRegistry{entries: []domain.Entry{
		entry("u1", "America/New_York", "08:00"),
		entry("u2", "Europe/Moscow", "07:30"),
		noRecipient,
		entry("u4", "Not/AZone", "08:00"),
	}}
	s, triggers := newTestSync(reg)

	if err := s.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	users := triggers.Users()
	sort.Strings(users)
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Fatalf("want triggers for u1,u2 only, got %v", users)
	}
	st := s.Status()
	if st.ActiveTriggers != 2 || st.SkippedEntries != 2 {
		t.Fatalf("status wrong: %+v", st)
	}
}

func TestSyncNow_CancelsStaleAndReplacesChanged(t *testing.T) {
	reg := &fakeRegistry{entries: []domain.Entry{
		entry("u1", "UTC", "08:00"),
		entry("u2", "UTC", "09:00"),
	}}
	s, triggers := newTestSync(reg)
	if err := s.SyncNow(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	keyBefore, ok := triggers.Key("u1")
	if !ok {
		t.Fatal("u1 not installed")
	}

	// u1 moves to a new delivery time, u2 disappears
	reg.set([]domain.Entry{entry("u1", "UTC", "10:30")}, nil)
	if err := s.SyncNow(context.Background()); err != nil {
		t.Fatalf("resync: %v", err)
	}

	if _, ok := triggers.Key("u2"); ok {
		t.Fatal("stale trigger for u2 survived the sync")
	}
	keyAfter, ok := triggers.Key("u1")
	if !ok {
		t.Fatal("u1 lost its trigger")
	}
	if keyAfter == keyBefore {
		t.Fatal("changed schedule kept the old trigger")
	}
	if triggers.Count() != 1 {
		t.Fatalf("want 1 trigger, got %d", triggers.Count())
	}
}

func TestSyncNow_UnchangedEntryKeepsTrigger(t *testing.T) {
	reg := &fakeRegistry{entries: []domain.Entry{entry("u1", "UTC", "08:00")}}
	s, triggers := newTestSync(reg)
	_ = s.SyncNow(context.Background())
	keyBefore, _ := triggers.Key("u1")

	_ = s.SyncNow(context.Background())
	keyAfter, ok := triggers.Key("u1")
	if !ok || keyAfter != keyBefore {
		t.Fatalf("unchanged entry was reinstalled: before=%q after=%q ok=%v", keyBefore, keyAfter, ok)
	}
}

func TestSyncNow_RegistryDownKeepsLastKnownGood(t *testing.T) {
	noRecipient := entry("u2", "UTC", "09:00")
	noRecipient.RecipientID = ""
	reg := &fakeRegistry{entries: []domain.Entry{entry("u1", "UTC", "08:00"), noRecipient}}
	s, triggers := newTestSync(reg)
	_ = s.SyncNow(context.Background())
	before := s.Status()

	reg.set(nil, errors.New("connection refused"))
	if err := s.SyncNow(context.Background()); err == nil {
		t.Fatal("expected sync error")
	}
	if triggers.Count() != 1 {
		t.Fatalf("registry outage cleared the trigger set: %d", triggers.Count())
	}
	after := s.Status()
	if after.LastSyncError == "" {
		t.Fatal("status does not surface the sync error")
	}
	// the failed cycle reconciled nothing; it must not rewrite the
	// last completed cycle's view
	if after.SkippedEntries != before.SkippedEntries {
		t.Fatalf("failed cycle reset skipped count: before=%d after=%d",
			before.SkippedEntries, after.SkippedEntries)
	}
	if !after.LastSyncAt.Equal(before.LastSyncAt) {
		t.Fatalf("failed cycle advanced LastSyncAt: %v -> %v", before.LastSyncAt, after.LastSyncAt)
	}
	if after.LastAttemptAt.IsZero() || after.LastAttemptAt.Before(before.LastAttemptAt) {
		t.Fatalf("LastAttemptAt not tracked across the failed cycle: before=%v after=%v",
			before.LastAttemptAt, after.LastAttemptAt)
	}
}

func TestSyncNow_SingleFlight(t *testing.T) {
	reg := &fakeRegistry{
		entries: []domain.Entry{entry("u1", "UTC", "08:00")},
		block:   make(chan struct{}),
		started: make(chan struct{}, 1),
	}
	s, _ := newTestSync(reg)

	done := make(chan error, 1)
	go func() { done <- s.SyncNow(context.Background()) }()
	<-reg.started // first cycle is now inside the registry call

	// a concurrent request is dropped, not queued
	if err := s.SyncNow(context.Background()); err != nil {
		t.Fatalf("dropped sync returned error: %v", err)
	}
	if n := reg.callCount(); n != 1 {
		t.Fatalf("second sync ran concurrently: %d registry calls", n)
	}

	close(reg.block)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}
}
