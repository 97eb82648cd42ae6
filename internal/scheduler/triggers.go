package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// TriggerSet owns the live per-user cron entries, keyed by user id.
// Only the Synchronizer mutates it. Callbacks run on the shared cron
// runner and are recovered individually so one user's panic cannot
// stop the runner or other users' triggers.
type TriggerSet struct {
	runner *cron.Cron
	log    *zap.Logger

	mu      sync.Mutex
	entries map[string]trigger
}

type trigger struct {
	id  cron.EntryID
	key string // fingerprint of the installed schedule
}

func NewTriggerSet(log *zap.Logger) *TriggerSet {
	return &TriggerSet{
		runner:  cron.New(cron.WithLocation(time.UTC)),
		log:     log,
		entries: make(map[string]trigger),
	}
}

func (t *TriggerSet) Start() { t.runner.Start() }

// Stop halts the runner. The returned context is done once all
// running callbacks have finished; no new ones fire after the call.
func (t *TriggerSet) Stop() context.Context { return t.runner.Stop() }

// Install registers a daily trigger for the user, replacing any
// existing one. Two triggers never share a user id.
func (t *TriggerSet) Install(userID, spec, key string, fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if old, ok := t.entries[userID]; ok {
		t.runner.Remove(old.id)
		delete(t.entries, userID)
	}

	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				t.log.Error("trigger callback panic",
					zap.String("user", userID), zap.Any("panic", r))
			}
		}()
		fn()
	}
	id, err := t.runner.AddFunc(spec, wrapped)
	if err != nil {
		return err
	}
	t.entries[userID] = trigger{id: id, key: key}
	return nil
}

// Cancel removes the user's trigger if present.
func (t *TriggerSet) Cancel(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[userID]; ok {
		t.runner.Remove(e.id)
		delete(t.entries, userID)
	}
}

// Key returns the fingerprint the user's trigger was installed with.
func (t *TriggerSet) Key(userID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[userID]
	return e.key, ok
}

// Users returns the ids of all installed triggers.
func (t *TriggerSet) Users() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of installed triggers.
func (t *TriggerSet) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
