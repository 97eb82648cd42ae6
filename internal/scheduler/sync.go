package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/registry"
)

// FireFunc executes one user's full check→generate→deliver run.
type FireFunc func(entry domain.Entry, source string)

// Synchronizer reconciles the live trigger set against registry
// snapshots. Sync cycles run on startup, on a fixed interval, and on
// registry change notifications; only one cycle runs at a time.
type Synchronizer struct {
	registry registry.Registry
	triggers *TriggerSet
	fire     FireFunc
	interval time.Duration
	log      *zap.Logger

	syncing atomic.Bool

	mu          sync.Mutex
	lastSync    time.Time // last completed reconcile
	lastAttempt time.Time // last cycle start, completed or not
	lastErr     string
	skipped     int
}

// Status is the synchronizer's read-only view for the ops surface.
// LastSyncAt and SkippedEntries describe the last cycle that actually
// reconciled; a failed cycle only moves LastAttemptAt and the error.
type Status struct {
	ActiveTriggers int       `json:"active_triggers"`
	SkippedEntries int       `json:"skipped_entries"`
	LastSyncAt     time.Time `json:"last_sync_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
	LastSyncError  string    `json:"last_sync_error,omitempty"`
	TriggerUsers   []string  `json:"trigger_users"`
}

func NewSynchronizer(reg registry.Registry, triggers *TriggerSet, fire FireFunc, interval time.Duration, log *zap.Logger) *Synchronizer {
	return &Synchronizer{
		registry: reg,
		triggers: triggers,
		fire:     fire,
		interval: interval,
		log:      log,
	}
}

type plan struct {
	entry domain.Entry
	ft    domain.FiringTime
	key   string
}

// SyncNow reconciles the trigger set against a fresh registry
// snapshot. A request arriving while a cycle is in progress is
// dropped, not queued; the next periodic cycle reconciles anyway.
// When the registry is unreachable the cycle aborts and the
// last-known-good trigger set keeps running unchanged.
func (s *Synchronizer) SyncNow(ctx context.Context) error {
	if !s.syncing.CompareAndSwap(false, true) {
		s.log.Debug("sync already in progress, request dropped")
		return nil
	}
	defer s.syncing.Store(false)

	entries, err := s.registry.ActiveEntries(ctx)
	if err != nil {
		s.log.Error("registry snapshot failed, keeping current triggers", zap.Error(err))
		s.note(err, 0)
		return fmt.Errorf("registry snapshot: %w", err)
	}

	now := time.Now()
	desired := make(map[string]plan, len(entries))
	skipped := 0
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			s.log.Warn("entry skipped", zap.String("user", e.UserID), zap.Error(err))
			skipped++
			continue
		}
		// The UTC pair is recomputed on every cycle; caching it across
		// a DST boundary would freeze the stale offset.
		ft, err := domain.NextUTCFiring(e.DeliveryTime, e.Timezone, now)
		if err != nil {
			s.log.Warn("entry skipped", zap.String("user", e.UserID), zap.Error(err))
			skipped++
			continue
		}
		if ft.Ambiguous {
			s.log.Warn("local delivery time shifted by DST today",
				zap.String("user", e.UserID),
				zap.String("local", e.DeliveryTime),
				zap.String("zone", e.Timezone))
		}
		desired[e.UserID] = plan{
			entry: e,
			ft:    ft,
			key:   e.Timezone + "|" + e.DeliveryTime + "|" + ft.CronSpec(),
		}
	}

	// Stop triggers for users that vanished or whose schedule moved;
	// a stale trigger must never keep firing.
	for _, userID := range s.triggers.Users() {
		if p, ok := desired[userID]; ok {
			if key, _ := s.triggers.Key(userID); key == p.key {
				continue
			}
		}
		s.triggers.Cancel(userID)
	}

	installed := 0
	for userID, p := range desired {
		if _, ok := s.triggers.Key(userID); ok {
			continue
		}
		e := p.entry
		if err := s.triggers.Install(userID, p.ft.CronSpec(), p.key, func() {
			s.fire(e, "timer")
		}); err != nil {
			s.log.Error("trigger install failed", zap.String("user", userID), zap.Error(err))
			skipped++
			continue
		}
		installed++
	}

	s.note(nil, skipped)
	s.log.Info("sync complete",
		zap.Int("active", s.triggers.Count()),
		zap.Int("installed", installed),
		zap.Int("skipped", skipped))
	return nil
}

// Run performs a startup sync, then resyncs on the interval and on
// registry change notifications. A nil changes channel degrades
// gracefully to interval-only resync.
func (s *Synchronizer) Run(ctx context.Context, changes <-chan struct{}) {
	_ = s.SyncNow(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("synchronizer stopping")
			return
		case <-ticker.C:
			_ = s.SyncNow(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			_ = s.SyncNow(ctx)
		}
	}
}

func (s *Synchronizer) note(err error, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.lastAttempt = now
	if err != nil {
		// the cycle aborted before reconciling; lastSync and skipped
		// still describe the last completed cycle
		s.lastErr = err.Error()
		return
	}
	s.lastErr = ""
	s.lastSync = now
	s.skipped = skipped
}

// Status reports the current trigger set and last sync outcome.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	lastSync, lastAttempt, lastErr, skipped := s.lastSync, s.lastAttempt, s.lastErr, s.skipped
	s.mu.Unlock()

	users := s.triggers.Users()
	sort.Strings(users)
	return Status{
		ActiveTriggers: len(users),
		SkippedEntries: skipped,
		LastSyncAt:     lastSync,
		LastAttemptAt:  lastAttempt,
		LastSyncError:  lastErr,
		TriggerUsers:   users,
	}
}
