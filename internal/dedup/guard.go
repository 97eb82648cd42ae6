package dedup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/store"
)

// Guard decides, before any generation or delivery work begins,
// whether a user's firing should proceed. Two independent checks must
// both pass:
//
//   - daily: no successful delivery since the start of the current UTC
//     calendar day;
//   - cooldown: no delivery attempt (success or failure) within the
//     cooldown window, which keeps two near-simultaneous firing
//     sources (live trigger + queue poller) from both delivering.
//
// Skips are appended to the history as skipped records with a reason;
// they are not delivery failures and do not feed back into either check.
type Guard struct {
	repo     store.Repo
	cooldown time.Duration
	log      *zap.Logger
}

func New(repo store.Repo, cooldown time.Duration, log *zap.Logger) *Guard {
	return &Guard{repo: repo, cooldown: cooldown, log: log}
}

// Check returns true when delivery may proceed. A false return has
// already been recorded as a skip.
func (g *Guard) Check(ctx context.Context, userID string, now time.Time) (bool, error) {
	midnight := now.UTC().Truncate(24 * time.Hour)
	n, err := g.repo.CountByStatusSince(ctx, userID, midnight, domain.StatusSuccess)
	if err != nil {
		return false, err
	}
	if n > 0 {
		g.skip(ctx, userID, now, "already delivered today")
		return false, nil
	}

	n, err = g.repo.CountByStatusSince(ctx, userID, now.Add(-g.cooldown), domain.StatusSuccess, domain.StatusFailed)
	if err != nil {
		return false, err
	}
	if n > 0 {
		g.skip(ctx, userID, now, "attempt within cooldown window")
		return false, nil
	}
	return true, nil
}

func (g *Guard) skip(ctx context.Context, userID string, now time.Time, reason string) {
	g.log.Info("delivery skipped", zap.String("user", userID), zap.String("reason", reason))
	err := g.repo.AppendDelivery(ctx, &domain.DeliveryRecord{
		UserID: userID,
		At:     now.UTC(),
		Status: domain.StatusSkipped,
		Error:  reason,
	})
	if err != nil {
		g.log.Error("record skip failed", zap.String("user", userID), zap.Error(err))
	}
}

// RecordSuccess appends a success record for a completed delivery.
func (g *Guard) RecordSuccess(ctx context.Context, userID string, now time.Time) error {
	return g.repo.AppendDelivery(ctx, &domain.DeliveryRecord{
		UserID: userID,
		At:     now.UTC(),
		Status: domain.StatusSuccess,
	})
}

// RecordFailure appends a failed record for a firing that could not
// generate or deliver.
func (g *Guard) RecordFailure(ctx context.Context, userID string, now time.Time, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return g.repo.AppendDelivery(ctx, &domain.DeliveryRecord{
		UserID: userID,
		At:     now.UTC(),
		Status: domain.StatusFailed,
		Error:  msg,
	})
}
