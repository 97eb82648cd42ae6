package store

import (
	"context"
	"time"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
)

// Repo defines storage operations for the delivery history and the
// backup job queue.
type Repo interface {
	// AppendDelivery writes one firing-attempt outcome. The history is
	// append-only; rows are never mutated.
	AppendDelivery(ctx context.Context, rec *domain.DeliveryRecord) error
	// CountByStatusSince counts records for a user at or after `since`
	// whose status is one of `statuses`.
	CountByStatusSince(ctx context.Context, userID string, since time.Time, statuses ...string) (int, error)
	// RecentDeliveries returns the newest records for a user, newest first.
	RecentDeliveries(ctx context.Context, userID string, limit int) ([]domain.DeliveryRecord, error)

	// EnqueueJob upserts a pending job keyed by (userID, scheduledAt).
	// It returns false when the key already exists (idempotent no-op).
	EnqueueJob(ctx context.Context, userID string, scheduledAt time.Time) (bool, error)
	// DuePendingJobs returns up to `limit` pending jobs whose
	// scheduled_at is at or before `now`, oldest first.
	DuePendingJobs(ctx context.Context, now time.Time, limit int) ([]domain.QueueJob, error)
	// MarkJobProcessing transitions a job to processing.
	MarkJobProcessing(ctx context.Context, id string) error
	// FinishJob transitions a job to completed or failed, incrementing
	// its attempt counter and recording the last error.
	FinishJob(ctx context.Context, id, status, lastError string) error

	Close() error
}
