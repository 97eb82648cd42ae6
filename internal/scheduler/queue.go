package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/registry"
	"github.com/michael-learns/momo-daily-brief-scheduler/internal/store"
)

// QueueWorker is the backup delivery path. Due work is persisted as
// queue jobs and processed independently of the in-memory timers, so
// a firing survives scheduler-process gaps. Overlap with the live
// trigger path is harmless: both funnel into the same Executor and
// the dedup guard's cooldown absorbs the double firing.
type QueueWorker struct {
	repo     store.Repo
	registry registry.Registry
	exec     *Executor
	batch    int
	poll     time.Duration
	log      *zap.Logger
}

func NewQueueWorker(repo store.Repo, reg registry.Registry, exec *Executor, batch int, poll time.Duration, log *zap.Logger) *QueueWorker {
	return &QueueWorker{
		repo:     repo,
		registry: reg,
		exec:     exec,
		batch:    batch,
		poll:     poll,
		log:      log,
	}
}

// RunEnqueue scans the registry once a minute and upserts a job for
// every user whose local wall clock matches their delivery time.
func (q *QueueWorker) RunEnqueue(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.log.Info("queue enqueue loop stopping")
			return
		case <-ticker.C:
			q.enqueueTick(ctx, time.Now())
		}
	}
}

func (q *QueueWorker) enqueueTick(ctx context.Context, now time.Time) {
	entries, err := q.registry.ActiveEntries(ctx)
	if err != nil {
		q.log.Error("enqueue scan: registry unavailable", zap.Error(err))
		return
	}
	for i := range entries {
		e := &entries[i]
		if e.Validate() != nil {
			continue // the synchronizer already warns about these
		}
		match, err := domain.MatchesLocalMinute(e, now)
		if err != nil || !match {
			continue
		}
		created, err := q.repo.EnqueueJob(ctx, e.UserID, now)
		if err != nil {
			q.log.Error("enqueue failed", zap.String("user", e.UserID), zap.Error(err))
			continue
		}
		if created {
			q.log.Info("job enqueued", zap.String("user", e.UserID))
		}
	}
}

// RunPoll processes due pending jobs in batches of up to `batch`.
func (q *QueueWorker) RunPoll(ctx context.Context) {
	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.log.Info("queue poll loop stopping")
			return
		case <-ticker.C:
			q.pollTick(ctx, time.Now())
		}
	}
}

func (q *QueueWorker) pollTick(ctx context.Context, now time.Time) {
	jobs, err := q.repo.DuePendingJobs(ctx, now, q.batch)
	if err != nil {
		q.log.Error("due job fetch failed", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	entries, err := q.registry.ActiveEntries(ctx)
	if err != nil {
		q.log.Error("poll: registry unavailable", zap.Error(err))
		return
	}
	byUser := make(map[string]domain.Entry, len(entries))
	for _, e := range entries {
		byUser[e.UserID] = e
	}

	for _, j := range jobs {
		if err := q.repo.MarkJobProcessing(ctx, j.ID); err != nil {
			continue // claimed elsewhere
		}
		e, ok := byUser[j.UserID]
		if !ok {
			_ = q.repo.FinishJob(ctx, j.ID, domain.JobFailed, "user no longer registered")
			continue
		}
		if err := q.exec.Execute(ctx, e, "queue"); err != nil {
			_ = q.repo.FinishJob(ctx, j.ID, domain.JobFailed, err.Error())
			continue
		}
		_ = q.repo.FinishJob(ctx, j.ID, domain.JobCompleted, "")
	}
}
