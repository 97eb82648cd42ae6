package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Reasonable pooling for SQLite; it's a single-writer engine.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// AppendDelivery writes one firing-attempt outcome row.
func (r *SQLiteRepo) AppendDelivery(ctx context.Context, rec *domain.DeliveryRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_history (user_id, at_utc, status, error)
		VALUES (?, ?, ?, ?)`,
		rec.UserID, rec.At.UTC().Unix(), rec.Status, rec.Error,
	)
	return err
}

// CountByStatusSince counts a user's records at or after `since` with
// one of the given statuses.
func (r *SQLiteRepo) CountByStatusSince(ctx context.Context, userID string, since time.Time, statuses ...string) (int, error) {
	if len(statuses) == 0 {
		return 0, errors.New("no statuses")
	}
	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses)+2)
	args = append(args, userID, since.UTC().Unix())
	for _, s := range statuses {
		args = append(args, s)
	}

	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM delivery_history
		WHERE user_id = ? AND at_utc >= ? AND status IN (`+placeholders+`)`,
		args...,
	).Scan(&n)
	return n, err
}

// RecentDeliveries returns up to `limit` newest records for a user.
func (r *SQLiteRepo) RecentDeliveries(ctx context.Context, userID string, limit int) ([]domain.DeliveryRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, at_utc, status, error
		FROM delivery_history
		WHERE user_id = ?
		ORDER BY at_utc DESC, id DESC
		LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.DeliveryRecord
	for rows.Next() {
		var (
			uid    string
			atUnix int64
			status string
			errMsg string
		)
		if err := rows.Scan(&uid, &atUnix, &status, &errMsg); err != nil {
			return nil, err
		}
		res = append(res, domain.DeliveryRecord{
			UserID: uid,
			At:     time.Unix(atUnix, 0).UTC(),
			Status: status,
			Error:  errMsg,
		})
	}
	return res, rows.Err()
}

// EnqueueJob upserts a pending job keyed by (user_id, scheduled_at).
// Duplicate enqueues for the same key are no-ops and return false.
func (r *SQLiteRepo) EnqueueJob(ctx context.Context, userID string, scheduledAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queue_jobs (id, user_id, scheduled_at, status, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, 0, '', ?)
		ON CONFLICT(user_id, scheduled_at) DO NOTHING`,
		uuid.NewString(), userID, scheduledAt.UTC().Truncate(time.Minute).Unix(),
		domain.JobPending, time.Now().UTC().Unix(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DuePendingJobs returns up to `limit` pending jobs due at or before `now`.
func (r *SQLiteRepo) DuePendingJobs(ctx context.Context, now time.Time, limit int) ([]domain.QueueJob, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, scheduled_at, status, attempts, last_error
		FROM queue_jobs
		WHERE status = ? AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT ?`,
		domain.JobPending, now.UTC().Unix(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.QueueJob
	for rows.Next() {
		var (
			j       domain.QueueJob
			schUnix int64
		)
		if err := rows.Scan(&j.ID, &j.UserID, &schUnix, &j.Status, &j.Attempts, &j.LastError); err != nil {
			return nil, err
		}
		j.ScheduledAt = time.Unix(schUnix, 0).UTC()
		res = append(res, j)
	}
	return res, rows.Err()
}

// MarkJobProcessing transitions a pending job to processing.
func (r *SQLiteRepo) MarkJobProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = ?
		WHERE id = ? AND status = ?`,
		domain.JobProcessing, id, domain.JobPending,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not pending", id)
	}
	return nil
}

// FinishJob transitions a job to completed or failed and bumps attempts.
func (r *SQLiteRepo) FinishJob(ctx context.Context, id, status, lastError string) error {
	if status != domain.JobCompleted && status != domain.JobFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE queue_jobs
		SET status = ?, attempts = attempts + 1, last_error = ?
		WHERE id = ?`,
		status, lastError, id,
	)
	return err
}
