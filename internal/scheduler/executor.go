package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/michael-learns/momo-daily-brief-scheduler/internal/domain"
)

// Producer yields the brief content for a user.
type Producer interface {
	Produce(ctx context.Context, userID, contactAddress string) (string, error)
}

// Transport delivers finished content to a recipient.
type Transport interface {
	Deliver(ctx context.Context, recipientID, content string) error
}

// Guard gates firing attempts and records their outcomes.
type Guard interface {
	Check(ctx context.Context, userID string, now time.Time) (bool, error)
	RecordSuccess(ctx context.Context, userID string, now time.Time) error
	RecordFailure(ctx context.Context, userID string, now time.Time, cause error) error
}

// Executor runs the full per-user firing sequence: dedup check, brief
// generation, delivery, outcome log. Steps are strictly sequential
// within one firing; firings for different users are independent.
type Executor struct {
	guard     Guard
	producer  Producer
	transport Transport
	timeout   time.Duration
	log       *zap.Logger
}

func NewExecutor(guard Guard, producer Producer, transport Transport, timeout time.Duration, log *zap.Logger) *Executor {
	return &Executor{
		guard:     guard,
		producer:  producer,
		transport: transport,
		timeout:   timeout,
		log:       log,
	}
}

// Execute runs one firing for the entry. Failures are logged and
// recorded in the delivery history before being returned; the error
// is for the caller's own bookkeeping (e.g. queue job state). A
// dedup skip returns nil.
func (x *Executor) Execute(ctx context.Context, e domain.Entry, source string) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	ok, err := x.guard.Check(ctx, e.UserID, time.Now())
	if err != nil {
		x.log.Error("dedup check failed", zap.String("user", e.UserID), zap.Error(err))
		return err
	}
	if !ok {
		return nil
	}

	content, err := x.producer.Produce(ctx, e.UserID, e.ContactAddress)
	if err != nil {
		x.log.Error("brief generation failed",
			zap.String("user", e.UserID), zap.String("source", source), zap.Error(err))
		x.recordFailure(e.UserID, err)
		return err
	}

	if err := x.transport.Deliver(ctx, e.RecipientID, content); err != nil {
		x.log.Error("delivery failed",
			zap.String("user", e.UserID), zap.String("source", source), zap.Error(err))
		x.recordFailure(e.UserID, err)
		return err
	}

	x.recordSuccess(e.UserID)
	x.log.Info("brief delivered", zap.String("user", e.UserID), zap.String("source", source))
	return nil
}

// recordTimeout bounds the outcome write itself.
const recordTimeout = 10 * time.Second

// Outcome records are written under a fresh context. When the firing
// failed because its own deadline expired, reusing that context would
// drop the record and leave the cooldown window empty for the next
// firing source.
func (x *Executor) recordFailure(userID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := x.guard.RecordFailure(ctx, userID, time.Now(), cause); err != nil {
		x.log.Error("record failure failed", zap.String("user", userID), zap.Error(err))
	}
}

func (x *Executor) recordSuccess(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := x.guard.RecordSuccess(ctx, userID, time.Now()); err != nil {
		x.log.Error("record success failed", zap.String("user", userID), zap.Error(err))
	}
}
