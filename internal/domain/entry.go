package domain

import "time"

// Entry is a read-only snapshot of one user's delivery preferences as
// held by the external registry.
type Entry struct {
	UserID         string
	Timezone       string // IANA name, e.g. "America/New_York"
	DeliveryTime   string // local wall-clock time, "HH:MM"
	RecipientID    string // opaque transport recipient; empty means undeliverable
	ContactAddress string // address used to gather upstream data
}

// Validate reports a ConfigError when the entry cannot be scheduled.
// An entry without a recipient id is excluded from scheduling: there
// is nowhere to deliver to.
func (e *Entry) Validate() error {
	if e.UserID == "" {
		return &ConfigError{Field: "user_id", Reason: "missing"}
	}
	if e.RecipientID == "" {
		return &ConfigError{Field: "recipient_id", Reason: "missing"}
	}
	if _, _, err := ParseHHMM(e.DeliveryTime); err != nil {
		return &ConfigError{Field: "delivery_time", Reason: err.Error()}
	}
	if _, err := time.LoadLocation(e.Timezone); err != nil {
		return &ConfigError{Field: "timezone", Reason: "unknown zone " + e.Timezone}
	}
	return nil
}

// Delivery record statuses. The history table is append-only; one row
// is written per firing attempt and never mutated.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// DeliveryRecord is one firing attempt outcome.
type DeliveryRecord struct {
	UserID string
	At     time.Time // UTC
	Status string
	Error  string // failure or skip reason, empty on success
}

// Queue job statuses.
const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// QueueJob is a persisted due-but-not-yet-delivered work item for the
// backup poller path. (UserID, ScheduledAt) is the natural key.
type QueueJob struct {
	ID          string
	UserID      string
	ScheduledAt time.Time // UTC, rounded to the minute
	Status      string
	Attempts    int
	LastError   string
}
