package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FiringTime is the UTC wall-clock pair for a daily recurring firing.
type FiringTime struct {
	Hour   int
	Minute int
	// Ambiguous is set when the requested local time did not exist
	// today (DST gap) and the zone library shifted it.
	Ambiguous bool
}

// CronSpec renders the firing as a daily cron expression evaluated in
// UTC ("minute hour * * *").
func (f FiringTime) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", f.Minute, f.Hour)
}

func (f FiringTime) String() string {
	return fmt.Sprintf("%02d:%02d UTC", f.Hour, f.Minute)
}

// ParseHHMM parses a local wall-clock time in "HH:MM" form.
func ParseHHMM(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("expected HH:MM")
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, errors.New("invalid hour")
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, errors.New("invalid minute")
	}
	return h, m, nil
}

// NextUTCFiring converts a local delivery time in the given IANA zone
// into the UTC pair at which it occurs today. The offset is derived
// from today's date in the target zone, so daylight-saving shifts are
// picked up as long as callers recompute each sync cycle instead of
// caching the result.
//
// A nonexistent local time (spring-forward gap) normalizes to the
// shifted wall clock; a repeated one (fall-back overlap) resolves to
// whichever instant time.Date picks. Both cases are flagged Ambiguous
// so callers can log them.
func NextUTCFiring(localHHMM, tz string, now time.Time) (FiringTime, error) {
	h, m, err := ParseHHMM(localHHMM)
	if err != nil {
		return FiringTime{}, &ConfigError{Field: "delivery_time", Reason: err.Error()}
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return FiringTime{}, &ConfigError{Field: "timezone", Reason: "unknown zone " + tz}
	}

	localNow := now.In(loc)
	local := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), h, m, 0, 0, loc)
	utc := local.UTC()

	ft := FiringTime{Hour: utc.Hour(), Minute: utc.Minute()}
	if local.Hour() != h || local.Minute() != m {
		// gap: the requested wall clock did not exist today
		ft.Ambiguous = true
	} else if overlaps(local, loc, h, m) {
		// overlap: a second instant shows the same wall clock today
		ft.Ambiguous = true
	}
	return ft, nil
}

// overlaps reports whether another instant within a DST shift of the
// chosen one displays the same local wall clock (fall-back repeat).
// Shifts of a full hour and a half hour cover the zones in use.
func overlaps(chosen time.Time, loc *time.Location, h, m int) bool {
	for _, d := range []time.Duration{-time.Hour, -30 * time.Minute, 30 * time.Minute, time.Hour} {
		alt := chosen.Add(d).In(loc)
		if alt.Hour() == h && alt.Minute() == m {
			return true
		}
	}
	return false
}

// MatchesLocalMinute reports whether the entry's delivery time equals
// "now" in the entry's zone, to minute precision. Used by the queue
// enqueue cycle.
func MatchesLocalMinute(e *Entry, now time.Time) (bool, error) {
	h, m, err := ParseHHMM(e.DeliveryTime)
	if err != nil {
		return false, &ConfigError{Field: "delivery_time", Reason: err.Error()}
	}
	loc, err := time.LoadLocation(e.Timezone)
	if err != nil {
		return false, &ConfigError{Field: "timezone", Reason: "unknown zone " + e.Timezone}
	}
	localNow := now.In(loc)
	return localNow.Hour() == h && localNow.Minute() == m, nil
}
