package meetkit

import (
	"fmt"
	"math"
	"time"
)

const (
	// EarlyJoin is how long before the scheduled start a participant may enter.
	EarlyJoin = 5 * time.Minute
	// GracePeriod is how long after the scheduled end rejoining is allowed.
	GracePeriod = 15 * time.Minute
	// TooEarlyScreenLead is how far ahead of the start the lobby gives way to
	// the too-early screen instead of a countdown.
	TooEarlyScreenLead = 24 * time.Hour
)

type Phase = string

const (
	PhaseTooEarly = Phase("tooEarly")
	PhaseJoinable = Phase("joinable")
	PhaseActive   = Phase("active")
	PhaseGrace    = Phase("grace")
	PhaseExpired  = Phase("expired")
)

// Window is the booked appointment. A zero Start or End means the backend
// did not provide it.
type Window struct {
	Start time.Time
	End   time.Time
}

func JoinWindowStart(start time.Time) time.Time {
	return start.Add(-EarlyJoin)
}

func GracePeriodEnd(end time.Time) time.Time {
	return end.Add(GracePeriod)
}

// IsWithinJoinWindow is true once now reaches start minus EarlyJoin. An
// unknown start never blocks entry.
func IsWithinJoinWindow(now, start time.Time) bool {
	if start.IsZero() {
		return true
	}
	return !now.Before(JoinWindowStart(start))
}

func IsTooEarly(now, start time.Time) bool {
	return !IsWithinJoinWindow(now, start)
}

// IsWithinGracePeriod is true up to and including the grace period end. An
// unknown end never expires.
func IsWithinGracePeriod(now, end time.Time) bool {
	if end.IsZero() {
		return true
	}
	return !now.After(GracePeriodEnd(end))
}

func IsMeetingExpired(now, end time.Time) bool {
	return !IsWithinGracePeriod(now, end)
}

// Classify places now into the booking phases. It must be called with a
// fresh now on every tick.
func (w Window) Classify(now time.Time) Phase {
	if IsMeetingExpired(now, w.End) {
		return PhaseExpired
	}
	if !w.End.IsZero() && !now.Before(w.End) {
		return PhaseGrace
	}
	if IsTooEarly(now, w.Start) {
		return PhaseTooEarly
	}
	if w.Start.IsZero() || now.Before(w.Start) {
		return PhaseJoinable
	}
	return PhaseActive
}

// DurationMinutes is the booked length rounded to whole minutes, or -1 when
// either end of the window is unknown.
func (w Window) DurationMinutes() int {
	if w.Start.IsZero() || w.End.IsZero() {
		return -1
	}
	return int(math.Round(w.End.Sub(w.Start).Minutes()))
}

// MinutesRemaining counts whole minutes left before end, never negative.
func MinutesRemaining(now, end time.Time) int {
	diff := end.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(diff / time.Minute)
}

// MinutesUntilStart rounds up so that a lobby never reads "0 minutes" while
// the start is still ahead.
func MinutesUntilStart(now, start time.Time) int {
	diff := start.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Minutes()))
}

// Countdown is the lobby's split of the time left before the start.
type Countdown struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
	// Ready is true once the join window has opened.
	Ready bool
}

func LobbyCountdown(now, start time.Time) Countdown {
	if start.IsZero() {
		return Countdown{Ready: true}
	}
	diff := start.Sub(now)
	if diff <= 0 {
		return Countdown{Ready: true}
	}
	return Countdown{
		Days:    int(diff / (24 * time.Hour)),
		Hours:   int(diff % (24 * time.Hour) / time.Hour),
		Minutes: int(diff % time.Hour / time.Minute),
		Seconds: int(diff % time.Minute / time.Second),
		Ready:   IsWithinJoinWindow(now, start),
	}
}

func FormatDuration(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d min", minutes)
	}
	hours, mins := minutes/60, minutes%60
	if mins == 0 {
		if hours > 1 {
			return fmt.Sprintf("%d hours", hours)
		}
		return fmt.Sprintf("%d hour", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// ParseInstant reads a backend timestamp. Empty or unparsable values are
// reported as the zero time, which the oracle treats as unknown.
func ParseInstant(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}
