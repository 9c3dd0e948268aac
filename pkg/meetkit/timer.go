package meetkit

import (
	"fmt"
	"time"
)

type WarningLevel = string

const (
	WarningNone   = WarningLevel("")
	Warning10Min  = WarningLevel("10-min")
	Warning2Min   = WarningLevel("2-min")
	WarningTimeUp = WarningLevel("time-up")
)

const (
	ZeroCountdown = "00:00:00"
	TimerInterval = time.Second
)

var warningRank = map[WarningLevel]int{
	WarningNone:   0,
	Warning10Min:  1,
	Warning2Min:   2,
	WarningTimeUp: 3,
}

// TimerState is what the room shows about the scheduled end.
type TimerState struct {
	TimeLeft         string
	MinutesRemaining int
	Level            WarningLevel
	ShowWarning      bool
	// Known is false while no end time is loaded.
	Known bool
}

func (v TimerState) IsTimeUp() bool {
	return v.Known && v.TimeLeft == ZeroCountdown
}

// CanDismiss is false at time-up, where the warning stays on screen.
func (v TimerState) CanDismiss() bool {
	return v.ShowWarning && v.Level != WarningTimeUp
}

// MeetingTimer escalates warnings as the scheduled end approaches. Levels
// only move towards time-up for a given end time.
type MeetingTimer struct {
	end       time.Time
	dismissed map[WarningLevel]bool
	state     TimerState
}

func NewMeetingTimer(end time.Time) *MeetingTimer {
	timer := &MeetingTimer{}
	timer.SetEnd(end)
	return timer
}

// SetEnd loads a new end time. A different end time starts over from no
// warning; the same end time keeps the current level and dismissals.
func (v *MeetingTimer) SetEnd(end time.Time) {
	if v.dismissed != nil && end.Equal(v.end) {
		return
	}
	v.end = end
	v.dismissed = make(map[WarningLevel]bool)
	v.state = TimerState{TimeLeft: ZeroCountdown, Known: !end.IsZero()}
}

func (v *MeetingTimer) End() time.Time {
	return v.end
}

func (v *MeetingTimer) State() TimerState {
	return v.state
}

// Tick recomputes the countdown for now and reports whether the visible
// state changed.
func (v *MeetingTimer) Tick(now time.Time) (TimerState, bool) {
	if v.end.IsZero() {
		return v.state, false
	}

	prev := v.state
	diff := v.end.Sub(now)

	var level WarningLevel
	if diff <= 0 {
		v.state.TimeLeft = ZeroCountdown
		v.state.MinutesRemaining = 0
		level = WarningTimeUp
	} else {
		hours := int(diff / time.Hour)
		minutes := int(diff % time.Hour / time.Minute)
		seconds := int(diff % time.Minute / time.Second)
		v.state.TimeLeft = fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
		v.state.MinutesRemaining = hours*60 + minutes
		level = levelFor(v.state.MinutesRemaining)
	}

	if warningRank[level] > warningRank[v.state.Level] {
		v.state.Level = level
		if level == WarningTimeUp || !v.dismissed[level] {
			v.state.ShowWarning = true
		}
	}

	return v.state, v.state != prev
}

func levelFor(minutes int) WarningLevel {
	switch {
	case minutes <= 0:
		return WarningTimeUp
	case minutes <= 2:
		return Warning2Min
	case minutes <= 10:
		return Warning10Min
	default:
		return WarningNone
	}
}

// Dismiss hides the current warning and remembers that this level was
// dismissed. More urgent levels still show. Returns false at time-up.
func (v *MeetingTimer) Dismiss() bool {
	if v.state.Level == WarningTimeUp || v.state.Level == WarningNone {
		return false
	}
	v.dismissed[v.state.Level] = true
	v.state.ShowWarning = false
	return true
}
