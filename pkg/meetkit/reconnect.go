package meetkit

import (
	"time"

	"github.com/pion/webrtc/v3"
)

type ConnectionHealth = string

const (
	HealthConnected    = ConnectionHealth("connected")
	HealthDisconnected = ConnectionHealth("disconnected")
	HealthFailed       = ConnectionHealth("failed")
)

type ReconnectState = string

const (
	ReconnectStable       = ReconnectState("stable")
	ReconnectReconnecting = ReconnectState("reconnecting")
	ReconnectExhausted    = ReconnectState("exhausted")
)

const (
	MaxReconnectAttempts = 5
	ReconnectInterval    = 3 * time.Second
	OverlayDwell         = 10 * time.Second
)

// ReconnectView is the overlay the room shows while media is degraded.
type ReconnectView struct {
	State       ReconnectState
	Attempt     int
	MaxAttempts int
	Collapsed   bool
}

// Visible is false while the connection is stable.
func (v ReconnectView) Visible() bool {
	return v.State != ReconnectStable
}

// ReconnectSupervisor turns the media transport's connectivity signal into
// overlay state. The attempt counter is a display ceiling only; the
// transport keeps retrying underneath it on its own schedule.
type ReconnectSupervisor struct {
	maxAttempts int
	dwell       time.Duration

	health          ConnectionHealth
	attempt         int
	collapsed       bool
	collapseAt      time.Time
	collapsePending bool
}

func NewReconnectSupervisor() *ReconnectSupervisor {
	return &ReconnectSupervisor{
		maxAttempts: MaxReconnectAttempts,
		dwell:       OverlayDwell,
		health:      HealthConnected,
	}
}

func (v *ReconnectSupervisor) reconnecting() bool {
	return v.health == HealthDisconnected || v.health == HealthFailed
}

// Observe records a new health signal at now. Returning to connected resets
// the attempt counter immediately.
func (v *ReconnectSupervisor) Observe(health ConnectionHealth, now time.Time) bool {
	if health == v.health {
		return false
	}
	was := v.reconnecting()
	v.health = health

	switch {
	case !v.reconnecting():
		v.attempt = 0
		v.collapsed = false
		v.collapsePending = false
	case !was:
		v.collapsed = false
		v.collapsePending = true
		v.collapseAt = now.Add(v.dwell)
	}
	return true
}

// Tick advances the attempt counter. It runs every ReconnectInterval while
// reconnecting and is a no-op otherwise.
func (v *ReconnectSupervisor) Tick() bool {
	if !v.reconnecting() || v.attempt >= v.maxAttempts {
		return false
	}
	v.attempt++
	return true
}

// Poll applies the one-shot auto collapse once the dwell time has passed.
func (v *ReconnectSupervisor) Poll(now time.Time) bool {
	if !v.collapsePending || now.Before(v.collapseAt) {
		return false
	}
	v.collapsePending = false
	if v.collapsed {
		return false
	}
	v.collapsed = true
	return true
}

// Toggle switches between the expanded banner and the collapsed pill. It
// never touches the retry state.
func (v *ReconnectSupervisor) Toggle() {
	v.collapsed = !v.collapsed
}

func (v *ReconnectSupervisor) Health() ConnectionHealth {
	return v.health
}

func (v *ReconnectSupervisor) View() ReconnectView {
	out := ReconnectView{
		State:       ReconnectStable,
		Attempt:     v.attempt,
		MaxAttempts: v.maxAttempts,
		Collapsed:   v.collapsed,
	}
	if v.reconnecting() {
		out.State = ReconnectReconnecting
		if v.attempt >= v.maxAttempts {
			out.State = ReconnectExhausted
		}
	}
	return out
}

// HealthFromICE maps an ICE connection state onto connection health. States
// that say nothing about health report false.
func HealthFromICE(state webrtc.ICEConnectionState) (ConnectionHealth, bool) {
	switch state {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return HealthConnected, true
	case webrtc.ICEConnectionStateDisconnected:
		return HealthDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return HealthFailed, true
	default:
		return "", false
	}
}

// ObservePeerConnection forwards the peer connection's ICE health into out.
// pion calls back on its own goroutines, so the signal is handed to the
// session loop instead of touching the supervisor directly.
func ObservePeerConnection(pc *webrtc.PeerConnection, out chan<- ConnectionHealth) {
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		if health, ok := HealthFromICE(state); ok {
			select {
			case out <- health:
			default:
			}
		}
	})
}
