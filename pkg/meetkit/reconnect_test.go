package meetkit

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
)

func TestReconnectSupervisorAttempts(t *testing.T) {
	now := testStart
	supervisor := NewReconnectSupervisor()
	assert.False(t, supervisor.View().Visible())
	assert.False(t, supervisor.Tick())

	assert.True(t, supervisor.Observe(HealthDisconnected, now))
	assert.False(t, supervisor.Observe(HealthDisconnected, now))
	for i := 0; i < 10; i++ {
		supervisor.Tick()
	}
	view := supervisor.View()
	assert.Equal(t, MaxReconnectAttempts, view.Attempt)
	assert.Equal(t, ReconnectExhausted, view.State)

	supervisor.Observe(HealthFailed, now)
	assert.Equal(t, MaxReconnectAttempts, supervisor.View().Attempt)

	supervisor.Observe(HealthConnected, now)
	view = supervisor.View()
	assert.Equal(t, ReconnectStable, view.State)
	assert.Zero(t, view.Attempt)
	assert.False(t, view.Visible())
}

func TestReconnectSupervisorCollapse(t *testing.T) {
	now := testStart
	supervisor := NewReconnectSupervisor()
	supervisor.Observe(HealthDisconnected, now)
	supervisor.Tick()
	assert.Equal(t, ReconnectReconnecting, supervisor.View().State)
	assert.False(t, supervisor.View().Collapsed)

	assert.False(t, supervisor.Poll(now.Add(OverlayDwell-time.Second)))
	assert.True(t, supervisor.Poll(now.Add(OverlayDwell)))
	assert.True(t, supervisor.View().Collapsed)

	supervisor.Toggle()
	assert.False(t, supervisor.View().Collapsed)
	assert.False(t, supervisor.Poll(now.Add(2*OverlayDwell)))
	assert.False(t, supervisor.View().Collapsed)
	assert.Equal(t, 1, supervisor.View().Attempt)
}

func TestReconnectSupervisorResetClearsCollapse(t *testing.T) {
	now := testStart
	supervisor := NewReconnectSupervisor()
	supervisor.Observe(HealthDisconnected, now)
	supervisor.Observe(HealthConnected, now.Add(time.Second))
	assert.False(t, supervisor.Poll(now.Add(OverlayDwell)))

	supervisor.Observe(HealthFailed, now.Add(time.Minute))
	assert.False(t, supervisor.Poll(now.Add(time.Minute+OverlayDwell/2)))
	assert.True(t, supervisor.Poll(now.Add(time.Minute+OverlayDwell)))
}

func TestHealthFromICE(t *testing.T) {
	tests := []struct {
		state webrtc.ICEConnectionState
		want  ConnectionHealth
		ok    bool
	}{
		{webrtc.ICEConnectionStateConnected, HealthConnected, true},
		{webrtc.ICEConnectionStateCompleted, HealthConnected, true},
		{webrtc.ICEConnectionStateDisconnected, HealthDisconnected, true},
		{webrtc.ICEConnectionStateFailed, HealthFailed, true},
		{webrtc.ICEConnectionStateChecking, "", false},
		{webrtc.ICEConnectionStateNew, "", false},
	}
	for _, tt := range tests {
		health, ok := HealthFromICE(tt.state)
		assert.Equal(t, tt.ok, ok, tt.state.String())
		assert.Equal(t, tt.want, health, tt.state.String())
	}
}
