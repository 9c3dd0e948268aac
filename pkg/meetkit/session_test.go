package meetkit

import (
	"context"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitView(t *testing.T, sub <-chan SessionView, cond func(SessionView) bool) SessionView {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case view := <-sub:
			if cond(view) {
				return view
			}
		case <-deadline:
			t.Fatal("session never reached the expected view")
			return SessionView{}
		}
	}
}

// advanceUntil moves the mock clock by step until a published view matches.
func advanceUntil(t *testing.T, mock *clock.Mock, step time.Duration, sub <-chan SessionView, cond func(SessionView) bool) SessionView {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		mock.Add(step)
		select {
		case view := <-sub:
			if cond(view) {
				return view
			}
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("session never reached the expected view")
			return SessionView{}
		}
	}
}

func noHeartbeat(t *testing.T, relay *testRelay) {
	t.Helper()
	for {
		select {
		case msg := <-relay.received:
			assert.NotEqual(t, models.ClientHeartbeat, msg.Type())
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func startSession(t *testing.T, relay *testRelay, record models.ParticipantRecord) (*Session, *clock.Mock, context.CancelFunc, <-chan error) {
	t.Helper()
	mock := clock.NewMock()
	session := NewSession(SessionConfig{
		RelayURL:     relay.server.URL,
		Record:       record,
		ConnectionID: "self-1",
		Clock:        mock,
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	result := make(chan error, 1)
	go func() { result <- session.Run(ctx) }()
	return session, mock, cancel, result
}

func TestSessionHeartbeat(t *testing.T) {
	relay := newTestRelay(t)
	record := sampleRecord()
	record.MeetingStartTime, record.MeetingEndTime = nil, nil
	_, mock, _, _ := startSession(t, relay, record)

	// Tickers exist once the first announce went out.
	relay.expect(t, models.ClientUserUpdate)

	mock.Add(HeartbeatInterval - time.Second)
	noHeartbeat(t, relay)

	mock.Add(time.Second)
	relay.expect(t, models.ClientHeartbeat)
	mock.Add(HeartbeatInterval)
	relay.expect(t, models.ClientHeartbeat)
}

func TestSessionRedialsAfterDrop(t *testing.T) {
	relay := newTestRelay(t)
	record := sampleRecord()
	record.MeetingStartTime, record.MeetingEndTime = nil, nil
	session, mock, _, _ := startSession(t, relay, record)
	sub := session.Subscribe()

	relay.expect(t, models.ClientUserUpdate)
	<-relay.query

	relay.refuse.Store(true)
	relay.drop()
	view := waitView(t, sub, func(view SessionView) bool {
		return view.Reconnect.State == ReconnectReconnecting
	})
	assert.False(t, view.RelayConnected)
	assert.Zero(t, view.Reconnect.Attempt)

	view = advanceUntil(t, mock, ReconnectInterval, sub, func(view SessionView) bool {
		return view.Reconnect.Attempt >= 1
	})
	assert.Equal(t, ReconnectReconnecting, view.Reconnect.State)

	view = advanceUntil(t, mock, ReconnectInterval, sub, func(view SessionView) bool {
		return view.Reconnect.State == ReconnectExhausted
	})
	assert.Equal(t, MaxReconnectAttempts, view.Reconnect.Attempt)

	// The channel keeps redialing past the overlay's ceiling.
	relay.refuse.Store(false)
	view = advanceUntil(t, mock, maxRedialBackoff, sub, func(view SessionView) bool {
		return view.Reconnect.State == ReconnectStable && view.RelayConnected
	})
	assert.Zero(t, view.Reconnect.Attempt)

	query := <-relay.query
	assert.Equal(t, "self-1", query.Get("_pk"))
	announce := relay.expect(t, models.ClientUserUpdate).(models.UserUpdateMessage)
	assert.Equal(t, "self-1", announce.User.ID)
}

func TestSessionExpiresAfterGrace(t *testing.T) {
	relay := newTestRelay(t)
	record := sampleRecord()
	epoch := time.Unix(0, 0)
	record.MeetingStartTime = lo.ToPtr(epoch.Add(-time.Hour))
	record.MeetingEndTime = lo.ToPtr(epoch.Add(time.Minute))
	_, mock, _, result := startSession(t, relay, record)

	relay.expect(t, models.ClientUserUpdate)
	mock.Add(time.Minute + GracePeriod)

	deadline := time.After(waitTimeout)
	for {
		select {
		case err := <-result:
			assert.Equal(t, KindTimingExpired, KindOf(err))
			relay.expect(t, models.ClientUserLeft)
			return
		case <-time.After(20 * time.Millisecond):
			mock.Add(time.Second)
		case <-deadline:
			t.Fatal("session outlived the grace period")
		}
	}
}

func TestSessionTeardownStopsTicking(t *testing.T) {
	relay := newTestRelay(t)
	record := sampleRecord()
	epoch := time.Unix(0, 0)
	record.MeetingStartTime = lo.ToPtr(epoch.Add(-time.Minute))
	record.MeetingEndTime = lo.ToPtr(epoch.Add(time.Hour))
	session, mock, cancel, result := startSession(t, relay, record)
	sub := session.Subscribe()

	relay.expect(t, models.ClientUserUpdate)
	advanceUntil(t, mock, time.Second, sub, func(view SessionView) bool {
		return view.Timer.TimeLeft != ZeroCountdown
	})

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
	}
	relay.expect(t, models.ClientUserLeft)

	select {
	case <-sub:
	default:
	}
	mock.Add(2 * HeartbeatInterval)
	select {
	case view := <-sub:
		t.Fatalf("view published after teardown: %+v", view.Timer)
	case <-time.After(100 * time.Millisecond):
	}
	noHeartbeat(t, relay)
}

func TestSessionRun(t *testing.T) {
	relay := newTestRelay(t)
	record := sampleRecord()
	record.MeetingStartTime, record.MeetingEndTime = nil, nil

	session := NewSession(SessionConfig{
		RelayURL:     relay.server.URL,
		Record:       record,
		ConnectionID: "self-1",
		Clock:        clock.NewMock(),
	})
	sub := session.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- session.Run(ctx) }()

	announce := relay.expect(t, models.ClientUserUpdate).(models.UserUpdateMessage)
	assert.Equal(t, "self-1", announce.User.ID)
	assert.Equal(t, "Sam", announce.User.Name)
	assert.True(t, announce.User.Tracks.AudioEnabled)

	relay.push(t, models.RoomStateMessage{State: models.RoomState{Users: []models.Participant{
		announce.User,
		{ID: "other-1", Name: "Dr. Rivera", Joined: true},
	}}})
	view := waitView(t, sub, func(view SessionView) bool { return len(view.Others) == 1 })
	assert.True(t, view.HasSelf)
	assert.Equal(t, "Dr. Rivera", view.Others[0].Name)
	assert.Equal(t, PhaseJoinable, view.Phase)

	require.NoError(t, session.SendChat(ctx, "hello"))
	chat := relay.expect(t, models.ClientChatMessage).(models.ChatMessageRequest)
	assert.Equal(t, "hello", chat.Message)

	relay.push(t, models.MuteMicCommand{})
	muted := relay.expect(t, models.ClientUserUpdate).(models.UserUpdateMessage)
	assert.False(t, muted.User.Tracks.AudioEnabled)
	waitView(t, sub, func(view SessionView) bool { return view.MicMuted })

	relay.push(t, models.DirectMessageEvent{From: "other-1", Message: "psst"})
	view = waitView(t, sub, func(view SessionView) bool { return len(view.Direct) == 1 })
	assert.Equal(t, DirectMessage{From: "other-1", Message: "psst"}, view.Direct[0])

	ok, err := session.DismissWarning(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	cancel()
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
	}
	relay.expect(t, models.ClientUserLeft)

	assert.ErrorIs(t, session.SendChat(context.Background(), "late"), ErrChannelClosed)
}

func TestSessionStopsOnRejection(t *testing.T) {
	relay := newTestRelay(t)
	session := NewSession(SessionConfig{
		RelayURL:     relay.server.URL,
		Record:       sampleRecord(),
		ConnectionID: "self-1",
		Clock:        clock.NewMock(),
	})

	result := make(chan error, 1)
	go func() { result <- session.Run(context.Background()) }()

	relay.expect(t, models.ClientUserUpdate)
	relay.push(t, models.ErrorMessage{Error: models.RejectBadSignature})

	select {
	case err := <-result:
		assert.Equal(t, KindAuthRejected, KindOf(err))
	case <-time.After(waitTimeout):
		t.Fatal("session did not stop")
	}
}
