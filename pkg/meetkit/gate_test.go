package meetkit

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	resolved *ParticipantContext
	err      error
}

func (v fakeResolver) ResolveParticipant(context.Context, string) (*ParticipantContext, error) {
	return v.resolved, v.err
}

func newResolved(token string) *ParticipantContext {
	return &ParticipantContext{
		ParticipantID:   "p-1",
		ParticipantType: models.ParticipantTypeClient,
		Meeting: &models.MeetingParticipantInfo{
			Token:   token,
			Meeting: &models.MeetingInfo{ID: "room-1"},
		},
		Window: Window{Start: testStart, End: testEnd},
	}
}

func loadedGate(t *testing.T) (*Gate, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	gate := NewGate("p-1", fakeResolver{resolved: newResolved("a.b.c")}, store)
	require.NoError(t, gate.Load(context.Background()))
	return gate, store
}

func TestGateLoadFailures(t *testing.T) {
	gate := NewGate("", fakeResolver{}, NewMemoryStore())
	assert.Equal(t, ScreenLoading, gate.Screen(testStart).Screen)
	err := gate.Load(context.Background())
	assert.Equal(t, KindBookingUnresolved, KindOf(err))

	view := gate.Screen(testStart)
	assert.Equal(t, ScreenError, view.Screen)
	assert.Equal(t, []ScreenAction{ActionRetry, ActionGoHome, ActionContactSupport}, view.Actions)
	assert.True(t, view.Terminal())

	gate = NewGate("p-1", fakeResolver{err: errors.New("backend down")}, NewMemoryStore())
	err = gate.Load(context.Background())
	assert.Equal(t, KindBookingUnresolved, KindOf(err))

	_, err = gate.Join(testStart)
	assert.ErrorIs(t, err, ErrGateClosed)
}

func TestGateLoadVerifiesGrant(t *testing.T) {
	key, public := newTestKey(t)
	verifier := NewVerifier(public).WithClock(func() time.Time { return tokenNow })

	gate := NewGate("p-1", fakeResolver{resolved: newResolved(mintToken(t, key, "room-1", nil))}, NewMemoryStore()).
		WithVerifier(verifier)
	assert.NoError(t, gate.Load(context.Background()))

	gate = NewGate("p-1", fakeResolver{resolved: newResolved(mintToken(t, key, "room-2", nil))}, NewMemoryStore()).
		WithVerifier(verifier)
	err := gate.Load(context.Background())
	assert.Equal(t, KindAuthRejected, KindOf(err))
	assert.Equal(t, models.RejectRoomMismatch, RejectionReason(err))
	assert.Equal(t, ScreenError, gate.Screen(testStart).Screen)
}

func TestGateScreens(t *testing.T) {
	gate, _ := loadedGate(t)

	view := gate.Screen(testStart.Add(-48 * time.Hour))
	assert.Equal(t, ScreenTooEarly, view.Screen)
	assert.False(t, view.Terminal())

	view = gate.Screen(testStart.Add(-time.Hour))
	assert.Equal(t, ScreenLobby, view.Screen)
	assert.Equal(t, PhaseTooEarly, view.Phase)
	assert.False(t, view.CanJoin)
	assert.Equal(t, Countdown{Hours: 1}, view.Countdown)

	view = gate.Screen(testStart.Add(-5 * time.Minute))
	assert.Equal(t, ScreenLobby, view.Screen)
	assert.True(t, view.CanJoin)

	view = gate.Screen(testEnd.Add(10 * time.Minute))
	assert.Equal(t, PhaseGrace, view.Phase)
	assert.True(t, view.CanJoin)

	view = gate.Screen(testEnd.Add(16 * time.Minute))
	assert.Equal(t, ScreenEnd, view.Screen)
	assert.Equal(t, PhaseExpired, view.Phase)
}

func TestGatePoll(t *testing.T) {
	gate, _ := loadedGate(t)

	_, changed := gate.Poll(testStart.Add(-6 * time.Minute))
	assert.True(t, changed)
	view, changed := gate.Poll(testStart.Add(-6 * time.Minute))
	assert.False(t, changed)
	assert.False(t, view.CanJoin)

	view, changed = gate.Poll(testStart.Add(-5 * time.Minute))
	assert.True(t, changed)
	assert.True(t, view.CanJoin)
}

func TestGatePollLeavesTooEarly(t *testing.T) {
	gate, _ := loadedGate(t)

	view, _ := gate.Poll(testStart.Add(-25 * time.Hour))
	assert.Equal(t, ScreenTooEarly, view.Screen)
	assert.False(t, view.Terminal())

	view, changed := gate.Poll(testStart.Add(-23 * time.Hour))
	assert.True(t, changed)
	assert.Equal(t, ScreenLobby, view.Screen)
	assert.False(t, view.CanJoin)

	view, _ = gate.Poll(testStart.Add(-5 * time.Minute))
	assert.True(t, view.CanJoin)
	_, err := gate.Join(testStart.Add(-5 * time.Minute))
	assert.NoError(t, err)
}

func TestGateJoinAndEnter(t *testing.T) {
	gate, store := loadedGate(t)

	_, err := gate.EnterRoom()
	assert.ErrorIs(t, err, ErrNotJoined)

	_, err = gate.Join(testStart.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNotJoinable)

	now := testStart.Add(-2 * time.Minute)
	record, err := gate.Join(now)
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", record.Token)
	assert.Equal(t, "room-1", record.RoomName)
	assert.Equal(t, DefaultDisplayName, record.DisplayName)
	assert.Equal(t, models.ParticipantTypeClient, record.ParticipantType)
	assert.Equal(t, now.UnixMilli(), record.Timestamp)
	assert.True(t, record.MeetingEndTime.Equal(testEnd))

	stored, ok, err := store.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, record, stored)

	entered, err := gate.EnterRoom()
	require.NoError(t, err)
	assert.Equal(t, record, entered)
	assert.Equal(t, ScreenRoom, gate.Screen(testStart).Screen)

	assert.Equal(t, ScreenEnd, gate.Screen(testEnd.Add(GracePeriod+time.Second)).Screen)

	require.NoError(t, gate.Leave())
	_, ok, _ = store.Load()
	assert.False(t, ok)
}

func TestGateEnterRoomAfterReload(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Save(sampleRecord()))

	gate := NewGate("p-1", fakeResolver{}, store)
	_, err := gate.EnterRoom()
	require.NoError(t, err)
	assert.Equal(t, Window{Start: testStart, End: testEnd}, gate.Window())
	assert.Equal(t, ScreenRoom, gate.Screen(testStart).Screen)
}

func TestGateJoinExpired(t *testing.T) {
	gate, _ := loadedGate(t)

	_, err := gate.Join(testEnd.Add(GracePeriod + time.Minute))
	assert.ErrorIs(t, err, ErrNotJoinable)
	assert.Equal(t, KindTimingExpired, KindOf(gate.Err()))
}

func TestGateFailureScreens(t *testing.T) {
	gate, _ := loadedGate(t)
	gate.Fail(newSessionError(KindRoomFull, errors.New("roomFull")))
	gate.Fail(newSessionError(KindTransportDegraded, errors.New("later")))

	view := gate.Screen(testStart)
	assert.Equal(t, ScreenFull, view.Screen)
	assert.Equal(t, []ScreenAction{ActionRetry, ActionGoHome}, view.Actions)

	gate, _ = loadedGate(t)
	gate.Fail(newSessionError(KindTransportDegraded, errors.New("dropped")))
	assert.Equal(t, ScreenConnectionLost, gate.Screen(testStart).Screen)
	assert.Equal(t, ScreenEnd, gate.Screen(testEnd.Add(time.Hour)).Screen)
}

func TestEndScreen(t *testing.T) {
	resolved := newResolved("a.b.c")
	resolved.Booking = &models.BookingInfo{
		Provider: models.ProviderInfo{FirstName: "Alex", LastName: "Rivera"},
	}

	screen := NewEndScreen("p-1", resolved, testEnd.Add(14*time.Minute+50*time.Second))
	assert.Equal(t, "Alex Rivera", screen.PartnerName)
	assert.Equal(t, []ScreenAction{ActionRejoin, ActionGoHome}, screen.Actions())

	assert.True(t, screen.Poll(testEnd.Add(15*time.Minute+10*time.Second)))
	assert.False(t, screen.Poll(testEnd.Add(15*time.Minute+20*time.Second)))
	assert.Equal(t, []ScreenAction{ActionGoHome}, screen.Actions())

	assert.False(t, NewEndScreen("p-1", nil, testEnd).CanRejoin(testEnd))
}
