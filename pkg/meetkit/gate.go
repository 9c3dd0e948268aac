package meetkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type Screen = string

const (
	ScreenLoading        = Screen("loading")
	ScreenLobby          = Screen("lobby")
	ScreenRoom           = Screen("room")
	ScreenTooEarly       = Screen("tooEarly")
	ScreenEnd            = Screen("end")
	ScreenError          = Screen("error")
	ScreenFull           = Screen("full")
	ScreenConnectionLost = Screen("connectionLost")
)

type ScreenAction = string

const (
	ActionRetry          = ScreenAction("retry")
	ActionRejoin         = ScreenAction("rejoin")
	ActionGoHome         = ScreenAction("goHome")
	ActionContactSupport = ScreenAction("contactSupport")
)

const (
	DefaultDisplayName = "Participant"
	EndScreenRecheck   = 30 * time.Second
)

// GateView is the screen decision for one moment of a page load.
type GateView struct {
	Screen        Screen
	Phase         Phase
	CanJoin       bool
	Countdown     Countdown
	Message       string
	ParticipantID string
	Actions       []ScreenAction
}

// Terminal screens never lead back to the lobby within the same load.
// A too early session keeps polling, it turns into the lobby a day ahead.
func (v GateView) Terminal() bool {
	return lo.Contains([]Screen{ScreenEnd, ScreenError, ScreenFull, ScreenConnectionLost}, v.Screen)
}

func sameView(a, b GateView) bool {
	return a.Screen == b.Screen &&
		a.Phase == b.Phase &&
		a.CanJoin == b.CanJoin &&
		a.Countdown == b.Countdown &&
		a.Message == b.Message &&
		len(a.Actions) == len(b.Actions)
}

// Gate decides which screen a participant link shows. Phase changes are
// polled by the caller; nothing is pushed from the server.
type Gate struct {
	participantID string
	resolver      ParticipantResolver
	store         SessionStore
	verifier      *Verifier

	ctx    *ParticipantContext
	window Window
	err    error
	inRoom bool
	last   GateView
}

func NewGate(participantID string, resolver ParticipantResolver, store SessionStore) *Gate {
	return &Gate{participantID: participantID, resolver: resolver, store: store}
}

// WithVerifier checks the issued grant during Load, so a broken grant ends
// the load on the error screen instead of at connect time.
func (v *Gate) WithVerifier(verifier *Verifier) *Gate {
	v.verifier = verifier
	return v
}

// Load resolves the participant link. Any failure is terminal for this load.
func (v *Gate) Load(ctx context.Context) error {
	if v.participantID == "" {
		return v.Fail(newSessionError(KindBookingUnresolved, errors.New("no participant id in link")))
	}

	resolved, err := v.resolver.ResolveParticipant(ctx, v.participantID)
	if err != nil {
		if KindOf(err) == "" {
			err = newSessionError(KindBookingUnresolved, err)
		}
		return v.Fail(err)
	}

	if v.verifier != nil {
		if _, err := v.verifier.Verify(resolved.Token(), resolved.RoomName()); err != nil {
			return v.Fail(newSessionError(KindAuthRejected, err))
		}
	}

	v.ctx = resolved
	v.window = resolved.Window
	return nil
}

func (v *Gate) Context() *ParticipantContext {
	return v.ctx
}

func (v *Gate) Window() Window {
	return v.window
}

func (v *Gate) Err() error {
	return v.err
}

// Fail moves the gate to a terminal screen. The first failure wins.
func (v *Gate) Fail(err error) error {
	if err == nil {
		return nil
	}
	if v.err == nil {
		v.err = err
		log.Warn().Err(err).Str("participant", v.participantID).Msg("Session gate failed.")
	}
	return err
}

// Phase is the timing phase at now, or an empty string before Load.
func (v *Gate) Phase(now time.Time) Phase {
	if v.ctx == nil && !v.inRoom {
		return ""
	}
	return v.window.Classify(now)
}

// Screen decides what to show at now. An expired session pre-empts every
// other state.
func (v *Gate) Screen(now time.Time) GateView {
	out := GateView{ParticipantID: v.participantID}
	loaded := v.ctx != nil || v.inRoom
	if loaded {
		out.Phase = v.window.Classify(now)
	}

	switch {
	case out.Phase == PhaseExpired:
		out.Screen = ScreenEnd
		out.Message = "This session has ended."
		out.Actions = []ScreenAction{ActionGoHome}
	case v.err != nil:
		out = v.failureView(out)
	case !loaded:
		out.Screen = ScreenLoading
	case v.inRoom:
		out.Screen = ScreenRoom
	case out.Phase == PhaseTooEarly:
		if v.window.Start.Sub(now) > TooEarlyScreenLead {
			out.Screen = ScreenTooEarly
			out.Message = fmt.Sprintf("This session starts on %s.", v.window.Start.Local().Format("Mon, 02 Jan 2006 at 15:04"))
			out.Actions = []ScreenAction{ActionGoHome}
		} else {
			out.Screen = ScreenLobby
			out.Countdown = LobbyCountdown(now, v.window.Start)
		}
	default:
		out.Screen = ScreenLobby
		out.CanJoin = true
		out.Countdown = Countdown{Ready: true}
	}

	return out
}

func (v *Gate) failureView(out GateView) GateView {
	out.Message = v.err.Error()
	switch KindOf(v.err) {
	case KindTimingExpired:
		out.Screen = ScreenEnd
		out.Actions = []ScreenAction{ActionGoHome}
	case KindRoomFull:
		out.Screen = ScreenFull
		out.Message = "This session is full."
		out.Actions = []ScreenAction{ActionRetry, ActionGoHome}
	case KindTransportDegraded:
		out.Screen = ScreenConnectionLost
		out.Message = "Unable to reach the session."
		out.Actions = []ScreenAction{ActionRetry, ActionGoHome}
	default:
		out.Screen = ScreenError
		out.Actions = []ScreenAction{ActionRetry, ActionGoHome, ActionContactSupport}
	}
	return out
}

// Poll recomputes the screen and reports whether it changed since the
// previous poll. The lobby flips to joinable through this alone.
func (v *Gate) Poll(now time.Time) (GateView, bool) {
	view := v.Screen(now)
	changed := !sameView(view, v.last)
	v.last = view
	return view, changed
}

// Join writes the participant record that carries the grant into the room.
// It only succeeds while the session is joinable, active or in grace.
func (v *Gate) Join(now time.Time) (models.ParticipantRecord, error) {
	if v.err != nil {
		return models.ParticipantRecord{}, ErrGateClosed
	}
	if v.ctx == nil {
		return models.ParticipantRecord{}, ErrNotJoinable
	}

	switch phase := v.window.Classify(now); phase {
	case PhaseExpired:
		return models.ParticipantRecord{}, v.Fail(newSessionError(KindTimingExpired, ErrNotJoinable))
	case PhaseTooEarly:
		return models.ParticipantRecord{}, ErrNotJoinable
	}

	record := models.ParticipantRecord{
		Token:                 v.ctx.Token(),
		ParticipantIdentifier: v.participantID,
		ParticipantType:       lo.Ternary(v.ctx.ParticipantType != "", v.ctx.ParticipantType, models.ParticipantTypeParticipant),
		DisplayName:           lo.Ternary(v.ctx.ParticipantName != "", v.ctx.ParticipantName, DefaultDisplayName),
		RoomName:              v.ctx.RoomName(),
		Timestamp:             now.UnixMilli(),
	}
	if !v.window.Start.IsZero() {
		record.MeetingStartTime = lo.ToPtr(v.window.Start)
	}
	if !v.window.End.IsZero() {
		record.MeetingEndTime = lo.ToPtr(v.window.End)
	}

	if err := v.store.Save(record); err != nil {
		return models.ParticipantRecord{}, fmt.Errorf("unable to save participant record: %w", err)
	}
	return record, nil
}

// EnterRoom reads the record written by Join. Without one the participant
// never left the lobby and ErrNotJoined sends them back there.
func (v *Gate) EnterRoom() (models.ParticipantRecord, error) {
	if v.err != nil {
		return models.ParticipantRecord{}, ErrGateClosed
	}
	record, ok, err := v.store.Load()
	if err != nil {
		return models.ParticipantRecord{}, fmt.Errorf("unable to read participant record: %w", err)
	} else if !ok || record.Token == "" {
		return models.ParticipantRecord{}, ErrNotJoined
	}

	if v.ctx == nil {
		v.window = Window{
			Start: lo.FromPtr(record.MeetingStartTime),
			End:   lo.FromPtr(record.MeetingEndTime),
		}
	}
	v.inRoom = true
	return record, nil
}

// Leave clears the stored record, used when the participant navigates away
// on purpose.
func (v *Gate) Leave() error {
	v.inRoom = false
	return v.store.Clear()
}

// EndScreen is shown once the session is over. Rejoining stays possible for
// the grace period and is re-checked every EndScreenRecheck.
type EndScreen struct {
	ParticipantID string
	PartnerName   string
	End           time.Time

	canRejoin bool
	checkedAt time.Time
}

func NewEndScreen(participantID string, resolved *ParticipantContext, now time.Time) *EndScreen {
	out := &EndScreen{ParticipantID: participantID}
	if resolved != nil {
		out.End = resolved.Window.End
		if resolved.Booking != nil {
			out.PartnerName = resolved.Booking.PartnerName(resolved.ParticipantType)
		}
	}
	out.canRejoin = out.CanRejoin(now)
	out.checkedAt = now
	return out
}

// CanRejoin is true while now is within the grace period of a known end.
func (v *EndScreen) CanRejoin(now time.Time) bool {
	return !v.End.IsZero() && IsWithinGracePeriod(now, v.End)
}

// Poll re-evaluates the rejoin offer at most once per EndScreenRecheck and
// reports the current offer.
func (v *EndScreen) Poll(now time.Time) bool {
	if now.Sub(v.checkedAt) >= EndScreenRecheck {
		v.canRejoin = v.CanRejoin(now)
		v.checkedAt = now
	}
	return v.canRejoin
}

func (v *EndScreen) Actions() []ScreenAction {
	if v.canRejoin {
		return []ScreenAction{ActionRejoin, ActionGoHome}
	}
	return []ScreenAction{ActionGoHome}
}
