package meetkit

import (
	"context"
	"errors"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const HeartbeatInterval = 5 * time.Second

type SessionConfig struct {
	RelayURL     string
	Record       models.ParticipantRecord
	ConnectionID string

	// MediaHealth carries the media transport's connectivity, usually fed by
	// ObservePeerConnection. Without it the relay link drives the overlay.
	MediaHealth <-chan ConnectionHealth
	// OnEncryption receives end-to-end key exchange payloads.
	OnEncryption func(payload string)

	Dialer *websocket.Dialer
	Clock  clock.Clock
}

type DirectMessage struct {
	From    string
	Message string
}

// SessionView is an immutable picture of the room handed to subscribers.
type SessionView struct {
	ConnectionID   string
	Self           models.Participant
	HasSelf        bool
	Others         []models.Participant
	Room           models.RoomState
	Chat           []models.ChatMessage
	Direct         []DirectMessage
	Timer          TimerState
	Reconnect      ReconnectView
	Phase          Phase
	RelayConnected bool
	MicMuted       bool
	Notice         string
}

// Session runs one participant's time in the room. Everything it owns is
// touched only from the Run loop; other goroutines talk to it through
// commands and read published views.
type Session struct {
	cfg    SessionConfig
	clock  clock.Clock
	window Window

	view      *RoomView
	timer     *MeetingTimer
	reconnect *ReconnectSupervisor
	channel   *Channel

	self     models.Participant
	direct   []DirectMessage
	phase    Phase
	micMuted bool
	notice   string
	dirty    bool

	commands chan func()
	done     chan struct{}

	subMu       sync.Mutex
	subscribers []chan SessionView
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.ConnectionID == "" {
		cfg.ConnectionID = uuid.NewString()
	}
	window := Window{
		Start: lo.FromPtr(cfg.Record.MeetingStartTime),
		End:   lo.FromPtr(cfg.Record.MeetingEndTime),
	}
	return &Session{
		cfg:       cfg,
		clock:     cfg.Clock,
		window:    window,
		view:      NewRoomView(cfg.ConnectionID),
		timer:     NewMeetingTimer(window.End),
		reconnect: NewReconnectSupervisor(),
		self: models.Participant{
			ID:     cfg.ConnectionID,
			Name:   lo.Ternary(cfg.Record.DisplayName != "", cfg.Record.DisplayName, DefaultDisplayName),
			Joined: true,
			Tracks: models.Tracks{AudioEnabled: true, VideoEnabled: true},
		},
		commands: make(chan func()),
		done:     make(chan struct{}),
	}
}

func (v *Session) ConnectionID() string {
	return v.cfg.ConnectionID
}

// Subscribe returns a channel that always holds the most recent view.
func (v *Session) Subscribe() <-chan SessionView {
	ch := make(chan SessionView, 1)
	v.subMu.Lock()
	v.subscribers = append(v.subscribers, ch)
	v.subMu.Unlock()
	return ch
}

func (v *Session) publish() {
	view := v.snapshot()
	v.subMu.Lock()
	defer v.subMu.Unlock()
	for _, ch := range v.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- view
	}
}

func (v *Session) snapshot() SessionView {
	self, ok := v.view.Self()
	return SessionView{
		ConnectionID:   v.cfg.ConnectionID,
		Self:           self,
		HasSelf:        ok,
		Others:         v.view.Others(),
		Room:           v.view.State(),
		Chat:           v.view.ChatLog(),
		Direct:         append([]DirectMessage(nil), v.direct...),
		Timer:          v.timer.State(),
		Reconnect:      v.reconnect.View(),
		Phase:          v.phase,
		RelayConnected: v.channel != nil && v.channel.Connected(),
		MicMuted:       v.micMuted,
		Notice:         v.notice,
	}
}

// Run connects to the relay and drives the room until ctx ends or the
// session can no longer continue. On return every ticker is stopped and the
// channel is closed after a best-effort userLeft.
func (v *Session) Run(ctx context.Context) error {
	defer close(v.done)

	channel, err := Dial(ctx, ChannelConfig{
		BaseURL:      v.cfg.RelayURL,
		Room:         v.cfg.Record.RoomName,
		ConnectionID: v.cfg.ConnectionID,
		Token:        v.cfg.Record.Token,
		Dialer:       v.cfg.Dialer,
		Clock:        v.clock,
	})
	if err != nil {
		return err
	}
	v.channel = channel
	defer channel.Close()

	heartbeat := v.clock.Ticker(HeartbeatInterval)
	defer heartbeat.Stop()
	timerTick := v.clock.Ticker(TimerInterval)
	defer timerTick.Stop()
	reconnectTick := v.clock.Ticker(ReconnectInterval)
	defer reconnectTick.Stop()

	v.announce()
	v.phase = v.window.Classify(v.clock.Now())
	v.publish()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg, ok := <-channel.Incoming():
			if !ok {
				return channel.Err()
			}
			v.dirty = false
			msg.Accept(v)
			if v.dirty {
				v.publish()
			}

		case health := <-channel.Health():
			log.Debug().Str("room", v.cfg.Record.RoomName).Str("health", health).Msg("Relay connectivity changed.")
			if health == HealthConnected {
				v.announce()
			}
			if v.cfg.MediaHealth == nil {
				v.reconnect.Observe(health, v.clock.Now())
			}
			v.publish()

		case health := <-v.cfg.MediaHealth:
			if v.reconnect.Observe(health, v.clock.Now()) {
				v.publish()
			}

		case <-heartbeat.C:
			if err := channel.Send(models.HeartbeatMessage{}); err != nil {
				log.Debug().Err(err).Msg("Unable to send heartbeat.")
			}

		case now := <-timerTick.C:
			_, changed := v.timer.Tick(now)
			if v.reconnect.Poll(now) {
				changed = true
			}
			if phase := v.window.Classify(now); phase != v.phase {
				v.phase = phase
				changed = true
			}
			if changed {
				v.publish()
			}
			if v.phase == PhaseExpired {
				return newSessionError(KindTimingExpired, errors.New("grace period has elapsed"))
			}

		case <-reconnectTick.C:
			if v.reconnect.Tick() {
				v.publish()
			}

		case cmd := <-v.commands:
			cmd()
			v.publish()
		}
	}
}

// announce tells the relay who this connection is. It runs on connect and
// after every redial.
func (v *Session) announce() {
	if err := v.channel.Send(models.UserUpdateMessage{User: v.self}); err != nil {
		log.Debug().Err(err).Msg("Unable to announce participant.")
	}
}

// do runs fn on the session loop and waits for its result.
func (v *Session) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case v.commands <- func() { result <- fn() }:
	case <-v.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-result
}

func (v *Session) SendChat(ctx context.Context, text string) error {
	return v.do(ctx, func() error {
		return v.channel.Send(models.ChatMessageRequest{Message: text})
	})
}

func (v *Session) SendDirect(ctx context.Context, to, text string) error {
	return v.do(ctx, func() error {
		return v.channel.Send(models.DirectMessageRequest{To: to, Message: text})
	})
}

// MuteUser asks the relay to mute another participant. The relay only
// forwards this for the room owner.
func (v *Session) MuteUser(ctx context.Context, id string) error {
	return v.do(ctx, func() error {
		return v.channel.Send(models.MuteUserRequest{ID: id})
	})
}

// UpdateSelf changes the local participant's status and broadcasts it.
func (v *Session) UpdateSelf(ctx context.Context, update func(*models.Participant)) error {
	return v.do(ctx, func() error {
		update(&v.self)
		v.self.ID = v.cfg.ConnectionID
		v.self.Joined = true
		v.micMuted = !v.self.Tracks.AudioEnabled
		return v.channel.Send(models.UserUpdateMessage{User: v.self})
	})
}

func (v *Session) SendEncryption(ctx context.Context, payload string) error {
	return v.do(ctx, func() error {
		return v.channel.Send(models.EncryptionRequest{Payload: payload})
	})
}

// DismissWarning hides the current timer warning. It reports false at
// time-up.
func (v *Session) DismissWarning(ctx context.Context) (bool, error) {
	var ok bool
	err := v.do(ctx, func() error {
		ok = v.timer.Dismiss()
		return nil
	})
	return ok, err
}

func (v *Session) ToggleOverlay(ctx context.Context) error {
	return v.do(ctx, func() error {
		v.reconnect.Toggle()
		return nil
	})
}

// OnRoomState leaves dirty unset for a snapshot equal to the cached one.
func (v *Session) OnRoomState(msg models.RoomStateMessage) {
	v.dirty = v.view.Apply(msg)
}

func (v *Session) OnChatMessage(msg models.ChatMessageEvent) {
	v.dirty = v.view.Apply(msg)
}

func (v *Session) OnDirectMessage(msg models.DirectMessageEvent) {
	v.direct = append(v.direct, DirectMessage{From: msg.From, Message: msg.Message})
	v.dirty = true
}

func (v *Session) OnMuteMic(models.MuteMicCommand) {
	if !v.self.Tracks.AudioEnabled {
		return
	}
	v.micMuted = true
	v.dirty = true
	v.self.Tracks.AudioEnabled = false
	if err := v.channel.Send(models.UserUpdateMessage{User: v.self}); err != nil {
		log.Debug().Err(err).Msg("Unable to broadcast muted microphone.")
	}
}

func (v *Session) OnError(msg models.ErrorMessage) {
	v.notice = msg.Error
	v.dirty = true
}

func (v *Session) OnUserLeftNotification(msg models.UserLeftNotification) {
	log.Debug().Str("id", msg.ID).Msg("Participant left the room.")
}

func (v *Session) OnPong(models.PongMessage) {}

func (v *Session) OnEncryptionMessage(msg models.EncryptionMessage) {
	if v.cfg.OnEncryption != nil {
		v.cfg.OnEncryption(msg.Payload)
	}
}
