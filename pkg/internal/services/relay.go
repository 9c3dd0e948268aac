package services

import (
	"errors"
	"sync"
	"time"

	localModels "git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Close codes the relay uses when it refuses or drops a connection.
const (
	ClosePolicyViolation = 1008
	CloseTryAgainLater   = 1013
	CloseGoingAway       = 1001
	CloseNormal          = 1000
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Peer is the relay's handle on one socket.
type Peer interface {
	Send(data []byte) error
	Close(code int, reason string) error
}

// TokenVerifier checks an access grant for a room.
type TokenVerifier interface {
	Verify(token string, expectedRoom string) (*models.AccessClaims, error)
}

// RelayHooks observes room lifecycles. Calls happen outside relay locks.
type RelayHooks interface {
	RoomStarted(room string, meetingID string)
	RoomEnded(room string, meetingID string, peak int)
	ParticipantJoined(room string, meetingID string, conn ConnectionInfo)
	ParticipantLeft(room string, meetingID string, conn ConnectionInfo, reason string)
}

type ConnectionInfo struct {
	ID          string
	Participant string
	UserID      string
	DisplayName string
	IsOwner     bool
	ConnectedAt time.Time
}

type Connection struct {
	ConnectionInfo

	peer     Peer
	user     models.Participant
	lastSeen time.Time

	// Frames are queued in relay lock order and written by flush, so a slow
	// socket never holds the relay lock.
	queueMu sync.Mutex
	queue   [][]byte
	sendMu  sync.Mutex
}

func (v *Connection) enqueue(data []byte) {
	v.queueMu.Lock()
	v.queue = append(v.queue, data)
	v.queueMu.Unlock()
}

// flush writes every queued frame in order. Concurrent callers serialise on
// sendMu and whoever holds it drains frames queued by the others too.
func (v *Connection) flush() {
	v.sendMu.Lock()
	defer v.sendMu.Unlock()
	for {
		v.queueMu.Lock()
		if len(v.queue) == 0 {
			v.queueMu.Unlock()
			return
		}
		data := v.queue[0]
		v.queue[0] = nil
		v.queue = v.queue[1:]
		v.queueMu.Unlock()

		if err := v.peer.Send(data); err != nil {
			log.Warn().Str("event", "errorBroadcastingToUser").Str("id", v.ID).Err(err).Msg("An error occurred when sending to user.")
		}
	}
}

// dispatch collects the connections that got frames while the relay lock
// was held. Flush it after unlocking.
type dispatch struct {
	conns []*Connection
}

func (v *dispatch) push(conn *Connection, data []byte) {
	conn.enqueue(data)
	if !lo.Contains(v.conns, conn) {
		v.conns = append(v.conns, conn)
	}
}

func (v *dispatch) flush() {
	for _, conn := range v.conns {
		conn.flush()
	}
}

type Room struct {
	Name      string
	MeetingID string

	conns []*Connection
	peak  int
}

func (v *Room) find(id string) (*Connection, bool) {
	return lo.Find(v.conns, func(item *Connection) bool {
		return item.ID == id
	})
}

func (v *Room) has(conn *Connection) bool {
	return lo.Contains(v.conns, conn)
}

func (v *Room) state() models.RoomState {
	return models.RoomState{
		MeetingID: v.MeetingID,
		Users: lo.Map(v.conns, func(item *Connection, _ int) models.Participant {
			return item.user
		}),
	}
}

type RelayConfig struct {
	MaxParticipants  int
	HeartbeatTimeout time.Duration
	Now              func() time.Time
}

// Relay is the authority over room membership. Every room's state lives
// here and clients only ever see snapshots of it.
type Relay struct {
	mu    sync.Mutex
	rooms map[string]*Room

	verifier TokenVerifier
	hooks    RelayHooks
	cfg      RelayConfig
}

var ErrConnectionRejected = errors.New("connection rejected")

func NewRelay(verifier TokenVerifier, hooks RelayHooks, cfg RelayConfig) *Relay {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 30 * time.Second
	}
	return &Relay{
		rooms:    make(map[string]*Room),
		verifier: verifier,
		hooks:    hooks,
		cfg:      cfg,
	}
}

func (v *Relay) reject(peer Peer, room, reason string, code int) error {
	metricRejections.WithLabelValues(reason).Inc()
	if data, err := models.EncodeServerMessage(models.ErrorMessage{Error: reason}); err == nil {
		_ = peer.Send(data)
	}
	_ = peer.Close(code, reason)
	return ErrConnectionRejected
}

// Connect admits a socket into a room. The grant must verify against the
// room in the path. The requested connection id is honoured unless another
// participant's live connection already holds it. When the same participant
// redials before its old socket is noticed dead, the new socket takes over
// the id and the old one is closed.
func (v *Relay) Connect(room, requestedID, token string, peer Peer) (*Connection, error) {
	log.Info().Str("event", "onConnect").Str("room", room).Str("id", requestedID).Msg("Incoming relay connection.")

	if token == "" {
		log.Warn().Str("event", "noAuthProvided").Str("room", room).Msg("Connection has no access grant.")
		return nil, v.reject(peer, room, models.RejectNoAuthProvided, ClosePolicyViolation)
	}

	claims, err := v.verifier.Verify(token, room)
	if err != nil {
		reason := meetkit.RejectionReason(err)
		if reason == "" {
			reason = models.RejectMalformedToken
		}
		log.Warn().Str("event", "tokenVerificationFailed").Str("room", room).Str("reason", reason).Err(err).Msg("Access grant rejected.")
		return nil, v.reject(peer, room, reason, ClosePolicyViolation)
	}
	log.Info().Str("event", "tokenVerified").Str("room", room).Str("participant", claims.ParticipantID).Msg("Access grant verified.")

	now := v.cfg.Now()

	v.mu.Lock()
	target, started := v.rooms[room], false
	if target == nil {
		target = &Room{Name: room, MeetingID: uuid.NewString()}
		v.rooms[room] = target
		started = true
	}

	id := requestedID
	var replaced *Connection
	if existing, taken := target.find(id); id == "" {
		id = uuid.NewString()
	} else if taken && existing.Participant == claims.ParticipantID {
		replaced = existing
	} else if taken {
		id = uuid.NewString()
	}

	if replaced == nil && v.cfg.MaxParticipants > 0 && len(target.conns) >= v.cfg.MaxParticipants {
		if started {
			delete(v.rooms, room)
		}
		v.mu.Unlock()
		return nil, v.reject(peer, room, models.ErrorRoomFull, CloseTryAgainLater)
	}

	conn := &Connection{
		ConnectionInfo: ConnectionInfo{
			ID:          id,
			Participant: claims.ParticipantID,
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			IsOwner:     claims.IsOwner,
			ConnectedAt: now,
		},
		peer:     peer,
		user:     models.Participant{ID: id, Name: claims.DisplayName},
		lastSeen: now,
	}
	if replaced != nil {
		// Keep the slot so the others see the same participant in the same place.
		conn.user = replaced.user
		target.conns = lo.Map(target.conns, func(item *Connection, _ int) *Connection {
			return lo.Ternary(item == replaced, conn, item)
		})
	} else {
		target.conns = append(target.conns, conn)
	}
	target.peak = max(target.peak, len(target.conns))
	meetingID := target.MeetingID

	out := new(dispatch)
	v.broadcastState(out, target)
	v.mu.Unlock()
	out.flush()

	if replaced != nil {
		log.Info().Str("event", "connectionReplaced").Str("room", room).Str("id", id).Msg("Participant redialed, replaced the stale connection.")
		_ = replaced.peer.Close(CloseGoingAway, "replaced")
		if v.hooks != nil {
			v.hooks.ParticipantLeft(room, meetingID, replaced.ConnectionInfo, localModels.AttendanceReplaced)
		}
	} else {
		metricConnections.Inc()
	}
	if started {
		metricActiveRooms.Inc()
		log.Info().Str("event", "startingMeeting").Str("room", room).Str("meeting", meetingID).Msg("Room is now active.")
		if v.hooks != nil {
			v.hooks.RoomStarted(room, meetingID)
		}
	}
	if v.hooks != nil {
		v.hooks.ParticipantJoined(room, meetingID, conn.ConnectionInfo)
	}

	return conn, nil
}

func (v *Relay) send(out *dispatch, room *Room, conn *Connection, msg models.ServerMessage) {
	data, err := models.EncodeServerMessage(msg)
	if err != nil {
		log.Error().Str("event", "errorBroadcastingToUser").Str("room", room.Name).Err(err).Msg("Unable to encode relay message.")
		return
	}
	out.push(conn, data)
}

func (v *Relay) broadcast(out *dispatch, room *Room, msg models.ServerMessage, except ...string) {
	for _, conn := range room.conns {
		if lo.Contains(except, conn.ID) {
			continue
		}
		v.send(out, room, conn, msg)
	}
}

func (v *Relay) broadcastState(out *dispatch, room *Room) {
	v.broadcast(out, room, models.RoomStateMessage{State: room.state()})
}

// Handle processes one frame from a connection. Frames of unknown type are
// ignored; malformed ones are answered with an error message.
// Frames from a connection that has been replaced or removed are dropped.
func (v *Relay) Handle(room string, conn *Connection, data []byte) {
	msg, err := models.DecodeClientMessage(data)
	if errors.Is(err, models.ErrUnknownVariant) {
		log.Debug().Str("room", room).Err(err).Msg("Ignored unknown client message.")
		return
	}

	v.mu.Lock()
	target := v.rooms[room]
	if target == nil {
		v.mu.Unlock()
		return
	}
	if !target.has(conn) {
		v.mu.Unlock()
		return
	}
	conn.lastSeen = v.cfg.Now()

	out := new(dispatch)
	if err == nil {
		err = validate.Struct(msg)
	}
	if err != nil {
		log.Warn().Str("event", "errorHandlingMessage").Str("room", room).Str("id", conn.ID).Err(err).Msg("Unable to handle client message.")
		v.send(out, target, conn, models.ErrorMessage{Error: models.ErrorInvalidMessage})
		v.mu.Unlock()
		out.flush()
		return
	}

	metricMessages.WithLabelValues(msg.Type()).Inc()
	handler := &relayHandler{relay: v, room: target, conn: conn, out: out}
	msg.Accept(handler)
	v.mu.Unlock()
	out.flush()

	if handler.left {
		v.Disconnect(room, conn, localModels.AttendanceLeft)
		_ = conn.peer.Close(CloseNormal, "userLeft")
	}
}

// relayHandler applies one client message while the relay lock is held.
type relayHandler struct {
	relay *Relay
	room  *Room
	conn  *Connection
	out   *dispatch
	left  bool
}

func (v *relayHandler) OnHeartbeat(models.HeartbeatMessage) {}

func (v *relayHandler) OnUserUpdate(msg models.UserUpdateMessage) {
	user := msg.User
	user.ID = v.conn.ID
	if user.Name == "" {
		user.Name = v.conn.DisplayName
	}
	v.conn.user = user
	v.relay.broadcastState(v.out, v.room)
}

func (v *relayHandler) OnUserLeft(models.UserLeftMessage) {
	log.Info().Str("event", "userLeft").Str("room", v.room.Name).Str("id", v.conn.ID).Msg("Participant said goodbye.")
	v.left = true
}

func (v *relayHandler) OnChatMessage(msg models.ChatMessageRequest) {
	v.relay.broadcast(v.out, v.room, models.ChatMessageEvent{Message: models.ChatMessage{
		ID:      uuid.NewString(),
		From:    lo.Ternary(v.conn.user.Name != "", v.conn.user.Name, v.conn.DisplayName),
		FromID:  v.conn.ID,
		Message: msg.Message,
	}})
}

func (v *relayHandler) OnDirectMessage(msg models.DirectMessageRequest) {
	target, ok := v.room.find(msg.To)
	if !ok {
		v.relay.send(v.out, v.room, v.conn, models.ErrorMessage{Error: models.ErrorInvalidMessage})
		return
	}
	v.relay.send(v.out, v.room, target, models.DirectMessageEvent{From: v.conn.ID, Message: msg.Message})
}

func (v *relayHandler) OnMuteUser(msg models.MuteUserRequest) {
	if !v.conn.IsOwner {
		v.relay.send(v.out, v.room, v.conn, models.ErrorMessage{Error: models.ErrorNotPermitted})
		return
	}
	if target, ok := v.room.find(msg.ID); ok {
		v.relay.send(v.out, v.room, target, models.MuteMicCommand{})
	}
}

func (v *relayHandler) OnEncryptionMessage(msg models.EncryptionRequest) {
	v.relay.broadcast(v.out, v.room, models.EncryptionMessage{Payload: msg.Payload}, v.conn.ID)
}

func (v *relayHandler) OnPing(models.PingMessage) {
	v.relay.send(v.out, v.room, v.conn, models.PongMessage{})
}

// Disconnect removes a connection and tells the others. It is safe to call
// more than once for the same connection, and a no-op for a connection that
// was already replaced by a redial.
func (v *Relay) Disconnect(room string, conn *Connection, reason string) {
	v.mu.Lock()
	target := v.rooms[room]
	if target == nil || !target.has(conn) {
		v.mu.Unlock()
		return
	}

	target.conns = lo.Without(target.conns, conn)
	log.Info().Str("event", "onClose").Str("room", room).Str("id", conn.ID).Str("reason", reason).Msg("Connection left the room.")

	out := new(dispatch)
	ended := len(target.conns) == 0
	if ended {
		delete(v.rooms, room)
	} else {
		v.broadcast(out, target, models.UserLeftNotification{ID: conn.ID})
		v.broadcastState(out, target)
	}
	meetingID, peak := target.MeetingID, target.peak
	v.mu.Unlock()
	out.flush()

	metricConnections.Dec()
	if v.hooks != nil {
		v.hooks.ParticipantLeft(room, meetingID, conn.ConnectionInfo, reason)
	}
	if ended {
		metricActiveRooms.Dec()
		log.Info().Str("event", "endingMeeting").Str("room", room).Str("meeting", meetingID).Msg("Room is now empty.")
		if v.hooks != nil {
			v.hooks.RoomEnded(room, meetingID, peak)
		}
	}
}

// Sweep evicts connections that have been silent for longer than the
// heartbeat timeout and returns how many it evicted.
func (v *Relay) Sweep() int {
	deadline := v.cfg.Now().Add(-v.cfg.HeartbeatTimeout)

	type stale struct {
		room string
		conn *Connection
	}
	var victims []stale

	v.mu.Lock()
	for name, room := range v.rooms {
		for _, conn := range room.conns {
			if conn.lastSeen.Before(deadline) {
				victims = append(victims, stale{name, conn})
			}
		}
	}
	v.mu.Unlock()

	if len(victims) > 0 {
		log.Info().Str("event", "cleaningUpConnections").Int("count", len(victims)).Msg("Evicting silent connections...")
	}
	for _, item := range victims {
		log.Info().Str("event", "userTimedOut").Str("room", item.room).Str("id", item.conn.ID).Msg("Participant missed heartbeats.")
		v.Disconnect(item.room, item.conn, localModels.AttendanceTimedOut)
		_ = item.conn.peer.Close(CloseGoingAway, "heartbeat timeout")
		metricEvictions.Inc()
	}
	return len(victims)
}

// Snapshot returns the current state of a room.
func (v *Relay) Snapshot(room string) (models.RoomState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	target := v.rooms[room]
	if target == nil {
		return models.RoomState{}, false
	}
	return target.state(), true
}

// Connection returns the verified identity behind a live connection.
func (v *Relay) Connection(room, connID string) (ConnectionInfo, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	target := v.rooms[room]
	if target == nil {
		return ConnectionInfo{}, false
	}
	conn, ok := target.find(connID)
	if !ok {
		return ConnectionInfo{}, false
	}
	return conn.ConnectionInfo, true
}

func (v *Relay) RoomCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.rooms)
}
