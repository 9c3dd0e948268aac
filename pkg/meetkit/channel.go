package meetkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const (
	// CloseRoomFull is sent by the relay when a room is at capacity.
	CloseRoomFull = websocket.CloseTryAgainLater

	channelWriteTimeout = 10 * time.Second
	channelBufferSize   = 64
	minRedialBackoff    = 500 * time.Millisecond
	maxRedialBackoff    = 30 * time.Second
)

// RoomPath is the relay path for one room.
func RoomPath(room string) string {
	return "/parties/rooms/" + url.PathEscape(room)
}

type ChannelConfig struct {
	// BaseURL is the relay origin, ws:// or wss://. http(s) is rewritten.
	BaseURL      string
	Room         string
	ConnectionID string
	Token        string

	Dialer     *websocket.Dialer
	MaxBackoff time.Duration
	Clock      clock.Clock
}

func (v ChannelConfig) endpoint() (string, error) {
	base, err := url.Parse(strings.TrimRight(v.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid relay url: %w", err)
	}
	switch base.Scheme {
	case "http":
		base.Scheme = "ws"
	case "https":
		base.Scheme = "wss"
	}
	base.RawPath = base.EscapedPath() + RoomPath(v.Room)
	base.Path += "/parties/rooms/" + v.Room

	query := url.Values{}
	query.Set("_pk", v.ConnectionID)
	query.Set("token", v.Token)
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// Channel is the participant's duplex link to the room relay. It redials on
// transport failures with the same connection id and stops for good on an
// auth rejection, a full room or Close.
type Channel struct {
	cfg      ChannelConfig
	endpoint string
	clock    clock.Clock

	writeMu sync.Mutex
	conn    *websocket.Conn

	incoming chan models.ServerMessage
	health   chan ConnectionHealth
	done     chan struct{}

	connected *atomic.Bool
	closed    *atomic.Bool
	fatal     *atomic.Error

	cancel context.CancelFunc
}

// Dial connects to the relay. The first handshake is synchronous so that a
// rejected grant surfaces to the caller directly.
func Dial(ctx context.Context, cfg ChannelConfig) (*Channel, error) {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = maxRedialBackoff
	}
	if cfg.Token == "" {
		return nil, newSessionError(KindAuthRejected, &RejectedError{Reason: models.RejectNoAuthProvided})
	}

	endpoint, err := cfg.endpoint()
	if err != nil {
		return nil, err
	}

	v := &Channel{
		cfg:       cfg,
		endpoint:  endpoint,
		clock:     cfg.Clock,
		incoming:  make(chan models.ServerMessage, channelBufferSize),
		health:    make(chan ConnectionHealth, 1),
		done:      make(chan struct{}),
		connected: atomic.NewBool(false),
		closed:    atomic.NewBool(false),
		fatal:     atomic.NewError(nil),
	}

	conn, err := v.dial(ctx)
	if err != nil {
		return nil, err
	}
	v.setConn(conn)

	runCtx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	go v.run(runCtx, conn)

	return v, nil
}

func (v *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := v.cfg.Dialer.DialContext(ctx, v.endpoint, nil)
	if err == nil {
		return conn, nil
	}
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, newSessionError(KindAuthRejected, fmt.Errorf("relay refused the grant: %s", resp.Status))
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return nil, newSessionError(KindRoomFull, fmt.Errorf("relay refused the connection: %s", resp.Status))
		}
	}
	return nil, newSessionError(KindTransportDegraded, err)
}

// setConn refuses a fresh connection once Close has started.
func (v *Channel) setConn(conn *websocket.Conn) bool {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	if conn != nil && v.closed.Load() {
		return false
	}
	v.conn = conn
	v.connected.Store(conn != nil)
	return true
}

func (v *Channel) publishHealth(health ConnectionHealth) {
	// Only the latest value matters, drop a stale one if the reader is slow.
	select {
	case <-v.health:
	default:
	}
	v.health <- health
}

func (v *Channel) run(ctx context.Context, conn *websocket.Conn) {
	defer close(v.done)
	defer close(v.incoming)

	backoff := minRedialBackoff
	for {
		err := v.readPump(conn)
		v.setConn(nil)
		_ = conn.Close()

		if v.closed.Load() || ctx.Err() != nil {
			return
		}
		if session := new(SessionError); errors.As(err, &session) && session.Fatal() {
			v.fatal.Store(err)
			return
		}

		log.Debug().Err(err).Str("room", v.cfg.Room).Msg("Relay connection dropped, redialing...")
		v.publishHealth(HealthDisconnected)

		for {
			select {
			case <-ctx.Done():
				return
			case <-v.clock.After(backoff):
			}
			backoff = min(backoff*2, v.cfg.MaxBackoff)

			next, err := v.dial(ctx)
			if err == nil {
				conn = next
				break
			}
			if KindOf(err) != KindTransportDegraded {
				v.fatal.Store(err)
				return
			}
			log.Debug().Err(err).Str("room", v.cfg.Room).Msg("Unable to redial relay, retrying...")
		}

		if !v.setConn(conn) {
			_ = conn.Close()
			return
		}
		backoff = minRedialBackoff
		v.publishHealth(HealthConnected)
	}
}

// readPump decodes frames until the connection fails. Auth and capacity
// rejections come back as fatal session errors.
func (v *Channel) readPump(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				switch closeErr.Code {
				case websocket.ClosePolicyViolation:
					return newSessionError(KindAuthRejected, err)
				case CloseRoomFull:
					return newSessionError(KindRoomFull, err)
				}
			}
			return newSessionError(KindTransportDegraded, err)
		}

		msg, err := models.DecodeServerMessage(data)
		if errors.Is(err, models.ErrUnknownVariant) {
			log.Debug().Err(err).Str("room", v.cfg.Room).Msg("Ignored unknown relay message.")
			continue
		} else if err != nil {
			log.Debug().Err(err).Str("room", v.cfg.Room).Msg("Ignored malformed relay message.")
			continue
		}

		if reject, ok := msg.(models.ErrorMessage); ok {
			switch {
			case models.IsAuthReason(reject.Error):
				v.deliver(msg)
				return newSessionError(KindAuthRejected, &RejectedError{Reason: reject.Error})
			case reject.Error == models.ErrorRoomFull:
				v.deliver(msg)
				return newSessionError(KindRoomFull, errors.New(reject.Error))
			}
		}

		v.deliver(msg)
	}
}

func (v *Channel) deliver(msg models.ServerMessage) {
	if v.closed.Load() {
		return
	}
	select {
	case v.incoming <- msg:
	default:
		log.Warn().Str("room", v.cfg.Room).Str("type", msg.Type()).Msg("Incoming buffer is full, dropped relay message.")
	}
}

// Incoming is closed once the channel stops for good.
func (v *Channel) Incoming() <-chan models.ServerMessage {
	return v.incoming
}

// Health reports transport connectivity changes after the first connect.
func (v *Channel) Health() <-chan ConnectionHealth {
	return v.health
}

// Done is closed once the channel stops for good. Err tells why.
func (v *Channel) Done() <-chan struct{} {
	return v.done
}

// Err is the fatal error that stopped the channel, nil after Close.
func (v *Channel) Err() error {
	return v.fatal.Load()
}

func (v *Channel) Connected() bool {
	return v.connected.Load()
}

func (v *Channel) ConnectionID() string {
	return v.cfg.ConnectionID
}

// Send writes one message to the relay. While the transport is down it fails
// with a TransportDegraded error instead of queueing.
func (v *Channel) Send(msg models.ClientMessage) error {
	if v.closed.Load() {
		return ErrChannelClosed
	}
	if err := validation.Struct(msg); err != nil {
		return fmt.Errorf("invalid %s message: %w", msg.Type(), err)
	}
	data, err := models.EncodeClientMessage(msg)
	if err != nil {
		return err
	}

	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	if v.conn == nil {
		return newSessionError(KindTransportDegraded, errors.New("relay is not connected"))
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(channelWriteTimeout))
	if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return newSessionError(KindTransportDegraded, err)
	}
	return nil
}

// Leave tells the relay this participant is going away. Delivery is not
// guaranteed; the relay times out silent connections on its own.
func (v *Channel) Leave() {
	if err := v.Send(models.UserLeftMessage{}); err != nil {
		log.Debug().Err(err).Str("room", v.cfg.Room).Msg("Unable to send userLeft, relay will time us out.")
	}
}

// Close leaves the room and shuts the channel down. It blocks until the
// read loop has exited.
func (v *Channel) Close() error {
	if v.closed.Load() {
		<-v.done
		return nil
	}
	v.Leave()

	v.writeMu.Lock()
	v.closed.Store(true)
	if v.conn != nil {
		_ = v.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = v.conn.Close()
	}
	v.writeMu.Unlock()

	v.cancel()
	<-v.done
	return nil
}
