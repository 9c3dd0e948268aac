package api

import (
	"sync"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/internal/models"
	"git.solsynth.dev/hypernet/meet/pkg/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const relayWriteTimeout = 10 * time.Second

func relayUpgradeMiddleware(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// wsPeer serialises writes to one socket.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (v *wsPeer) Send(data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.conn.SetWriteDeadline(time.Now().Add(relayWriteTimeout))
	return v.conn.WriteMessage(websocket.TextMessage, data)
}

func (v *wsPeer) Close(code int, reason string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_ = v.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	return v.conn.Close()
}

func relayGateway(c *websocket.Conn) {
	room := c.Params("roomName")
	peer := &wsPeer{conn: c}

	conn, err := services.R.Connect(room, c.Query("_pk"), c.Query("token"), peer)
	if err != nil {
		return
	}

	var packet []byte
	for {
		if _, packet, err = c.ReadMessage(); err != nil {
			break
		}
		services.R.Handle(room, conn, packet)
	}

	services.R.Disconnect(room, conn, models.AttendanceClosed)
}
