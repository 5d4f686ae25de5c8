package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn   *websocket.Conn
	sub    *Subscriber
	expiry *time.Timer
}

// StreamWebSocket mirrors the stream over a websocket. Queued frames are
// batched into one text message, newline separated.
func StreamWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade connection")
			return
		}

		sub, ok := hub.Subscribe(r.Context())
		if !ok {
			conn.Close()
			return
		}

		client := &wsClient{
			conn:   conn,
			sub:    sub,
			expiry: tokenExpiry(claimsFrom(r.Context())),
		}

		go client.writePump()
		go client.readPump(hub)
	}
}

// readPump discards client messages and detects the close
func (c *wsClient) readPump(hub *Hub) {
	defer func() {
		hub.Unsubscribe(context.Background(), c.sub)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("subscriber_id", c.sub.id).Msg("WebSocket error")
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.expiry.Stop()
		c.conn.Close()
	}()

	frames := c.sub.Frames()
	for {
		select {
		case frame, ok := <-frames:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped the subscriber
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write([]byte(frame.Data))

			n := len(frames)
			for i := 0; i < n; i++ {
				next, ok := <-frames
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write([]byte(next.Data))
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.expiry.C:
			log.Info().Str("subscriber_id", c.sub.id).Msg("Access token expired, closing websocket")
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "token expired"),
				time.Now().Add(writeWait))
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
