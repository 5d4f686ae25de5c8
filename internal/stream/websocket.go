package stream

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a control message to the peer
	writeWait = 10 * time.Second

	// Time allowed between messages or pings from the peer
	pongWait = 60 * time.Second
)

// WSTransport receives the stream over a websocket. Every text message
// carries one or more newline separated frames.
type WSTransport struct {
	URL    string
	Dialer *websocket.Dialer
}

func NewWSTransport(url string) *WSTransport {
	return &WSTransport{
		URL: url,
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

func (t *WSTransport) Dial(ctx context.Context, token string) (Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, res, err := t.Dialer.DialContext(ctx, t.URL, header)
	if err != nil {
		if res != nil {
			switch res.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, fmt.Errorf("%w (%d)", ErrUnauthorized, res.StatusCode)
			default:
				return nil, &StatusError{Code: res.StatusCode}
			}
		}
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}

	conn.SetReadLimit(maxEventSize)
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn    *websocket.Conn
	pending []string
}

func (c *wsConn) Next() (Message, error) {
	for len(c.pending) == 0 {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		for _, frame := range strings.Split(string(message), "\n") {
			if frame != "" {
				c.pending = append(c.pending, frame)
			}
		}
	}
	frame := c.pending[0]
	c.pending = c.pending[1:]
	return Message{Name: "message", Data: frame}, nil
}

func (c *wsConn) Close() error {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	return c.conn.Close()
}
