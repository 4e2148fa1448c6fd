package ws

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/caramelapple/storefront/internal/auth"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10

	// Dashboards only ever send control frames.
	inboundLimit = 512

	sendBuffer = 256
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
	errNotStaff     = errors.New("insufficient permissions")
)

// Origin is not checked: the feed is gated by the staff token instead.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Client is one dashboard connection subscribed to a topic.
type Client struct {
	hub   *Hub
	conn  *websocket.Conn
	topic string
	send  chan []byte
}

// authorize reads the token from the query string, since browsers cannot
// set headers on the upgrade request, and requires a staff role.
func authorize(r *http.Request, secret string) (int, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return http.StatusUnauthorized, errMissingToken
	}
	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		return http.StatusUnauthorized, errInvalidToken
	}
	if claims.Role != enum.UserRoleAdmin && claims.Role != enum.UserRoleStaff {
		return http.StatusForbidden, errNotStaff
	}
	return http.StatusOK, nil
}

// ServeWS upgrades WS /ws/orders?token=JWT and subscribes the connection to
// the order feed.
func ServeWS(hub *Hub, jwtSecret string, w http.ResponseWriter, r *http.Request) {
	if status, err := authorize(r, jwtSecret); err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: websocket upgrade: %v", err)
		return
	}

	c := &Client{hub: hub, conn: conn, topic: TopicOrders, send: make(chan []byte, sendBuffer)}
	if !hub.join(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	go c.deliver()
	go c.drain()
}

// drain consumes inbound frames so pongs and close frames are processed,
// and leaves the hub once the peer goes away.
func (c *Client) drain() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(inboundLimit)
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ERROR: websocket: %v", err)
			}
			return
		}
	}
}

// deliver writes one text frame per event and keeps the connection alive
// with pings. It returns when the hub closes send or a write fails.
func (c *Client) deliver() {
	ping := time.NewTicker(pingInterval)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
