package server

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chathub/internal/types"
	"golang.org/x/time/rate"
)

const (
	writeWait    = 10 * time.Second
	sendChanSize = 256
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.Identity
	send       chan ServerMessage
	limiter    *rate.Limiter
	stop       chan struct{}
	stopOnce   sync.Once
	// state is guarded by the registry lock.
	state connState
}

func NewClient(user types.Identity, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		id:         uuid.NewString(),
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		send:       make(chan ServerMessage, sendChanSize),
		limiter:    rate.NewLimiter(rate.Every(cs.opts.RateLimitInterval), cs.opts.RateLimitBurst),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.Identity {
	return c.user
}

func (c *Client) Write() {
	ticker := time.NewTicker(c.chatServer.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	pongWait := c.chatServer.opts.PongWait
	c.conn.SetReadLimit(c.chatServer.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.queueMessage(ErrRateLimited().Event())
			continue
		}

		c.chatServer.dispatch(c, raw)
	}
}

// queueMessage never blocks; a client that cannot keep up loses messages.
func (c *Client) queueMessage(msg ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("send buffer full for connection %s (user %s), dropping message", c.id, c.user.Id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.Unregister(c)
	c.stopClient()
}
