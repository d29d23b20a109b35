package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/roomchat/internal/types"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        logrus.FieldLogger
	user       types.User
	send       chan *ServerMessage
	// rooms is only touched from the chat server's Run loop.
	rooms    map[string]struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, cs *ChatServer, l logrus.FieldLogger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l.WithField("user_id", user.Id),
		user:       user,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[string]struct{}),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Debug("write exiting")
	}()

	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		case <-c.stop:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

// flush writes whatever is already queued without waiting for more.
func (c *Client) flush() {
	for {
		select {
		case msg := <-c.send:
			if !c.writeServerMessage(msg) {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) writeServerMessage(msg *ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.WithError(err).Error("failed to serialize message")
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Debug("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("ws read")
			}
			break
		}

		msg, err := parseClientMessage(raw)
		if err != nil {
			c.log.WithError(err).Debug("error parsing message")
			c.queueMessage(ErrInvalidMessage(-1))
			continue
		}

		msg.client = c
		msg.UserId = c.user.Id
		msg.Timestamp = Now()

		if !c.chatServer.submit(msg) {
			c.log.Warn("client message queue full")
			c.queueMessage(ErrServiceUnavailable(msg.Id))
		}
	}
}

func parseClientMessage(raw []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Warn("failed to send message to client, channel is full")
		return false
	}

	return true
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.WithError(err).Warn("write message")
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.deregisterClient(c)
	c.stopClient()
}
