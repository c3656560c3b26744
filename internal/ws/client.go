package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/presence"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 32
)

var ErrSendBufferFull = errors.New("client send buffer full")

// Client is one live websocket session. It implements presence.Sink so
// the registry can hand the connection to the dispatcher and the relay.
type Client struct {
	identity string
	role     presence.Role

	conn *websocket.Conn
	send chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Client) authenticated() bool { return c.identity != "" }

// Send queues one enveloped message for the write pump. A full buffer
// means the client is not keeping up; the message is dropped and the
// caller decides whether that matters (the dispatcher excludes the
// driver from the notified count, the relay keeps the durable record).
func (c *Client) Send(msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Envelope{Type: msgType, Payload: raw, Timestamp: time.Now()})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.New("connection closed")
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump consumes inbound frames and hands each to the gateway
// handler. It owns the read side deadlines; exit closes the session.
func (c *Client) readPump(handle func(*Client, Envelope), onClose func(*Client)) {
	defer func() {
		c.close()
		onClose(c)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			_ = c.Send(EvError, map[string]string{"error": "malformed envelope"})
			continue
		}
		handle(c, env)
	}
}

// writePump is the single writer on the connection, which is what makes
// Send safe from any goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
