package main

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/e-psi-lon/ParalyaBot-sub000/lg/platform/local"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 64
)

// Client is one member connected over websocket. It sends commands and
// receives the game notices visible to that member.
type Client struct {
	member string
	conn   *websocket.Conn
	router *CommandRouter
	guild  *local.Guild

	mu     sync.Mutex
	send   chan ServerEvent
	closed atomic.Bool
}

func NewClient(member string, conn *websocket.Conn, router *CommandRouter, guild *local.Guild) *Client {
	return &Client{
		member: member,
		conn:   conn,
		router: router,
		guild:  guild,
		send:   make(chan ServerEvent, sendBufferSize),
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.close()
	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("member", c.member).Msg("[ws] read message")
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.push(ServerEvent{Type: evError, Body: "malformed message"})
			continue
		}
		if err := c.router.Route(ctx, c.member, msg, c.push); err != nil {
			log.Warn().Err(err).Str("member", c.member).Msg("[ws] route message")
			return
		}
	}
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := writeJSON(c.conn, ev); err != nil {
				log.Debug().Err(err).Str("member", c.member).Msg("[ws] write json")
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

// forward relays guild deliveries the member can see until the
// subscription ends.
func (c *Client) forward(deliveries <-chan local.Delivery) {
	for d := range deliveries {
		if !c.guild.Visible(d, c.member) {
			continue
		}
		c.push(ServerEvent{
			Type:    evNotice,
			Body:    d.Text,
			Channel: d.ChannelID,
			Persona: d.Persona,
		})
	}
}

// push never blocks: when the member reads too slowly the oldest pending
// event is dropped.
func (c *Client) push(ev ServerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return
	}
	select {
	case c.send <- ev:
	default:
		select {
		case <-c.send:
		default:
		}
		c.send <- ev
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Swap(true) {
		return
	}
	close(c.send)
	_ = c.conn.Close()
}

// writeJSON writes v without HTML escaping so notices keep their text as is.
func writeJSON(conn *websocket.Conn, v any) error {
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return w.Close()
}
