package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/promptctl/promptctl/logger"
)

// WebSocket timeout constants following Gorilla best practices
// See: https://github.com/gorilla/websocket/blob/master/examples/chat/client.go
const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Outbound message buffer per client
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	// Local tool surface, same trust model as the rest of the API
	CheckOrigin: func(r *http.Request) bool { return true },
}

// client is one WebSocket connection receiving job updates.
type client struct {
	conn    *websocket.Conn
	sendMsg chan interface{}

	closeOnce sync.Once
}

// close tears down the connection. The send channel is never closed
// so a concurrent broadcast can never send on a closed channel; the
// pumps exit when the connection errors.
func (c *client) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// HandleWebSocket upgrades the connection and streams job updates
// until the peer disconnects or the server shuts down.
// GET /ws
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorw("Failed to upgrade WebSocket", "error", err)
		return
	}

	c := &client{
		conn:    conn,
		sendMsg: make(chan interface{}, sendBufferSize),
	}

	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()
	logger.Infow("WebSocket client connected", "remote", r.RemoteAddr)

	s.wg.Add(2)
	go s.writePump(c)
	go s.readPump(c, r.RemoteAddr)
}

// writePump forwards queued messages to the peer and keeps the
// connection alive with pings.
func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			s.dropClient(c)
			return
		case msg := <-c.sendMsg:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				logger.Debugw("WebSocket write failed", "error", err)
				s.dropClient(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.dropClient(c)
				return
			}
		}
	}
}

// readPump drains inbound frames so pongs and close frames are
// processed. The stream is one-way; inbound payloads are discarded.
func (s *Server) readPump(c *client, remote string) {
	defer s.wg.Done()
	defer s.dropClient(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			logger.Debugw("WebSocket client disconnected", "remote", remote)
			return
		}
	}
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
	}
	s.mu.Unlock()
	c.close()
}
