// Package display publishes exhibit state to presentation clients over a
// websocket feed. The daemon pushes a snapshot after every machine transition
// and animation frame; clients render, the daemon never waits on them.
package display

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"

	"bloom/internal/exhibit"
)

// Server is a snapshot fan-out hub. It implements exhibit.Broadcaster.
type Server struct {
	upgrader ws.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	last    *exhibit.Snapshot
}

type client struct {
	conn *ws.Conn
	out  chan []byte
}

func NewServer() *Server {
	return &Server{
		upgrader: ws.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Broadcast queues the snapshot to every connected client. A client that
// cannot keep up is dropped rather than allowed to stall the exhibit.
func (s *Server) Broadcast(snap exhibit.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		slog.Error("display: marshal snapshot", "err", err)
		return
	}

	s.mu.Lock()
	s.last = &snap
	for c := range s.clients {
		select {
		case c.out <- payload:
		default:
			delete(s.clients, c)
			close(c.out)
			slog.Warn("display: slow client dropped")
		}
	}
	s.mu.Unlock()
}

// ServeHTTP upgrades the connection and registers the client. A late joiner
// immediately receives the current snapshot so it never renders blind.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("display: upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, out: make(chan []byte, 16)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	if s.last != nil {
		if payload, err := json.Marshal(s.last); err == nil {
			select {
			case c.out <- payload:
			default:
			}
		}
	}
	n := len(s.clients)
	s.mu.Unlock()

	slog.Info("display: client connected", "clients", n)

	go s.writeLoop(c)
	go s.readLoop(c)
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.out)
	}
	s.mu.Unlock()
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.out {
		if err := c.conn.WriteMessage(ws.TextMessage, payload); err != nil {
			s.drop(c)
			return
		}
	}
}

// readLoop exists only to notice disconnects; the feed is one-way.
func (s *Server) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if !ws.IsCloseError(err,
				ws.CloseNormalClosure,
				ws.CloseGoingAway,
				ws.CloseAbnormalClosure) {
				slog.Debug("display: read", "err", err)
			}
			s.drop(c)
			return
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.out)
	}
	s.mu.Unlock()
}
