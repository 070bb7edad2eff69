package websocket

import (
	"context"
	"log/slog"
	"sync"
)

// Hub tracks live scan sessions so they can be counted and closed on
// shutdown.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Session),
		unregister: make(chan *Session),
		sessions:   make(map[*Session]bool),
	}
}

func (h *Hub) Register(s *Session)   { h.register <- s }
func (h *Hub) Unregister(s *Session) { h.unregister <- s }

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Run services registrations until ctx is done, then closes every session
// still registered. Register and Unregister block until Run picks them up.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			total := len(h.sessions)
			h.mu.Unlock()
			slog.Info("Scan session registered", "session", s.ID, "totalSessions", total)

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				slog.Info("Scan session unregistered", "session", s.ID, "totalSessions", len(h.sessions))
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.closeAll()
			h.drain()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		if err := s.Close(); err != nil {
			slog.Debug("Closing scan session", "session", s.ID, "error", err)
		}
		delete(h.sessions, s)
	}
}

// drain keeps answering late Register/Unregister calls after shutdown so
// handlers never block; late registrations are closed immediately.
func (h *Hub) drain() {
	go func() {
		for {
			select {
			case s := <-h.register:
				_ = s.Close()
			case <-h.unregister:
			}
		}
	}()
}
