package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"loyaltyledger/core/events"
)

const (
	wsWriteTimeout   = 10 * time.Second
	subscriberBuffer = 64
)

// EventFrame is the JSON frame pushed to websocket subscribers.
type EventFrame struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Time       time.Time         `json:"time"`
}

type subscriber struct {
	ch     chan EventFrame
	filter map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

// Hub fans emitted events out to websocket subscribers. Slow subscribers
// lose frames instead of blocking the emitter.
type Hub struct {
	logger *slog.Logger
	now    func() time.Time

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{logger: logger, now: time.Now, subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	frame := EventFrame{Type: evt.EventType(), Attributes: evt.Attributes(), Time: h.now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(frame.Type) {
			continue
		}
		select {
		case sub.ch <- frame:
		default:
			h.logger.Warn("dropping event for slow subscriber", "type", frame.Type)
		}
	}
}

// Subscribe registers a subscriber for the given event types, or every type
// when none are given. Callers release the subscription with the returned
// cancel func.
func (h *Hub) Subscribe(types ...string) (<-chan EventFrame, func()) {
	sub := &subscriber{ch: make(chan EventFrame, subscriberBuffer)}
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			if sub.filter == nil {
				sub.filter = make(map[string]struct{})
			}
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.ch)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.ch)
	}
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeStatus(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	var types []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		types = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// Subscribers only receive; CloseRead handles pings and the peer close.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, types); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, types []string) error {
	updates, cancel := s.hub.Subscribe(types...)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt EventFrame) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
