package httpapi

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aiko-app/aiko/internal/protocol"
)

// feedHub fans delivered messages out to every websocket subscribed to a
// session. Slow subscribers are dropped-from, never blocked-on; the
// conversation log remains the durable record.
type feedHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan any]struct{}
}

func newFeedHub() *feedHub {
	return &feedHub{subs: make(map[string]map[chan any]struct{})}
}

func (h *feedHub) subscribe(sessionID string) chan any {
	ch := make(chan any, 256)
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan any]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	return ch
}

func (h *feedHub) unsubscribe(sessionID string, ch chan any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, sessionID)
	}
}

func (h *feedHub) publish(sessionID string, msg any) (sent, dropped int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- msg:
			sent++
		default:
			dropped++
		}
	}
	return sent, dropped
}

// Publish sends a feed message to every subscriber of the session.
func (s *Server) Publish(sessionID string, msg any) {
	sent, dropped := s.feeds.publish(sessionID, msg)
	if s.metrics == nil {
		return
	}
	t, ok := messageTypeOf(msg)
	if !ok {
		return
	}
	for i := 0; i < sent; i++ {
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
	for i := 0; i < dropped; i++ {
		s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
	}
}

// PublishSystemEvent emits a system_event frame, used for session expiry
// and turn cancellation notices.
func (s *Server) PublishSystemEvent(sessionID, code, detail string) {
	s.Publish(sessionID, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: sessionID,
		Code:      code,
		Detail:    detail,
	})
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	outbound := s.feeds.subscribe(sessionID)
	defer s.feeds.unsubscribe(sessionID, outbound)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.Publish(sessionID, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "feed",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		control, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		if s.metrics != nil {
			s.metrics.WSMessages.WithLabelValues("inbound", string(control.Type)).Inc()
		}
		switch control.Action {
		case protocol.ActionCancelTurn:
			if s.sessions.CancelActiveTurn(sessionID) {
				s.PublishSystemEvent(sessionID, "turn_canceled", "canceled by client")
			}
		case protocol.ActionPing:
			_ = s.sessions.Touch(sessionID)
		}
	}
	cancel()
	<-writerDone
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTyping:
		return m.Type, true
	case protocol.SegmentText:
		return m.Type, true
	case protocol.SegmentVoice:
		return m.Type, true
	case protocol.SegmentGift:
		return m.Type, true
	case protocol.AssistantTurnEnd:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
