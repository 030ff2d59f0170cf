package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/aiko-app/aiko/internal/chat"
	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/protocol"
	"github.com/aiko-app/aiko/internal/reliability"
	"github.com/aiko-app/aiko/internal/reply"
	"github.com/aiko-app/aiko/internal/session"
)

type turnRequest struct {
	SessionID    string               `json:"session_id"`
	Text         string               `json:"text"`
	Attachments  []convlog.Attachment `json:"attachments,omitempty"`
	CrossSpaceID string               `json:"cross_space_id,omitempty"`
}

type turnResponse struct {
	TurnID string `json:"turn_id"`
	Status string `json:"status"`
}

// handleCreateTurn accepts a submission and runs the pipeline in the
// background; the result arrives on the session's feed. Submitting while a
// turn is in flight replaces it.
func (s *Server) handleCreateTurn(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "pipeline not configured")
		return
	}

	var req turnRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	sess, err := s.sessions.Get(req.SessionID)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if sess.Status != session.StatusActive {
		respondError(w, http.StatusConflict, "session_ended", "session is no longer active")
		return
	}

	turnID := uuid.NewString()
	go s.runTurn(sess.ID, turnID, req)

	respondJSON(w, http.StatusAccepted, turnResponse{TurnID: turnID, Status: "accepted"})
}

func (s *Server) runTurn(sessionID, turnID string, req turnRequest) {
	events := chat.TurnEvents{
		OnTyping: func(turnID, preview string) {
			s.Publish(sessionID, protocol.AssistantTyping{
				Type:      protocol.TypeAssistantTyping,
				SessionID: sessionID,
				TurnID:    turnID,
				Preview:   preview,
			})
		},
		OnSegment: func(turnID string, turn convlog.Turn, position int64, segment reply.Segment) {
			s.Publish(sessionID, segmentMessage(sessionID, turnID, position, segment))
		},
	}

	result, err := s.runner.RunTurn(s.runCtx, chat.TurnInput{
		SessionID:    sessionID,
		TurnID:       turnID,
		Text:         req.Text,
		Attachments:  req.Attachments,
		CrossSpaceID: req.CrossSpaceID,
	}, events)

	if err != nil && result.Outcome != chat.OutcomeReplaced && result.Outcome != chat.OutcomeCanceled {
		s.Publish(sessionID, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      result.Outcome,
			Source:    "pipeline",
			Retryable: reliability.IsRetryableTurnError(err),
			Detail:    err.Error(),
		})
	}

	reason := result.Outcome
	if reason == "" {
		reason = chat.OutcomeInternal
	}
	s.Publish(sessionID, protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: sessionID,
		TurnID:    turnID,
		Reason:    reason,
	})
}

func segmentMessage(sessionID, turnID string, position int64, segment reply.Segment) any {
	switch segment.Kind {
	case reply.SegmentVoice:
		return protocol.SegmentVoice{
			Type:       protocol.TypeSegmentVoice,
			SessionID:  sessionID,
			TurnID:     turnID,
			Position:   position,
			Duration:   segment.Voice.Duration,
			Transcript: segment.Voice.Transcript,
		}
	case reply.SegmentGift:
		return protocol.SegmentGift{
			Type:      protocol.TypeSegmentGift,
			SessionID: sessionID,
			TurnID:    turnID,
			Position:  position,
			Amount:    segment.Gift.Amount,
			Greeting:  segment.Gift.Greeting,
		}
	default:
		return protocol.SegmentText{
			Type:      protocol.TypeSegmentText,
			SessionID: sessionID,
			TurnID:    turnID,
			Position:  position,
			Text:      segment.Text,
		}
	}
}
