// Package chat runs the full response pipeline for one user turn: persist
// the input, assemble the prompt context, stream the completion, decode and
// segment the reply, then pace segment delivery out to the feed.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/delivery"
	"github.com/aiko-app/aiko/internal/llm"
	"github.com/aiko-app/aiko/internal/observability"
	"github.com/aiko-app/aiko/internal/persona"
	"github.com/aiko-app/aiko/internal/prompt"
	"github.com/aiko-app/aiko/internal/reply"
	"github.com/aiko-app/aiko/internal/session"
)

// Turn outcomes recorded in metrics.
const (
	OutcomeCompleted = "completed"
	OutcomeReplaced  = "replaced"
	OutcomeCanceled  = "canceled"
	OutcomeTransport = "transport_error"
	OutcomeInternal  = "internal_error"
)

// TurnInput is one user submission against an existing session.
type TurnInput struct {
	SessionID   string
	TurnID      string
	Text        string
	Attachments []convlog.Attachment

	// CrossSpaceID optionally names another conversation space of the same
	// participant whose recent turns are folded in as background.
	CrossSpaceID string
}

// TurnEvents carries the caller's feed hooks. All fields are optional.
type TurnEvents struct {
	// OnTyping receives the full reply preview after every stream snapshot.
	OnTyping func(turnID, preview string)
	// OnSegment is invoked after each segment is persisted, in order.
	OnSegment func(turnID string, turn convlog.Turn, position int64, segment reply.Segment)
}

// TurnResult summarizes a finished (or aborted) turn.
type TurnResult struct {
	TurnID            string
	Outcome           string
	SegmentsDelivered int
	ReplacedPrevious  bool
	Status            map[string]any
}

// Pipeline wires the pipeline stages together. One Pipeline serves all
// sessions; per-turn state lives on the stack of RunTurn.
type Pipeline struct {
	registry  *persona.Registry
	assembler *prompt.Assembler
	client    llm.Client
	log       convlog.Store
	scheduler *delivery.Scheduler
	sessions  *session.Manager
	metrics   *observability.Metrics
}

func NewPipeline(
	registry *persona.Registry,
	assembler *prompt.Assembler,
	client llm.Client,
	log convlog.Store,
	scheduler *delivery.Scheduler,
	sessions *session.Manager,
	metrics *observability.Metrics,
) *Pipeline {
	return &Pipeline{
		registry:  registry,
		assembler: assembler,
		client:    client,
		log:       log,
		scheduler: scheduler,
		sessions:  sessions,
		metrics:   metrics,
	}
}

// RunTurn executes one turn end to end. A new turn on the same session
// cancels the in-flight one; the newest submission always wins. The
// canceled turn keeps whatever segments it had already persisted.
func (p *Pipeline) RunTurn(ctx context.Context, in TurnInput, events TurnEvents) (TurnResult, error) {
	s, err := p.sessions.Get(in.SessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("run turn: %w", err)
	}
	participant, err := p.registry.Participant(s.ParticipantID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("run turn: %w", err)
	}

	turnID := in.TurnID
	if turnID == "" {
		turnID = uuid.NewString()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	replaced, err := p.sessions.BeginTurn(s.ID, turnID, cancel)
	if err != nil {
		return TurnResult{}, fmt.Errorf("run turn: %w", err)
	}
	defer p.sessions.EndTurn(s.ID, turnID)

	result := TurnResult{TurnID: turnID, ReplacedPrevious: replaced}
	started := time.Now()

	// History is read before the input is persisted so the current
	// submission appears exactly once in the assembled context.
	window := participant.EffectiveMemoryRounds() * 2
	primary, err := p.log.LastTurns(turnCtx, s.ParticipantID, s.SpaceID, window)
	if err != nil {
		return p.fail(result, OutcomeInternal, fmt.Errorf("load history: %w", err))
	}
	var cross []convlog.Turn
	if in.CrossSpaceID != "" && in.CrossSpaceID != s.SpaceID {
		cross, err = p.log.LastTurns(turnCtx, s.ParticipantID, in.CrossSpaceID, window)
		if err != nil {
			return p.fail(result, OutcomeInternal, fmt.Errorf("load cross history: %w", err))
		}
	}

	if in.Text != "" || len(in.Attachments) > 0 {
		userTurn := convlog.Turn{
			Participant: s.ParticipantID,
			Space:       s.SpaceID,
			Role:        convlog.RoleUser,
			Kind:        userTurnKind(in),
			Text:        in.Text,
			Attachments: in.Attachments,
		}
		if _, err := p.log.AppendTurn(turnCtx, userTurn); err != nil {
			return p.fail(result, OutcomeInternal, fmt.Errorf("persist input: %w", err))
		}
	}

	assembled, err := p.assembler.Assemble(turnCtx, prompt.Input{
		ParticipantID:  s.ParticipantID,
		UserInput:      in.Text,
		PrimaryHistory: primary,
		CrossHistory:   cross,
	})
	if err != nil {
		return p.fail(result, OutcomeInternal, err)
	}
	if p.metrics != nil {
		if assembled.AttachmentMisses > 0 {
			p.metrics.AttachmentMisses.Add(float64(assembled.AttachmentMisses))
		}
		p.metrics.ObserveTurnStage("input_to_context_ready", time.Since(started))
	}

	raw, err := p.stream(turnCtx, s.ID, turnID, assembled, events, started)
	if err != nil {
		outcome := OutcomeTransport
		if turnCtx.Err() != nil {
			outcome = cancelOutcome(ctx)
		}
		return p.fail(result, outcome, err)
	}

	decodeStart := time.Now()
	envelope := reply.DecodeEnvelope(raw)
	if envelope.Status != nil {
		p.registry.RecordState(s.ParticipantID, envelope.Status)
	}
	result.Status = envelope.Status
	segments := reply.ParseSegments(envelope.ChatText)
	if p.metrics != nil {
		if envelope.Fallback {
			p.metrics.DecodeFallbacks.Inc()
			p.metrics.ObserveTurnIndicator("decode_fallback")
		}
		p.metrics.ObserveTurnStage("decode_and_parse", time.Since(decodeStart))
	}

	deliveryStart := time.Now()
	sink := func(turn convlog.Turn, position int64, segment reply.Segment) error {
		if p.metrics != nil {
			p.metrics.SegmentsDelivered.WithLabelValues(string(segment.Kind)).Inc()
		}
		if events.OnSegment != nil {
			events.OnSegment(turnID, turn, position, segment)
		}
		return nil
	}

	delivered, err := p.scheduler.Deliver(turnCtx, s.ParticipantID, s.SpaceID, segments, sink)
	result.SegmentsDelivered = delivered
	if err != nil {
		if turnCtx.Err() != nil {
			return p.fail(result, cancelOutcome(ctx), err)
		}
		return p.fail(result, OutcomeInternal, err)
	}
	if p.metrics != nil {
		p.metrics.ObserveTurnStage("delivery_total", time.Since(deliveryStart))
		p.metrics.ObserveTurnStage("turn_total", time.Since(started))
		p.metrics.ObserveTurnDuration(time.Since(started))
		p.metrics.Turns.WithLabelValues(OutcomeCompleted).Inc()
	}
	result.Outcome = OutcomeCompleted
	return result, nil
}

// stream runs the completion request and relays typing previews.
func (p *Pipeline) stream(ctx context.Context, sessionID, turnID string, assembled prompt.Context, events TurnEvents, turnStart time.Time) (string, error) {
	req := llm.Request{
		SessionID: llm.SanitizeSessionID(sessionID),
		Messages:  make([]llm.Message, 0, len(assembled.Blocks)),
	}
	for _, b := range assembled.Blocks {
		req.Messages = append(req.Messages, llm.Message{Role: b.Role, Content: b.Content})
	}

	streamStart := time.Now()
	first := true
	raw, err := p.client.StreamReply(ctx, req, func(fullText string) error {
		if first {
			first = false
			if p.metrics != nil {
				p.metrics.ObserveTurnStage("input_to_first_snapshot", time.Since(turnStart))
			}
		}
		if events.OnTyping != nil {
			events.OnTyping(turnID, fullText)
		}
		return nil
	})
	if p.metrics != nil {
		p.metrics.ObserveStreamDuration(time.Since(streamStart))
		if te, ok := llm.AsTransportError(err); ok {
			p.metrics.TransportErrors.WithLabelValues(te.Reason).Inc()
		}
	}
	if err != nil {
		return "", fmt.Errorf("stream reply: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ObserveTurnStage("stream_total", time.Since(streamStart))
	}
	return raw, nil
}

func (p *Pipeline) fail(result TurnResult, outcome string, err error) (TurnResult, error) {
	result.Outcome = outcome
	if p.metrics != nil {
		p.metrics.Turns.WithLabelValues(outcome).Inc()
	}
	return result, err
}

// cancelOutcome distinguishes a turn replaced by a newer submission from a
// caller that went away.
func cancelOutcome(parent context.Context) string {
	if parent.Err() != nil {
		return OutcomeCanceled
	}
	return OutcomeReplaced
}

func userTurnKind(in TurnInput) convlog.ContentKind {
	if len(in.Attachments) == 0 {
		return convlog.ContentText
	}
	for _, a := range in.Attachments {
		if a.Kind == "file" {
			return convlog.ContentFile
		}
	}
	return convlog.ContentMultimodal
}
