// Package delivery persists and emits parsed message segments with
// human-feeling pacing. Delivery is strictly sequential so persisted order
// always matches emission order.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/reply"
)

// Sink receives each segment right after it is persisted. The turn carries
// the stored form; position is its place in the append log.
type Sink func(turn convlog.Turn, position int64, segment reply.Segment) error

const defaultBaseDelay = 500 * time.Millisecond

// Scheduler walks an ordered segment list: append to the conversation log,
// emit to the sink, wait a jittered pacing interval, repeat.
type Scheduler struct {
	log       convlog.Store
	baseDelay time.Duration
	jitter    time.Duration
}

func NewScheduler(log convlog.Store, baseDelay time.Duration) *Scheduler {
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	return &Scheduler{
		log:       log,
		baseDelay: baseDelay,
		jitter:    baseDelay / 5,
	}
}

// Deliver persists and emits segments in order. It returns how many segments
// made it into the log. Cancellation between segments leaves the persisted
// prefix in place and discards the rest; a partial segment is never visible.
func (s *Scheduler) Deliver(ctx context.Context, participant, space string, segments []reply.Segment, sink Sink) (int, error) {
	delivered := 0
	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		turn, err := segmentTurn(participant, space, seg)
		if err != nil {
			return delivered, err
		}
		position, err := s.log.AppendTurn(ctx, turn)
		if err != nil {
			return delivered, fmt.Errorf("persist segment %d: %w", i, err)
		}
		delivered++

		if sink != nil {
			if err := sink(turn, position, seg); err != nil {
				return delivered, err
			}
		}

		if i == len(segments)-1 {
			break
		}
		if err := s.pause(ctx); err != nil {
			return delivered, err
		}
	}
	return delivered, nil
}

func (s *Scheduler) pause(ctx context.Context) error {
	timer := time.NewTimer(s.pacingDelay())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pacingDelay returns the base delay jittered within +/- jitter.
func (s *Scheduler) pacingDelay() time.Duration {
	if s.jitter <= 0 {
		return s.baseDelay
	}
	return s.baseDelay - s.jitter + time.Duration(rand.Int63n(int64(2*s.jitter)))
}

func segmentTurn(participant, space string, seg reply.Segment) (convlog.Turn, error) {
	turn := convlog.Turn{
		Participant: participant,
		Space:       space,
		Role:        convlog.RoleAssistant,
	}
	switch seg.Kind {
	case reply.SegmentText:
		turn.Kind = convlog.ContentText
		turn.Text = seg.Text
	case reply.SegmentVoice:
		body, err := json.Marshal(seg.Voice)
		if err != nil {
			return convlog.Turn{}, fmt.Errorf("encode voice segment: %w", err)
		}
		turn.Kind = convlog.ContentEvent
		turn.Event = convlog.EventVoice
		turn.Text = string(body)
	case reply.SegmentGift:
		body, err := json.Marshal(seg.Gift)
		if err != nil {
			return convlog.Turn{}, fmt.Errorf("encode gift segment: %w", err)
		}
		turn.Kind = convlog.ContentEvent
		turn.Event = convlog.EventGift
		turn.Text = string(body)
	default:
		return convlog.Turn{}, fmt.Errorf("unknown segment kind %q", seg.Kind)
	}
	return turn, nil
}
