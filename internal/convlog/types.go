package convlog

import (
	"context"
	"time"
)

// Turn roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContentKind identifies what a turn carries.
type ContentKind string

const (
	// ContentText is plain chat text.
	ContentText ContentKind = "text"
	// ContentMultimodal is text plus image attachments.
	ContentMultimodal ContentKind = "multimodal"
	// ContentFile is a reference to an externally stored document.
	ContentFile ContentKind = "file"
	// ContentEvent is a structured non-text message (voice clip, gift).
	ContentEvent ContentKind = "event"
)

// Event subtypes for ContentEvent turns.
const (
	EventVoice = "voice"
	EventGift  = "gift"
)

// Attachment references externally owned blob content, never inline bytes.
type Attachment struct {
	Kind string `json:"kind"`
	Ref  string `json:"ref"`
}

// Turn is one logical unit of dialogue in a conversation space log.
// Text holds the payload for text turns and the JSON-encoded body for
// event turns; attachments carry everything else.
type Turn struct {
	ID          string       `json:"id"`
	Participant string       `json:"participant_id"`
	Space       string       `json:"space_id"`
	Role        string       `json:"role"`
	Kind        ContentKind  `json:"kind"`
	Event       string       `json:"event,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Store is an append-only conversation log keyed by (participant, space).
// Positions are monotonically increasing per space but not necessarily dense.
type Store interface {
	AppendTurn(ctx context.Context, t Turn) (int64, error)
	LastTurns(ctx context.Context, participant, space string, k int) ([]Turn, error)
	Close() error
}
