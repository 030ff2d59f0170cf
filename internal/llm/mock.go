package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// MockClient produces deterministic replies when no endpoint is configured.
// It speaks the same envelope protocol as the real endpoint so the decode
// and tag stages get exercised in dev mode.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) StreamReply(ctx context.Context, req Request, onSnapshot SnapshotHandler) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	full := buildMockEnvelope(req)
	if onSnapshot != nil {
		// Emit a partial snapshot first so callers see overwrite semantics.
		half := full[:len(full)/2]
		if err := onSnapshot(half); err != nil {
			return "", err
		}
		if err := onSnapshot(full); err != nil {
			return "", err
		}
	}
	return full, nil
}

func buildMockEnvelope(req Request) string {
	input := lastUserContent(req.Messages)
	text := "I am here with you."
	if input != "" {
		text = fmt.Sprintf("I hear you: %s", input)
	}
	envelope := map[string]any{
		"reply": text,
		"status": map[string]any{
			"mood": "calm",
		},
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return text
	}
	return string(raw)
}

func lastUserContent(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}
