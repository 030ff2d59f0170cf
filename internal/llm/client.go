package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Message is one role-tagged content block sent to the completion endpoint.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the serialized prompt context for a single turn.
type Request struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// SnapshotHandler receives the full accumulated text after each stream event.
// The argument is always the complete text so far, never an increment.
type SnapshotHandler func(fullText string) error

// Client streams one completion per call and returns the final text.
// Implementations never retry on their own; retry policy belongs to callers.
type Client interface {
	StreamReply(ctx context.Context, req Request, onSnapshot SnapshotHandler) (string, error)
}

// Config controls client construction.
type Config struct {
	Mode        string
	EndpointURL string
}

func NewClient(cfg Config) (Client, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.EndpointURL) != "" {
			return NewHTTPClient(cfg.EndpointURL), nil
		}
		return NewMockClient(), nil
	case "http":
		if strings.TrimSpace(cfg.EndpointURL) == "" {
			return nil, errors.New("completion endpoint URL is required for http mode")
		}
		return NewHTTPClient(cfg.EndpointURL), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported completion client mode %q", cfg.Mode)
	}
}
