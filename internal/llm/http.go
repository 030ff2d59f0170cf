package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// streamState tracks the transport state machine:
// Idle -> Connected -> Streaming -> {Completed | Failed}.
// Completed and Failed are expressed as return paths.
type streamState int

const (
	stateIdle streamState = iota
	stateConnected
	stateStreaming
	stateCompleted
	stateFailed
)

const (
	eventKindReply = "reply"
	eventKindError = "error"
	eventKindDone  = "done"
)

// snapshotEvent is one line of the completion endpoint's event stream.
// Text carries the entire generated text so far, not a delta.
type snapshotEvent struct {
	Kind    string `json:"kind"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

// HTTPClient consumes the completion endpoint's line-delimited snapshot stream.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string) *HTTPClient {
	return &HTTPClient{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *HTTPClient) StreamReply(ctx context.Context, req Request, onSnapshot SnapshotHandler) (string, error) {
	req.SessionID = SanitizeSessionID(req.SessionID)

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", &TransportError{Reason: "endpoint unreachable", Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		reason := strings.TrimSpace(string(body))
		if reason == "" {
			reason = res.Status
		}
		return "", &TransportError{Reason: reason, StatusCode: res.StatusCode}
	}

	return c.consumeSnapshots(res.Body, onSnapshot)
}

func (c *HTTPClient) consumeSnapshots(body io.Reader, onSnapshot SnapshotHandler) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	state := stateConnected
	var accumulated string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev snapshotEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return "", &TransportError{Reason: "malformed stream event", Err: err}
		}

		switch ev.Kind {
		case eventKindReply:
			state = stateStreaming
			// Snapshot semantics: every event carries the entire text so
			// far. Overwrite the accumulator, never append to it.
			accumulated = ev.Text
			if onSnapshot != nil {
				if err := onSnapshot(accumulated); err != nil {
					return "", err
				}
			}
		case eventKindError:
			reason := strings.TrimSpace(ev.Message)
			if reason == "" {
				reason = "endpoint reported an error"
			}
			return "", &TransportError{Reason: reason}
		case eventKindDone:
			return accumulated, nil
		default:
			// Unknown event kinds are skipped so the protocol can grow.
		}
	}
	if err := scanner.Err(); err != nil {
		return "", &TransportError{Reason: "stream read", Err: err}
	}

	if state != stateStreaming {
		return "", &TransportError{Reason: "empty response"}
	}
	// Clean EOF after at least one snapshot but before the done marker.
	// The last snapshot is authoritative, so treat it as the final text.
	return accumulated, nil
}
