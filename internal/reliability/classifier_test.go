package reliability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aiko-app/aiko/internal/llm"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestIsRetryableTurnError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"wrapped canceled", fmt.Errorf("turn: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"http 429", &llm.TransportError{Reason: "upstream status", StatusCode: 429}, true},
		{"http 401", &llm.TransportError{Reason: "upstream status", StatusCode: 401}, false},
		{"unreachable", &llm.TransportError{Reason: "endpoint unreachable"}, true},
		{"empty response", &llm.TransportError{Reason: "empty response"}, true},
		{"malformed stream", &llm.TransportError{Reason: "malformed stream event"}, false},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableTurnError(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryableTurnError() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
