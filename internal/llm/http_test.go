package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestConsumeSnapshotsOverwrites(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	stream := strings.NewReader(strings.Join([]string{
		`{"kind":"reply","text":"A"}`,
		`{"kind":"reply","text":"AB"}`,
		`{"kind":"reply","text":"ABC"}`,
		`{"kind":"done"}`,
	}, "\n"))

	var snapshots []string
	out, err := c.consumeSnapshots(stream, func(full string) error {
		snapshots = append(snapshots, full)
		return nil
	})
	if err != nil {
		t.Fatalf("consumeSnapshots() error = %v", err)
	}
	if out != "ABC" {
		t.Fatalf("out = %q, want %q", out, "ABC")
	}
	if len(snapshots) != 3 || snapshots[2] != "ABC" {
		t.Fatalf("snapshots = %q, want three growing snapshots ending ABC", snapshots)
	}
}

func TestConsumeSnapshotsCleanEOFWithoutDone(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	stream := strings.NewReader(`{"kind":"reply","text":"final words"}` + "\n")

	out, err := c.consumeSnapshots(stream, nil)
	if err != nil {
		t.Fatalf("consumeSnapshots() error = %v", err)
	}
	if out != "final words" {
		t.Fatalf("out = %q, want %q", out, "final words")
	}
}

func TestConsumeSnapshotsEmptyStream(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	_, err := c.consumeSnapshots(strings.NewReader(""), nil)
	te, ok := AsTransportError(err)
	if !ok {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.Reason != "empty response" {
		t.Fatalf("Reason = %q, want %q", te.Reason, "empty response")
	}
}

func TestConsumeSnapshotsErrorEvent(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	stream := strings.NewReader(`{"kind":"error","message":"model overloaded"}` + "\n")
	_, err := c.consumeSnapshots(stream, nil)
	te, ok := AsTransportError(err)
	if !ok {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.Reason != "model overloaded" {
		t.Fatalf("Reason = %q, want %q", te.Reason, "model overloaded")
	}
}

func TestConsumeSnapshotsMalformedEvent(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	stream := strings.NewReader("{not json}\n")
	if _, err := c.consumeSnapshots(stream, nil); err == nil {
		t.Fatalf("consumeSnapshots() expected error for malformed event")
	}
}

func TestConsumeSnapshotsSkipsUnknownKinds(t *testing.T) {
	c := NewHTTPClient("http://example.test")
	stream := strings.NewReader(strings.Join([]string{
		`{"kind":"heartbeat"}`,
		`{"kind":"reply","text":"hi"}`,
		`{"kind":"done"}`,
	}, "\n"))
	out, err := c.consumeSnapshots(stream, nil)
	if err != nil {
		t.Fatalf("consumeSnapshots() error = %v", err)
	}
	if out != "hi" {
		t.Fatalf("out = %q, want %q", out, "hi")
	}
}

func TestStreamReplyNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	_, err := c.StreamReply(context.Background(), Request{SessionID: "s1"}, nil)
	te, ok := AsTransportError(err)
	if !ok {
		t.Fatalf("error = %v, want TransportError", err)
	}
	if te.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("StatusCode = %d, want 429", te.StatusCode)
	}
}

func TestStreamReplyEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"kind":"reply","text":"partial"}` + "\n"))
		_, _ = w.Write([]byte(`{"kind":"reply","text":"partial then all"}` + "\n"))
		_, _ = w.Write([]byte(`{"kind":"done"}` + "\n"))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL)
	out, err := c.StreamReply(context.Background(), Request{SessionID: "abc"}, nil)
	if err != nil {
		t.Fatalf("StreamReply() error = %v", err)
	}
	if out != "partial then all" {
		t.Fatalf("out = %q, want %q", out, "partial then all")
	}
}

func TestSanitizeSessionID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain-id_42", "plain-id_42"},
		{"spaces and:colons", "spacesandcolons"},
		{"名前abc", "abc"},
		{"", "chat-session"},
		{"!", "chat-session"},
		{strings.Repeat("a", 100), strings.Repeat("a", 64)},
	}
	for _, tc := range cases {
		if got := SanitizeSessionID(tc.in); got != tc.want {
			t.Fatalf("SanitizeSessionID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
