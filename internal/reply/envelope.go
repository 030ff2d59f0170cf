// Package reply decodes raw model output into structured chat replies:
// the {reply, status} envelope and the inline /type/{json}/ tag grammar.
package reply

import (
	"encoding/json"
	"strings"
)

// Envelope is the decoded structured result of one completion.
// ChatText is always usable; Status is absent when the model omitted it
// or the output did not parse. Fallback is set when ChatText is the raw
// output verbatim rather than an extracted reply field.
type Envelope struct {
	ChatText string
	Status   map[string]any
	Fallback bool
}

// DecodeEnvelope extracts an Envelope from raw completion text. It never
// fails: anything that does not parse degrades to the raw text verbatim.
func DecodeEnvelope(raw string) Envelope {
	cleaned := stripCodeFence(raw)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return Envelope{ChatText: raw, Fallback: true}
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &obj); err != nil {
		return Envelope{ChatText: raw, Fallback: true}
	}

	env := Envelope{ChatText: raw, Fallback: true}
	if s, ok := obj["reply"].(string); ok && strings.TrimSpace(s) != "" {
		env.ChatText = s
		env.Fallback = false
	}
	if status, ok := obj["status"].(map[string]any); ok {
		env.Status = status
	}
	return env
}

// stripCodeFence removes a single surrounding ``` fence (with optional
// language tag) so fenced JSON output still parses.
func stripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSpace(t)
	t = strings.TrimSuffix(t, "```")
	return strings.TrimSpace(t)
}
