package llm

import "strings"

const (
	sessionIDMinLen = 2
	sessionIDMaxLen = 64
)

// fallbackSessionID is used when sanitizing leaves nothing usable.
const fallbackSessionID = "chat-session"

// SanitizeSessionID maps an arbitrary identifier onto the alphabet the
// completion endpoint accepts: [A-Za-z0-9_-], between 2 and 64 characters.
func SanitizeSessionID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > sessionIDMaxLen {
		out = out[:sessionIDMaxLen]
	}
	if len(out) < sessionIDMinLen {
		return fallbackSessionID
	}
	return out
}
