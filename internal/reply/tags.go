package reply

import (
	"encoding/json"
	"strings"
)

// SegmentKind identifies the deliverable unit type produced by the tag parser.
type SegmentKind string

const (
	SegmentText  SegmentKind = "text"
	SegmentVoice SegmentKind = "voice"
	SegmentGift  SegmentKind = "gift"
)

// VoiceClip is the body of a /voice/{...}/ tag. Duration stays a string to
// match the wire format the model is instructed to emit.
type VoiceClip struct {
	Duration   string `json:"duration"`
	Transcript string `json:"text"`
}

// MonetaryGift is the body of a /red-packet/{...}/ tag.
type MonetaryGift struct {
	Amount   string `json:"amount"`
	Greeting string `json:"greeting"`
}

// Segment is one atomic deliverable unit, in order of appearance.
type Segment struct {
	Kind  SegmentKind
	Text  string
	Voice *VoiceClip
	Gift  *MonetaryGift
}

// segmentSeparator splits a reply into independently delivered chunks.
const segmentSeparator = "---"

const (
	tagKindVoice = "voice"
	tagKindGift  = "red-packet"
)

var tagKinds = []string{tagKindVoice, tagKindGift}

// ParseSegments splits decoded chat text into ordered message segments.
// It is total: malformed tags degrade to literal text, never dropped content.
func ParseSegments(chatText string) []Segment {
	var out []Segment
	for _, raw := range strings.Split(chatText, segmentSeparator) {
		out = append(out, parseRawSegment(raw)...)
	}
	return out
}

func parseRawSegment(raw string) []Segment {
	var out []Segment
	rest := raw
	for {
		m, ok := nextTag(rest)
		if !ok {
			break
		}
		if lead := strings.TrimSpace(rest[:m.start]); lead != "" {
			out = append(out, Segment{Kind: SegmentText, Text: lead})
		}
		out = append(out, m.segment)
		rest = rest[m.end:]
	}
	if trail := strings.TrimSpace(rest); trail != "" {
		out = append(out, Segment{Kind: SegmentText, Text: trail})
	}
	return out
}

type tagMatch struct {
	start   int
	end     int
	segment Segment
}

// nextTag scans for the first /type/{json}/ occurrence. The body is located
// by balanced-brace matching rather than a non-greedy regex so nested braces
// inside the JSON do not truncate the match.
func nextTag(s string) (tagMatch, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] != '/' {
			continue
		}
		for _, kind := range tagKinds {
			rest := s[i+1:]
			if !strings.HasPrefix(rest, kind+"/{") {
				continue
			}
			bodyStart := i + 1 + len(kind) + 1
			bodyEnd, ok := matchBraces(s, bodyStart)
			if !ok || bodyEnd+1 >= len(s) || s[bodyEnd+1] != '/' {
				continue
			}
			end := bodyEnd + 2
			matched := s[i:end]
			body := unescapeQuotes(s[bodyStart : bodyEnd+1])

			seg, ok := decodeTagBody(kind, body)
			if !ok {
				// Fail open: surface the whole tag verbatim instead of
				// losing whatever the model wrote.
				seg = Segment{Kind: SegmentText, Text: matched}
			}
			return tagMatch{start: i, end: end, segment: seg}, true
		}
	}
	return tagMatch{}, false
}

// matchBraces returns the index of the brace closing the one at open.
func matchBraces(s string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// unescapeQuotes undoes the backslash-escaping the model applies to quotes
// inside tag bodies. Bodies that arrive unescaped pass through unchanged.
func unescapeQuotes(s string) string {
	return strings.ReplaceAll(s, `\"`, `"`)
}

func decodeTagBody(kind, body string) (Segment, bool) {
	switch kind {
	case tagKindVoice:
		var clip VoiceClip
		if err := json.Unmarshal([]byte(body), &clip); err != nil {
			return Segment{}, false
		}
		return Segment{Kind: SegmentVoice, Voice: &clip}, true
	case tagKindGift:
		var gift MonetaryGift
		if err := json.Unmarshal([]byte(body), &gift); err != nil {
			return Segment{}, false
		}
		return Segment{Kind: SegmentGift, Gift: &gift}, true
	default:
		return Segment{}, false
	}
}
