package persona

import (
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("participant not found")

// maxStateSnapshots bounds the retained historical snapshots per participant.
const maxStateSnapshots = 5

// Registry holds participants and the lore, masks, worlds, and state
// snapshots bound to them. In-process; conversation logs live elsewhere.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]Participant
	lore         map[string]LoreEntry
	masks        map[string]Mask
	worlds       map[string]WorldSetting
	states       map[string]*stateHistory
}

type stateHistory struct {
	live    map[string]any
	history []StateSnapshot
}

func NewRegistry() *Registry {
	r := &Registry{
		participants: make(map[string]Participant),
		lore:         make(map[string]LoreEntry),
		masks:        make(map[string]Mask),
		worlds:       make(map[string]WorldSetting),
		states:       make(map[string]*stateHistory),
	}
	r.seed()
	return r
}

func (r *Registry) seed() {
	r.lore[BuiltinLoreID] = LoreEntry{
		ID:      BuiltinLoreID,
		Title:   "Ground rules",
		Content: "Stay in character. Never mention being an AI or a language model. Keep replies conversational.",
	}
	r.participants["aiko"] = Participant{
		ID:              "aiko",
		Name:            "Aiko",
		StyleDirectives: "Warm, playful, a little teasing. Short messages, like texting a close friend.",
		Persona:         "Aiko is a 24-year-old illustrator who lives above a noodle shop and sends voice notes when she's excited.",
		MemoryRounds:    defaultMemoryRounds,
	}
}

func (r *Registry) Participant(id string) (Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, ErrNotFound
	}
	return p, nil
}

func (r *Registry) PutParticipant(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = p
}

func (r *Registry) PutLore(entry LoreEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lore[entry.ID] = entry
}

func (r *Registry) PutMask(m Mask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.masks[m.ID] = m
}

func (r *Registry) PutWorld(w WorldSetting) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.worlds[w.ID] = w
}

// LoreFor returns the participant's lore entries deduplicated by ID, with
// the built-in entry always present and first.
func (r *Registry) LoreFor(p Participant) []LoreEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LoreEntry, 0, len(p.LoreIDs)+1)
	seen := make(map[string]bool, len(p.LoreIDs)+1)

	if builtin, ok := r.lore[BuiltinLoreID]; ok {
		out = append(out, builtin)
		seen[BuiltinLoreID] = true
	}
	for _, id := range p.LoreIDs {
		if seen[id] {
			continue
		}
		entry, ok := r.lore[id]
		if !ok {
			continue
		}
		out = append(out, entry)
		seen[id] = true
	}
	return out
}

func (r *Registry) MasksFor(p Participant) []Mask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Mask, 0, len(p.MaskIDs))
	for _, id := range p.MaskIDs {
		if m, ok := r.masks[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Registry) WorldFor(p Participant) (WorldSetting, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[p.WorldID]
	return w, ok
}

// RecordState replaces the live snapshot and retires the previous one into
// the bounded history ring.
func (r *Registry) RecordState(participantID string, data map[string]any) {
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.states[participantID]
	if h == nil {
		h = &stateHistory{}
		r.states[participantID] = h
	}
	if h.live != nil {
		h.history = append(h.history, StateSnapshot{Data: h.live, TakenAt: time.Now().UTC()})
		if len(h.history) > maxStateSnapshots {
			h.history = h.history[len(h.history)-maxStateSnapshots:]
		}
	}
	h.live = data
}

// StateFor returns the live snapshot and up to maxStateSnapshots retained
// historical snapshots, oldest first.
func (r *Registry) StateFor(participantID string) (map[string]any, []StateSnapshot) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := r.states[participantID]
	if h == nil {
		return nil, nil
	}
	history := make([]StateSnapshot, len(h.history))
	copy(history, h.history)
	return h.live, history
}
