package persona

import "time"

// LoreEntry is one world-lore excerpt bindable to a participant.
type LoreEntry struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// BuiltinLoreID is the fixed lore entry included in every assembled
// context regardless of participant bindings.
const BuiltinLoreID = "builtin"

// Mask is an overlay persona the user wears on top of their own persona.
type Mask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WorldSetting describes the active narrative world.
type WorldSetting struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// StateSnapshot is a free-form capture of narrative-world state, taken from
// the status envelope after a turn.
type StateSnapshot struct {
	Data    map[string]any `json:"data"`
	TakenAt time.Time      `json:"taken_at"`
}

// Participant is one companion character plus everything bound to it.
type Participant struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	StyleDirectives string   `json:"style_directives"`
	Persona         string   `json:"persona"`
	UserPersona     string   `json:"user_persona"`
	MemoryRounds    int      `json:"memory_rounds"`
	LoreIDs         []string `json:"lore_ids"`
	MaskIDs         []string `json:"mask_ids"`
	WorldID         string   `json:"world_id"`
}

const defaultMemoryRounds = 10

// EffectiveMemoryRounds returns the configured history window, defaulting
// when unset or nonsensical.
func (p Participant) EffectiveMemoryRounds() int {
	if p.MemoryRounds <= 0 {
		return defaultMemoryRounds
	}
	return p.MemoryRounds
}
