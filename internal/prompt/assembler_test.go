package prompt

import (
	"context"
	"strings"
	"testing"

	"github.com/aiko-app/aiko/internal/attachment"
	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/persona"
)

func newTestAssembler(t *testing.T) (*Assembler, *persona.Registry, *attachment.InMemoryStore) {
	t.Helper()
	registry := persona.NewRegistry()
	store := attachment.NewInMemoryStore()
	return NewAssembler(registry, store), registry, store
}

func userTurn(text string) convlog.Turn {
	return convlog.Turn{Role: convlog.RoleUser, Kind: convlog.ContentText, Text: text}
}

func assistantTurn(text string) convlog.Turn {
	return convlog.Turn{Role: convlog.RoleAssistant, Kind: convlog.ContentText, Text: text}
}

func TestAssembleEmptyInputNoHistory(t *testing.T) {
	a, _, _ := newTestAssembler(t)

	out, err := a.Assemble(context.Background(), Input{ParticipantID: "aiko"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	if len(out.Blocks) == 0 {
		t.Fatalf("expected directive blocks")
	}
	for _, b := range out.Blocks {
		if b.Role != convlog.RoleSystem {
			t.Fatalf("unexpected non-system block: %+v", b)
		}
	}
}

func TestAssembleBuiltinLoreAlwaysPresent(t *testing.T) {
	a, registry, _ := newTestAssembler(t)
	registry.PutLore(persona.LoreEntry{ID: "a", Title: "A", Content: "alpha"})
	registry.PutLore(persona.LoreEntry{ID: "b", Title: "B", Content: "beta"})
	registry.PutParticipant(persona.Participant{ID: "bare", Name: "Bare"})

	out, err := a.Assemble(context.Background(), Input{ParticipantID: "bare"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	found := false
	for _, b := range out.Blocks {
		if strings.Contains(b.Content, "Stay in character") {
			found = true
		}
	}
	if !found {
		t.Fatalf("builtin lore missing from context with no bindings: %+v", out.Blocks)
	}
}

func TestAssemblePrecedenceOrder(t *testing.T) {
	a, registry, _ := newTestAssembler(t)
	registry.PutLore(persona.LoreEntry{ID: "harbor", Title: "Harbor", Content: "The harbor town."})
	registry.PutMask(persona.Mask{ID: "noble", Name: "Noble", Description: "A visiting noble."})
	registry.PutWorld(persona.WorldSetting{ID: "minato", Name: "Minato", Description: "A seaside town."})
	registry.PutParticipant(persona.Participant{
		ID:              "p1",
		Name:            "Rin",
		StyleDirectives: "gentle",
		Persona:         "Rin runs the tea house.",
		UserPersona:     "a wandering cartographer",
		LoreIDs:         []string{"harbor"},
		MaskIDs:         []string{"noble"},
		WorldID:         "minato",
	})
	registry.RecordState("p1", map[string]any{"weather": "rain"})

	out, err := a.Assemble(context.Background(), Input{
		ParticipantID:  "p1",
		UserInput:      "hello",
		PrimaryHistory: []convlog.Turn{userTurn("earlier"), assistantTurn("earlier reply")},
		CrossHistory:   []convlog.Turn{userTurn("from the other space")},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	markers := []string{
		"Style:",
		"Lore (Ground rules)",
		"Lore (Harbor)",
		"World setting (Minato)",
		"You are Rin.",
		"user presents as",
		"mask \"Noble\"",
		"parallel conversation",
		"Current world state",
		"earlier",
	}
	idx := 0
	for _, marker := range markers {
		found := -1
		for i := idx; i < len(out.Blocks); i++ {
			if strings.Contains(out.Blocks[i].Content, marker) {
				found = i
				break
			}
		}
		if found < 0 {
			t.Fatalf("marker %q missing or out of order (from block %d): %+v", marker, idx, out.Blocks)
		}
		idx = found
	}

	last := out.Blocks[len(out.Blocks)-1]
	if last.Role != convlog.RoleUser || last.Content != "hello" {
		t.Fatalf("last block = %+v, want current user input", last)
	}
}

func TestAssembleDeterministic(t *testing.T) {
	a, registry, _ := newTestAssembler(t)
	registry.RecordState("aiko", map[string]any{"b": 2, "a": 1, "c": 3})

	in := Input{ParticipantID: "aiko", UserInput: "hey"}
	first, err := a.Assemble(context.Background(), in)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := a.Assemble(context.Background(), in)
		if err != nil {
			t.Fatalf("Assemble() error = %v", err)
		}
		if len(again.Blocks) != len(first.Blocks) {
			t.Fatalf("block count changed between runs")
		}
		for j := range again.Blocks {
			if again.Blocks[j] != first.Blocks[j] {
				t.Fatalf("block %d differs between runs: %q vs %q", j, again.Blocks[j].Content, first.Blocks[j].Content)
			}
		}
	}
}

func TestAssembleMergesConsecutiveUserTurns(t *testing.T) {
	a, _, _ := newTestAssembler(t)

	out, err := a.Assemble(context.Background(), Input{
		ParticipantID: "aiko",
		UserInput:     "now",
		PrimaryHistory: []convlog.Turn{
			userTurn("first"),
			userTurn("second"),
			assistantTurn("got both"),
			userTurn("third"),
		},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var userBlocks []string
	for _, b := range out.Blocks {
		if b.Role == convlog.RoleUser {
			userBlocks = append(userBlocks, b.Content)
		}
	}
	// first+second merged, third alone, then current input.
	if len(userBlocks) != 3 {
		t.Fatalf("user blocks = %q, want 3", userBlocks)
	}
	if userBlocks[0] != "first\nsecond" {
		t.Fatalf("merged block = %q, want %q", userBlocks[0], "first\nsecond")
	}
}

func TestAssembleAttachmentPlaceholder(t *testing.T) {
	a, _, store := newTestAssembler(t)
	if err := store.Put(context.Background(), "ok-ref", "a photo of the pier"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	out, err := a.Assemble(context.Background(), Input{
		ParticipantID: "aiko",
		UserInput:     "see?",
		PrimaryHistory: []convlog.Turn{
			{Role: convlog.RoleUser, Kind: convlog.ContentMultimodal, Text: "look", Attachments: []convlog.Attachment{{Kind: "image", Ref: "ok-ref"}}},
			{Role: convlog.RoleUser, Kind: convlog.ContentMultimodal, Text: "and this", Attachments: []convlog.Attachment{{Kind: "image", Ref: "gone-ref"}}},
		},
	})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}
	joined := ""
	for _, b := range out.Blocks {
		joined += b.Content + "\n"
	}
	if !strings.Contains(joined, "a photo of the pier") {
		t.Fatalf("resolved attachment content missing:\n%s", joined)
	}
	if !strings.Contains(joined, "[attachment unavailable]") {
		t.Fatalf("placeholder missing for unresolved ref:\n%s", joined)
	}
	if out.AttachmentMisses != 1 {
		t.Fatalf("AttachmentMisses = %d, want 1", out.AttachmentMisses)
	}
}

func TestAssembleLoreBudgetHeadTruncates(t *testing.T) {
	a, registry, _ := newTestAssembler(t)
	big := strings.Repeat("x", loreCharBudget)
	registry.PutLore(persona.LoreEntry{ID: "big", Title: "Big", Content: big})
	registry.PutLore(persona.LoreEntry{ID: "after", Title: "After", Content: "should be cut"})
	registry.PutParticipant(persona.Participant{ID: "p1", Name: "P", LoreIDs: []string{"big", "after"}})

	out, err := a.Assemble(context.Background(), Input{ParticipantID: "p1"})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	total := 0
	sawAfter := false
	for _, b := range out.Blocks {
		if strings.HasPrefix(b.Content, "Lore (") {
			total += len(b.Content) - len("Lore (")
		}
		if strings.Contains(b.Content, "should be cut") {
			sawAfter = true
		}
	}
	if sawAfter {
		t.Fatalf("entry past the budget should have been truncated away")
	}
	if total > loreCharBudget+64 {
		t.Fatalf("lore total %d chars exceeds budget", total)
	}
}

func TestAssembleCrossContextBounded(t *testing.T) {
	a, _, _ := newTestAssembler(t)

	var cross []convlog.Turn
	for i := 0; i < 15; i++ {
		cross = append(cross, userTurn("cross line"))
	}
	cross = append(cross, userTurn("the freshest line"))

	out, err := a.Assemble(context.Background(), Input{ParticipantID: "aiko", CrossHistory: cross})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	var block string
	for _, b := range out.Blocks {
		if strings.Contains(b.Content, "parallel conversation") {
			block = b.Content
		}
	}
	if block == "" {
		t.Fatalf("cross-context block missing")
	}
	if !strings.Contains(block, "do not reply to it") {
		t.Fatalf("cross-context block not marked non-actionable: %q", block)
	}
	if got := strings.Count(block, "user: "); got != crossContextTurns {
		t.Fatalf("cross-context carries %d turns, want %d", got, crossContextTurns)
	}
	if !strings.Contains(block, "the freshest line") {
		t.Fatalf("cross-context should keep the most recent turns")
	}
}

func TestAssembleHistoryWindow(t *testing.T) {
	a, registry, _ := newTestAssembler(t)
	registry.PutParticipant(persona.Participant{ID: "short", Name: "S", MemoryRounds: 2})

	var history []convlog.Turn
	for i := 0; i < 10; i++ {
		history = append(history, userTurn("old question"), assistantTurn("old answer"))
	}
	history = append(history, userTurn("new question"), assistantTurn("new answer"))

	out, err := a.Assemble(context.Background(), Input{ParticipantID: "short", PrimaryHistory: history})
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	turns := 0
	for _, b := range out.Blocks {
		if b.Role != convlog.RoleSystem {
			turns++
		}
	}
	if turns != 4 {
		t.Fatalf("history turns in context = %d, want 4 (2 rounds)", turns)
	}
}

func TestAssembleUnknownParticipant(t *testing.T) {
	a, _, _ := newTestAssembler(t)
	if _, err := a.Assemble(context.Background(), Input{ParticipantID: "ghost"}); err == nil {
		t.Fatalf("Assemble() expected error for unknown participant")
	}
}
