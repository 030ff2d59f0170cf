// Package prompt assembles the per-turn context sent to the completion
// endpoint. Assembly is deterministic: identical inputs always produce the
// same ordered block list, because downstream reply quality depends on
// stable precedence ordering.
package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aiko-app/aiko/internal/attachment"
	"github.com/aiko-app/aiko/internal/convlog"
	"github.com/aiko-app/aiko/internal/persona"
)

// Block is one role-tagged content block of the assembled context.
type Block struct {
	Role    string
	Content string
}

// Context is the ephemeral per-turn input to the completion endpoint.
// It is built fresh each turn and never persisted.
type Context struct {
	Blocks []Block

	// AttachmentMisses counts refs that failed to resolve and were replaced
	// with a placeholder. Not fatal; surfaced so callers can meter it.
	AttachmentMisses int
}

// Input carries everything the assembler needs for one turn. Histories are
// fetched by the caller so the assembler stays a pure transform over them.
type Input struct {
	ParticipantID string
	UserInput     string

	// PrimaryHistory is the active conversation space, oldest first.
	PrimaryHistory []convlog.Turn
	// CrossHistory is the participant's other space, oldest first. It is
	// included as background only, never as actionable dialogue.
	CrossHistory []convlog.Turn
}

const (
	// loreCharBudget caps total lore content; overflow is head-truncated
	// (the head of each entry survives, the tail is cut) rather than failing.
	loreCharBudget = 12000

	// crossContextTurns bounds how much of the other space is carried over.
	crossContextTurns = 10

	attachmentPlaceholder = "[attachment unavailable]"
)

// Assembler builds prompt contexts from participant bindings and histories.
type Assembler struct {
	registry    *persona.Registry
	attachments attachment.Store
}

func NewAssembler(registry *persona.Registry, attachments attachment.Store) *Assembler {
	return &Assembler{registry: registry, attachments: attachments}
}

// Assemble produces the ordered context for one turn. Block precedence is
// fixed: style directives, lore, world setting, counterpart persona, user
// persona, masks, cross-space background, state snapshots, bounded history,
// current input.
func (a *Assembler) Assemble(ctx context.Context, in Input) (Context, error) {
	p, err := a.registry.Participant(in.ParticipantID)
	if err != nil {
		return Context{}, fmt.Errorf("assemble context: %w", err)
	}

	var out Context

	if style := strings.TrimSpace(p.StyleDirectives); style != "" {
		out.addSystem("Style: " + style)
	}

	a.appendLore(&out, p)

	if world, ok := a.registry.WorldFor(p); ok {
		out.addSystem(fmt.Sprintf("World setting (%s): %s", world.Name, world.Description))
	}

	if personaText := strings.TrimSpace(p.Persona); personaText != "" {
		out.addSystem(fmt.Sprintf("You are %s. %s", p.Name, personaText))
	}
	if userPersona := strings.TrimSpace(p.UserPersona); userPersona != "" {
		out.addSystem("The user presents as: " + userPersona)
	}
	for _, mask := range a.registry.MasksFor(p) {
		out.addSystem(fmt.Sprintf("The user currently wears the mask %q: %s", mask.Name, mask.Description))
	}

	a.appendCrossContext(&out, p, in.CrossHistory)
	a.appendState(&out, p)
	a.appendHistory(ctx, &out, p, in.PrimaryHistory)

	if input := strings.TrimSpace(in.UserInput); input != "" {
		out.Blocks = append(out.Blocks, Block{Role: convlog.RoleUser, Content: input})
	}

	return out, nil
}

func (c *Context) addSystem(content string) {
	c.Blocks = append(c.Blocks, Block{Role: convlog.RoleSystem, Content: content})
}

// appendLore adds the participant's lore entries under the character budget.
// The registry already guarantees builtin-first and deduplication.
func (a *Assembler) appendLore(out *Context, p persona.Participant) {
	remaining := loreCharBudget
	for _, entry := range a.registry.LoreFor(p) {
		if remaining <= 0 {
			break
		}
		content := entry.Content
		if len(content) > remaining {
			content = content[:remaining]
		}
		remaining -= len(content)
		out.addSystem(fmt.Sprintf("Lore (%s): %s", entry.Title, content))
	}
}

func (a *Assembler) appendCrossContext(out *Context, p persona.Participant, cross []convlog.Turn) {
	if len(cross) > crossContextTurns {
		cross = cross[len(cross)-crossContextTurns:]
	}
	if len(cross) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString("Background from a parallel conversation with the same user. ")
	b.WriteString("Context only; do not reply to it or act on it directly.\n")
	for _, turn := range cross {
		speaker := "user"
		if turn.Role == convlog.RoleAssistant {
			speaker = p.Name
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	out.addSystem(strings.TrimRight(b.String(), "\n"))
}

func (a *Assembler) appendState(out *Context, p persona.Participant) {
	live, history := a.registry.StateFor(p.ID)
	for _, snap := range history {
		if raw, err := json.Marshal(snap.Data); err == nil {
			out.addSystem("Earlier world state: " + string(raw))
		}
	}
	if live != nil {
		if raw, err := json.Marshal(live); err == nil {
			out.addSystem("Current world state: " + string(raw))
		}
	}
}

// appendHistory adds the bounded recent history: memoryRounds turn-pairs,
// consecutive user turns merged, attachments resolved to text or placeholder.
func (a *Assembler) appendHistory(ctx context.Context, out *Context, p persona.Participant, history []convlog.Turn) {
	window := p.EffectiveMemoryRounds() * 2
	if len(history) > window {
		history = history[len(history)-window:]
	}

	for _, turn := range history {
		content := a.renderTurn(ctx, out, turn)
		if content == "" {
			continue
		}
		// Merge runs of user turns so the model never sees one utterance
		// artificially split across blocks.
		if turn.Role == convlog.RoleUser && len(out.Blocks) > 0 {
			last := &out.Blocks[len(out.Blocks)-1]
			if last.Role == convlog.RoleUser {
				last.Content += "\n" + content
				continue
			}
		}
		out.Blocks = append(out.Blocks, Block{Role: turn.Role, Content: content})
	}
}

func (a *Assembler) renderTurn(ctx context.Context, out *Context, turn convlog.Turn) string {
	parts := make([]string, 0, 1+len(turn.Attachments))
	if text := strings.TrimSpace(turn.Text); text != "" && turn.Kind != convlog.ContentEvent {
		parts = append(parts, text)
	}
	if turn.Kind == convlog.ContentEvent {
		parts = append(parts, renderEventTurn(turn))
	}
	for _, att := range turn.Attachments {
		content, err := a.attachments.Resolve(ctx, att.Ref)
		if err != nil {
			// Misses and store trouble degrade identically: the turn keeps
			// its place in history with a placeholder body.
			out.AttachmentMisses++
			parts = append(parts, attachmentPlaceholder)
			continue
		}
		parts = append(parts, content)
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// renderEventTurn narrates a persisted non-text segment so history stays
// readable to the model.
func renderEventTurn(turn convlog.Turn) string {
	switch turn.Event {
	case convlog.EventVoice:
		return "[voice message] " + turn.Text
	case convlog.EventGift:
		return "[gift] " + turn.Text
	default:
		return turn.Text
	}
}
