// Package persona assembles completion prompts that make a language model
// answer as a fixed person, and loads the profile describing that person.
//
// Prompt assembly is a pure function of its inputs: the same question,
// profile, history and window always produce the same [llm.Request].
package persona

import (
	"fmt"
	"strings"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
	"github.com/MrWong99/twinvoice/pkg/types"
)

const (
	// DefaultWindow is the number of prior turns included in a prompt.
	DefaultWindow = 3

	// DefaultMaxSentences bounds the spoken answer length.
	DefaultMaxSentences = 3
)

// Builder holds the answer constraints applied to every prompt. The zero
// value uses the package defaults.
type Builder struct {
	// MaxSentences is the longest answer the model is asked for. Zero means
	// [DefaultMaxSentences].
	MaxSentences int

	// MaxOutputTokens and Temperature are copied into every request.
	MaxOutputTokens int
	Temperature     float64
}

// Build assembles a prompt with the default [Builder].
func Build(question string, profile types.PersonaProfile, history []types.ConversationTurn, window int) llm.Request {
	return Builder{}.Build(question, profile, history, window)
}

// Build assembles the prompt for question.
//
// The sections appear in a fixed order: identity, profile facts, the last
// window turns of history (oldest first), answer constraints, persona rules
// and finally the question verbatim. history is expected oldest first; only
// its last window entries are used. window <= 0 omits history entirely.
func (b Builder) Build(question string, profile types.PersonaProfile, history []types.ConversationTurn, window int) llm.Request {
	var sb strings.Builder

	writeIdentity(&sb, profile)

	if len(profile.Facts) > 0 {
		sb.WriteString("\nFacts about you:\n")
		for _, f := range profile.Facts {
			fmt.Fprintf(&sb, "- %s: %s\n", f.Topic, f.Statement)
		}
	}

	if turns := lastTurns(history, window); len(turns) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, t := range turns {
			fmt.Fprintf(&sb, "Interviewer: %s\nYou: %s\n", t.Question, t.Answer)
		}
	}

	maxSentences := b.MaxSentences
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	sb.WriteString("\nHow to answer:\n")
	fmt.Fprintf(&sb, "- Answer in at most %d sentences. Your answer will be spoken aloud.\n", maxSentences)
	fmt.Fprintf(&sb, "- Speak in the first person as %s. Use \"I\", \"my\" and \"we\".\n", nameOrYou(profile))
	sb.WriteString("- Never say \"as an AI\" or mention being a model, a bot or a program.\n")
	sb.WriteString("- Stay consistent with the facts above and do not invent new ones.\n")
	for _, r := range profile.Rules {
		if r = strings.TrimSpace(r); r != "" {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}

	sb.WriteString("\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n")

	return llm.Request{
		Prompt:          sb.String(),
		MaxOutputTokens: b.MaxOutputTokens,
		Temperature:     b.Temperature,
	}
}

// ---- helpers ----

func writeIdentity(sb *strings.Builder, p types.PersonaProfile) {
	fmt.Fprintf(sb, "You are %s", nameOrYou(p))
	if p.Role != "" {
		fmt.Fprintf(sb, ", %s", p.Role)
	}
	if p.Institution != "" {
		fmt.Fprintf(sb, " at %s", p.Institution)
	}
	sb.WriteString(".\n")
	if p.Setting != "" {
		sb.WriteString(p.Setting)
		sb.WriteString("\n")
	}
}

func nameOrYou(p types.PersonaProfile) string {
	if p.Name == "" {
		return "yourself"
	}
	return p.Name
}

// lastTurns returns the final window entries of history without copying.
func lastTurns(history []types.ConversationTurn, window int) []types.ConversationTurn {
	if window <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > window {
		return history[len(history)-window:]
	}
	return history
}
