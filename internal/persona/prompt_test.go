package persona_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/MrWong99/twinvoice/internal/persona"
	"github.com/MrWong99/twinvoice/pkg/types"
)

func history(n int) []types.ConversationTurn {
	turns := make([]types.ConversationTurn, n)
	for i := range turns {
		turns[i] = types.ConversationTurn{
			Question: fmt.Sprintf("question-%d", i),
			Answer:   fmt.Sprintf("answer-%d", i),
			Provider: "gemini",
		}
	}
	return turns
}

func TestBuild_SectionOrder(t *testing.T) {
	p := persona.Default()
	q := "What projects have you built?"
	req := persona.Build(q, p, history(1), 3)

	markers := []string{
		"You are " + p.Name,
		"Facts about you:",
		"- skills: ",
		"Conversation so far:",
		"How to answer:",
		"at most 3 sentences",
		p.Rules[0],
		"Question:\n" + q,
	}
	last := -1
	for _, m := range markers {
		i := strings.Index(req.Prompt, m)
		if i < 0 {
			t.Fatalf("prompt missing %q:\n%s", m, req.Prompt)
		}
		if i < last {
			t.Fatalf("%q appears out of order:\n%s", m, req.Prompt)
		}
		last = i
	}
	if !strings.Contains(req.Prompt, p.Setting) {
		t.Error("prompt missing setting line")
	}
	if !strings.Contains(strings.ToLower(req.Prompt), "as an ai") {
		t.Error("prompt missing meta-commentary constraint")
	}
}

func TestBuild_QuestionVerbatim(t *testing.T) {
	for _, q := range []string{"", "  spaced  ", "multi\nline?", "ÜNICODE — ünïcödé"} {
		req := persona.Build(q, persona.Default(), nil, 3)
		if !strings.HasSuffix(req.Prompt, "Question:\n"+q+"\n") {
			t.Errorf("question %q not verbatim at end:\n%s", q, req.Prompt)
		}
	}
}

func TestBuild_Window(t *testing.T) {
	tests := []struct {
		name    string
		turns   int
		window  int
		want    []int
		notWant []int
	}{
		{"no history", 0, 3, nil, nil},
		{"window zero", 5, 0, nil, []int{0, 4}},
		{"negative window", 5, -1, nil, []int{4}},
		{"fewer turns than window", 2, 3, []int{0, 1}, nil},
		{"truncates to newest", 5, 2, []int{3, 4}, []int{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := persona.Build("q?", persona.Default(), history(tt.turns), tt.window)
			if got := strings.Count(req.Prompt, "Interviewer: "); got > max(tt.window, 0) {
				t.Fatalf("%d turns in prompt, window %d", got, tt.window)
			}
			for _, i := range tt.want {
				if !strings.Contains(req.Prompt, fmt.Sprintf("question-%d", i)) {
					t.Errorf("turn %d missing", i)
				}
			}
			for _, i := range tt.notWant {
				if strings.Contains(req.Prompt, fmt.Sprintf("question-%d", i)) {
					t.Errorf("turn %d should be excluded", i)
				}
			}
			if len(tt.want) == 2 {
				if strings.Index(req.Prompt, fmt.Sprintf("question-%d", tt.want[0])) >
					strings.Index(req.Prompt, fmt.Sprintf("question-%d", tt.want[1])) {
					t.Error("history is not oldest first")
				}
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	h := history(4)
	a := persona.Build("Tell me about yourself", persona.Default(), h, 3)
	b := persona.Build("Tell me about yourself", persona.Default(), h, 3)
	if a != b {
		t.Fatal("identical inputs produced different requests")
	}

	c := persona.Build("What is your superpower?", persona.Default(), h, 3)
	strip := func(s, q string) string { return strings.TrimSuffix(s, q+"\n") }
	if strip(a.Prompt, "Tell me about yourself") != strip(c.Prompt, "What is your superpower?") {
		t.Fatal("history content changed with the question")
	}
}

func TestBuilder_Options(t *testing.T) {
	b := persona.Builder{MaxSentences: 2, MaxOutputTokens: 200, Temperature: 0.4}
	req := b.Build("q?", persona.Default(), nil, 3)
	if !strings.Contains(req.Prompt, "at most 2 sentences") {
		t.Error("MaxSentences not applied")
	}
	if req.MaxOutputTokens != 200 || req.Temperature != 0.4 {
		t.Errorf("request params = %d/%v", req.MaxOutputTokens, req.Temperature)
	}
}

func TestBuild_DoesNotMutateHistory(t *testing.T) {
	h := history(3)
	before := fmt.Sprint(h)
	_ = persona.Build("q?", persona.Default(), h, 2)
	if fmt.Sprint(h) != before {
		t.Fatal("history was modified")
	}
}
