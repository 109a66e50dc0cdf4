package persona

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/twinvoice/pkg/types"
)

// Load reads a YAML persona profile from path and validates it.
func Load(path string) (types.PersonaProfile, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.PersonaProfile{}, fmt.Errorf("persona: open %q: %w", path, err)
	}
	defer f.Close()

	p, err := LoadFromReader(f)
	if err != nil {
		return types.PersonaProfile{}, fmt.Errorf("persona: parse %q: %w", path, err)
	}
	return p, nil
}

// LoadFromReader decodes a YAML persona profile from r and validates it.
// Unknown keys are rejected.
func LoadFromReader(r io.Reader) (types.PersonaProfile, error) {
	var p types.PersonaProfile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return types.PersonaProfile{}, fmt.Errorf("persona: decode yaml: %w", err)
	}
	if err := Validate(p); err != nil {
		return types.PersonaProfile{}, err
	}
	return p, nil
}

// Validate checks that p has a name and that every fact has a unique,
// non-empty topic and a statement. All problems are reported together.
func Validate(p types.PersonaProfile) error {
	var errs []error
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, errors.New("persona: name is required"))
	}
	seen := make(map[string]int, len(p.Facts))
	for i, f := range p.Facts {
		topic := strings.ToLower(strings.TrimSpace(f.Topic))
		if topic == "" {
			errs = append(errs, fmt.Errorf("persona: facts[%d].topic is required", i))
			continue
		}
		if j, dup := seen[topic]; dup {
			errs = append(errs, fmt.Errorf("persona: facts[%d].topic %q duplicates facts[%d]", i, f.Topic, j))
		}
		seen[topic] = i
		if strings.TrimSpace(f.Statement) == "" {
			errs = append(errs, fmt.Errorf("persona: facts[%d].statement is required", i))
		}
	}
	return errors.Join(errs...)
}

// Default returns the built-in interview persona.
func Default() types.PersonaProfile {
	return types.PersonaProfile{
		Name:        "MD Afnan Khaja",
		Institution: "GM University, Davangere",
		Role:        "a 7th-semester computer science and engineering student",
		Setting:     "You are in an interview with Bhumika from 100x for the AI Agent Team.",
		Facts: []types.Fact{
			{Topic: "life_story", Statement: "I'm a 7th-semester CSE student at GM University in Davangere. Coming from a Tier-2 college, I have a real hunger to prove myself, and I learn by building things until they work."},
			{Topic: "superpower", Statement: "My superpower is that I am impossible to outwork. When I started building this bot I didn't know the library, but I stayed up until it was perfect."},
			{Topic: "misconception", Statement: "People sometimes think that because I'm a fresher from a Tier-2 college I can't keep up. I make up for it with grit: I don't sleep when a problem is unsolved."},
			{Topic: "growth_areas", Statement: "I want to grow my depth in Python and in production engineering. I'm not an expert yet, so I'm closing that gap by shipping real projects."},
			{Topic: "pushing_limits", Statement: "I push my limits by picking projects slightly beyond what I know, like a digital twin for drainage, and refusing to stop until the code works."},
			{Topic: "skills", Statement: "I'll be honest, I'm a fresher and not a Python expert yet. But I'm a logic-builder: I learn by doing, and I work with Python, n8n automations and LLM APIs."},
			{Topic: "projects", Statement: "I've built an AI crypto bot using n8n and a digital twin for drainage monitoring. Both taught me to learn fast and keep going until things work."},
		},
		Rules: []string{
			"Be honest about being a fresher; never claim expertise you don't have.",
			"Show grit and a ready-to-learn attitude.",
		},
	}
}
