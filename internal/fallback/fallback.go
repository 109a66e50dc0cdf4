// Package fallback produces deterministic, rule-based answers for when no
// completion provider can answer.
//
// An [Answerer] evaluates an ordered table of [Rule] values against the
// question. The first rule whose keyword appears in the question and whose
// topic exists in the persona profile selects the answer. When no keyword
// matches literally, a second pass compares the question's words to
// single-word keywords phonetically (Double Metaphone with Jaro-Winkler
// ranking) so that transcription misspellings such as "skilz" or "projex"
// still resolve. If nothing matches, a generic identity statement is returned.
//
// [Answerer.Answer] is total: it returns non-empty text for every input.
package fallback

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/twinvoice/pkg/types"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85

	// minFuzzyLen is the shortest word considered by the phonetic pass.
	minFuzzyLen = 4
)

// Rule maps a set of keywords to a persona topic.
type Rule struct {
	// Keywords are matched case-insensitively as substrings of the question.
	Keywords []string `yaml:"keywords"`

	// Topic is the persona fact answered when a keyword matches.
	Topic string `yaml:"topic"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		{Keywords: []string{"life story", "about yourself", "who are you", "introduce yourself", "background"}, Topic: "life_story"},
		{Keywords: []string{"superpower", "super power", "strength"}, Topic: "superpower"},
		{Keywords: []string{"misconception"}, Topic: "misconception"},
		{Keywords: []string{"grow", "weakness", "improve"}, Topic: "growth_areas"},
		{Keywords: []string{"push", "boundaries", "limits", "comfort zone"}, Topic: "pushing_limits"},
		{Keywords: []string{"skill", "tech", "python", "expert", "stack"}, Topic: "skills"},
		{Keywords: []string{"project", "built", "build"}, Topic: "projects"},
	}
}

// ValidateRules reports rules with no topic or no non-empty keyword.
func ValidateRules(rules []Rule) error {
	var errs []error
	for i, r := range rules {
		if strings.TrimSpace(r.Topic) == "" {
			errs = append(errs, fmt.Errorf("fallback: rules[%d].topic is required", i))
		}
		if !hasKeyword(r) {
			errs = append(errs, fmt.Errorf("fallback: rules[%d] has no keywords", i))
		}
	}
	return errors.Join(errs...)
}

// Method describes how a question was resolved.
type Method string

const (
	// MethodKeyword means a keyword appeared literally in the question.
	MethodKeyword Method = "keyword"

	// MethodPhonetic means a question word sounded like a keyword.
	MethodPhonetic Method = "phonetic"

	// MethodGeneric means no rule matched.
	MethodGeneric Method = "generic"
)

// Match is the outcome of resolving a question against the rule table.
type Match struct {
	Topic  string
	Method Method
}

// Option is a functional option for [New].
type Option func(*Answerer)

// WithRules replaces the rule table. An empty slice disables rule matching.
func WithRules(rules []Rule) Option {
	return func(a *Answerer) { a.rules = rules }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a word whose
// Double Metaphone code overlaps a keyword's. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(a *Answerer) { a.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a word with no
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(a *Answerer) { a.fuzzyThreshold = threshold }
}

// Answerer resolves questions to canned persona statements. It is read-only
// after construction and safe for concurrent use.
type Answerer struct {
	rules             []Rule
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New creates an [Answerer] using [DefaultRules] unless overridden.
func New(opts ...Option) *Answerer {
	a := &Answerer{
		rules:             DefaultRules(),
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Answer returns the fallback answer to question as profile would give it.
// The result is never empty.
func (a *Answerer) Answer(question string, profile types.PersonaProfile) string {
	m := a.Resolve(question, profile)
	if m.Method != MethodGeneric {
		if s, ok := profile.Statement(m.Topic); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return Generic(profile)
}

// Resolve reports which topic question maps to and how it was found. Rules
// whose topic is missing from profile are skipped.
func (a *Answerer) Resolve(question string, profile types.PersonaProfile) Match {
	q := strings.ToLower(question)

	for _, r := range a.rules {
		if !hasTopic(profile, r.Topic) {
			continue
		}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(q, kw) {
				return Match{Topic: r.Topic, Method: MethodKeyword}
			}
		}
	}

	words := words(q)
	if len(words) == 0 {
		return Match{Method: MethodGeneric}
	}
	codes := make([]map[string]struct{}, len(words))
	for i, w := range words {
		codes[i] = codesFor(w)
	}

	for _, r := range a.rules {
		if !hasTopic(profile, r.Topic) {
			continue
		}
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if len(kw) < minFuzzyLen || strings.ContainsFunc(kw, unicode.IsSpace) {
				continue
			}
			kwCodes := codesFor(kw)
			for i, w := range words {
				if a.sounds(w, codes[i], kw, kwCodes) {
					return Match{Topic: r.Topic, Method: MethodPhonetic}
				}
			}
		}
	}
	return Match{Method: MethodGeneric}
}

// Generic returns the identity statement used when no rule matches.
func Generic(p types.PersonaProfile) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return "Thanks for the question! I'm happy to tell you about my background, my skills or my projects."
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "I'm %s", name)
	if p.Role != "" {
		fmt.Fprintf(&sb, ", %s", p.Role)
	}
	if p.Institution != "" {
		fmt.Fprintf(&sb, " at %s", p.Institution)
	}
	sb.WriteString(". Ask me about my background, my skills or my projects and I'll gladly tell you more.")
	return sb.String()
}

// ---- helpers ----

// sounds reports whether word is a likely mistranscription of kw.
func (a *Answerer) sounds(word string, wordCodes map[string]struct{}, kw string, kwCodes map[string]struct{}) bool {
	score := matchr.JaroWinkler(word, kw, false)
	if codesOverlap(wordCodes, kwCodes) {
		return score >= a.phoneticThreshold
	}
	return score >= a.fuzzyThreshold
}

func hasTopic(p types.PersonaProfile, topic string) bool {
	_, ok := p.Statement(topic)
	return ok
}

func hasKeyword(r Rule) bool {
	for _, kw := range r.Keywords {
		if strings.TrimSpace(kw) != "" {
			return true
		}
	}
	return false
}

// words splits s into letter/digit runs of at least minFuzzyLen runes.
func words(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= minFuzzyLen {
			out = append(out, f)
		}
	}
	return out
}

// codesFor returns the non-empty Double Metaphone codes of word.
func codesFor(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
