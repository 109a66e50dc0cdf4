// Package session holds per-session conversation state.
//
// A [Log] belongs to exactly one session and is owned by the caller that
// drives the interaction loop. Nothing in this package is global: two
// sessions never share history.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/twinvoice/pkg/types"
)

// DefaultMaxTurns is the retention bound applied when LogConfig.MaxTurns is
// zero or negative.
const DefaultMaxTurns = 50

// LogConfig configures a [Log].
type LogConfig struct {
	// ID identifies the session in logs. A random UUID is generated if empty.
	ID string

	// MaxTurns is the number of turns retained. When exceeded, the oldest
	// turns are evicted first. Defaults to [DefaultMaxTurns].
	MaxTurns int
}

// Log is an append-only, insertion-ordered record of completed turns with a
// bounded retention window.
//
// All methods are safe for concurrent use.
type Log struct {
	id       string
	maxTurns int
	now      func() time.Time

	mu      sync.Mutex
	turns   []types.ConversationTurn
	evicted int
}

// NewLog creates an empty [Log].
func NewLog(cfg LogConfig) *Log {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Log{id: id, maxTurns: maxTurns, now: time.Now}
}

// ID returns the session identifier.
func (l *Log) ID() string { return l.id }

// MaxTurns returns the retention bound.
func (l *Log) MaxTurns() int { return l.maxTurns }

// Append records a completed turn. A zero At is set to the current time.
// When the log is full the oldest turn is dropped.
func (l *Log) Append(t types.ConversationTurn) {
	if t.At.IsZero() {
		t.At = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.turns = append(l.turns, t)
	if over := len(l.turns) - l.maxTurns; over > 0 {
		// Shift into a fresh slice so the evicted turns can be collected.
		kept := make([]types.ConversationTurn, l.maxTurns, l.maxTurns+1)
		copy(kept, l.turns[over:])
		l.turns = kept
		l.evicted += over
	}
}

// Recent returns up to n of the newest turns, oldest first. The returned
// slice is a copy. n <= 0 returns nil.
func (l *Log) Recent(n int) []types.ConversationTurn {
	if n <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := max(len(l.turns)-n, 0)
	if start == len(l.turns) {
		return nil
	}
	out := make([]types.ConversationTurn, len(l.turns)-start)
	copy(out, l.turns[start:])
	return out
}

// Turns returns a copy of every retained turn, oldest first.
func (l *Log) Turns() []types.ConversationTurn {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]types.ConversationTurn(nil), l.turns...)
}

// Len returns the number of retained turns.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.turns)
}

// Evicted returns how many turns have been dropped by the retention bound
// since the log was created or last cleared.
func (l *Log) Evicted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.evicted
}

// Clear removes all turns. The session ID is kept.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = nil
	l.evicted = 0
}
