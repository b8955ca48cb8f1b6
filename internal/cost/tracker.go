package cost

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TurnCost records cost data for a single answered turn.
type TurnCost struct {
	Summary
	Timestamp time.Time
}

// Tracker accumulates token usage and dollar cost across a session's turns.
type Tracker struct {
	mu          sync.Mutex
	sessionCost float64
	turns       []TurnCost
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordTurn adds s to the session totals.
func (t *Tracker) RecordTurn(s Summary) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionCost += s.TotalCost
	t.turns = append(t.turns, TurnCost{Summary: s, Timestamp: time.Now()})
}

// SessionCost returns the total session cost in dollars.
func (t *Tracker) SessionCost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionCost
}

// Turns returns a copy of the recorded turns.
func (t *Tracker) Turns() []TurnCost {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TurnCost, len(t.turns))
	copy(out, t.turns)
	return out
}

// Reset clears all recorded usage.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionCost = 0
	t.turns = nil
}

// Summary returns a formatted string with per-turn cost details.
func (t *Tracker) Summary() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.turns) == 0 {
		return "No usage recorded."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session cost: %s (%d turns)\n\n", FormatDollars(t.sessionCost), len(t.turns))

	totalIn, totalOut := 0, 0
	for i, tc := range t.turns {
		totalIn += tc.InputTokens
		totalOut += tc.OutputTokens
		fmt.Fprintf(&sb, "  Turn %d: %s  in=%d out=%d  %s\n",
			i+1, tc.Model, tc.InputTokens, tc.OutputTokens, FormatDollars(tc.TotalCost))
	}
	fmt.Fprintf(&sb, "\nTotal tokens: %d input + %d output = %d", totalIn, totalOut, totalIn+totalOut)
	return sb.String()
}

// FormatCost returns a compact cost string like "$0.12" for status display.
func (t *Tracker) FormatCost() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sessionCost < 0.01 {
		return fmt.Sprintf("$%.4f", t.sessionCost)
	}
	return fmt.Sprintf("$%.2f", t.sessionCost)
}
