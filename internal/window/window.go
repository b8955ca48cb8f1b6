// Package window keeps a conversation history inside a model's token budget
// by evicting the oldest turns first.
package window

import (
	"github.com/tuxqa/tuxqa/internal/conversation"
	"github.com/tuxqa/tuxqa/internal/profile"
)

// Counter measures turns; *tokenizer.Counter implements it.
type Counter interface {
	CountEach(turns []conversation.Turn, p profile.Profile) ([]int, error)
}

// Result describes what a trim did.
type Result struct {
	Removed int // turns evicted from the front
	Tokens  int // token count of the returned history
	Budget  int

	// OverBudget is set when the single remaining turn alone exceeds the
	// budget. The last turn is never evicted.
	OverBudget bool
}

// Trimmed reports whether any turn was removed.
func (r Result) Trimmed() bool { return r.Removed > 0 }

// Manager trims histories against a profile's token budget.
type Manager struct {
	counter Counter
}

// NewManager returns a Manager that measures turns with c.
func NewManager(c Counter) *Manager {
	return &Manager{counter: c}
}

// Measure returns the total token count of h and whether it exceeds the budget.
func (m *Manager) Measure(h conversation.History, p profile.Profile) (tokens int, over bool, err error) {
	each, err := m.counter.CountEach(h, p)
	if err != nil {
		return 0, false, err
	}
	for _, n := range each {
		tokens += n
	}
	return tokens, tokens > p.TokenBudget, nil
}

// Trim removes turns from the front of h until the remaining turns fit in
// p.TokenBudget or only one turn is left. h itself is never modified; on
// error the returned history is nil.
//
// Each turn is measured once and the running total is decremented as turns
// are evicted, so removal order matches re-measuring the whole history after
// every eviction.
func (m *Manager) Trim(h conversation.History, p profile.Profile) (conversation.History, Result, error) {
	res := Result{Budget: p.TokenBudget}
	each, err := m.counter.CountEach(h, p)
	if err != nil {
		return nil, res, err
	}

	total := 0
	for _, n := range each {
		total += n
	}

	start := 0
	for total > p.TokenBudget && len(h)-start > 1 {
		total -= each[start]
		start++
	}

	res.Removed = start
	res.Tokens = total
	res.OverBudget = total > p.TokenBudget
	return h[start:].Clone(), res, nil
}
