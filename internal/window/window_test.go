package window

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuxqa/tuxqa/internal/conversation"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/tokenizer"
)

type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int { return make([]int, len(strings.Fields(text))) }

func newManager() *Manager {
	c := tokenizer.NewWithResolver(func(model, encoding string) (tokenizer.Encoder, error) {
		return wordEncoder{}, nil
	})
	return NewManager(c)
}

func budget(n int) profile.Profile {
	return profile.Profile{Name: "test", Model: "test", TokenBudget: n}
}

// turnOf builds a turn costing exactly n tokens under wordEncoder
// (1 for the role + n-1 content words).
func turnOf(role conversation.Role, tag string, n int) conversation.Turn {
	words := make([]string, n-1)
	for i := range words {
		words[i] = tag
	}
	return conversation.Turn{Role: role, Content: strings.Join(words, " ")}
}

func fiveHundredTokenHistory() conversation.History {
	var h conversation.History
	for i, tag := range []string{"a", "b", "c", "d", "e"} {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		h = append(h, turnOf(role, tag, 100))
	}
	return h
}

func TestTrimRemovesExactlyOldest(t *testing.T) {
	m := newManager()
	h := fiveHundredTokenHistory()

	got, res, err := m.Trim(h, budget(250))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3, res.Removed)
	assert.Equal(t, 200, res.Tokens)
	assert.False(t, res.OverBudget)
	assert.Equal(t, h[3:], got)
}

func TestTrimSingleTurnOverBudgetTerminates(t *testing.T) {
	m := newManager()
	h := conversation.History{{Role: conversation.RoleUser, Content: "Hi"}}

	got, res, err := m.Trim(h, budget(1))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0, res.Removed)
	assert.True(t, res.OverBudget)
	assert.Equal(t, 2, res.Tokens)
}

func TestTrimStopsAtLastTurn(t *testing.T) {
	m := newManager()
	h := conversation.History{
		turnOf(conversation.RoleUser, "x", 10),
		turnOf(conversation.RoleAssistant, "y", 10),
		turnOf(conversation.RoleUser, "z", 50),
	}
	got, res, err := m.Trim(h, budget(20))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, h[2], got[0])
	assert.True(t, res.OverBudget)
}

func TestTrimWithinBudgetIsNoop(t *testing.T) {
	m := newManager()
	h := fiveHundredTokenHistory()
	got, res, err := m.Trim(h, budget(500))
	require.NoError(t, err)
	assert.False(t, res.Trimmed())
	assert.Equal(t, h, got)
}

func TestTrimIdempotent(t *testing.T) {
	m := newManager()
	for _, b := range []int{1, 99, 100, 150, 250, 399, 1000} {
		once, _, err := m.Trim(fiveHundredTokenHistory(), budget(b))
		require.NoError(t, err)
		twice, res, err := m.Trim(once, budget(b))
		require.NoError(t, err)
		assert.Equal(t, once, twice, "budget %d", b)
		assert.Zero(t, res.Removed, "budget %d", b)
	}
}

func TestTrimBoundAndSuffix(t *testing.T) {
	m := newManager()
	h := fiveHundredTokenHistory()
	for b := 1; b <= 600; b += 37 {
		got, res, err := m.Trim(h, budget(b))
		require.NoError(t, err)
		n, _, err := m.Measure(got, budget(b))
		require.NoError(t, err)
		if n > b {
			assert.Len(t, got, 1, "budget %d: over budget with more than one turn", b)
			assert.True(t, res.OverBudget)
		}
		// Remaining turns are exactly the newest suffix, in order.
		assert.Equal(t, h[len(h)-len(got):], got, "budget %d", b)
	}
}

func TestTrimDoesNotMutateInput(t *testing.T) {
	m := newManager()
	h := fiveHundredTokenHistory()
	orig := h.Clone()
	got, _, err := m.Trim(h, budget(150))
	require.NoError(t, err)
	got[0].Content = "mutated"
	assert.Equal(t, orig, h)
}

func TestTrimMalformedTurn(t *testing.T) {
	m := newManager()
	h := conversation.History{{Role: conversation.RoleUser, Content: "ok"}, {Role: conversation.RoleAssistant}}
	got, _, err := m.Trim(h, budget(1))
	require.Error(t, err)
	assert.Nil(t, got)
}

func TestTrimEmpty(t *testing.T) {
	m := newManager()
	got, res, err := m.Trim(nil, budget(10))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.False(t, res.OverBudget)
}
