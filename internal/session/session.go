// Package session holds the per-conversation state object and its
// persistence. A Session is owned by exactly one chat loop; nothing in it is
// shared across sessions.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tuxqa/tuxqa/internal/conversation"
)

// ErrNotFound is returned by stores for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Session holds the conversation state for one chat session.
type Session struct {
	ID      string
	Profile string // profile key the session runs under
	User    string // authenticated user identifier; empty when auth is off

	History conversation.History

	CreatedAt time.Time
	UpdatedAt time.Time

	TokensUsed       int     // cumulative input+output tokens (never reset)
	PromptTokens     int     // last turn's input tokens
	CompletionTokens int     // last turn's output tokens
	TotalCost        float64 // cumulative dollars
}

// New creates a new session with a unique ID.
func New(profileName, user string) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Profile:   profileName,
		User:      user,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddTurn appends a turn to the history.
func (s *Session) AddTurn(role conversation.Role, content string) {
	s.History = s.History.Append(role, content)
}

// RecordUsage stores the token usage and cost of the turn just answered.
func (s *Session) RecordUsage(inputTokens, outputTokens int, cost float64) {
	s.PromptTokens = inputTokens
	s.CompletionTokens = outputTokens
	s.TokensUsed += inputTokens + outputTokens
	s.TotalCost += cost
}

// Clear resets the history; cumulative usage is kept.
func (s *Session) Clear() {
	s.History = nil
}

// Title returns the first user message, used when listing sessions.
func (s *Session) Title() string {
	for _, t := range s.History {
		if t.Role == conversation.RoleUser {
			return t.Content
		}
	}
	return ""
}

// ShortID returns the first 8 characters of the ID for display.
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
