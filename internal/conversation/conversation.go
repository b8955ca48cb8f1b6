// Package conversation defines the turn-based chat history owned by a session.
package conversation

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the capitalized role name used in transcripts ("User", "Assistant").
func (r Role) Label() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// Turn is one message exchanged in a conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// MalformedTurnError reports a turn missing its role or content.
type MalformedTurnError struct {
	Index int
	Field string // "role" or "content"
	Value string
}

func (e *MalformedTurnError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("turn %d: invalid %s %q", e.Index, e.Field, e.Value)
	}
	return fmt.Sprintf("turn %d: missing %s", e.Index, e.Field)
}

// Validate checks a single turn; index is used only for error reporting.
func (t Turn) Validate(index int) error {
	if t.Role == "" {
		return &MalformedTurnError{Index: index, Field: "role"}
	}
	if !t.Role.Valid() {
		return &MalformedTurnError{Index: index, Field: "role", Value: string(t.Role)}
	}
	if t.Content == "" {
		return &MalformedTurnError{Index: index, Field: "content"}
	}
	return nil
}

// History is an ordered conversation, oldest turn first.
type History []Turn

// Validate returns the first malformed turn, if any.
func (h History) Validate() error {
	for i, t := range h {
		if err := t.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Append returns h with a new turn added at the end.
func (h History) Append(role Role, content string) History {
	return append(h, Turn{Role: role, Content: content})
}

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	copy(out, h)
	return out
}

// Last returns the newest turn. ok is false for an empty history.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// Transcript renders the history as "Role: content" lines.
func (h History) Transcript() string {
	var sb strings.Builder
	for i, t := range h {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(t.Role.Label())
		sb.WriteString(": ")
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// QueryInput builds the text sent to the retrieval query engine. A fresh
// conversation sends the user's message as-is; later turns wrap the whole
// transcript so the model sees prior context.
func QueryInput(h History) string {
	if len(h) == 1 {
		return h[0].Content
	}
	return "Given the following conversation history:\n" + h.Transcript() + "\nAssistant:"
}
