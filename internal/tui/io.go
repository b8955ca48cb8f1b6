// Package tui defines the IO interface between the agent loop and the
// terminal, plus PlainIO (line-based terminal) and BufferIO (capture).
package tui

import "github.com/tuxqa/tuxqa/internal/cost"

// IO is the contract between the agent loop and the UI layer.
// Every method maps to a distinct visual event so the agent loop never
// depends on a specific rendering implementation.
type IO interface {
	// ReadInput blocks until the user submits a line of input.
	// Returns ("", io.EOF) when the user quits.
	ReadInput() (string, error)

	// ReadLine prompts for a single line of input (e.g. a username).
	ReadLine(prompt string) (string, error)

	// ReadSecret prompts for a value without echoing it (passwords).
	ReadSecret(prompt string) (string, error)

	// Welcome shows the session banner before the first prompt.
	Welcome(info WelcomeInfo)

	// UserMessage displays the user's submitted message in the output area.
	UserMessage(text string)

	// ThinkingStart signals that the model has started processing.
	ThinkingStart()

	// TextDelta appends an incremental text chunk from the model stream.
	TextDelta(delta string)

	// TextDone signals that the current answer is complete.
	// fullText contains the entire answer assembled from all deltas.
	TextDone(fullText string)

	// CostBlock shows the token and cost statistics of the turn just answered.
	CostBlock(s cost.Summary)

	// SystemMessage displays a system-level notice (command output,
	// trimming notices, session status).
	SystemMessage(text string)

	// Error displays an error message with prominent styling.
	Error(msg string)
}

// WelcomeInfo is shown by IO.Welcome.
type WelcomeInfo struct {
	Version   string
	Profile   string
	Model     string
	SessionID string
	User      string
	Greeting  string
}
