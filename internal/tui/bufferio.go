package tui

import (
	"io"
	"strings"
	"sync"

	"github.com/tuxqa/tuxqa/internal/cost"
)

// BufferIO is a silent IO implementation that captures output without
// rendering to a terminal. Used by one-shot mode and tests. Inputs are
// served from a fixed script; ReadInput returns io.EOF once it runs out.
type BufferIO struct {
	mu      sync.Mutex
	inputs  []string
	secrets []string
	text    strings.Builder

	Answers  []string
	Costs    []cost.Summary
	System   []string
	Errors   []string
	Welcomed *WelcomeInfo
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that replays inputs in order.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

// WithSecrets sets the values returned by ReadSecret.
func (b *BufferIO) WithSecrets(secrets ...string) *BufferIO {
	b.secrets = secrets
	return b
}

// Output returns all streamed answer text.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text.String()
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	in := b.inputs[0]
	b.inputs = b.inputs[1:]
	return in, nil
}

func (b *BufferIO) ReadLine(_ string) (string, error) { return b.ReadInput() }

func (b *BufferIO) ReadSecret(_ string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.secrets) == 0 {
		return "", io.EOF
	}
	s := b.secrets[0]
	b.secrets = b.secrets[1:]
	return s, nil
}

func (b *BufferIO) Welcome(info WelcomeInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Welcomed = &info
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text.WriteString(delta)
}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Answers = append(b.Answers, fullText)
}

func (b *BufferIO) CostBlock(s cost.Summary) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Costs = append(b.Costs, s)
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.System = append(b.System, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Errors = append(b.Errors, msg)
}
