// Package tokenizer counts subword tokens for a model profile.
//
// Encodings are resolved from the profile's model name (or its explicit
// encoding override) and cached per encoding. Counting is otherwise pure.
package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/tuxqa/tuxqa/internal/conversation"
	"github.com/tuxqa/tuxqa/internal/profile"
)

// Encoder turns text into token IDs.
type Encoder interface {
	Encode(text string) []int
}

// Resolver finds the encoder for a model. encoding, when non-empty, names
// the encoding table directly and takes precedence over the model name.
// Resolvers return *profile.UnknownModelError for unregistered models.
type Resolver func(model, encoding string) (Encoder, error)

// Counter counts tokens for text and conversation turns.
type Counter struct {
	resolve Resolver

	mu    sync.Mutex
	cache map[string]Encoder
}

// New returns a Counter backed by tiktoken encoding tables.
func New() *Counter {
	return NewWithResolver(TiktokenResolver)
}

// NewWithResolver returns a Counter using a custom resolver.
func NewWithResolver(r Resolver) *Counter {
	return &Counter{resolve: r, cache: make(map[string]Encoder)}
}

// Count returns the number of tokens text encodes to under p's encoding.
func (c *Counter) Count(text string, p profile.Profile) (int, error) {
	enc, err := c.encoder(p)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text)), nil
}

// CountTurns returns Σ tokens(role) + tokens(content) over turns.
func (c *Counter) CountTurns(turns []conversation.Turn, p profile.Profile) (int, error) {
	each, err := c.CountEach(turns, p)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, n := range each {
		total += n
	}
	return total, nil
}

// CountEach returns the per-turn token counts, in order. Every turn is
// validated before any counting happens.
func (c *Counter) CountEach(turns []conversation.Turn, p profile.Profile) ([]int, error) {
	if err := conversation.History(turns).Validate(); err != nil {
		return nil, err
	}
	enc, err := c.encoder(p)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(turns))
	for i, t := range turns {
		out[i] = len(enc.Encode(string(t.Role))) + len(enc.Encode(t.Content))
	}
	return out, nil
}

func (c *Counter) encoder(p profile.Profile) (Encoder, error) {
	key := p.Encoding
	if key == "" {
		key = "model:" + p.Model
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[key]; ok {
		return enc, nil
	}
	enc, err := c.resolve(p.Model, p.Encoding)
	if err != nil {
		return nil, err
	}
	c.cache[key] = enc
	return enc, nil
}

type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenEncoder) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// TiktokenResolver resolves encodings through tiktoken-go. The first use of
// an encoding downloads its BPE table (cached under TIKTOKEN_CACHE_DIR).
func TiktokenResolver(model, encoding string) (Encoder, error) {
	var (
		enc *tiktoken.Tiktoken
		err error
	)
	if encoding != "" {
		enc, err = tiktoken.GetEncoding(encoding)
		if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown encoding") {
			return nil, &profile.UnknownModelError{Model: model, Reason: fmt.Sprintf("no encoding table %q", encoding)}
		}
	} else {
		enc, err = tiktoken.EncodingForModel(model)
		if err != nil && strings.Contains(err.Error(), "no encoding for model") {
			return nil, &profile.UnknownModelError{Model: model, Reason: "no registered encoding table"}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", model, err)
	}
	return tiktokenEncoder{enc: enc}, nil
}
