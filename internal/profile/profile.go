// Package profile holds the model profiles a session can run under.
// A profile bundles the model name, its context token budget and the
// per-token prices used for cost reporting.
package profile

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Profile identifies the language model selected for a session.
type Profile struct {
	Name        string // registry key, e.g. "gpt-4"
	DisplayName string // chat profile label, e.g. "GPT-4"
	Description string
	Model       string // model ID sent to the provider
	Provider    string // provider name; empty = config default
	Encoding    string // tokenizer encoding override; empty = derive from Model
	TokenBudget int

	InputPrice  float64 // dollars per input token
	OutputPrice float64 // dollars per output token
}

// UnknownModelError reports a model with no encoding table, no price entry
// or no registered profile.
type UnknownModelError struct {
	Model  string
	Reason string
}

func (e *UnknownModelError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unknown model %q", e.Model)
	}
	return fmt.Sprintf("unknown model %q: %s", e.Model, e.Reason)
}

// IsUnknownModel reports whether err wraps an UnknownModelError.
func IsUnknownModel(err error) bool {
	var ume *UnknownModelError
	return errors.As(err, &ume)
}

// Registry is a read-only name → Profile mapping.
type Registry struct {
	profiles    map[string]Profile
	defaultName string
}

// NewRegistry builds a registry. Profiles without a Name are rejected, as are
// profiles with a non-positive token budget.
func NewRegistry(profiles []Profile, defaultName string) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile, len(profiles))}
	for _, p := range profiles {
		if p.Name == "" {
			return nil, errors.New("profile with empty name")
		}
		if p.TokenBudget <= 0 {
			return nil, fmt.Errorf("profile %q: token_budget must be positive, got %d", p.Name, p.TokenBudget)
		}
		if p.Model == "" {
			p.Model = p.Name
		}
		if p.DisplayName == "" {
			p.DisplayName = p.Name
		}
		r.profiles[p.Name] = p
	}
	if defaultName != "" {
		p, err := r.Lookup(defaultName)
		if err != nil {
			return nil, fmt.Errorf("default profile: %w", err)
		}
		r.defaultName = p.Name
	} else if names := r.Names(); len(names) > 0 {
		r.defaultName = names[0]
	}
	return r, nil
}

// Lookup resolves a profile by key, display name or model ID
// (case-insensitive for display names, so "GPT-4" and "gpt-4" both work).
func (r *Registry) Lookup(name string) (Profile, error) {
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	for _, key := range r.Names() {
		p := r.profiles[key]
		if strings.EqualFold(p.DisplayName, name) || p.Model == name {
			return p, nil
		}
	}
	return Profile{}, &UnknownModelError{Model: name, Reason: "no profile registered"}
}

// Default returns the default profile. ok is false for an empty registry.
func (r *Registry) Default() (Profile, bool) {
	p, ok := r.profiles[r.defaultName]
	return p, ok
}

// Names returns the registered profile keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// All returns every profile sorted by key.
func (r *Registry) All() []Profile {
	out := make([]Profile, 0, len(r.profiles))
	for _, n := range r.Names() {
		out = append(out, r.profiles[n])
	}
	return out
}
