// Package agent drives a chat session: it owns the conversation history
// and runs each turn through trimming, retrieval, streaming and costing.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tuxqa/tuxqa/internal/config"
	"github.com/tuxqa/tuxqa/internal/cost"
	"github.com/tuxqa/tuxqa/internal/index"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/provider"
	"github.com/tuxqa/tuxqa/internal/session"
	"github.com/tuxqa/tuxqa/internal/tokenizer"
	"github.com/tuxqa/tuxqa/internal/tui"
	"github.com/tuxqa/tuxqa/internal/window"
)

// Retriever looks up reference chunks for a query. *index.Retriever
// implements it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]index.Hit, error)
}

// ProviderFactory creates a Provider for a profile. Used by /profile when
// the new profile lives on a different provider.
type ProviderFactory func(p profile.Profile) (provider.Provider, error)

// Options wires an Agent. Provider, Profiles, Counter, Estimator and IO are
// required; the rest may be left zero.
type Options struct {
	Provider        provider.Provider
	ProviderFactory ProviderFactory
	Profiles        *profile.Registry
	Profile         string // profile name; empty = session's profile or registry default
	Counter         *tokenizer.Counter
	Estimator       *cost.Estimator
	Retriever       Retriever
	TopK            int
	Store           session.Store
	Session         *session.Session // nil starts a new session
	User            string
	IO              tui.IO
	LLM             config.LLMConfig
	Logger          *logrus.Entry
	EventLog        bool
	Version         string
}

// Agent orchestrates the interactive loop between the user and the model.
type Agent struct {
	provider        provider.Provider
	providerFactory ProviderFactory
	profiles        *profile.Registry
	profile         profile.Profile
	counter         *tokenizer.Counter
	window          *window.Manager
	estimator       *cost.Estimator
	tracker         *cost.Tracker
	retriever       Retriever
	topK            int
	store           session.Store
	session         *session.Session
	resumed         bool
	stored          bool // session exists in store
	io              tui.IO
	llm             config.LLMConfig
	systemPrompt    string
	log             *logrus.Entry
	events          *EventLogger
	retry           retryPolicy
	version         string
}

// New creates an Agent. A resumed session keeps its own profile unless
// opts.Profile overrides it.
func New(opts Options) (*Agent, error) {
	switch {
	case opts.Provider == nil:
		return nil, errors.New("agent: provider is required")
	case opts.Profiles == nil:
		return nil, errors.New("agent: profile registry is required")
	case opts.Counter == nil:
		return nil, errors.New("agent: token counter is required")
	case opts.Estimator == nil:
		return nil, errors.New("agent: cost estimator is required")
	case opts.IO == nil:
		return nil, errors.New("agent: IO is required")
	}

	name := opts.Profile
	if name == "" && opts.Session != nil {
		name = opts.Session.Profile
	}
	var (
		prof profile.Profile
		err  error
	)
	if name != "" {
		prof, err = opts.Profiles.Lookup(name)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		if prof, ok = opts.Profiles.Default(); !ok {
			return nil, errors.New("agent: no default profile configured")
		}
	}

	sess := opts.Session
	resumed := sess != nil
	if sess == nil {
		sess = session.New(prof.Name, opts.User)
	}
	if err := sess.History.Validate(); err != nil {
		return nil, fmt.Errorf("session %s: %w", session.ShortID(sess.ID), err)
	}
	sess.Profile = prof.Name

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("session", session.ShortID(sess.ID))

	a := &Agent{
		provider:        opts.Provider,
		providerFactory: opts.ProviderFactory,
		profiles:        opts.Profiles,
		profile:         prof,
		counter:         opts.Counter,
		window:          window.NewManager(opts.Counter),
		estimator:       opts.Estimator,
		tracker:         cost.NewTracker(),
		retriever:       opts.Retriever,
		topK:            opts.TopK,
		store:           opts.Store,
		session:         sess,
		resumed:         resumed,
		stored:          resumed,
		io:              opts.IO,
		llm:             opts.LLM,
		systemPrompt:    loadSystemPrompt(opts.LLM.SystemPrompt),
		log:             log,
		retry:           defaultRetryPolicy,
		version:         opts.Version,
	}
	if opts.EventLog {
		el, err := NewEventLogger(sess.ID)
		if err != nil {
			log.WithError(err).Warn("event log disabled")
		} else {
			a.events = el
		}
	}
	return a, nil
}

// Session returns the session the agent is driving.
func (a *Agent) Session() *session.Session { return a.session }

// Profile returns the active model profile.
func (a *Agent) Profile() profile.Profile { return a.profile }

// Tracker returns the per-run cost tracker.
func (a *Agent) Tracker() *cost.Tracker { return a.tracker }

// Greeting is the first assistant message of a new session.
func (a *Agent) Greeting() string {
	return fmt.Sprintf("Hello! I'm %s. You can ask me any question regarding Linux and Git command.",
		a.profile.DisplayName)
}

// Close releases the event log. The store is owned by the caller.
func (a *Agent) Close() {
	a.events.Log(EventSessionEnd, map[string]any{"turns": len(a.session.History)})
	a.events.Close()
}

// Run starts the interactive REPL loop. It returns nil when the user quits
// or input ends, and ctx.Err() when ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	defer a.Close()

	info := tui.WelcomeInfo{
		Version:   a.version,
		Profile:   a.profile.DisplayName,
		Model:     a.profile.Model,
		SessionID: session.ShortID(a.session.ID),
		User:      a.session.User,
	}
	if a.resumed {
		a.io.Welcome(info)
		a.io.SystemMessage(fmt.Sprintf("Resumed session %s (%d turns).",
			session.ShortID(a.session.ID), len(a.session.History)))
	} else {
		info.Greeting = a.Greeting()
		a.io.Welcome(info)
	}
	a.events.Log(EventSessionStart, map[string]any{
		"profile": a.profile.Name,
		"resumed": a.resumed,
	})
	a.log.WithFields(logrus.Fields{"profile": a.profile.Name, "resumed": a.resumed}).Debug("session started")

	for {
		if ctx.Err() != nil {
			a.save()
			return ctx.Err()
		}
		input, err := a.io.ReadInput()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.save()
				return nil
			}
			return err
		}
		if input == "" {
			continue
		}

		// Slash commands are intercepted before sending to the model.
		if strings.HasPrefix(input, "/") {
			handled, shouldQuit := a.handleSlashCommand(input)
			if shouldQuit {
				return nil
			}
			if handled {
				continue
			}
		}

		a.io.UserMessage(input)
		if _, err := a.Ask(ctx, input); err != nil {
			if ctx.Err() != nil {
				a.io.SystemMessage("\nInterrupted.")
				a.save()
				return ctx.Err()
			}
			a.io.Error(err.Error())
		}
	}
}

// save persists the session. An empty session is written only when it
// replaces one already in the store.
func (a *Agent) save() {
	if a.store == nil || (len(a.session.History) == 0 && !a.stored) {
		return
	}
	if err := a.store.Save(a.session); err != nil {
		a.log.WithError(err).Warn("could not save session")
		return
	}
	a.stored = true
}
