package agent

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tuxqa/tuxqa/internal/cost"
)

// handleSlashCommand processes built-in commands.
// Returns (handled, shouldQuit).
func (a *Agent) handleSlashCommand(input string) (bool, bool) {
	parts := strings.SplitN(strings.TrimSpace(input), " ", 2)
	cmd := parts[0]
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		a.save()
		a.io.SystemMessage("Bye.")
		return true, true
	case "/clear":
		a.session.Clear()
		a.save()
		a.io.SystemMessage("Conversation history cleared.")
		return true, false
	case "/history":
		a.io.SystemMessage(a.formatHistory())
		return true, false
	case "/cost":
		a.io.SystemMessage(a.formatCost())
		return true, false
	case "/profile":
		return a.handleProfile(arg), false
	case "/events":
		return a.handleEvents(arg), false
	case "/help":
		a.io.SystemMessage(helpText)
		return true, false
	default:
		a.io.SystemMessage(fmt.Sprintf("Unknown command %s. Type /help for a list.", cmd))
		return true, false
	}
}

const helpText = `Available commands:
  /help              Show this help message
  /profile           List model profiles
  /profile <name>    Switch model profile (e.g. /profile gpt-4)
  /history           Show conversation history with token counts
  /cost              Show token usage and cost for this run
  /clear             Clear conversation history
  /events [n]        Show recent session events
  /quit              Save and exit`

func (a *Agent) formatHistory() string {
	h := a.session.History
	if len(h) == 0 {
		return "No conversation history."
	}
	counts, err := a.counter.CountEach(h, a.profile)
	if err != nil {
		counts = nil
	}

	var sb strings.Builder
	total := 0
	for i, t := range h {
		content := strings.ReplaceAll(t.Content, "\n", " ")
		if counts != nil {
			total += counts[i]
			fmt.Fprintf(&sb, "[%d] %s (%d tokens): %s\n", i+1, t.Role.Label(), counts[i], truncate(content, 100))
		} else {
			fmt.Fprintf(&sb, "[%d] %s: %s\n", i+1, t.Role.Label(), truncate(content, 100))
		}
	}
	if counts != nil {
		fmt.Fprintf(&sb, "\n%d turns, %d / %d tokens", len(h), total, a.profile.TokenBudget)
	} else {
		fmt.Fprintf(&sb, "\n%d turns", len(h))
	}
	return sb.String()
}

func (a *Agent) formatCost() string {
	s := a.tracker.Summary()
	if a.session.TotalCost > a.tracker.SessionCost() {
		s += fmt.Sprintf("\nSession total (including earlier runs): %s, %d tokens",
			cost.FormatDollars(a.session.TotalCost), a.session.TokensUsed)
	}
	return s
}

func (a *Agent) handleProfile(name string) bool {
	if name == "" {
		var sb strings.Builder
		sb.WriteString("Profiles:")
		for _, p := range a.profiles.All() {
			marker := "  "
			if p.Name == a.profile.Name {
				marker = "* "
			}
			fmt.Fprintf(&sb, "\n%s%-16s %-12s budget=%d", marker, p.Name, p.DisplayName, p.TokenBudget)
			if p.Description != "" {
				sb.WriteString("  " + p.Description)
			}
		}
		a.io.SystemMessage(sb.String())
		return true
	}

	p, err := a.profiles.Lookup(name)
	if err != nil {
		a.io.Error(err.Error())
		return true
	}
	if p.Provider != "" && p.Provider != a.provider.Name() {
		if a.providerFactory == nil {
			a.io.Error(fmt.Sprintf("profile %s needs provider %s, which is not configured", p.Name, p.Provider))
			return true
		}
		prov, err := a.providerFactory(p)
		if err != nil {
			a.io.Error(err.Error())
			return true
		}
		a.provider = prov
	}

	a.profile = p
	a.session.Profile = p.Name
	a.events.Log(EventProfile, map[string]any{"profile": p.Name, "model": p.Model})
	a.log.WithField("profile", p.Name).Info("profile switched")
	a.io.SystemMessage(fmt.Sprintf("Switched to %s (%s, budget %d tokens).", p.DisplayName, p.Model, p.TokenBudget))

	// A smaller budget applies to the existing history right away.
	if trimmed, res, err := a.window.Trim(a.session.History, p); err == nil && res.Trimmed() {
		a.session.History = trimmed
		a.io.SystemMessage(fmt.Sprintf("Chat history trimmed (%d older turns removed).", res.Removed))
	}
	return true
}

func (a *Agent) handleEvents(arg string) bool {
	if a.events == nil {
		a.io.SystemMessage("Event log is disabled.")
		return true
	}
	n := 20
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			a.io.Error("usage: /events [n]")
			return true
		}
		n = v
	}
	events, err := a.events.ReadRecent(n)
	if err != nil {
		a.io.Error(err.Error())
		return true
	}
	a.io.SystemMessage(FormatEvents(events, "Recent events"))
	return true
}
