package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tuxqa/tuxqa/internal/conversation"
	"github.com/tuxqa/tuxqa/internal/cost"
	"github.com/tuxqa/tuxqa/internal/index"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/provider"
)

// Ask runs one turn to completion:
//  1. append the user turn and trim the history to the profile's budget
//  2. build the query input and retrieve reference chunks
//  3. stream the answer, retrying transient failures before the first delta
//  4. append the answer, price the turn and persist the session
//
// The session history is only replaced once the answer arrives, so a failed
// turn leaves it exactly as it was. An interrupted turn keeps the question
// but no answer.
func (a *Agent) Ask(ctx context.Context, input string) (cost.Summary, error) {
	log := a.log.WithField("profile", a.profile.Name)
	sess := a.session

	pending := sess.History.Clone().Append(conversation.RoleUser, input)
	a.events.Log(EventUserMessage, map[string]any{"text": input})

	trimmed, res, err := a.window.Trim(pending, a.profile)
	if err != nil {
		return cost.Summary{}, a.fail(log, fmt.Errorf("measure history: %w", err))
	}
	if res.Trimmed() {
		fields := logrus.Fields{
			"removed":     res.Removed,
			"tokens":      res.Tokens,
			"budget":      res.Budget,
			"over_budget": res.OverBudget,
		}
		log.WithFields(fields).Info("history trimmed")
		a.events.Log(EventTrim, map[string]any(fields))
		a.io.SystemMessage(fmt.Sprintf("Chat history trimmed (%d older turns removed).", res.Removed))
	}
	if res.OverBudget {
		log.WithFields(logrus.Fields{"tokens": res.Tokens, "budget": res.Budget}).
			Warn("single turn exceeds the token budget")
	}

	// The prompt history is what the turn is billed for.
	prompt := trimmed.Clone()
	query := conversation.QueryInput(prompt)

	hits := a.retrieve(ctx, log, input)

	req := &provider.ChatRequest{
		Model:        a.profile.Model,
		Messages:     []provider.Message{{Role: provider.RoleUser, Text: query}},
		SystemPrompt: buildSystemPrompt(a.systemPrompt, hits),
		MaxTokens:    a.llm.MaxTokens,
	}
	if a.llm.Temperature > 0 {
		t := a.llm.Temperature
		req.Temperature = &t
	}

	answer, usage, err := a.stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			sess.History = pending
		}
		return cost.Summary{}, a.fail(log, err)
	}
	sess.History = trimmed
	sess.AddTurn(conversation.RoleAssistant, answer)
	a.events.Log(EventAnswer, map[string]any{"text": answer})

	summary, err := a.price(prompt, answer)
	switch {
	case err == nil:
		a.tracker.RecordTurn(summary)
		sess.RecordUsage(summary.InputTokens, summary.OutputTokens, summary.TotalCost)
		a.events.Log(EventCost, map[string]any{
			"input_tokens":  summary.InputTokens,
			"output_tokens": summary.OutputTokens,
			"total_cost":    summary.TotalCost,
		})
		fields := logrus.Fields{
			"input_tokens":  summary.InputTokens,
			"output_tokens": summary.OutputTokens,
			"cost":          summary.TotalCost,
		}
		if usage != nil {
			fields["api_input_tokens"] = usage.InputTokens
			fields["api_output_tokens"] = usage.OutputTokens
		}
		log.WithFields(fields).Debug("turn priced")
		a.io.CostBlock(summary)
	case profile.IsUnknownModel(err):
		log.WithError(err).Warn("turn not priced")
		a.io.SystemMessage("Cost unavailable: " + err.Error())
	default:
		log.WithError(err).Warn("turn not priced")
	}

	a.save()
	return summary, nil
}

func (a *Agent) fail(log *logrus.Entry, err error) error {
	log.WithError(err).Debug("turn failed")
	a.events.Log(EventError, err.Error())
	return err
}

// price bills the prompt history as input and the answer as output.
func (a *Agent) price(prompt conversation.History, answer string) (cost.Summary, error) {
	in, err := a.counter.CountTurns(prompt, a.profile)
	if err != nil {
		return cost.Summary{}, err
	}
	out, err := a.counter.Count(answer, a.profile)
	if err != nil {
		return cost.Summary{}, err
	}
	return a.estimator.Estimate(in, out, a.profile)
}

// retrieve fetches reference chunks for the latest user message. Retrieval
// failures degrade to an answer without reference material.
func (a *Agent) retrieve(ctx context.Context, log *logrus.Entry, query string) []index.Hit {
	if a.retriever == nil || a.topK <= 0 {
		return nil
	}
	hits, err := a.retriever.Retrieve(ctx, query, a.topK)
	if err != nil {
		log.WithError(err).Warn("retrieval failed")
		return nil
	}
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, h.Source)
	}
	a.events.Log(EventRetrieval, map[string]any{"sources": sources})
	log.WithField("chunks", len(hits)).Debug("retrieved")
	return hits
}

// stream sends req and relays deltas to the UI. Transient failures are
// retried only while nothing has been shown yet.
func (a *Agent) stream(ctx context.Context, req *provider.ChatRequest) (string, *provider.Usage, error) {
	var text strings.Builder
	for attempt := 0; ; attempt++ {
		text.Reset()

		events, err := a.provider.Chat(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			if attempt < a.retry.maxRetries && isRetryableError(err) {
				if err := a.backoff(ctx, attempt, err); err != nil {
					return "", nil, err
				}
				continue
			}
			return "", nil, fmt.Errorf("LLM call failed: %w", err)
		}

		a.io.ThinkingStart()

		var (
			usage     *provider.Usage
			streamErr error
			received  bool
		)
		for event := range events {
			switch event.Type {
			case provider.EventTextDelta:
				received = true
				a.io.TextDelta(event.TextDelta)
				text.WriteString(event.TextDelta)
			case provider.EventDone:
				usage = event.Usage
			case provider.EventError:
				streamErr = event.Error
			}
		}

		if ctx.Err() != nil {
			a.io.TextDone(text.String())
			return "", nil, ctx.Err()
		}

		// Stream error before any content: retry if possible.
		if streamErr != nil && !received && attempt < a.retry.maxRetries && isRetryableError(streamErr) {
			if err := a.backoff(ctx, attempt, streamErr); err != nil {
				return "", nil, err
			}
			continue
		}

		// Stream error after content was received: can't retry safely.
		if streamErr != nil {
			a.io.TextDone(text.String())
			return "", nil, fmt.Errorf("stream error: %w", streamErr)
		}

		full := text.String()
		a.io.TextDone(full)
		if strings.TrimSpace(full) == "" {
			return "", nil, errors.New("model returned an empty answer")
		}
		return full, usage, nil
	}
}

func (a *Agent) backoff(ctx context.Context, attempt int, cause error) error {
	delay := a.retry.delay(attempt)
	a.io.SystemMessage(formatRetryMessage(attempt, a.retry.maxRetries, delay, cause))
	a.log.WithError(cause).WithField("attempt", attempt+1).Warn("retrying model call")
	return sleepWithContext(ctx, delay)
}
