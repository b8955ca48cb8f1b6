package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/agent"
	"github.com/tuxqa/tuxqa/internal/tui"
)

func newAskCmd() *cobra.Command {
	var (
		prompt string
		noSave bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question non-interactively",
		Example: `  tuxqa ask -P "how do I undo the last commit but keep my changes"
  tuxqa ask --profile gpt-4 "what does chmod 755 mean"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				prompt = strings.TrimSpace(strings.Join(args, " "))
			}
			if prompt == "" {
				return fmt.Errorf("a question is required (argument or --prompt / -P)")
			}
			return runAsk(cmd.Context(), prompt, noSave)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the question to answer")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not store the session")

	return cmd
}

// runAsk answers one question and exits.
func runAsk(parent context.Context, prompt string, noSave bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp()
	if err != nil {
		return err
	}
	ui := tui.NewPlainIO(true)

	user, err := authenticate(ctx, a.cfg, ui)
	if err != nil {
		return err
	}

	p, err := buildProvider(a.cfg, a.profile)
	if err != nil {
		return err
	}

	opts := agent.Options{
		Provider:  p,
		Profiles:  a.profiles,
		Profile:   a.profile.Name,
		Counter:   a.counter,
		Estimator: a.estimator,
		Retriever: openRetriever(ctx, a, ui),
		TopK:      a.cfg.Retrieval.TopK,
		IO:        ui,
		LLM:       a.cfg.LLM,
		Logger:    a.log,
		Version:   displayVersion(),
	}
	if user != nil {
		opts.User = user.Identifier
	}
	if !noSave {
		store, err := openStore(a.cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Store = store
	}

	ag, err := agent.New(opts)
	if err != nil {
		return err
	}
	defer ag.Close()

	_, err = ag.Ask(ctx, prompt)
	return err
}
