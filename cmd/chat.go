package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/agent"
	"github.com/tuxqa/tuxqa/internal/auth"
	"github.com/tuxqa/tuxqa/internal/config"
	"github.com/tuxqa/tuxqa/internal/index"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/provider"
	"github.com/tuxqa/tuxqa/internal/session"
	"github.com/tuxqa/tuxqa/internal/tui"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), "")
		},
	}
}

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a saved chat session (ID prefix is enough)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), args[0])
		},
	}
}

// checkOwner refuses to hand a session with an owner to anyone else,
// including an anonymous user.
func checkOwner(sess *session.Session, user *auth.User) error {
	if sess.User == "" {
		return nil
	}
	if user == nil {
		return fmt.Errorf("session %s belongs to %s; sign in with --user to resume it",
			session.ShortID(sess.ID), sess.User)
	}
	if user.Identifier != sess.User {
		return fmt.Errorf("session %s belongs to another user", session.ShortID(sess.ID))
	}
	return nil
}

// runChat starts the interactive chat (REPL) mode. A non-empty resumeID
// continues a saved session.
func runChat(parent context.Context, resumeID string) error {
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

	store, err := openStore(a.cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var sess *session.Session
	topK := a.cfg.Retrieval.TopK
	if resumeID != "" {
		sess, err = store.Load(resumeID)
		if err != nil {
			return fmt.Errorf("resume %s: %w", resumeID, err)
		}
		if err := checkOwner(sess, user); err != nil {
			return err
		}
		topK = a.cfg.Retrieval.ResumeTopK
	}

	// The profile flag wins; otherwise a resumed session keeps its own.
	prof := a.profile
	profileName := prof.Name
	if sess != nil && profileFlag == "" {
		if prof, err = a.profiles.Lookup(sess.Profile); err != nil {
			return err
		}
		profileName = ""
	}

	p, err := buildProvider(a.cfg, prof)
	if err != nil {
		return err
	}

	userID := ""
	if user != nil {
		userID = user.Identifier
	}
	ag, err := agent.New(agent.Options{
		Provider:        p,
		ProviderFactory: func(np profile.Profile) (provider.Provider, error) { return buildProvider(a.cfg, np) },
		Profiles:        a.profiles,
		Profile:         profileName,
		Counter:         a.counter,
		Estimator:       a.estimator,
		Retriever:       openRetriever(ctx, a, ui),
		TopK:            topK,
		Store:           store,
		Session:         sess,
		User:            userID,
		IO:              ui,
		LLM:             a.cfg.LLM,
		Logger:          a.log,
		EventLog:        true,
		Version:         displayVersion(),
	})
	if err != nil {
		return err
	}

	err = ag.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func openStore(cfg *config.Config) (*session.SQLiteStore, error) {
	dbPath, err := cfg.SessionDBPath()
	if err != nil {
		return nil, fmt.Errorf("session db path: %w", err)
	}
	store, err := session.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

// openRetriever loads or builds the document index. Chat still works
// without one; the user is told why answers lack reference material.
func openRetriever(ctx context.Context, a *app, ui tui.IO) agent.Retriever {
	emb, err := buildEmbedder(a.cfg)
	if err != nil {
		a.log.WithError(err).Warn("retrieval disabled")
		ui.SystemMessage("Document index unavailable: " + err.Error())
		return nil
	}

	out := index.LoadOrInitialize(ctx, indexOptions(a), emb)
	switch out.Status {
	case index.StatusLoaded:
		a.log.WithField("chunks", len(out.Index.Chunks)).Debug("document index loaded")
	case index.StatusInitialized:
		ui.SystemMessage(fmt.Sprintf("Indexed %d documents (%d chunks).", out.Index.Documents, len(out.Index.Chunks)))
	default:
		a.log.WithError(out.Err).Warn("document index failed")
		ui.SystemMessage("Document index unavailable: " + out.Err.Error())
		return nil
	}
	return index.NewRetriever(out.Index, emb)
}

func indexOptions(a *app) index.Options {
	r := a.cfg.Retrieval
	return index.Options{
		DataDir:      r.DataDir,
		StorageDir:   r.StorageDir,
		EmbedModel:   r.EmbedModel,
		ChunkSize:    r.ChunkSize,
		ChunkOverlap: r.ChunkOverlap,
		Logger:       a.log,
	}
}

const maxLoginAttempts = 3

// authenticate resolves the user for this run. With auth off and no --user
// the session is anonymous (nil user).
func authenticate(ctx context.Context, cfg *config.Config, ui tui.IO) (*auth.User, error) {
	if oauthFlag != "" {
		if userFlag == "" {
			return nil, errors.New("--oauth needs --user with the identity the provider returned")
		}
		return auth.NewOAuthPassThrough(cfg.Auth.OAuthProviders).
			Callback(ctx, oauthFlag, auth.User{Identifier: userFlag})
	}
	if !cfg.Auth.Required && userFlag == "" {
		return nil, nil
	}

	creds := make([]auth.Credential, 0, len(cfg.Auth.Users))
	for _, u := range cfg.Auth.Users {
		creds = append(creds, auth.Credential{Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role})
	}
	authn, err := auth.NewPasswordAuthenticator(creds)
	if err != nil {
		return nil, err
	}

	username := userFlag
	for attempt := 0; attempt < maxLoginAttempts; attempt++ {
		if username == "" {
			if username, err = ui.ReadLine("Username: "); err != nil {
				return nil, err
			}
		}
		password, err := ui.ReadSecret("Password: ")
		if err != nil {
			return nil, err
		}
		user, err := authn.Authenticate(ctx, username, password)
		if err == nil {
			return user, nil
		}
		if errors.Is(err, auth.ErrTooManyAttempts) {
			return nil, err
		}
		ui.Error(err.Error())
		if userFlag == "" {
			username = ""
		}
	}
	return nil, auth.ErrInvalidCredentials
}
