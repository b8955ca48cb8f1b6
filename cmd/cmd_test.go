package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/tuxqa/tuxqa/internal/auth"
	"github.com/tuxqa/tuxqa/internal/config"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/session"
	"github.com/tuxqa/tuxqa/internal/tui"
)

func setFlags(t *testing.T, user, oauth string) {
	t.Helper()
	oldUser, oldOAuth := userFlag, oauthFlag
	userFlag, oauthFlag = user, oauth
	t.Cleanup(func() { userFlag, oauthFlag = oldUser, oldOAuth })
}

func TestBuildProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	p := profile.Profile{Name: "gpt-4", Model: "gpt-4"}

	if _, err := buildProvider(cfg, p); err == nil {
		t.Fatal("expected error without API key")
	}

	cfg.Providers["openai"] = &config.ProviderConfig{APIKey: "sk-test"}
	prov, err := buildProvider(cfg, p)
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if prov.Name() != "openai" || prov.DefaultModel() != "gpt-4" {
		t.Errorf("provider = %s/%s", prov.Name(), prov.DefaultModel())
	}

	cfg.Providers["anthropic"] = &config.ProviderConfig{APIKey: "sk-ant"}
	prov, err = buildProvider(cfg, profile.Profile{Name: "claude", Model: "claude-sonnet-4-5", Provider: "anthropic"})
	if err != nil {
		t.Fatalf("buildProvider anthropic: %v", err)
	}
	if prov.Name() != "anthropic" {
		t.Errorf("provider = %s, want anthropic", prov.Name())
	}

	cfg.Providers["acme"] = &config.ProviderConfig{APIKey: "k"}
	if _, err := buildProvider(cfg, profile.Profile{Name: "x", Model: "x", Provider: "acme"}); err == nil {
		t.Error("expected error for unknown provider without base_url")
	}
}

func TestBuildEmbedder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Provider = "anthropic"
	cfg.Providers["anthropic"] = &config.ProviderConfig{APIKey: "sk-ant"}
	if _, err := buildEmbedder(cfg); err == nil {
		t.Fatal("anthropic cannot serve embeddings")
	}

	cfg.Providers["openai"] = &config.ProviderConfig{APIKey: "sk-test"}
	emb, err := buildEmbedder(cfg)
	if err != nil {
		t.Fatalf("buildEmbedder: %v", err)
	}
	if emb.Model() != cfg.Retrieval.EmbedModel {
		t.Errorf("embed model = %q", emb.Model())
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	log, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if log.Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v", log.Logger.GetLevel())
	}
	if _, ok := log.Logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("formatter = %T", log.Logger.Formatter)
	}

	cfg.Log.Level = "loud"
	if _, err := newLogger(cfg); err == nil {
		t.Error("expected error for bad level")
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "xml"
	if _, err := newLogger(cfg); err == nil {
		t.Error("expected error for bad format")
	}
}

func authConfig(t *testing.T) *config.Config {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.Auth.Users = []config.UserConfig{{Username: "admin", PasswordHash: string(h), Role: "admin"}}
	return cfg
}

func TestAuthenticateAnonymous(t *testing.T) {
	setFlags(t, "", "")
	user, err := authenticate(context.Background(), authConfig(t), tui.NewBufferIO())
	if err != nil || user != nil {
		t.Fatalf("authenticate = %+v, %v; want anonymous", user, err)
	}
}

func TestAuthenticatePassword(t *testing.T) {
	setFlags(t, "", "")
	cfg := authConfig(t)
	cfg.Auth.Required = true

	ui := tui.NewBufferIO("admin", "admin").WithSecrets("wrong", "s3cret")
	user, err := authenticate(context.Background(), cfg, ui)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Identifier != "admin" || user.Metadata.Role != "admin" {
		t.Errorf("user = %+v", user)
	}
	if len(ui.Errors) != 1 {
		t.Errorf("errors = %v, want one failed attempt", ui.Errors)
	}
}

func TestAuthenticateGivesUp(t *testing.T) {
	setFlags(t, "admin", "")
	ui := tui.NewBufferIO().WithSecrets("a", "b", "c")
	_, err := authenticate(context.Background(), authConfig(t), ui)
	if !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateOAuth(t *testing.T) {
	cfg := authConfig(t)
	cfg.Auth.OAuthProviders = []string{"github"}

	setFlags(t, "alice@example.com", "github")
	user, err := authenticate(context.Background(), cfg, tui.NewBufferIO())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Metadata.Provider != "github" {
		t.Errorf("user = %+v", user)
	}

	setFlags(t, "alice@example.com", "gitlab")
	if _, err := authenticate(context.Background(), cfg, tui.NewBufferIO()); !errors.Is(err, auth.ErrProviderNotAllowed) {
		t.Errorf("error = %v, want ErrProviderNotAllowed", err)
	}

	setFlags(t, "", "github")
	if _, err := authenticate(context.Background(), cfg, tui.NewBufferIO()); err == nil {
		t.Error("expected error for --oauth without --user")
	}
}

func TestCheckOwner(t *testing.T) {
	owned := session.New("gpt-3.5-turbo", "alice")
	shared := session.New("gpt-3.5-turbo", "")
	alice := &auth.User{Identifier: "alice"}
	bob := &auth.User{Identifier: "bob"}

	tests := []struct {
		name    string
		sess    *session.Session
		user    *auth.User
		wantErr bool
	}{
		{"owner", owned, alice, false},
		{"other user", owned, bob, true},
		{"anonymous", owned, nil, true},
		{"unowned anonymous", shared, nil, false},
		{"unowned signed in", shared, bob, false},
	}
	for _, tt := range tests {
		err := checkOwner(tt.sess, tt.user)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: checkOwner error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
