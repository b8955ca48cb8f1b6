package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return string(h)
}

func newTestAuth(t *testing.T) *PasswordAuthenticator {
	t.Helper()
	a, err := NewPasswordAuthenticator([]Credential{
		{Username: "admin", PasswordHash: mustHash(t, "s3cret"), Role: "admin"},
		{Username: "bob", PasswordHash: mustHash(t, "hunter2")},
	})
	if err != nil {
		t.Fatalf("NewPasswordAuthenticator: %v", err)
	}
	return a
}

func TestAuthenticateSuccess(t *testing.T) {
	a := newTestAuth(t)
	u, err := a.Authenticate(context.Background(), "admin", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if u.Identifier != "admin" || u.Metadata.Role != "admin" || u.Metadata.Provider != "credentials" {
		t.Errorf("user = %+v", u)
	}

	u, err = a.Authenticate(context.Background(), "bob", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate bob: %v", err)
	}
	if u.Metadata.Role != "user" {
		t.Errorf("default role = %q, want user", u.Metadata.Role)
	}
}

func TestAuthenticateRejects(t *testing.T) {
	a := newTestAuth(t)
	cases := []struct{ user, pass string }{
		{"admin", "wrong"},
		{"nobody", "s3cret"},
		{"", ""},
	}
	for _, c := range cases {
		if _, err := a.Authenticate(context.Background(), c.user, c.pass); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q, %q) error = %v, want ErrInvalidCredentials", c.user, c.pass, err)
		}
	}
}

func TestFailedAttemptsLockOut(t *testing.T) {
	a := newTestAuth(t)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return now }

	for i := 0; i < limiterBurst; i++ {
		if _, err := a.Authenticate(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if _, err := a.Authenticate(context.Background(), "admin", "s3cret"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("locked out login error = %v, want ErrTooManyAttempts", err)
	}

	// Other users are unaffected.
	if _, err := a.Authenticate(context.Background(), "bob", "hunter2"); err != nil {
		t.Fatalf("bob: %v", err)
	}

	now = now.Add(limiterInterval)
	if _, err := a.Authenticate(context.Background(), "admin", "s3cret"); err != nil {
		t.Fatalf("after refill: %v", err)
	}
	// Success clears the failure history.
	if _, ok := a.limiters["admin"]; ok {
		t.Error("limiter not cleared after successful login")
	}
}

func TestNewPasswordAuthenticatorValidates(t *testing.T) {
	if _, err := NewPasswordAuthenticator([]Credential{{Username: "x", PasswordHash: "plaintext"}}); err == nil {
		t.Error("expected error for non-bcrypt hash")
	}
	if _, err := NewPasswordAuthenticator([]Credential{{PasswordHash: mustHash(t, "a")}}); err == nil {
		t.Error("expected error for empty username")
	}
	h := mustHash(t, "a")
	if _, err := NewPasswordAuthenticator([]Credential{{Username: "x", PasswordHash: h}, {Username: "x", PasswordHash: h}}); err == nil {
		t.Error("expected error for duplicate user")
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h), []byte("pw")); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestOAuthPassThrough(t *testing.T) {
	def := User{Identifier: "alice@example.com"}

	u, err := NewOAuthPassThrough(nil).Callback(context.Background(), "GitHub", def)
	if err != nil {
		t.Fatalf("Callback: %v", err)
	}
	if u.Identifier != "alice@example.com" || u.Metadata.Provider != "github" || u.Metadata.Role != "user" {
		t.Errorf("user = %+v", u)
	}
	if def.Metadata.Provider != "" {
		t.Error("Callback mutated the default user")
	}

	o := NewOAuthPassThrough([]string{"google"})
	if _, err := o.Callback(context.Background(), "github", def); !errors.Is(err, ErrProviderNotAllowed) {
		t.Errorf("disallowed provider error = %v", err)
	}
	if _, err := o.Callback(context.Background(), "Google", def); err != nil {
		t.Errorf("allowed provider: %v", err)
	}
	if _, err := o.Callback(context.Background(), "google", User{}); err == nil {
		t.Error("expected error for empty identifier")
	}
}
