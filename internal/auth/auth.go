// Package auth provides the pluggable identity layer in front of a chat
// session. Credentials come from configuration; nothing is hard-coded.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrTooManyAttempts is returned while a username is locked out.
	ErrTooManyAttempts = errors.New("too many failed login attempts, try again later")
	// ErrProviderNotAllowed is returned by OAuthPassThrough for providers
	// outside its allow list.
	ErrProviderNotAllowed = errors.New("oauth provider not allowed")
)

// Metadata describes how a user was authenticated.
type Metadata struct {
	Role     string `json:"role"`
	Provider string `json:"provider"`
}

// User is an authenticated identity.
type User struct {
	Identifier string   `json:"identifier"`
	Metadata   Metadata `json:"metadata"`
}

// Authenticator checks a username and password.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*User, error)
}

// Credential is a configured password user.
type Credential struct {
	Username     string
	PasswordHash string
	Role         string
}

// Failed attempts per username refill at one per limiterInterval, up to
// limiterBurst.
const (
	limiterInterval = 30 * time.Second
	limiterBurst    = 5
)

// PasswordAuthenticator verifies bcrypt password hashes.
type PasswordAuthenticator struct {
	users map[string]Credential

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	now      func() time.Time
}

// NewPasswordAuthenticator validates that each hash is a bcrypt hash.
func NewPasswordAuthenticator(creds []Credential) (*PasswordAuthenticator, error) {
	users := make(map[string]Credential, len(creds))
	for _, c := range creds {
		if c.Username == "" {
			return nil, errors.New("auth: user with empty username")
		}
		if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
			return nil, fmt.Errorf("auth: user %q: password_hash is not a bcrypt hash", c.Username)
		}
		if _, dup := users[c.Username]; dup {
			return nil, fmt.Errorf("auth: duplicate user %q", c.Username)
		}
		if c.Role == "" {
			c.Role = "user"
		}
		users[c.Username] = c
	}
	return &PasswordAuthenticator{
		users:    users,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
	}, nil
}

// Authenticate implements Authenticator.
func (a *PasswordAuthenticator) Authenticate(_ context.Context, username, password string) (*User, error) {
	now := a.now()
	if a.lockedOut(username, now) {
		return nil, ErrTooManyAttempts
	}

	c, ok := a.users[username]
	hash := []byte(c.PasswordHash)
	if !ok {
		hash = dummyHash()
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil || !ok {
		a.recordFailure(username, now)
		return nil, ErrInvalidCredentials
	}

	a.mu.Lock()
	delete(a.limiters, username)
	a.mu.Unlock()

	return &User{
		Identifier: c.Username,
		Metadata:   Metadata{Role: c.Role, Provider: "credentials"},
	}, nil
}

func (a *PasswordAuthenticator) lockedOut(username string, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[username]
	return ok && lim.TokensAt(now) < 1
}

func (a *PasswordAuthenticator) recordFailure(username string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	lim, ok := a.limiters[username]
	if !ok {
		lim = rate.NewLimiter(rate.Every(limiterInterval), limiterBurst)
		a.limiters[username] = lim
	}
	lim.AllowN(now, 1)
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

// dummyHash keeps unknown-user checks as slow as real ones.
func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("tuxqa"), bcrypt.DefaultCost)
	})
	return dummy
}

// HashPassword returns a bcrypt hash suitable for auth.users[].password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// OAuthPassThrough accepts the identity an upstream OAuth flow already
// established and tags it with the provider name.
type OAuthPassThrough struct {
	allowed []string
}

// NewOAuthPassThrough returns a pass-through limited to allowed providers.
// An empty list allows any provider.
func NewOAuthPassThrough(allowed []string) *OAuthPassThrough {
	norm := make([]string, 0, len(allowed))
	for _, p := range allowed {
		norm = append(norm, strings.ToLower(strings.TrimSpace(p)))
	}
	return &OAuthPassThrough{allowed: norm}
}

// Callback returns defaultUser with Metadata.Provider set to providerID.
func (o *OAuthPassThrough) Callback(_ context.Context, providerID string, defaultUser User) (*User, error) {
	id := strings.ToLower(strings.TrimSpace(providerID))
	if id == "" {
		return nil, fmt.Errorf("%w: empty provider", ErrProviderNotAllowed)
	}
	if len(o.allowed) > 0 && !slices.Contains(o.allowed, id) {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotAllowed, providerID)
	}
	if defaultUser.Identifier == "" {
		return nil, errors.New("oauth: provider returned no user identifier")
	}
	u := defaultUser
	u.Metadata.Provider = id
	if u.Metadata.Role == "" {
		u.Metadata.Role = "user"
	}
	return &u, nil
}
