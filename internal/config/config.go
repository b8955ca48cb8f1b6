// Package config loads and manages tuxqa configuration.
// Configuration source priority (highest to lowest):
// 1. Command-line flags (applied by cmd)
// 2. Environment variables (OPENAI_API_KEY, LLM_API_KEY, TUXQA_PROFILE, etc.)
// 3. Config file path specified via --config flag, or ~/.config/tuxqa/config.yaml
// 4. Embedded defaults (providers_default.yaml, profiles_default.yaml)
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tuxqa/tuxqa/internal/profile"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

//go:embed profiles_default.yaml
var defaultProfilesYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// ProfileConfig is a model profile as written in YAML. Prices are dollars
// per token.
type ProfileConfig struct {
	DisplayName string  `yaml:"display_name"`
	Description string  `yaml:"description"`
	Model       string  `yaml:"model"`
	Provider    string  `yaml:"provider"`
	Encoding    string  `yaml:"encoding"`
	TokenBudget int     `yaml:"token_budget"`
	InputPrice  float64 `yaml:"input_price"`
	OutputPrice float64 `yaml:"output_price"`
}

// LLMConfig holds generation settings shared by all profiles.
type LLMConfig struct {
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	ContextWindow int     `yaml:"context_window"`
	SystemPrompt  string  `yaml:"system_prompt"`
}

// RetrievalConfig controls the document index.
type RetrievalConfig struct {
	DataDir      string `yaml:"data_dir"`
	StorageDir   string `yaml:"storage_dir"`
	EmbedModel   string `yaml:"embed_model"`
	TopK         int    `yaml:"top_k"`
	ResumeTopK   int    `yaml:"resume_top_k"`
	ChunkSize    int    `yaml:"chunk_size"`    // characters per chunk
	ChunkOverlap int    `yaml:"chunk_overlap"` // characters shared by adjacent chunks
}

// UserConfig is a password-authenticated user. PasswordHash is a bcrypt hash
// (see `tuxqa hash-password`); plaintext passwords are never stored.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// AuthConfig holds identity settings.
type AuthConfig struct {
	// Required forces `tuxqa chat` to authenticate before starting.
	Required bool         `yaml:"required"`
	Users    []UserConfig `yaml:"users"`
	// OAuthProviders is the allow list for OAuth pass-through. Empty = any.
	OAuthProviders []string `yaml:"oauth_providers"`
}

// SessionConfig controls session persistence.
type SessionConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`  // panic|fatal|error|warn|info|debug|trace
	Format string `yaml:"format"` // text|json
}

// Config is the complete configuration structure for tuxqa.
type Config struct {
	// Provider is the default provider name for profiles that don't set one.
	Provider string `yaml:"provider"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// Profile is the default model profile (key or display name).
	Profile string `yaml:"profile"`

	// Profiles overrides or extends the built-in model profiles.
	Profiles map[string]*ProfileConfig `yaml:"profiles"`

	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Profile:   "gpt-3.5-turbo",
		Profiles:  make(map[string]*ProfileConfig),
		LLM: LLMConfig{
			Temperature:   0.5,
			MaxTokens:     1024,
			ContextWindow: 8192,
		},
		Retrieval: RetrievalConfig{
			DataDir:      "./data",
			StorageDir:   "./storage",
			EmbedModel:   "text-embedding-3-small",
			TopK:         5,
			ResumeTopK:   2,
			ChunkSize:    1024,
			ChunkOverlap: 128,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.config/tuxqa/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tuxqa", "config.yaml"), nil
}

// Load reads the config file and merges environment variable overrides.
// A missing file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		if p, err := DefaultPath(); err == nil {
			configPath = p
		}
	}

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*ProfileConfig)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// GetProviderConfig returns the config for the named provider, or an empty config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok && pc != nil {
		return pc
	}
	return &ProviderConfig{}
}

// ModelProfiles merges the embedded default profiles with the user's
// profiles field by field and returns them sorted by name.
func (c *Config) ModelProfiles() ([]profile.Profile, error) {
	merged := make(map[string]ProfileConfig)
	if err := yaml.Unmarshal(defaultProfilesYAML, &merged); err != nil {
		return nil, fmt.Errorf("embedded profiles: %w", err)
	}
	for name, up := range c.Profiles {
		if up == nil {
			continue
		}
		merged[name] = mergeProfile(merged[name], *up)
	}

	names := make([]string, 0, len(merged))
	for n := range merged {
		names = append(names, n)
	}
	sort.Strings(names)

	out := make([]profile.Profile, 0, len(names))
	for _, n := range names {
		pc := merged[n]
		out = append(out, profile.Profile{
			Name:        n,
			DisplayName: pc.DisplayName,
			Description: pc.Description,
			Model:       pc.Model,
			Provider:    pc.Provider,
			Encoding:    pc.Encoding,
			TokenBudget: pc.TokenBudget,
			InputPrice:  pc.InputPrice,
			OutputPrice: pc.OutputPrice,
		})
	}
	return out, nil
}

// Registry builds the profile registry with the configured default.
func (c *Config) Registry() (*profile.Registry, error) {
	profiles, err := c.ModelProfiles()
	if err != nil {
		return nil, err
	}
	return profile.NewRegistry(profiles, c.Profile)
}

func mergeProfile(base, over ProfileConfig) ProfileConfig {
	if over.DisplayName != "" {
		base.DisplayName = over.DisplayName
	}
	if over.Description != "" {
		base.Description = over.Description
	}
	if over.Model != "" {
		base.Model = over.Model
	}
	if over.Provider != "" {
		base.Provider = over.Provider
	}
	if over.Encoding != "" {
		base.Encoding = over.Encoding
	}
	if over.TokenBudget != 0 {
		base.TokenBudget = over.TokenBudget
	}
	if over.InputPrice != 0 {
		base.InputPrice = over.InputPrice
	}
	if over.OutputPrice != 0 {
		base.OutputPrice = over.OutputPrice
	}
	return base
}

// LoadProviderDefaults parses the embedded provider defaults.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)
	return defs
}

// KnownProviderBaseURLs maps well-known provider names to their base URLs.
var KnownProviderBaseURLs map[string]string

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
	}
}

// DefaultDBPath returns ~/.local/share/tuxqa/sessions.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "tuxqa", "sessions.db"), nil
}

// SessionDBPath returns the configured session database path or the default.
func (c *Config) SessionDBPath() (string, error) {
	if c.Session.DBPath != "" {
		return c.Session.DBPath, nil
	}
	return DefaultDBPath()
}

// WriteFile saves cfg as YAML to path, creating the parent directory.
// The file is written 0600 because it may hold API keys.
func WriteFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUXQA_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("TUXQA_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("TUXQA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		providerEntry(cfg, "openai").APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		providerEntry(cfg, "anthropic").APIKey = v
	}

	// Generic overrides apply to the active provider and win over the
	// vendor-specific variables.
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		providerEntry(cfg, cfg.Provider).APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		providerEntry(cfg, cfg.Provider).BaseURL = v
	}
}

func providerEntry(cfg *Config, name string) *ProviderConfig {
	if cfg.Providers[name] == nil {
		cfg.Providers[name] = &ProviderConfig{}
	}
	return cfg.Providers[name]
}
