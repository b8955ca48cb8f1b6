package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/config"
	"github.com/tuxqa/tuxqa/internal/cost"
	"github.com/tuxqa/tuxqa/internal/profile"
	"github.com/tuxqa/tuxqa/internal/provider"
	"github.com/tuxqa/tuxqa/internal/tokenizer"
)

var (
	cfgFile      string
	profileFlag  string
	providerFlag string
	logLevelFlag string
	userFlag     string
	oauthFlag    string

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "tuxqa",
		Short: "Ask questions about Linux and Git commands",
		Long: "tuxqa is a terminal assistant for Linux and Git questions. It answers from a local\n" +
			"document index through a hosted language model and reports the cost of every turn.",
		// Running tuxqa with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), "")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/tuxqa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "model profile, by name or display name (e.g. gpt-4, GPT-3.5)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "override default provider")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: error, warn, info, debug, trace")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "username to sign in as")
	rootCmd.PersistentFlags().StringVar(&oauthFlag, "oauth", "", "accept --user as already authenticated by this OAuth provider")

	// Subcommands
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newIndexCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// displayVersion returns a formatted version string, e.g. "v0.3.1 (abc1234)".
func displayVersion() string {
	v := "v" + appVersion
	if appCommit != "" && appCommit != "none" {
		v += " (" + appCommit + ")"
	}
	return v
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	// CLI flags override config values
	if providerFlag != "" {
		cfg.Provider = providerFlag
	}
	if profileFlag != "" {
		cfg.Profile = profileFlag
	}
	if logLevelFlag != "" {
		cfg.Log.Level = logLevelFlag
	}
	return cfg, nil
}

// newLogger builds the process logger from cfg.Log. Logs go to stderr so
// they never mix with answers on stdout.
func newLogger(cfg *config.Config) (*logrus.Entry, error) {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Log.Format) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}
	return logrus.NewEntry(logger), nil
}

// app bundles what every model-facing command needs.
type app struct {
	cfg       *config.Config
	log       *logrus.Entry
	profiles  *profile.Registry
	profile   profile.Profile
	counter   *tokenizer.Counter
	estimator *cost.Estimator
}

func newApp() (*app, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("profiles: %w", err)
	}
	prof, ok := reg.Default()
	if !ok {
		return nil, fmt.Errorf("no model profiles configured")
	}
	return &app{
		cfg:       cfg,
		log:       log,
		profiles:  reg,
		profile:   prof,
		counter:   tokenizer.New(),
		estimator: cost.NewEstimator(cost.PriceTableFromProfiles(reg.All())),
	}, nil
}

// providerBaseURLs references the canonical map in the config package.
var providerBaseURLs = config.KnownProviderBaseURLs

// buildProvider creates the Provider serving profile p.
func buildProvider(cfg *config.Config, p profile.Profile) (provider.Provider, error) {
	name := p.Provider
	if name == "" {
		name = cfg.Provider
	}
	pc := cfg.GetProviderConfig(name)

	apiKey := pc.APIKey
	if apiKey == "" {
		return nil, fmt.Errorf(
			"API key not configured for provider %q.\n"+
				"Set it via:\n"+
				"  - config file: providers.%s.api_key\n"+
				"  - environment: LLM_API_KEY\n"+
				"  - run: tuxqa init",
			name, name,
		)
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(apiKey, pc.BaseURL, p.Model), nil
	default:
		// All other providers use the OpenAI-compatible API.
		baseURL := pc.BaseURL
		if baseURL == "" {
			u, ok := providerBaseURLs[name]
			if !ok {
				return nil, fmt.Errorf("unknown provider %q; set providers.%s.base_url in config", name, name)
			}
			baseURL = u
		}
		return provider.NewOpenAIProvider(apiKey, baseURL, p.Model), nil
	}
}

// buildEmbedder returns the embedding client for the document index. Only
// OpenAI-compatible endpoints serve embeddings; the openai provider entry is
// preferred over the default provider.
func buildEmbedder(cfg *config.Config) (*provider.OpenAIEmbedder, error) {
	for _, name := range []string{"openai", cfg.Provider} {
		if name == "anthropic" {
			continue
		}
		pc := cfg.GetProviderConfig(name)
		if pc.APIKey == "" {
			continue
		}
		baseURL := pc.BaseURL
		if baseURL == "" {
			baseURL = providerBaseURLs[name]
		}
		return provider.NewOpenAIEmbedder(pc.APIKey, baseURL, cfg.Retrieval.EmbedModel), nil
	}
	return nil, fmt.Errorf("no API key for an OpenAI-compatible provider; embeddings need providers.openai.api_key")
}
