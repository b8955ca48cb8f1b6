package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tuxqa/tuxqa/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up tuxqa: choose a provider and profile, enter your API key, and save the config.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)
	ask := func(prompt string) string {
		fmt.Print(prompt)
		s, _ := reader.ReadString('\n')
		return strings.TrimSpace(s)
	}
	choose := func(title string, options []string) string {
		fmt.Println(title)
		for i, o := range options {
			fmt.Printf("  %d. %s\n", i+1, o)
		}
		n, err := strconv.Atoi(ask(fmt.Sprintf("\nSelect (1-%d) [1]: ", len(options))))
		if err != nil || n < 1 || n > len(options) {
			n = 1
		}
		fmt.Printf("Selected: %s\n\n", options[n-1])
		return options[n-1]
	}

	fmt.Println("Welcome to the tuxqa configuration wizard!")
	fmt.Println()

	cfg := config.DefaultConfig()

	defaults := config.LoadProviderDefaults()
	var others []string
	for name := range defaults {
		if name != "openai" && name != "anthropic" {
			others = append(others, name)
		}
	}
	sort.Strings(others)
	providers := append([]string{"openai", "anthropic"}, others...)
	cfg.Provider = choose("Available providers:", providers)

	apiKey := ask(fmt.Sprintf("Enter API key for %s: ", cfg.Provider))
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	cfg.Providers[cfg.Provider] = &config.ProviderConfig{APIKey: apiKey}

	if cfg.Provider != "openai" {
		fmt.Println("\nThe document index needs an OpenAI key for embeddings.")
		if key := ask("Enter OpenAI API key (empty to skip): "); key != "" {
			cfg.Providers["openai"] = &config.ProviderConfig{APIKey: key}
		}
	}

	reg, err := cfg.Registry()
	if err != nil {
		return err
	}
	fmt.Println()
	cfg.Profile = choose("Model profiles:", reg.Names())

	if dir := ask(fmt.Sprintf("Documents directory [%s]: ", cfg.Retrieval.DataDir)); dir != "" {
		cfg.Retrieval.DataDir = dir
	}

	configPath := cfgFile
	if configPath == "" {
		if configPath, err = config.DefaultPath(); err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
	}

	// Check if config already exists
	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("\nConfig file already exists at %s\n", configPath)
		if strings.ToLower(ask("Overwrite? [y/N]: ")) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.WriteFile(configPath, cfg); err != nil {
		return err
	}

	fmt.Printf("\nConfig saved to %s\n", configPath)
	fmt.Println("Build the document index with: tuxqa index")
	fmt.Println("Then start chatting with: tuxqa")
	return nil
}
