package agent

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tuxqa/tuxqa/internal/index"
)

//go:embed prompts/system.md
var defaultSystemPrompt string

// loadSystemPrompt returns the base system prompt. Precedence (higher wins):
//
//	llm.system_prompt in config
//	~/.config/tuxqa/prompt.md
//	embedded prompts/system.md
func loadSystemPrompt(configured string) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	if home, err := os.UserHomeDir(); err == nil {
		if data, err := os.ReadFile(filepath.Join(home, ".config", "tuxqa", "prompt.md")); err == nil {
			if s := strings.TrimSpace(string(data)); s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(defaultSystemPrompt)
}

// buildSystemPrompt appends retrieved chunks to base as <document> blocks.
func buildSystemPrompt(base string, hits []index.Hit) string {
	if len(hits) == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nReference material:")
	for _, h := range hits {
		fmt.Fprintf(&sb, "\n\n<document source=%q>\n%s\n</document>", h.Source, h.Text)
	}
	return sb.String()
}
