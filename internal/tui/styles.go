package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tuxqa/tuxqa/internal/cost"
)

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	costBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)

	costTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	welcomeBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("8")).
				Padding(0, 1)

	welcomeTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("2")).
				Bold(true)

	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Italic(true)
)

// renderCostBlock draws the per-turn statistics in a bordered box.
func renderCostBlock(s cost.Summary) string {
	lines := []string{
		costTitleStyle.Render("Cost Statistics"),
		labelStyle.Render("Input tokens:  ") + valueStyle.Render(fmt.Sprint(s.InputTokens)),
		labelStyle.Render("Output tokens: ") + valueStyle.Render(fmt.Sprint(s.OutputTokens)),
		labelStyle.Render("Total cost:    ") + valueStyle.Render(cost.FormatDollars(s.TotalCost)),
	}
	return costBorderStyle.Render(strings.Join(lines, "\n"))
}

func renderWelcome(info WelcomeInfo) string {
	version := info.Version
	if version == "" {
		version = "dev"
	}

	rows := [][2]string{
		{"Profile: ", info.Profile},
		{"Model:   ", info.Model},
		{"Session: ", info.SessionID},
	}
	if info.User != "" {
		rows = append(rows, [2]string{"User:    ", info.User})
	}

	var lines []string
	for _, r := range rows {
		lines = append(lines, labelStyle.Render(r[0])+valueStyle.Render(r[1]))
	}
	lines = append(lines, "", hintStyle.Render("/help for commands, /quit to exit"))

	title := welcomeTitleStyle.Render("tuxqa " + version)
	return title + "\n" + welcomeBorderStyle.Render(strings.Join(lines, "\n"))
}
