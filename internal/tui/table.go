package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/tuxqa/tuxqa/internal/cost"
	"github.com/tuxqa/tuxqa/internal/session"
)

const titleWidth = 40

// WriteSessionTable prints saved sessions one per line, newest first as
// given. Titles are cut to a fixed display width so CJK text lines up.
func WriteSessionTable(w io.Writer, infos []session.SessionInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(w, "No saved sessions.")
		return
	}
	fmt.Fprintf(w, "%-8s  %-16s  %-14s  %5s  %-11s  %s\n", "ID", "UPDATED", "PROFILE", "TURNS", "COST", "TITLE")
	for _, s := range infos {
		fmt.Fprintf(w, "%-8s  %-16s  %-14s  %5d  %-11s  %s\n",
			session.ShortID(s.ID),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
			runewidth.Truncate(s.Profile, 14, "…"),
			s.Turns,
			cost.FormatDollars(s.Cost),
			FitTitle(s.Title, titleWidth),
		)
	}
}

// FitTitle flattens title to one line and truncates it to width columns.
func FitTitle(title string, width int) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "(empty)"
	}
	return runewidth.Truncate(title, width, "…")
}
