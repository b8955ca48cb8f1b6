package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/tuxqa/tuxqa/internal/cost"
)

// PlainIO implements IO on a line-based terminal. When stdout is a TTY and
// markdown rendering is on, answers are collected and rendered with glamour
// once complete; otherwise deltas stream straight to the output.
type PlainIO struct {
	in      *os.File
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer

	styled   bool
	markdown bool
	width    int
	renderer *glamour.TermRenderer
}

// NewPlainIO creates a PlainIO on stdin/stdout. renderMarkdown is honored
// only when stdout is a terminal.
func NewPlainIO(renderMarkdown bool) *PlainIO {
	s := bufio.NewScanner(os.Stdin)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	width := 80
	if tty {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}
	return &PlainIO{
		in:       os.Stdin,
		scanner:  s,
		out:      os.Stdout,
		errOut:   os.Stderr,
		styled:   tty,
		markdown: tty && renderMarkdown,
		width:    width,
	}
}

func (p *PlainIO) ReadInput() (string, error) {
	prompt := "\n> "
	if p.styled {
		prompt = "\n" + promptStyle.Render(">") + " "
	}
	fmt.Fprint(p.out, prompt)
	return p.scanLine()
}

func (p *PlainIO) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	return p.scanLine()
}

func (p *PlainIO) ReadSecret(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	fd := int(p.in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return p.scanLine()
}

func (p *PlainIO) scanLine() (string, error) {
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) Welcome(info WelcomeInfo) {
	if p.styled {
		fmt.Fprintln(p.out, renderWelcome(info))
	}
	if info.Greeting != "" {
		fmt.Fprintln(p.out, info.Greeting)
	}
}

func (p *PlainIO) UserMessage(_ string) {
	// The user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) TextDelta(delta string) {
	if p.markdown {
		return
	}
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(fullText string) {
	if !p.markdown {
		fmt.Fprintln(p.out)
		return
	}
	fmt.Fprintln(p.out, p.renderMarkdown(fullText))
}

func (p *PlainIO) CostBlock(s cost.Summary) {
	if p.styled {
		fmt.Fprintln(p.out, renderCostBlock(s))
		return
	}
	fmt.Fprintf(p.out, "\nCost Statistics:\n- Input tokens: %d\n- Output tokens: %d\n- Total cost: %s\n",
		s.InputTokens, s.OutputTokens, cost.FormatDollars(s.TotalCost))
}

func (p *PlainIO) SystemMessage(text string) {
	if p.styled {
		text = systemStyle.Render(text)
	}
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	line := "error: " + msg
	if p.styled {
		line = errorStyle.Render(line)
	}
	fmt.Fprintln(p.errOut, line)
}

func (p *PlainIO) markdownRenderer() *glamour.TermRenderer {
	if p.renderer != nil {
		return p.renderer
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(p.width-4, 20)),
	)
	if err != nil {
		return nil
	}
	p.renderer = r
	return r
}

func (p *PlainIO) renderMarkdown(text string) string {
	r := p.markdownRenderer()
	if r == nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(rendered, "\n")
}
