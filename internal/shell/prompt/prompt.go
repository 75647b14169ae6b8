// Package prompt asks the operator to confirm destructive actions.
package prompt

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// ErrNotConfirmed is returned by callers when the operator declined.
	ErrNotConfirmed = errors.New("action not confirmed")

	// ErrNoTerminal is returned when confirmation is needed but nobody can answer.
	ErrNoTerminal = errors.New("confirmation required but stdin or stderr is not a terminal (use --yes)")
)

// Confirmer answers yes/no questions about destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, question string, details []string) (bool, error)
}

// AutoConfirm answers yes without asking.
type AutoConfirm struct{}

// Confirm returns true for every question.
func (AutoConfirm) Confirm(context.Context, string, []string) (bool, error) {
	return true, nil
}

// =============================================================================
// Terminal Prompt
// =============================================================================

// TTY asks on the controlling terminal.
type TTY struct {
	in         io.Reader
	out        io.Writer
	isTerminal func() bool
}

// NewTTY prompts on stdin, rendering to stderr so stdout stays clean.
// Both must be terminals; a redirected stderr would hide the question.
func NewTTY() *TTY {
	return newTTY(os.Stdin, os.Stderr, func(fd int) bool { return term.IsTerminal(fd) })
}

func newTTY(in, out *os.File, isTerm func(fd int) bool) *TTY {
	return &TTY{
		in:  in,
		out: out,
		isTerminal: func() bool {
			return isTerm(int(in.Fd())) && isTerm(int(out.Fd()))
		},
	}
}

// Confirm renders question with details and waits for y or n. Anything but y declines.
func (t *TTY) Confirm(ctx context.Context, question string, details []string) (bool, error) {
	if !t.isTerminal() {
		return false, ErrNoTerminal
	}

	p := tea.NewProgram(newConfirmModel(question, details),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
		tea.WithContext(ctx),
	)
	final, err := p.Run()
	if err != nil {
		return false, err
	}
	m, ok := final.(confirmModel)
	return ok && m.answer, nil
}

// =============================================================================
// Model
// =============================================================================

var (
	questionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E67E22"))
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).PaddingLeft(2)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	yesStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#2ECC71"))
	noStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C"))
)

type confirmModel struct {
	question string
	details  []string
	answer   bool
	done     bool
}

func newConfirmModel(question string, details []string) confirmModel {
	return confirmModel{question: question, details: details}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n", "enter", "esc", "q", "ctrl+c":
		m.answer, m.done = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	var b strings.Builder
	b.WriteString(questionStyle.Render(m.question))
	b.WriteString("\n")
	for _, d := range m.details {
		b.WriteString(detailStyle.Render("- " + d))
		b.WriteString("\n")
	}
	switch {
	case !m.done:
		b.WriteString(hintStyle.Render("Continue? [y/N] "))
	case m.answer:
		b.WriteString(yesStyle.Render("yes"))
		b.WriteString("\n")
	default:
		b.WriteString(noStyle.Render("no"))
		b.WriteString("\n")
	}
	return b.String()
}
