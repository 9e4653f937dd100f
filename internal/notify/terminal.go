package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	noticeBase = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
	noticeInfo    = noticeBase.BorderForeground(lipgloss.Color("12"))
	noticeSuccess = noticeBase.BorderForeground(lipgloss.Color("10"))
	noticeError   = noticeBase.BorderForeground(lipgloss.Color("9"))
	noticeTitle   = lipgloss.NewStyle().Bold(true)
)

// TerminalChannel renders notices as boxed blocks on a terminal.
type TerminalChannel struct {
	mu  sync.Mutex
	out io.Writer
}

// NewTerminal writes notices to out.
func NewTerminal(out io.Writer) *TerminalChannel {
	return &TerminalChannel{out: out}
}

func (t *TerminalChannel) Name() string       { return "terminal" }
func (t *TerminalChannel) IsConfigured() bool { return t.out != nil }

func (t *TerminalChannel) Send(_ context.Context, evt Event) error {
	style := noticeInfo
	switch evt.Level {
	case LevelError:
		style = noticeError
	case LevelSuccess:
		style = noticeSuccess
	}
	text := evt.Body
	if evt.Title != "" {
		text = noticeTitle.Render(evt.Title) + "\n" + evt.Body
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := fmt.Fprintln(t.out, style.Render(text))
	return err
}
