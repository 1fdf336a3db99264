package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
)

// outputMsg carries a chunk of terminal output.
type outputMsg []byte

// statusMsg reports a terminal status change.
type statusMsg session.Status

// sandboxMsg reports a sandbox health status change.
type sandboxMsg health.Status

// infoMsg reports updated session metadata (shell, cwd, transport).
type infoMsg session.Info

// latencyMsg reports a measured round trip.
type latencyMsg time.Duration

// noticeMsg carries a user-facing notice from the backend.
type noticeMsg string

// toastExpiredMsg clears the toast line.
type toastExpiredMsg struct{}

// waitForEvent blocks on the event channel and hands the next message to
// the update loop. It must be re-issued after every delivery.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func toastTimeout() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg {
		return toastExpiredMsg{}
	})
}
