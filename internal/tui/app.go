// Package tui renders the terminal panel: a scrollback viewport over the
// remote session, a status line, and a command input.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
)

// Run starts the panel over an already-constructed controller and blocks
// until the user closes it. The caller opens the session and runs the
// background loops.
func Run(ctrl *session.Controller, orch *health.Orchestrator) error {
	events := make(chan tea.Msg, 256)

	// Subscriptions fan in to one channel the Bubble Tea loop drains.
	// send never blocks; a stalled UI drops events rather than wedging
	// the transport callbacks.
	send := func(msg tea.Msg) {
		select {
		case events <- msg:
		default:
		}
	}

	unsub := []func(){
		ctrl.OnOutput(func(data []byte) {
			chunk := make([]byte, len(data))
			copy(chunk, data)
			send(outputMsg(chunk))
		}),
		ctrl.OnStatus(func(s session.Status) { send(statusMsg(s)) }),
		ctrl.OnNotice(func(text string) { send(noticeMsg(text)) }),
		ctrl.OnLatency(func(rtt time.Duration) { send(latencyMsg(rtt)) }),
		ctrl.OnInfo(func(info session.Info) { send(infoMsg(info)) }),
		orch.Subscribe(func(s health.Status) { send(sandboxMsg(s)) }),
	}
	defer func() {
		for _, u := range unsub {
			u()
		}
	}()

	m := newModel(ctrl, orch, events)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
