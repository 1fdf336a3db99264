package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width
		m.output.Height = msg.Height - chromeRows
		m.input.Width = msg.Width - 4
		m.ctrl.Resize(msg.Width, msg.Height-chromeRows)
		return m, nil

	case outputMsg:
		m.appendOutput([]byte(msg))
		return m, waitForEvent(m.events)

	case statusMsg:
		m.status = session.Status(msg)
		return m, waitForEvent(m.events)

	case sandboxMsg:
		m.sandbox = health.Status(msg)
		return m, waitForEvent(m.events)

	case infoMsg:
		m.info = session.Info(msg)
		return m, waitForEvent(m.events)

	case latencyMsg:
		m.latency = time.Duration(msg)
		return m, waitForEvent(m.events)

	case noticeMsg:
		m.toast = string(msg)
		m.toastError = true
		return m, tea.Batch(waitForEvent(m.events), toastTimeout())

	case toastExpiredMsg:
		m.toast = ""
		m.toastError = false
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.typing {
			return m.handleTypingMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	return m, nil
}

// handleNormalMode handles keys while the command input is blurred.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		m.quitting = true
		m.ctrl.Close()
		return m, tea.Quit

	case "i", "/", "enter":
		m.typing = true
		m.input.Focus()
		return m, textinput.Blink

	case "ctrl+r":
		m.toast = "restarting sandbox..."
		m.toastError = false
		orch := m.orch
		go orch.AutoHeal(context.Background(), "user restart", true)
		return m, toastTimeout()

	default:
		var cmd tea.Cmd
		m.output, cmd = m.output.Update(msg)
		return m, cmd
	}
}

// handleTypingMode handles keys while the command input is focused. Esc
// only blurs the input here; it never closes the panel.
func (m model) handleTypingMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		m.ctrl.Close()
		return m, tea.Quit

	case "esc":
		m.typing = false
		m.input.Blur()
		return m, nil

	case "enter":
		line := m.input.Value()
		m.input.SetValue("")
		m.ctrl.SendInput([]byte(line + "\n"))
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// appendOutput adds a chunk to the scrollback and re-renders the viewport.
// Control sequences are stripped; the viewport is a log pane, not a full
// terminal emulator.
func (m *model) appendOutput(data []byte) {
	m.buf.Write(stripControl(data))
	if m.buf.Len() > maxScrollback {
		tail := append([]byte(nil), m.buf.Bytes()[m.buf.Len()-maxScrollback:]...)
		m.buf.Reset()
		m.buf.Write(tail)
	}
	atBottom := m.output.AtBottom()
	m.output.SetContent(m.buf.String())
	if atBottom {
		m.output.GotoBottom()
	}
}
