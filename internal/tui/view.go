package tui

import (
	"fmt"
	"strings"

	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	title := "sandterm"
	if m.info.SandboxID != "" {
		title += "  " + m.info.SandboxID
	}
	b.WriteString(headerStyle.Width(m.width).Render(title))
	b.WriteString("\n")

	b.WriteString(m.output.View())
	b.WriteString("\n")

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	if m.typing {
		b.WriteString(promptStyle.Render("> "))
		b.WriteString(m.input.View())
	} else {
		b.WriteString(hotkeysStyle.Render("[i] type  [ctrl+r] restart  [esc] close"))
	}
	b.WriteString("\n")

	if m.toast != "" {
		if m.toastError {
			b.WriteString(toastErrorStyle.Render(m.toast))
		} else {
			b.WriteString(toastStyle.Render(m.toast))
		}
	}

	return b.String()
}

func (m model) renderStatusLine() string {
	parts := []string{
		"terminal " + m.renderTerminalStatus(),
		"sandbox " + m.renderSandboxStatus(),
	}
	if m.info.WorkingDir != "" {
		parts = append(parts, m.info.WorkingDir)
	}
	if m.info.Transport != "" {
		parts = append(parts, string(m.info.Transport))
	}
	if m.latency > 0 {
		parts = append(parts, fmt.Sprintf("%dms", m.latency.Milliseconds()))
	}
	return statusLineStyle.Render(strings.Join(parts, "  |  "))
}

func (m model) renderTerminalStatus() string {
	switch m.status {
	case session.StatusConnected:
		return statusConnected.Render(string(m.status))
	case session.StatusConnecting:
		return statusConnecting.Render(m.spin.View() + string(m.status))
	case session.StatusError:
		return statusDown.Render(string(m.status))
	default:
		return string(m.status)
	}
}

func (m model) renderSandboxStatus() string {
	switch m.sandbox {
	case health.StatusHealthy:
		return statusConnected.Render(string(m.sandbox))
	case health.StatusCreating:
		return statusConnecting.Render(m.spin.View() + string(m.sandbox))
	case health.StatusUnhealthy:
		return statusDown.Render(string(m.sandbox))
	default:
		return string(m.sandbox)
	}
}
