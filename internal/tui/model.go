package tui

import (
	"bytes"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/inkpad-ai/sandbox-client/internal/health"
	"github.com/inkpad-ai/sandbox-client/internal/session"
)

const (
	// Rows consumed by the header, status line, input line and toast area.
	chromeRows = 4

	maxScrollback = 256 * 1024
)

// model is the Bubble Tea model for the terminal panel.
type model struct {
	ctrl   *session.Controller
	orch   *health.Orchestrator
	events <-chan tea.Msg

	output   viewport.Model
	input    textinput.Model
	spin     spinner.Model
	buf      bytes.Buffer
	typing   bool // true while the command input is focused
	quitting bool

	status  session.Status
	sandbox health.Status
	info    session.Info
	latency time.Duration

	toast      string
	toastError bool

	width  int
	height int
}

func newModel(ctrl *session.Controller, orch *health.Orchestrator, events <-chan tea.Msg) model {
	ti := textinput.New()
	ti.Placeholder = "type a command, Enter to send"
	ti.CharLimit = 4096
	ti.Blur()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	// Get initial terminal size so the first render isn't at width=0
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	vp := viewport.New(w, h-chromeRows)

	return model{
		ctrl:    ctrl,
		orch:    orch,
		events:  events,
		output:  vp,
		input:   ti,
		spin:    sp,
		status:  ctrl.Status(),
		sandbox: orch.Status(),
		info:    ctrl.Info(),
		width:   w,
		height:  h,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spin.Tick)
}
