// Package shellmark watches terminal output for shell integration escape
// sequences: OSC 7 working-directory reports and OSC 133 prompt/command
// boundary marks. It is observability sugar attached off the critical output
// path; parse failures are swallowed and nothing here affects terminal
// correctness.
package shellmark

import (
	"bytes"
	"net/url"
	"strings"
)

// Mark is a prompt/command boundary reported by the shell.
type Mark int

const (
	MarkPromptStart Mark = iota // OSC 133;A
	MarkPromptEnd               // OSC 133;B
	MarkCommandStart            // OSC 133;C
	MarkCommandEnd              // OSC 133;D
)

func (m Mark) String() string {
	switch m {
	case MarkPromptStart:
		return "prompt-start"
	case MarkPromptEnd:
		return "prompt-end"
	case MarkCommandStart:
		return "command-start"
	case MarkCommandEnd:
		return "command-end"
	}
	return "unknown"
}

const (
	esc = 0x1b
	bel = 0x07

	// maxPending caps the partial-sequence carry buffer. A sequence longer
	// than this is assumed to be garbage and dropped.
	maxPending = 4096
)

// Observer scans output chunks for shell integration sequences. Sequences
// split across chunk boundaries are handled; everything else passes through
// untouched (the observer never modifies the stream, it only watches).
type Observer struct {
	onCwd  func(dir string)
	onMark func(mark Mark)

	pending []byte
}

// NewObserver creates an observer. Either callback may be nil.
func NewObserver(onCwd func(dir string), onMark func(mark Mark)) *Observer {
	return &Observer{onCwd: onCwd, onMark: onMark}
}

// Feed scans one output chunk. Safe to call with any byte sequence.
func (o *Observer) Feed(data []byte) {
	buf := data
	if len(o.pending) > 0 {
		buf = append(o.pending, data...)
		o.pending = nil
	}

	for {
		start := bytes.IndexByte(buf, esc)
		if start < 0 {
			return
		}
		buf = buf[start:]

		// Only OSC introducers are interesting.
		if len(buf) < 2 {
			o.stash(buf)
			return
		}
		if buf[1] != ']' {
			buf = buf[1:]
			continue
		}

		end, termLen := findTerminator(buf[2:])
		if end < 0 {
			o.stash(buf)
			return
		}

		o.handle(string(buf[2 : 2+end]))
		buf = buf[2+end+termLen:]
	}
}

func (o *Observer) stash(partial []byte) {
	if len(partial) > maxPending {
		return
	}
	o.pending = append([]byte(nil), partial...)
}

// findTerminator locates BEL or ST (ESC \) and returns the payload length
// and terminator length, or -1 when the sequence is incomplete.
func findTerminator(buf []byte) (int, int) {
	for i := 0; i < len(buf); i++ {
		switch buf[i] {
		case bel:
			return i, 1
		case esc:
			if i+1 < len(buf) && buf[i+1] == '\\' {
				return i, 2
			}
		}
	}
	return -1, 0
}

func (o *Observer) handle(payload string) {
	switch {
	case strings.HasPrefix(payload, "7;"):
		o.handleCwd(payload[2:])
	case strings.HasPrefix(payload, "133;"):
		o.handleMark(payload[4:])
	}
}

// handleCwd parses an OSC 7 file:// URL into a directory path.
func (o *Observer) handleCwd(raw string) {
	if o.onCwd == nil {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return
	}
	o.onCwd(u.Path)
}

func (o *Observer) handleMark(raw string) {
	if o.onMark == nil || raw == "" {
		return
	}
	// The letter may be followed by parameters, e.g. "D;0".
	switch raw[0] {
	case 'A':
		o.onMark(MarkPromptStart)
	case 'B':
		o.onMark(MarkPromptEnd)
	case 'C':
		o.onMark(MarkCommandStart)
	case 'D':
		o.onMark(MarkCommandEnd)
	}
}
