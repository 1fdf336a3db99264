package tui

// stripControl removes terminal escape sequences and non-printing control
// bytes from a PTY chunk so it renders sanely in the viewport. Newlines and
// tabs survive; CSI, OSC and bare ESC sequences do not.
func stripControl(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		b := data[i]
		if b != 0x1b {
			if b == '\n' || b == '\t' || b >= 0x20 {
				out = append(out, b)
			}
			continue
		}
		if i+1 >= len(data) {
			break
		}
		switch data[i+1] {
		case '[':
			// CSI: parameter and intermediate bytes, then a final byte
			// in 0x40..0x7e.
			j := i + 2
			for j < len(data) && (data[j] < 0x40 || data[j] > 0x7e) {
				j++
			}
			i = j

		case ']':
			// OSC: terminated by BEL or ESC \.
			j := i + 2
			for j < len(data) {
				if data[j] == 0x07 {
					break
				}
				if data[j] == 0x1b && j+1 < len(data) && data[j+1] == '\\' {
					j++
					break
				}
				j++
			}
			i = j

		default:
			// Two-byte escape.
			i++
		}
	}
	return out
}
