// Package keyboard reads key events from a raw-mode terminal.
package keyboard

import (
	"unicode"
	"unicode/utf8"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

const (
	ctrlC     = 0x03
	backspace = 0x08
	esc       = 0x1b
	del       = 0x7f
)

// Decode converts one read of raw terminal bytes into key events.
// interrupted is set when Ctrl-C was seen; bytes after it are dropped.
// Escape sequences other than Delete (ESC [ 3 ~) are skipped.
func Decode(b []byte) (evs []types.KeyEvent, interrupted bool) {
	for len(b) > 0 {
		switch c := b[0]; {
		case c == ctrlC:
			return evs, true
		case c == del || c == backspace:
			evs = append(evs, types.Key(types.KeyBackspace))
			b = b[1:]
		case c == '\r' || c == '\n':
			evs = append(evs, types.Key(types.KeySubmit))
			b = b[1:]
		case c == ' ':
			evs = append(evs, types.Key(types.KeySpace))
			b = b[1:]
		case c == esc:
			n, ev, ok := escape(b)
			if ok {
				evs = append(evs, ev)
			}
			b = b[n:]
		default:
			r, n := utf8.DecodeRune(b)
			if r != utf8.RuneError && unicode.IsPrint(r) {
				evs = append(evs, types.Char(r))
			}
			b = b[n:]
		}
	}
	return evs, false
}

// escape consumes a CSI sequence starting at b[0] == ESC and returns its
// length.
func escape(b []byte) (int, types.KeyEvent, bool) {
	if len(b) < 2 || b[1] != '[' {
		return 1, types.KeyEvent{}, false
	}
	i := 2
	for i < len(b) && b[i] >= 0x30 && b[i] <= 0x3f {
		i++
	}
	if i >= len(b) {
		return len(b), types.KeyEvent{}, false
	}
	seq := string(b[2 : i+1])
	if seq == "3~" {
		return i + 1, types.Key(types.KeyDelete), true
	}
	return i + 1, types.KeyEvent{}, false
}
