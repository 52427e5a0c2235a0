package capture

import (
	"context"
	"unicode"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

var shifted = map[rune]rune{
	'1': '!', '2': '@', '3': '#', '4': '$', '5': '%',
	'6': '^', '7': '&', '8': '*', '9': '(', '0': ')',
	'-': '_', '=': '+', '\\': '|', '`': '~', '[': '{',
	']': '}', ';': ':', '\'': '"', ',': '<', '.': '>',
	'/': '?',
}

// Translator folds shift state into printable events. Shift events
// themselves are consumed.
type Translator struct {
	shift bool
}

// Translate returns the event to forward and whether to forward it.
func (t *Translator) Translate(ev types.KeyEvent) (types.KeyEvent, bool) {
	switch ev.Kind {
	case types.KeyShiftDown:
		t.shift = true
		return ev, false
	case types.KeyShiftUp:
		t.shift = false
		return ev, false
	case types.KeyChar:
		if t.shift {
			if r, ok := shifted[ev.Char]; ok {
				return types.Char(r), true
			}
			return types.Char(unicode.ToUpper(ev.Char)), true
		}
	}
	return ev, true
}

// Pump reads raw events from in, translates them and forwards them to out
// until ctx is done or in is closed. Sends block, so out's capacity bounds
// how far the producer can run ahead of the controller.
func Pump(ctx context.Context, in <-chan types.KeyEvent, out chan<- types.KeyEvent) {
	var t Translator
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			ev, forward := t.Translate(ev)
			if !forward {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}
