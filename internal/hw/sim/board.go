package sim

import (
	"log/slog"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Board bundles one of each simulated device plus a raw key stream.
type Board struct {
	Reader  *Reader
	Done    *Button
	Relay   *Relay
	LED     *LED
	Display *Display

	// Keys carries raw (untranslated) key events, shift included.
	Keys chan types.KeyEvent
}

func NewBoard(width int, logger *slog.Logger) *Board {
	return &Board{
		Reader:  &Reader{},
		Done:    &Button{},
		Relay:   &Relay{},
		LED:     &LED{},
		Display: NewDisplay(width, logger),
		Keys:    make(chan types.KeyEvent, 64),
	}
}

// Press queues events on Keys. It reports how many were queued before the
// buffer filled.
func (b *Board) Press(evs ...types.KeyEvent) int {
	for i, ev := range evs {
		select {
		case b.Keys <- ev:
		default:
			return i
		}
	}
	return len(evs)
}

// Type queues text as key events, followed by a submit when submit is set.
func (b *Board) Type(text string, submit bool) int {
	evs := types.Keys(text)
	if submit {
		evs = append(evs, types.Key(types.KeySubmit))
	}
	return b.Press(evs...)
}
