package keyboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ErrNotTerminal is returned by Open when the input is not a TTY.
var ErrNotTerminal = errors.New("keyboard input is not a terminal")

// Terminal puts a TTY in raw mode and decodes key presses from it.
type Terminal struct {
	in     *os.File
	state  *term.State
	logger *slog.Logger

	// OnInterrupt runs when Ctrl-C is read; raw mode suppresses SIGINT.
	OnInterrupt func()
}

// Open switches in to raw mode. Close restores it.
func Open(in *os.File, logger *slog.Logger) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, ErrNotTerminal
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("raw mode: %w", err)
	}
	return &Terminal{in: in, state: state, logger: logger}, nil
}

// Run reads until ctx is done or the input fails, sending raw events to
// out. A pending read is abandoned, not interrupted, when ctx ends.
func (t *Terminal) Run(ctx context.Context, out chan<- types.KeyEvent) error {
	type chunk struct {
		b   []byte
		err error
	}
	reads := make(chan chunk)

	go func() {
		buf := make([]byte, 64)
		for {
			n, err := t.in.Read(buf)
			c := chunk{b: append([]byte(nil), buf[:n]...), err: err}
			select {
			case reads <- c:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-reads:
			evs, interrupted := Decode(c.b)
			for _, ev := range evs {
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
			if interrupted {
				t.logger.Info("interrupt from keyboard")
				if t.OnInterrupt != nil {
					t.OnInterrupt()
				}
			}
			if c.err != nil {
				return fmt.Errorf("keyboard read: %w", c.err)
			}
		}
	}
}

// Close restores the terminal state.
func (t *Terminal) Close() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return err
}
