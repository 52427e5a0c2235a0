// Package sim provides in-process stand-ins for the card reader, done
// button, power relay, RGB indicator and character display. They are safe
// for concurrent use so the HTTP surface can drive them while the
// controller loop polls them.
package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BrandonDHaskell/lasergate/internal/hw/lcd"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Reader is a card reader whose field holds at most one card.
type Reader struct {
	mu   sync.Mutex
	card *types.Card
	err  error
}

// Present places card on the reader until Remove.
func (r *Reader) Present(card types.Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.card = &card
}

func (r *Reader) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.card = nil
}

// Fail makes every Scan return err until cleared with nil.
func (r *Reader) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Current returns the card in the field, if any.
func (r *Reader) Current() (types.Card, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.card == nil {
		return types.Card{}, false
	}
	return *r.card, true
}

func (r *Reader) Scan(ctx context.Context) (types.Card, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.Card{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return types.Card{}, false, r.err
	}
	if r.card == nil {
		return types.Card{}, false, nil
	}
	return *r.card, true, nil
}

// Button is the momentary done control.
type Button struct {
	mu      sync.Mutex
	pressed bool
}

func (b *Button) Set(pressed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pressed = pressed
}

func (b *Button) Asserted() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed, nil
}

// Relay is the cutter power line. It records every transition.
type Relay struct {
	mu      sync.Mutex
	on      bool
	history []bool
	err     error
}

func (r *Relay) SetPower(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.on != on {
		r.history = append(r.history, on)
	}
	r.on = on
	return nil
}

// Fail makes SetPower return err until cleared with nil.
func (r *Relay) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Relay) On() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// Transitions returns each state change in order.
func (r *Relay) Transitions() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.history...)
}

// LED is the RGB status indicator.
type LED struct {
	mu    sync.Mutex
	color types.Color
}

func (l *LED) SetColor(c types.Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = c
	return nil
}

func (l *LED) Color() types.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

// Display keeps the last rendered frame, formatted as the hardware would
// show it.
type Display struct {
	width  int
	logger *slog.Logger

	mu    sync.Mutex
	frame types.Frame
	lines [4]string
}

func NewDisplay(width int, logger *slog.Logger) *Display {
	d := &Display{width: width, logger: logger}
	d.lines = lcd.FormatFrame(types.Frame{}, width)
	return d
}

func (d *Display) Render(f types.Frame) error {
	lines := lcd.FormatFrame(f, d.width)

	d.mu.Lock()
	changed := lines != d.lines
	d.frame, d.lines = f, lines
	d.mu.Unlock()

	if changed && d.logger != nil {
		d.logger.Debug("display",
			"row1", lines[0], "row2", lines[1], "row3", lines[2], "row4", lines[3])
	}
	return nil
}

func (d *Display) Clear() error {
	return d.Render(types.Frame{})
}

// Frame returns the last rendered frame.
func (d *Display) Frame() types.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// Lines returns the last frame as padded display rows.
func (d *Display) Lines() [4]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}
