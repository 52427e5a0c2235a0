package controller

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ErrHardwareUnavailable wraps any failure reported by a device. A failed
// device costs the controller one tick, never a crash.
var ErrHardwareUnavailable = errors.New("hardware unavailable")

// CardReader reports the card currently in the reader's field, if any.
type CardReader interface {
	Scan(ctx context.Context) (card types.Card, present bool, err error)
}

// Display shows up to four rows of text.
type Display interface {
	Render(f types.Frame) error
	Clear() error
}

// Indicator is the RGB status light.
type Indicator interface {
	SetColor(c types.Color) error
}

// Power switches the cutter (and chiller) supply.
type Power interface {
	SetPower(on bool) error
}

// DoneControl is the momentary "done" button, read as a level.
type DoneControl interface {
	Asserted() (bool, error)
}
