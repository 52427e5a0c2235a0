package store

import (
	"context"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// EventStore persists audit rows to the append-only users_log and
// laser_log sets.
type EventStore interface {
	AppendEvent(ctx context.Context, ev types.Event) error

	// Events returns the newest rows of one log, oldest first. A limit of
	// zero returns everything.
	Events(ctx context.Context, log types.EventLog, limit int) ([]types.Event, error)
}

// Directory is the full persistence capability the controller consumes.
type Directory interface {
	UserStore
	EventStore
}
