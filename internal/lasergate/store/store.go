package store

import (
	"context"
	"errors"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

var (
	ErrNotFound        = errors.New("user record not found")
	ErrInvalidCardID   = errors.New("card_id is required")
	ErrProtectedRecord = errors.New("admin record cannot be replaced")

	// ErrDuplicateRecord is returned by Lookup together with a valid record
	// when more than one row exists for the card. The first row wins.
	ErrDuplicateRecord = errors.New("duplicate user records for card")
)

// UpsertOptions tune a single Upsert.
type UpsertOptions struct {
	// ProtectAdmin makes the upsert fail with ErrProtectedRecord when the
	// card already belongs to an admin. The check runs in the same
	// transaction as the write.
	ProtectAdmin bool

	// At stamps the users_log row; zero means now.
	At time.Time

	// SessionID ties the users_log row to an enrollment.
	SessionID string
}

// UserStore holds user records keyed by card id (last write wins).
type UserStore interface {
	Lookup(ctx context.Context, cardID string) (types.UserRecord, error)
	Upsert(ctx context.Context, rec types.UserRecord, opts UpsertOptions) (updated bool, err error)
	Delete(ctx context.Context, cardID string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time, includeAdmins bool) (int64, error)
	List(ctx context.Context) ([]types.UserRecord, error)
}
