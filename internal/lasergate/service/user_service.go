package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// UserService writes user records with a fresh entitlement window.
type UserService struct {
	users    store.UserStore
	clock    clock.Clock
	validity time.Duration
	logger   *slog.Logger
}

func NewUserService(users store.UserStore, clk clock.Clock, validity time.Duration, logger *slog.Logger) *UserService {
	if clk == nil {
		clk = clock.Real()
	}
	return &UserService{users: users, clock: clk, validity: validity, logger: logger}
}

// Enroll stores a non-admin record for cardID expiring one validity window
// from now. It refuses with store.ErrProtectedRecord when the card belongs
// to an admin.
func (s *UserService) Enroll(ctx context.Context, cardID, secondaryID, name, sessionID string) (bool, error) {
	return s.write(ctx, types.UserRecord{
		CardID:      cardID,
		SecondaryID: secondaryID,
		FullName:    name,
	}, store.UpsertOptions{ProtectAdmin: true, SessionID: sessionID})
}

// Add stores a record unconditionally, replacing whatever the card held.
func (s *UserService) Add(ctx context.Context, cardID, secondaryID, name string, admin bool) (bool, error) {
	return s.write(ctx, types.UserRecord{
		CardID:      cardID,
		SecondaryID: secondaryID,
		FullName:    name,
		IsAdmin:     admin,
	}, store.UpsertOptions{})
}

func (s *UserService) write(ctx context.Context, rec types.UserRecord, opts store.UpsertOptions) (bool, error) {
	now := s.clock.Now()
	rec.CardID = strings.TrimSpace(rec.CardID)
	rec.FullName = strings.TrimSpace(rec.FullName)
	rec.SecondaryID = strings.TrimSpace(rec.SecondaryID)
	rec.Expiration = now.Add(s.validity).UTC()
	opts.At = now

	updated, err := s.users.Upsert(ctx, rec, opts)
	if err != nil {
		return false, err
	}

	action := "added"
	if updated {
		action = "updated"
	}
	s.logger.Info("user "+action,
		"card", rec.CardID,
		"secondary_id", rec.SecondaryID,
		"name", rec.FullName,
		"admin", rec.IsAdmin,
		"expires", rec.Expiration.Format(time.RFC3339),
		"session", opts.SessionID,
	)
	return updated, nil
}
