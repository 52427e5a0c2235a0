package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ErrDirectoryUnavailable wraps any directory failure other than a missing
// or duplicated record. Callers treat it as a denial.
var ErrDirectoryUnavailable = errors.New("user directory unavailable")

// Decide maps a directory record to an access decision. Admins are exempt
// from expiry; everyone else is authorized through the expiration instant
// inclusive.
func Decide(rec *types.UserRecord, now time.Time) types.Decision {
	switch {
	case rec == nil:
		return types.Unrecognized
	case rec.IsAdmin:
		return types.Authorized
	case !rec.Expired(now):
		return types.Authorized
	default:
		return types.Unauthorized
	}
}

// AccessResult is one evaluated scan.
type AccessResult struct {
	Decision types.Decision
	Record   *types.UserRecord // nil when unrecognized
	Reason   string
}

type AccessService struct {
	dir    store.Directory
	clock  clock.Clock
	logger *slog.Logger
}

func NewAccessService(dir store.Directory, clk clock.Clock, logger *slog.Logger) *AccessService {
	if clk == nil {
		clk = clock.Real()
	}
	return &AccessService{dir: dir, clock: clk, logger: logger}
}

// Lookup returns the record for cardID, or nil when there is none. When the
// directory holds several rows the first is used and a DUPLICATE row is
// written to users_log.
func (s *AccessService) Lookup(ctx context.Context, cardID string) (*types.UserRecord, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, nil
	}

	rec, err := s.dir.Lookup(ctx, cardID)
	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, store.ErrNotFound):
		return nil, nil
	case errors.Is(err, store.ErrDuplicateRecord):
		s.logger.Warn("duplicate user records, using first", "card", cardID)
		s.recordEvent(ctx, types.Event{
			Kind:        types.EventDuplicate,
			CardID:      cardID,
			SecondaryID: rec.SecondaryID,
		})
		return &rec, nil
	default:
		return nil, fmt.Errorf("Lookup %s: %w: %w", cardID, ErrDirectoryUnavailable, err)
	}
}

// Evaluate looks the card up and decides. Exactly one UNLOCK row is written
// for every Authorized result; nothing is written otherwise, the caller
// records denials. A directory failure denies.
func (s *AccessService) Evaluate(ctx context.Context, card types.Card, sessionID string) AccessResult {
	now := s.clock.Now()

	rec, err := s.Lookup(ctx, card.ID)
	if err != nil {
		s.logger.Error("directory lookup failed, denying", "card", card.ID, "err", err)
		return AccessResult{Decision: types.Unrecognized, Reason: "directory_unavailable"}
	}

	res := AccessResult{Decision: Decide(rec, now), Record: rec}
	switch {
	case rec == nil:
		res.Reason = "not_found"
	case rec.IsAdmin:
		res.Reason = "admin"
	case res.Decision == types.Authorized:
		res.Reason = "valid"
	default:
		res.Reason = "expired"
	}

	if res.Decision == types.Authorized {
		s.recordEvent(ctx, types.Event{
			At:          now,
			Kind:        types.EventUnlock,
			CardID:      card.ID,
			SecondaryID: secondaryOf(rec, card),
			SessionID:   sessionID,
			Detail:      res.Reason,
		})
		s.logger.Info("access granted", "card", card.ID, "name", rec.FullName, "session", sessionID)
	}
	return res
}

// RecordDenied writes a DENIED laser_log row for a refused scan.
func (s *AccessService) RecordDenied(ctx context.Context, card types.Card, res AccessResult, sessionID string) {
	s.recordEvent(ctx, types.Event{
		At:          s.clock.Now(),
		Kind:        types.EventDenied,
		CardID:      card.ID,
		SecondaryID: secondaryOf(res.Record, card),
		SessionID:   sessionID,
		Detail:      res.Reason,
	})
	s.logger.Info("access denied", "card", card.ID, "decision", res.Decision, "reason", res.Reason, "session", sessionID)
}

// RecordLock writes a LOCK laser_log row when a powered session ends.
func (s *AccessService) RecordLock(ctx context.Context, cardID, sessionID, reason string) {
	s.recordEvent(ctx, types.Event{
		At:        s.clock.Now(),
		Kind:      types.EventLock,
		CardID:    cardID,
		SessionID: sessionID,
		Detail:    reason,
	})
	s.logger.Info("laser locked", "card", cardID, "reason", reason, "session", sessionID)
}

// recordEvent persists an audit row. Failures are logged and swallowed: a
// lost audit row must never change an access decision.
func (s *AccessService) recordEvent(ctx context.Context, ev types.Event) {
	if ev.At.IsZero() {
		ev.At = s.clock.Now()
	}
	if err := s.dir.AppendEvent(ctx, ev); err != nil {
		s.logger.Error("audit write failed", "kind", ev.Kind, "card", ev.CardID, "err", err)
	}
}

func secondaryOf(rec *types.UserRecord, card types.Card) string {
	if rec != nil && rec.SecondaryID != "" {
		return rec.SecondaryID
	}
	return card.SecondaryID
}
