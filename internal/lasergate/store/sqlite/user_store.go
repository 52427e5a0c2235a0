package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Lookup returns the first row for cardID. A second row is reported with
// store.ErrDuplicateRecord alongside the first.
func (d *Directory) Lookup(ctx context.Context, cardID string) (types.UserRecord, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return types.UserRecord{}, store.ErrInvalidCardID
	}

	rows, err := d.db.QueryContext(ctx, `
SELECT card_id, secondary_id, full_name, is_admin, expiration_ms
FROM users
WHERE card_id = ?
ORDER BY rowid
LIMIT 2;
`, cardID)
	if err != nil {
		return types.UserRecord{}, fmt.Errorf("Lookup query: %w", err)
	}
	defer rows.Close()

	var recs []types.UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return types.UserRecord{}, fmt.Errorf("Lookup scan: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return types.UserRecord{}, fmt.Errorf("Lookup rows: %w", err)
	}

	switch len(recs) {
	case 0:
		return types.UserRecord{}, store.ErrNotFound
	case 1:
		return recs[0], nil
	default:
		return recs[0], fmt.Errorf("Lookup %s: %w", cardID, store.ErrDuplicateRecord)
	}
}

// Upsert replaces every row for the card with rec and writes an ADD or
// UPDATE row to users_log, all in one transaction.
func (d *Directory) Upsert(ctx context.Context, rec types.UserRecord, opts store.UpsertOptions) (bool, error) {
	rec.CardID = strings.TrimSpace(rec.CardID)
	if rec.CardID == "" {
		return false, store.ErrInvalidCardID
	}
	at := opts.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var updated bool
	err := d.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if opts.ProtectAdmin {
			var admins int
			if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM users WHERE card_id = ? AND is_admin = 1;
`, rec.CardID).Scan(&admins); err != nil {
				return fmt.Errorf("Upsert check admin: %w", err)
			}
			if admins > 0 {
				return store.ErrProtectedRecord
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE card_id = ?;`, rec.CardID)
		if err != nil {
			return fmt.Errorf("Upsert delete: %w", err)
		}
		n, _ := res.RowsAffected()
		updated = n > 0

		if _, err := tx.ExecContext(ctx, `
INSERT INTO users(card_id, secondary_id, full_name, is_admin, expiration_ms)
VALUES (?, ?, ?, ?, ?);
`, rec.CardID, rec.SecondaryID, rec.FullName, boolInt(rec.IsAdmin), rec.Expiration.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("Upsert insert: %w", err)
		}

		kind := types.EventAdd
		if updated {
			kind = types.EventUpdate
		}
		return insertEvent(ctx, tx, types.Event{
			At:          at,
			Kind:        kind,
			CardID:      rec.CardID,
			SecondaryID: rec.SecondaryID,
			SessionID:   opts.SessionID,
		})
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

func (d *Directory) Delete(ctx context.Context, cardID string) (bool, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return false, store.ErrInvalidCardID
	}

	var deleted bool
	err := d.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE card_id = ?;`, cardID)
		if err != nil {
			return fmt.Errorf("Delete: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		deleted = true
		return insertEvent(ctx, tx, types.Event{
			At:     time.Now().UTC(),
			Kind:   types.EventDelete,
			CardID: cardID,
		})
	})
	return deleted, err
}

// PurgeExpired deletes records whose expiration is before now. Admin rows
// survive unless includeAdmins is set. The count is logged to users_log
// even when zero.
func (d *Directory) PurgeExpired(ctx context.Context, now time.Time, includeAdmins bool) (int64, error) {
	nowMs := now.UTC().UnixMilli()

	q := `DELETE FROM users WHERE is_admin != 1 AND expiration_ms < ?;`
	if includeAdmins {
		q = `DELETE FROM users WHERE expiration_ms < ?;`
	}

	var deleted int64
	err := d.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, nowMs)
		if err != nil {
			return fmt.Errorf("PurgeExpired: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return insertEvent(ctx, tx, types.Event{
			At:     now,
			Kind:   types.EventRemoveExpired,
			Detail: strconv.FormatInt(deleted, 10),
		})
	})
	return deleted, err
}

func (d *Directory) List(ctx context.Context) ([]types.UserRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT card_id, secondary_id, full_name, is_admin, expiration_ms
FROM users
ORDER BY card_id, rowid;
`)
	if err != nil {
		return nil, fmt.Errorf("List query: %w", err)
	}
	defer rows.Close()

	var out []types.UserRecord
	for rows.Next() {
		rec, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("List scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (types.UserRecord, error) {
	var (
		rec     types.UserRecord
		isAdmin int
		expMs   int64
	)
	if err := s.Scan(&rec.CardID, &rec.SecondaryID, &rec.FullName, &isAdmin, &expMs); err != nil {
		return types.UserRecord{}, err
	}
	rec.IsAdmin = isAdmin == 1
	rec.Expiration = time.UnixMilli(expMs).UTC()
	return rec, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
func isDuplicate(err error) bool { return errors.Is(err, store.ErrDuplicateRecord) }
