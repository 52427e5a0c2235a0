package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// AdminCards are inserted as admin records when missing.
	AdminCards []string
	Now        time.Time
}

// SeedDev makes sure the configured dev admin cards exist so a fresh
// dev database can enter enrollment straight away. Existing rows are left
// untouched.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) (int, error) {
	now := opt.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	nowMs := now.UnixMilli()

	seeded := 0
	for _, card := range opt.AdminCards {
		card = strings.TrimSpace(card)
		if card == "" {
			continue
		}

		res, err := db.ExecContext(ctx, `
INSERT INTO users(card_id, secondary_id, full_name, is_admin, expiration_ms)
SELECT ?, '', 'Dev Admin', 1, ?
WHERE NOT EXISTS (SELECT 1 FROM users WHERE card_id = ?);
`, card, nowMs, card)
		if err != nil {
			return seeded, fmt.Errorf("seed admin %s: %w", card, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			seeded++
			if _, err := db.ExecContext(ctx, `
INSERT INTO users_log(at_ms, action, card_id, detail) VALUES (?, 'ADD', ?, 'dev seed');
`, nowMs, card); err != nil {
				return seeded, fmt.Errorf("seed admin %s log: %w", card, err)
			}
		}
	}
	return seeded, nil
}
