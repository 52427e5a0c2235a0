package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// eventTable maps an audit set to its table. Only these two names are ever
// interpolated into SQL.
func eventTable(log types.EventLog) (string, error) {
	switch log {
	case types.UserLog:
		return "users_log", nil
	case types.LaserLog:
		return "laser_log", nil
	default:
		return "", fmt.Errorf("unknown event log %q", log)
	}
}

// insertEvent appends one audit row. Must be called inside an existing
// transaction so the row commits or rolls back with the change it records.
func insertEvent(ctx context.Context, tx *sql.Tx, ev types.Event) error {
	table, err := eventTable(ev.Kind.Log())
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s(at_ms, action, card_id, secondary_id, session_id, detail)
VALUES (?, ?, ?, ?, ?, ?);
`, table),
		ev.At.UTC().UnixMilli(), string(ev.Kind),
		nullable(ev.CardID), nullable(ev.SecondaryID), nullable(ev.SessionID), nullable(ev.Detail),
	); err != nil {
		return fmt.Errorf("insert %s %s: %w", table, ev.Kind, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
