package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

func (d *Directory) AppendEvent(ctx context.Context, ev types.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return d.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return insertEvent(ctx, tx, ev)
	})
}

func (d *Directory) Events(ctx context.Context, log types.EventLog, limit int) ([]types.Event, error) {
	table, err := eventTable(log)
	if err != nil {
		return nil, err
	}

	// Newest `limit` rows, returned oldest first.
	q := fmt.Sprintf(`
SELECT at_ms, action, card_id, secondary_id, session_id, detail FROM (
  SELECT id, at_ms, action, card_id, secondary_id, session_id, detail
  FROM %s ORDER BY id DESC LIMIT ?
) ORDER BY id ASC;
`, table)
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}

	rows, err := d.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("Events query: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var (
			ev                                     types.Event
			atMs                                   int64
			action                                 string
			cardID, secondaryID, sessionID, detail sql.NullString
		)
		if err := rows.Scan(&atMs, &action, &cardID, &secondaryID, &sessionID, &detail); err != nil {
			return nil, fmt.Errorf("Events scan: %w", err)
		}
		ev.At = time.UnixMilli(atMs).UTC()
		ev.Kind = types.EventKind(action)
		ev.CardID = cardID.String
		ev.SecondaryID = secondaryID.String
		ev.SessionID = sessionID.String
		ev.Detail = detail.String
		out = append(out, ev)
	}
	return out, rows.Err()
}
