package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// ImportStats reports what ImportLegacy did.
type ImportStats struct {
	Imported int
	Skipped  int
}

// legacyColumns names the source columns for one users table layout.
type legacyColumns struct {
	card, secondary, name, admin, expiration string
	expirationSeconds                        bool
}

// ImportLegacy copies users from src into dst. It understands the older
// ramcard_uid/csu_id/fullname/expiration_date layout (csu_id optional,
// expiration in unix seconds) as well as this module's own schema. Cards
// already present in dst, and repeated cards within src, are skipped.
func ImportLegacy(ctx context.Context, src *sql.DB, dst store.UserStore) (ImportStats, error) {
	var stats ImportStats

	cols, err := detectColumns(ctx, src)
	if err != nil {
		return stats, err
	}

	secondary := "''"
	if cols.secondary != "" {
		secondary = cols.secondary
	}
	rows, err := src.QueryContext(ctx, fmt.Sprintf(
		`SELECT %s, %s, %s, %s, %s FROM users ORDER BY rowid;`,
		cols.card, secondary, cols.name, cols.admin, cols.expiration,
	))
	if err != nil {
		return stats, fmt.Errorf("ImportLegacy query: %w", err)
	}

	var pending []types.UserRecord
	for rows.Next() {
		var card, sec, name, admin, exp any
		if err := rows.Scan(&card, &sec, &name, &admin, &exp); err != nil {
			rows.Close()
			return stats, fmt.Errorf("ImportLegacy scan: %w", err)
		}
		n := asInt(exp)
		expiration := time.UnixMilli(n).UTC()
		if cols.expirationSeconds {
			expiration = time.Unix(n, 0).UTC()
		}
		pending = append(pending, types.UserRecord{
			CardID:      asString(card),
			SecondaryID: asString(sec),
			FullName:    asString(name),
			IsAdmin:     asInt(admin) == 1,
			Expiration:  expiration,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("ImportLegacy rows: %w", err)
	}
	rows.Close()

	seen := make(map[string]bool, len(pending))
	for _, rec := range pending {
		id := rec.CardID
		if id == "" || seen[id] {
			stats.Skipped++
			continue
		}
		seen[id] = true

		if _, err := dst.Lookup(ctx, id); !isNotFound(err) {
			if err != nil && !isDuplicate(err) {
				return stats, fmt.Errorf("ImportLegacy lookup %s: %w", id, err)
			}
			stats.Skipped++
			continue
		}

		if _, err := dst.Upsert(ctx, rec, store.UpsertOptions{ProtectAdmin: true}); err != nil {
			return stats, fmt.Errorf("ImportLegacy upsert %s: %w", id, err)
		}
		stats.Imported++
	}
	return stats, nil
}

func detectColumns(ctx context.Context, src *sql.DB) (legacyColumns, error) {
	rows, err := src.QueryContext(ctx, `PRAGMA table_info(users);`)
	if err != nil {
		return legacyColumns{}, fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()

	have := map[string]bool{}
	for rows.Next() {
		var (
			cid         int
			name, typ   string
			notNull, pk int
			dflt        sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return legacyColumns{}, fmt.Errorf("table_info scan: %w", err)
		}
		have[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return legacyColumns{}, err
	}

	switch {
	case have["card_id"] && have["expiration_ms"]:
		return legacyColumns{
			card: "card_id", secondary: "secondary_id", name: "full_name",
			admin: "is_admin", expiration: "expiration_ms",
		}, nil
	case have["ramcard_uid"] && have["expiration_date"]:
		c := legacyColumns{
			card: "ramcard_uid", name: "fullname",
			admin: "is_admin", expiration: "expiration_date",
			expirationSeconds: true,
		}
		if have["csu_id"] {
			c.secondary = "csu_id"
		}
		return c, nil
	case len(have) == 0:
		return legacyColumns{}, fmt.Errorf("source has no users table")
	default:
		return legacyColumns{}, fmt.Errorf("unrecognised users table layout")
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatInt(int64(x), 10)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
		return n
	default:
		return 0
	}
}
