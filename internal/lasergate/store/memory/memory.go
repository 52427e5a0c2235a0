package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Directory is an in-memory store.Directory for tests and dev runs.
// Rows are kept per card as a slice so duplicate rows can be seeded.
type Directory struct {
	mu     sync.RWMutex
	users  map[string][]types.UserRecord
	order  []string
	events []types.Event
	err    error
}

func New() *Directory {
	return &Directory{users: make(map[string][]types.UserRecord)}
}

// Seed inserts records as-is, without audit rows, allowing duplicates.
// Test-only helper.
func (d *Directory) Seed(recs ...types.UserRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range recs {
		if _, ok := d.users[r.CardID]; !ok {
			d.order = append(d.order, r.CardID)
		}
		d.users[r.CardID] = append(d.users[r.CardID], r)
	}
}

// SetError makes every subsequent call fail with err until cleared with
// nil. Test-only helper.
func (d *Directory) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *Directory) Lookup(_ context.Context, cardID string) (types.UserRecord, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return types.UserRecord{}, store.ErrInvalidCardID
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return types.UserRecord{}, d.err
	}

	rows := d.users[cardID]
	switch len(rows) {
	case 0:
		return types.UserRecord{}, store.ErrNotFound
	case 1:
		return rows[0], nil
	default:
		return rows[0], fmt.Errorf("Lookup %s: %w", cardID, store.ErrDuplicateRecord)
	}
}

func (d *Directory) Upsert(_ context.Context, rec types.UserRecord, opts store.UpsertOptions) (bool, error) {
	rec.CardID = strings.TrimSpace(rec.CardID)
	if rec.CardID == "" {
		return false, store.ErrInvalidCardID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}

	existing, ok := d.users[rec.CardID]
	if opts.ProtectAdmin {
		for _, r := range existing {
			if r.IsAdmin {
				return false, store.ErrProtectedRecord
			}
		}
	}
	if !ok {
		d.order = append(d.order, rec.CardID)
	}
	d.users[rec.CardID] = []types.UserRecord{rec}

	kind := types.EventAdd
	if ok {
		kind = types.EventUpdate
	}
	d.appendLocked(types.Event{
		At:          opts.At,
		Kind:        kind,
		CardID:      rec.CardID,
		SecondaryID: rec.SecondaryID,
		SessionID:   opts.SessionID,
	})
	return ok, nil
}

func (d *Directory) Delete(_ context.Context, cardID string) (bool, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return false, store.ErrInvalidCardID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.users[cardID]; !ok {
		return false, nil
	}
	d.removeLocked(cardID)
	d.appendLocked(types.Event{Kind: types.EventDelete, CardID: cardID})
	return true, nil
}

func (d *Directory) PurgeExpired(_ context.Context, now time.Time, includeAdmins bool) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return 0, d.err
	}

	var n int64
	for _, id := range append([]string(nil), d.order...) {
		kept := d.users[id][:0]
		for _, r := range d.users[id] {
			if r.Expiration.Before(now) && (includeAdmins || !r.IsAdmin) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			d.removeLocked(id)
		} else {
			d.users[id] = kept
		}
	}

	d.appendLocked(types.Event{
		At:     now,
		Kind:   types.EventRemoveExpired,
		Detail: strconv.FormatInt(n, 10),
	})
	return n, nil
}

func (d *Directory) List(_ context.Context) ([]types.UserRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}

	out := make([]types.UserRecord, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.users[id]...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CardID < out[j].CardID })
	return out, nil
}

func (d *Directory) removeLocked(cardID string) {
	delete(d.users, cardID)
	for i, id := range d.order {
		if id == cardID {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}
