package memory

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

func (d *Directory) AppendEvent(_ context.Context, ev types.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.appendLocked(ev)
	return nil
}

func (d *Directory) Events(_ context.Context, log types.EventLog, limit int) ([]types.Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.err != nil {
		return nil, d.err
	}

	var out []types.Event
	for _, ev := range d.events {
		if ev.Kind.Log() == log {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CountEvents returns how many rows of kind have been appended.
// Test-only helper.
func (d *Directory) CountEvents(kind types.EventKind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, ev := range d.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (d *Directory) appendLocked(ev types.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	d.events = append(d.events, ev)
}
