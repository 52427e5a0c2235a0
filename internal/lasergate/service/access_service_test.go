package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store/memory"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
	"github.com/BrandonDHaskell/lasergate/internal/logging"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newAccess(dir *memory.Directory, clk *clock.Fake) *service.AccessService {
	return service.NewAccessService(dir, clk, logging.Discard())
}

// ── Decide ──────────────────────────────────────────────────────────

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		rec  *types.UserRecord
		now  time.Time
		want types.Decision
	}{
		{"nil record", nil, t0, types.Unrecognized},
		{"admin long expired", &types.UserRecord{IsAdmin: true, Expiration: t0.AddDate(-5, 0, 0)}, t0, types.Authorized},
		{"admin zero expiration", &types.UserRecord{IsAdmin: true}, t0, types.Authorized},
		{"before expiry", &types.UserRecord{Expiration: t0.Add(time.Second)}, t0, types.Authorized},
		{"at expiry", &types.UserRecord{Expiration: t0}, t0, types.Authorized},
		{"after expiry", &types.UserRecord{Expiration: t0}, t0.Add(time.Nanosecond), types.Unauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.Decide(tt.rec, tt.now); got != tt.want {
				t.Errorf("Decide = %s, want %s", got, tt.want)
			}
		})
	}
}

// ── Evaluate ────────────────────────────────────────────────────────

func TestEvaluate_AuthorizedWritesOneUnlock(t *testing.T) {
	dir := memory.New()
	dir.Seed(
		types.UserRecord{CardID: "u1", FullName: "Ada", Expiration: t0.Add(time.Hour)},
		types.UserRecord{CardID: "adm", FullName: "Root", IsAdmin: true},
	)
	svc := newAccess(dir, clock.NewFake(t0))
	ctx := context.Background()

	for i, card := range []string{"u1", "adm", "u1"} {
		res := svc.Evaluate(ctx, types.Card{ID: card}, "s")
		if res.Decision != types.Authorized {
			t.Fatalf("%s: decision = %s", card, res.Decision)
		}
		if got := dir.CountEvents(types.EventUnlock); got != i+1 {
			t.Fatalf("after %d grants, UNLOCK rows = %d", i+1, got)
		}
	}
}

func TestEvaluate_DenialsWriteNothing(t *testing.T) {
	dir := memory.New()
	dir.Seed(types.UserRecord{CardID: "old", FullName: "Old", Expiration: t0.Add(-time.Hour)})
	svc := newAccess(dir, clock.NewFake(t0))
	ctx := context.Background()

	if res := svc.Evaluate(ctx, types.Card{ID: "old"}, ""); res.Decision != types.Unauthorized || res.Record == nil {
		t.Fatalf("expired: %+v", res)
	}
	if res := svc.Evaluate(ctx, types.Card{ID: "ghost"}, ""); res.Decision != types.Unrecognized || res.Record != nil {
		t.Fatalf("unknown: %+v", res)
	}
	evs, _ := dir.Events(ctx, types.LaserLog, 0)
	if len(evs) != 0 {
		t.Fatalf("denials wrote %d laser rows", len(evs))
	}
}

func TestEvaluate_DirectoryFailureDenies(t *testing.T) {
	dir := memory.New()
	dir.Seed(types.UserRecord{CardID: "adm", IsAdmin: true})
	dir.SetError(errors.New("disk gone"))
	svc := newAccess(dir, clock.NewFake(t0))

	res := svc.Evaluate(context.Background(), types.Card{ID: "adm"}, "")
	if res.Decision != types.Unrecognized || res.Reason != "directory_unavailable" {
		t.Fatalf("got %+v, want fail closed", res)
	}

	_, err := svc.Lookup(context.Background(), "adm")
	if !errors.Is(err, service.ErrDirectoryUnavailable) {
		t.Fatalf("Lookup err = %v, want ErrDirectoryUnavailable", err)
	}
}

func TestEvaluate_DuplicateUsesFirstAndLogs(t *testing.T) {
	dir := memory.New()
	dir.Seed(
		types.UserRecord{CardID: "dup", FullName: "First", Expiration: t0.Add(time.Hour)},
		types.UserRecord{CardID: "dup", FullName: "Second", Expiration: t0.Add(-time.Hour)},
	)
	svc := newAccess(dir, clock.NewFake(t0))

	res := svc.Evaluate(context.Background(), types.Card{ID: "dup"}, "")
	if res.Decision != types.Authorized || res.Record.FullName != "First" {
		t.Fatalf("got %+v", res)
	}
	if dir.CountEvents(types.EventDuplicate) != 1 {
		t.Fatal("expected a DUPLICATE row")
	}
}

func TestEvaluate_AuditFailureDoesNotChangeDecision(t *testing.T) {
	dir := &failingEvents{Directory: memory.New()}
	dir.Seed(types.UserRecord{CardID: "u1", Expiration: t0.Add(time.Hour)})
	svc := service.NewAccessService(dir, clock.NewFake(t0), logging.Discard())

	if res := svc.Evaluate(context.Background(), types.Card{ID: "u1"}, ""); res.Decision != types.Authorized {
		t.Fatalf("decision = %s", res.Decision)
	}
}

func TestRecordDeniedAndLock(t *testing.T) {
	dir := memory.New()
	svc := newAccess(dir, clock.NewFake(t0))
	ctx := context.Background()

	svc.RecordDenied(ctx, types.Card{ID: "x", SecondaryID: "830000000"},
		service.AccessResult{Decision: types.Unrecognized, Reason: "not_found"}, "s1")
	svc.RecordLock(ctx, "u1", "s2", "timeout")

	evs, _ := dir.Events(ctx, types.LaserLog, 0)
	if len(evs) != 2 {
		t.Fatalf("laser rows = %d", len(evs))
	}
	if evs[0].Kind != types.EventDenied || evs[0].SecondaryID != "830000000" || evs[0].Detail != "not_found" {
		t.Fatalf("denied row: %+v", evs[0])
	}
	if evs[1].Kind != types.EventLock || evs[1].Detail != "timeout" || !evs[1].At.Equal(t0) {
		t.Fatalf("lock row: %+v", evs[1])
	}
}

type failingEvents struct {
	*memory.Directory
}

func (failingEvents) AppendEvent(context.Context, types.Event) error {
	return errors.New("audit down")
}

var _ store.Directory = failingEvents{}
