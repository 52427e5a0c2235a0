package controller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/hw/sim"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/capture"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/controller"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store/memory"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
	"github.com/BrandonDHaskell/lasergate/internal/logging"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const validity = 180 * 24 * time.Hour

type harness struct {
	t      *testing.T
	ctx    context.Context
	clk    *clock.Fake
	board  *sim.Board
	dir    *memory.Directory
	access *service.AccessService
	keys   chan types.KeyEvent
	d      *controller.Dispatcher
}

func newHarness(t *testing.T, fields []capture.Field, recs ...types.UserRecord) *harness {
	t.Helper()

	clk := clock.NewFake(t0)
	dir := memory.New()
	dir.Seed(recs...)
	log := logging.Discard()
	board := sim.NewBoard(20, log)
	keys := make(chan types.KeyEvent, 256)

	timing := controller.DefaultTiming()
	timing.Validity = validity
	access := service.NewAccessService(dir, clk, log)

	d, err := controller.New(controller.Dependencies{
		Logger:    log,
		Clock:     clk,
		Reader:    board.Reader,
		Display:   board.Display,
		Indicator: board.LED,
		Power:     board.Relay,
		Done:      board.Done,
		Keys:      keys,
		Access:    access,
		Users:     service.NewUserService(dir, clk, validity, log),
		Timing:    timing,
		Fields:    fields,
	})
	require.NoError(t, err)

	return &harness{t: t, ctx: context.Background(), clk: clk, board: board, dir: dir, access: access, keys: keys, d: d}
}

// step runs one tick and lets the returned delay elapse.
func (h *harness) step() time.Duration {
	delay := h.d.Step(h.ctx)
	h.clk.Advance(delay)
	return delay
}

func (h *harness) steps(n int) {
	for i := 0; i < n; i++ {
		h.step()
	}
}

func (h *harness) present(id string) { h.board.Reader.Present(types.Card{ID: id}) }
func (h *harness) remove()           { h.board.Reader.Remove() }
func (h *harness) done(on bool)      { h.board.Done.Set(on) }

func (h *harness) typeText(text string, submit bool) {
	for _, ev := range types.Keys(text) {
		h.keys <- ev
	}
	if submit {
		h.keys <- types.Key(types.KeySubmit)
	}
}

func (h *harness) row(n int) string {
	return h.d.Status().Frame[n-1].Text
}

func (h *harness) lookup(id string) types.UserRecord {
	rec, err := h.dir.Lookup(h.ctx, id)
	require.NoError(h.t, err)
	return rec
}

func user(id, name string, exp time.Time) types.UserRecord {
	return types.UserRecord{CardID: id, FullName: name, Expiration: exp}
}

func admin(id, name string) types.UserRecord {
	return types.UserRecord{CardID: id, FullName: name, IsAdmin: true, Expiration: t0.AddDate(-3, 0, 0)}
}

// ── Idle ────────────────────────────────────────────────────────────

func TestIdle_NoCard(t *testing.T) {
	h := newHarness(t, nil)

	delay := h.d.Step(h.ctx)
	require.Equal(t, 500*time.Millisecond, delay)
	require.Equal(t, "Scan card", h.row(2))
	require.Equal(t, types.ColorBlue, h.board.LED.Color())
	require.Equal(t, "idle", h.d.Status().Mode)
}

func TestIdle_AuthorizedPowersOn(t *testing.T) {
	h := newHarness(t, nil, user("u1", "Ada", t0.Add(time.Hour)))
	h.present("u1")

	delay := h.d.Step(h.ctx)
	require.Equal(t, time.Second, delay)
	require.True(t, h.board.Relay.On())
	st := h.d.Status()
	require.Equal(t, "granted", st.Mode)
	require.Equal(t, "u1", st.HolderCardID)
	require.Equal(t, 20, st.GraceTicks)
	require.Equal(t, "AUTHORIZED", h.row(3))
	require.Equal(t, types.ColorGreen, h.board.LED.Color())
	require.Equal(t, 1, h.dir.CountEvents(types.EventUnlock))
}

func TestIdle_ExpiredAdminStillAuthorized(t *testing.T) {
	h := newHarness(t, nil, admin("a1", "Root"))
	h.present("a1")

	h.step()
	require.True(t, h.board.Relay.On())
}

func TestIdle_ExpiredUserDenied(t *testing.T) {
	h := newHarness(t, nil, user("u1", "Ada", t0.Add(-time.Second)))
	h.present("u1")

	delay := h.step()
	require.Equal(t, 3*time.Second, delay)
	require.False(t, h.board.Relay.On())
	require.Equal(t, "Ada", h.row(2))
	require.Equal(t, "Not Authorized", h.row(3))
	require.Equal(t, types.ColorRed, h.board.LED.Color())
	require.Equal(t, 1, h.dir.CountEvents(types.EventDenied))
	require.Zero(t, h.dir.CountEvents(types.EventUnlock))

	// The same card must leave the reader before it is judged again.
	h.steps(3)
	require.Equal(t, "Remove card", h.row(2))
	require.Equal(t, 1, h.dir.CountEvents(types.EventDenied))
}

func TestIdle_UnknownCardDenied(t *testing.T) {
	h := newHarness(t, nil)
	h.present("ghost")

	h.step()
	require.Equal(t, "Not Recognized", h.row(3))
	require.False(t, h.board.Relay.On())
	require.Equal(t, 1, h.dir.CountEvents(types.EventDenied))
}

func TestIdle_DoneWithUserCardIdentifies(t *testing.T) {
	h := newHarness(t, nil, user("255", "Ada", t0.Add(time.Hour)))
	h.present("255")
	h.done(true)

	delay := h.step()
	require.Equal(t, 2*time.Second, delay)
	require.Equal(t, "Ada", h.row(1))
	require.Equal(t, "0xff", h.row(2))
	require.False(t, h.board.Relay.On())
	require.Zero(t, h.dir.CountEvents(types.EventUnlock))

	h.present("abc")
	h.step()
	require.Equal(t, "Card uid:", h.row(1))
	require.Equal(t, "abc", h.row(2))
}

func TestIdle_DirectoryDownDenies(t *testing.T) {
	h := newHarness(t, nil, admin("a1", "Root"))
	h.dir.SetError(errors.New("disk gone"))
	h.present("a1")

	h.step()
	require.False(t, h.board.Relay.On())
	require.Equal(t, "idle", h.d.Status().Mode)
}

// ── Granted ─────────────────────────────────────────────────────────

func grant(t *testing.T, recs ...types.UserRecord) *harness {
	t.Helper()
	h := newHarness(t, nil, recs...)
	h.present(recs[0].CardID)
	h.step()
	require.True(t, h.board.Relay.On())
	return h
}

func TestGranted_NineteenMissingThenReturnKeepsPower(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))

	h.remove()
	h.steps(19)
	require.True(t, h.board.Relay.On())
	require.Equal(t, 19, h.d.Status().MissingTicks)
	require.Equal(t, "Card missing!", h.row(2))
	require.Equal(t, "1 sec to return", h.row(3))
	require.Equal(t, types.ColorDimRed, h.board.LED.Color())

	h.present("u1")
	h.step()
	require.True(t, h.board.Relay.On())
	require.Zero(t, h.d.Status().MissingTicks)
	require.Equal(t, []bool{true}, h.board.Relay.Transitions())
}

func TestGranted_TwentyMissingDepowers(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))

	h.remove()
	h.steps(19)
	require.True(t, h.board.Relay.On())

	delay := h.step()
	require.False(t, h.board.Relay.On())
	require.Equal(t, 2*time.Second, delay)
	require.Equal(t, "Time's up!", h.row(2))
	require.Equal(t, "idle", h.d.Status().Mode)

	evs, _ := h.dir.Events(h.ctx, types.LaserLog, 1)
	require.Equal(t, types.EventLock, evs[0].Kind)
	require.Equal(t, "timeout", evs[0].Detail)
}

func TestGranted_AuthorizedDisplacementKeepsPower(t *testing.T) {
	h := grant(t,
		user("u1", "Ada", t0.Add(time.Hour)),
		user("u2", "Grace", t0.Add(time.Hour)),
	)

	h.remove()
	h.steps(5)
	h.present("u2")
	h.step()

	st := h.d.Status()
	require.Equal(t, "u2", st.HolderCardID)
	require.Equal(t, "Grace", st.HolderName)
	require.Zero(t, st.MissingTicks)
	require.Equal(t, []bool{true}, h.board.Relay.Transitions(), "power never dropped")
	require.Equal(t, 2, h.dir.CountEvents(types.EventUnlock))

	h.step()
	require.Equal(t, 2, h.dir.CountEvents(types.EventUnlock), "holder re-scan is not a new unlock")
}

func TestGranted_UnauthorizedIntruderCountsAsMissing(t *testing.T) {
	h := grant(t,
		user("u1", "Ada", t0.Add(time.Hour)),
		user("old", "Old", t0.Add(-time.Hour)),
	)

	h.present("old")
	h.step()
	require.Equal(t, 1, h.d.Status().MissingTicks)
	require.Equal(t, "Not Authorized", h.row(3))
	require.Equal(t, types.ColorRed, h.board.LED.Color())
	require.True(t, h.board.Relay.On())

	h.step()
	require.Equal(t, 2, h.d.Status().MissingTicks)
	require.Equal(t, 1, h.dir.CountEvents(types.EventDenied), "same intruder logged once")

	h.present("ghost")
	h.step()
	require.Equal(t, 3, h.d.Status().MissingTicks)
	require.Equal(t, "Not Recognized", h.row(3))
	require.Equal(t, 2, h.dir.CountEvents(types.EventDenied))

	h.present("u1")
	h.step()
	require.Zero(t, h.d.Status().MissingTicks)
	require.True(t, h.board.Relay.On())
}

func TestGranted_DoneEndsSession(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))

	h.done(true)
	delay := h.step()
	require.Equal(t, 5*time.Second, delay)
	require.False(t, h.board.Relay.On())
	require.Equal(t, "Ada DONE", h.row(2))
	require.Equal(t, "Remove card", h.row(3))

	h.done(false)
	h.steps(2)
	require.False(t, h.board.Relay.On(), "card left on the reader does not restart the session")
	require.Equal(t, "Remove card", h.row(2))

	h.remove()
	h.step()
	h.present("u1")
	h.step()
	require.True(t, h.board.Relay.On())
	require.Equal(t, 2, h.dir.CountEvents(types.EventUnlock))
}

func TestGranted_FailedReadKeepsDoneCardLatched(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))

	h.done(true)
	h.step()
	h.done(false)
	h.step()
	require.False(t, h.board.Relay.On())

	h.board.Reader.Fail(errors.New("crc error"))
	h.step()
	h.board.Reader.Fail(nil)
	h.step()
	require.False(t, h.board.Relay.On(), "card never left the reader")
	require.Equal(t, "idle", h.d.Status().Mode)
	require.Equal(t, "Remove card", h.row(2))
	require.Equal(t, 1, h.dir.CountEvents(types.EventUnlock))
}

func TestGranted_DuplicateIntruderEvaluatedOnce(t *testing.T) {
	h := grant(t,
		user("u1", "Ada", t0.Add(time.Hour)),
		user("dup", "Dup", t0.Add(-time.Hour)),
		user("dup", "Dup Again", t0.Add(-time.Hour)),
	)

	h.present("dup")
	h.steps(3)
	require.Equal(t, 3, h.d.Status().MissingTicks)
	require.Equal(t, "Not Authorized", h.row(3))
	require.Equal(t, 1, h.dir.CountEvents(types.EventDuplicate))
	require.Equal(t, 1, h.dir.CountEvents(types.EventDenied))
	require.True(t, h.board.Relay.On())
}

func TestGranted_ReaderFailureCountsAsMissing(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))
	h.board.Reader.Fail(errors.New("spi timeout"))

	h.steps(20)
	require.False(t, h.board.Relay.On())
	require.Positive(t, h.d.Status().HardwareFaults)
}

func TestGranted_PowerFaultFailsClosed(t *testing.T) {
	h := newHarness(t, nil, user("u1", "Ada", t0.Add(time.Hour)))
	h.board.Relay.Fail(errors.New("relay stuck"))
	h.present("u1")

	h.step()
	require.Equal(t, "idle", h.d.Status().Mode)
	require.False(t, h.d.Status().Powered)
	require.Equal(t, "Power fault", h.row(2))
}

// ── Enrollment ──────────────────────────────────────────────────────

// enroll opens add-user mode with admin a1 and leaves the reader empty.
func enroll(t *testing.T, fields []capture.Field, recs ...types.UserRecord) *harness {
	t.Helper()
	h := newHarness(t, fields, append([]types.UserRecord{admin("a1", "Root")}, recs...)...)
	h.present("a1")
	h.done(true)

	delay := h.step()
	require.Equal(t, 3*time.Second, delay)
	require.Equal(t, "Adding Users!", h.row(2))
	require.Equal(t, types.ColorPurple, h.board.LED.Color())
	require.Equal(t, "enrolling", h.d.Status().Mode)
	require.False(t, h.board.Relay.On())

	h.done(false)
	h.remove()
	return h
}

func TestEnrollment_TimeoutWritesNothing(t *testing.T) {
	h := enroll(t, nil)
	before, _ := h.dir.List(h.ctx)

	h.steps(29)
	st := h.d.Status()
	require.Equal(t, "enrolling", st.Mode)
	require.Equal(t, 1, st.TicksRemaining)
	require.Equal(t, "or wait 1 seconds", h.row(2))

	h.step()
	require.Equal(t, "idle", h.d.Status().Mode)

	after, _ := h.dir.List(h.ctx)
	require.Equal(t, before, after)
	evs, _ := h.dir.Events(h.ctx, types.UserLog, 0)
	require.Empty(t, evs)
}

func TestEnrollment_FreshDonePressExits(t *testing.T) {
	h := enroll(t, nil)
	h.step()

	h.done(true)
	h.step()
	require.Equal(t, "idle", h.d.Status().Mode)
	require.Equal(t, "Exiting add mode", h.row(2))
}

func TestEnrollment_AdminCardRefused(t *testing.T) {
	h := enroll(t, nil, admin("a2", "Other"))
	h.present("a2")

	h.step()
	require.Equal(t, "Admin card cannot", h.row(1))
	require.Equal(t, "waiting_for_card", h.d.Status().EnrollmentState)

	rec := h.lookup("a2")
	require.True(t, rec.IsAdmin)
	require.Equal(t, "Other", rec.FullName)

	h.step()
	require.Equal(t, "Scan new card", h.row(1), "refused card is skipped while it stays")
}

func TestEnrollment_UnconfirmedUpdateLeavesRecord(t *testing.T) {
	orig := user("u1", "Ada Lovelace-Byron", t0.Add(time.Hour))
	h := enroll(t, nil, orig)
	h.steps(4)

	h.present("u1")
	h.step()
	st := h.d.Status()
	require.Equal(t, "confirm_update", st.EnrollmentState)
	require.Equal(t, "Update entry for", h.row(1))
	require.Equal(t, "Ada Lovelace-By?", h.row(2))

	for i := 0; i < 40 && h.d.Status().EnrollmentState == "confirm_update"; i++ {
		h.step()
	}
	st = h.d.Status()
	require.Equal(t, "waiting_for_card", st.EnrollmentState)
	require.Equal(t, 30, st.TicksRemaining, "full timeout restored")
	require.Equal(t, "Entry will not", h.row(2))
	require.Equal(t, orig, h.lookup("u1"))
}

func TestEnrollment_NewCardCaptureAndCommit(t *testing.T) {
	h := enroll(t, capture.DefaultFields(9))

	h.present("n1")
	h.step()
	require.Equal(t, "capturing", h.d.Status().EnrollmentState)
	require.Equal(t, "Enter your name:", h.row(1))

	h.typeText("Ada", true)
	h.step()
	require.Equal(t, "Enter 9 digit ID:", h.row(1))

	h.typeText("12345678", true)
	h.step()
	require.Equal(t, "capturing", h.d.Status().EnrollmentState)
	require.Equal(t, "Need 9 digits", h.row(4))
	_, err := h.dir.Lookup(h.ctx, "n1")
	require.Error(t, err, "short id must not be stored")

	h.typeText("9", true)
	commitAt := h.clk.Now()
	delay := h.step()
	require.Equal(t, 3*time.Second, delay)
	require.Equal(t, "Added user", h.row(1))
	require.Equal(t, "Ada", h.row(2))
	require.Equal(t, "123456789", h.row(4))
	require.Equal(t, "waiting_for_card", h.d.Status().EnrollmentState)
	require.Equal(t, 30, h.d.Status().TicksRemaining)

	rec := h.lookup("n1")
	require.False(t, rec.IsAdmin)
	require.Equal(t, "123456789", rec.SecondaryID)
	require.True(t, rec.Expiration.Equal(commitAt.Add(validity)))
	require.Equal(t, 1, h.dir.CountEvents(types.EventAdd))

	res := h.access.Evaluate(h.ctx, types.Card{ID: "n1"}, "")
	require.Equal(t, types.Authorized, res.Decision)
	h.clk.Advance(validity + time.Second)
	res = h.access.Evaluate(h.ctx, types.Card{ID: "n1"}, "")
	require.Equal(t, types.Unauthorized, res.Decision)
}

func TestEnrollment_ConfirmedUpdate(t *testing.T) {
	h := enroll(t, nil, user("u1", "Old Name", t0.Add(time.Hour)))

	h.present("u1")
	h.step()
	require.Equal(t, "confirm_update", h.d.Status().EnrollmentState)

	h.done(true)
	h.step()
	require.Equal(t, "Entry will", h.row(2))
	require.Equal(t, "capturing", h.d.Status().EnrollmentState)
	h.done(false)

	h.typeText("New Name", true)
	h.step()
	require.Equal(t, "Updated user", h.row(1))

	rec := h.lookup("u1")
	require.Equal(t, "New Name", rec.FullName)
	require.Equal(t, 1, h.dir.CountEvents(types.EventUpdate))
}

func TestEnrollment_HeldDoneDoesNotConfirmUpdate(t *testing.T) {
	h := newHarness(t, nil, admin("a1", "Root"), user("u1", "Old Name", t0.Add(time.Hour)))
	h.present("a1")
	h.done(true)
	h.step()
	require.Equal(t, "enrolling", h.d.Status().Mode)

	// done stays held from the press that opened enrollment
	h.present("u1")
	h.step()
	require.Equal(t, "confirm_update", h.d.Status().EnrollmentState)
	h.steps(2)
	require.Equal(t, "confirm_update", h.d.Status().EnrollmentState)

	h.done(false)
	h.step()
	h.done(true)
	h.step()
	require.Equal(t, "capturing", h.d.Status().EnrollmentState)
	require.Equal(t, "Entry will", h.row(2))
}

func TestEnrollment_FreshDoneAbandonsCapture(t *testing.T) {
	h := enroll(t, nil)
	h.present("n1")
	h.step()
	h.typeText("Half", false)
	h.step()

	h.done(true)
	h.step()
	require.Equal(t, "waiting_for_card", h.d.Status().EnrollmentState)
	require.Equal(t, "Entry cancelled", h.row(2))

	_, err := h.dir.Lookup(h.ctx, "n1")
	require.Error(t, err)
	require.False(t, h.board.Relay.On())
}

func TestEnrollment_KeysIgnoredOutsideCapture(t *testing.T) {
	h := enroll(t, nil)
	h.typeText("junk", true)
	h.step()

	h.present("n1")
	h.step()
	h.typeText("Bo", true)
	h.step()

	require.Equal(t, "Bo", h.lookup("n1").FullName)
}

// ── Lifecycle ───────────────────────────────────────────────────────

func TestShutdown_PowersDownAndLogs(t *testing.T) {
	h := grant(t, user("u1", "Ada", t0.Add(time.Hour)))

	require.NoError(t, h.d.Shutdown(h.ctx))
	require.False(t, h.board.Relay.On())
	require.Equal(t, types.ColorOff, h.board.LED.Color())
	require.Equal(t, types.Frame{}, h.board.Display.Frame())

	evs, _ := h.dir.Events(h.ctx, types.LaserLog, 1)
	require.Equal(t, types.EventLock, evs[0].Kind)
	require.Equal(t, "shutdown", evs[0].Detail)
}

func TestShutdown_ReportsRelayFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.board.Relay.Fail(errors.New("relay stuck"))

	err := h.d.Shutdown(h.ctx)
	require.ErrorIs(t, err, controller.ErrHardwareUnavailable)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errc := make(chan error, 1)
	go func() { errc <- h.d.Run(ctx) }()

	require.Eventually(t, func() bool { return h.d.Status().Ticks >= 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestNew_RequiresHardware(t *testing.T) {
	_, err := controller.New(controller.Dependencies{})
	require.ErrorIs(t, err, controller.ErrHardwareUnavailable)
}
