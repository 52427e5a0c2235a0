// Package controller runs the access-control loop: one reader poll, one
// decision, one state-machine step and one rendered frame per tick.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/clock"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/capture"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Mode is the top-level controller state.
type Mode int

const (
	ModeIdle Mode = iota
	ModeGranted
	ModeEnrolling
)

func (m Mode) String() string {
	switch m {
	case ModeGranted:
		return "granted"
	case ModeEnrolling:
		return "enrolling"
	default:
		return "idle"
	}
}

// maxKeysPerTick bounds how much of the key channel one tick drains.
const maxKeysPerTick = 256

type Dependencies struct {
	Logger *slog.Logger
	Clock  clock.Clock

	Reader    CardReader
	Display   Display
	Indicator Indicator
	Power     Power
	Done      DoneControl

	// Keys carries translated key events. May be nil when no keyboard is
	// attached; enrollment then cannot complete.
	Keys <-chan types.KeyEvent

	Access *service.AccessService
	Users  *service.UserService

	Timing Timing
	Fields []capture.Field
}

// Dispatcher owns all controller state. Step must only be called from one
// goroutine; Status may be called from any.
type Dispatcher struct {
	deps   Dependencies
	logger *slog.Logger
	clock  clock.Clock
	timing Timing

	mode    Mode
	session *Session
	enroll  *EnrollmentSession
	powered bool

	lastDone bool
	// latched is a card that already got a decision and must leave the
	// reader before it is evaluated again.
	latched string

	ticks  uint64
	faults int

	mu     sync.RWMutex
	status types.Status
}

// tick is everything one poll observed.
type tick struct {
	now     time.Time
	card    types.Card
	present bool
	scanErr error
	done    bool
	fresh   bool // done went from released to pressed this tick
	keys    []types.KeyEvent
}

// output is what one tick renders and how long until the next.
type output struct {
	frame types.Frame
	color types.Color
	delay time.Duration
}

func New(deps Dependencies) (*Dispatcher, error) {
	var missing []string
	if deps.Reader == nil {
		missing = append(missing, "reader")
	}
	if deps.Display == nil {
		missing = append(missing, "display")
	}
	if deps.Indicator == nil {
		missing = append(missing, "indicator")
	}
	if deps.Power == nil {
		missing = append(missing, "power")
	}
	if deps.Done == nil {
		missing = append(missing, "done control")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %v", ErrHardwareUnavailable, missing)
	}
	if deps.Access == nil || deps.Users == nil {
		return nil, errors.New("controller: access and user services are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timing == (Timing{}) {
		deps.Timing = DefaultTiming()
	}
	if len(deps.Fields) == 0 {
		deps.Fields = capture.DefaultFields(0)
	}

	return &Dispatcher{
		deps:   deps,
		logger: deps.Logger,
		clock:  deps.Clock,
		timing: deps.Timing,
	}, nil
}

// Run steps the controller until ctx is done. It does not power down;
// call Shutdown after Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("controller running")
	for {
		delay := d.Step(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-d.clock.After(delay):
		}
	}
}

// Step performs one tick and returns the delay before the next.
func (d *Dispatcher) Step(ctx context.Context) time.Duration {
	in := d.observe(ctx)

	var out output
	switch d.mode {
	case ModeGranted:
		out = d.stepGranted(ctx, in)
	case ModeEnrolling:
		out = d.stepEnrolling(ctx, in)
	default:
		out = d.stepIdle(ctx, in)
	}

	hwErr := in.scanErr
	if err := d.deps.Display.Render(out.frame); err != nil {
		d.logger.Warn("display render failed", "err", err)
		hwErr = errors.Join(hwErr, err)
	}
	if err := d.deps.Indicator.SetColor(out.color); err != nil {
		d.logger.Warn("indicator failed", "err", err)
		hwErr = errors.Join(hwErr, err)
	}
	if hwErr != nil {
		d.faults++
	} else {
		d.faults = 0
	}

	d.ticks++
	d.publish(in.now, out)
	return out.delay
}

func (d *Dispatcher) observe(ctx context.Context) tick {
	in := tick{now: d.clock.Now(), keys: d.drainKeys()}

	done, err := d.deps.Done.Asserted()
	if err != nil {
		d.logger.Warn("done control failed", "err", err)
		done = false
	}
	in.done = done
	in.fresh = done && !d.lastDone
	d.lastDone = done

	card, present, err := d.deps.Reader.Scan(ctx)
	if err != nil {
		in.scanErr = fmt.Errorf("%w: scan: %w", ErrHardwareUnavailable, err)
		d.logger.Warn("card reader failed", "err", err)
	} else {
		in.card, in.present = card, present
	}

	// A failed read says nothing about the card, so the latch survives it.
	if in.scanErr == nil && (!in.present || in.card.ID != d.latched) {
		d.latched = ""
	}
	return in
}

func (d *Dispatcher) drainKeys() []types.KeyEvent {
	if d.deps.Keys == nil {
		return nil
	}
	var out []types.KeyEvent
	for len(out) < maxKeysPerTick {
		select {
		case ev, ok := <-d.deps.Keys:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// ── Idle ────────────────────────────────────────────────────────────

func (d *Dispatcher) stepIdle(ctx context.Context, in tick) output {
	if d.powered {
		// A previous power-off failed; keep trying before anything else.
		_ = d.setPower(false)
	}

	if !in.present {
		return output{frame: frameIdle(), color: types.ColorBlue, delay: d.timing.IdlePoll}
	}
	if in.card.ID == d.latched {
		return output{frame: frameRemove(), color: types.ColorBlue, delay: d.timing.IdlePoll}
	}

	if in.done {
		rec, err := d.deps.Access.Lookup(ctx, in.card.ID)
		if err != nil {
			d.logger.Error("lookup failed", "card", in.card.ID, "err", err)
			return output{frame: frameError("Directory error"), color: types.ColorRed, delay: d.timing.DenyHold}
		}
		if rec != nil && rec.IsAdmin {
			return d.beginEnrollment(in, rec)
		}
		return output{frame: frameIdentify(rec, in.card), color: types.ColorBlue, delay: d.timing.IdentifyHold}
	}

	sessionID := newID()
	res := d.deps.Access.Evaluate(ctx, in.card, sessionID)
	if res.Decision == types.Authorized {
		return d.beginSession(ctx, in, res, sessionID)
	}

	d.deps.Access.RecordDenied(ctx, in.card, res, sessionID)
	d.latched = in.card.ID
	if res.Decision == types.Unauthorized {
		return output{frame: frameNotAuthorized(res.Record.FullName), color: types.ColorRed, delay: d.timing.DenyHold}
	}
	return output{frame: frameNotRecognized(), color: types.ColorRed, delay: d.timing.DenyHold}
}

// ── Shutdown / status ───────────────────────────────────────────────

// Shutdown de-energises the cutter and blanks the feedback devices. It
// should run after Run has returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	var errs []error
	if err := d.deps.Power.SetPower(false); err != nil {
		errs = append(errs, fmt.Errorf("%w: power off: %w", ErrHardwareUnavailable, err))
	} else {
		d.powered = false
	}
	if err := d.deps.Indicator.SetColor(types.ColorOff); err != nil {
		errs = append(errs, fmt.Errorf("%w: indicator off: %w", ErrHardwareUnavailable, err))
	}
	if err := d.deps.Display.Clear(); err != nil {
		errs = append(errs, fmt.Errorf("%w: display clear: %w", ErrHardwareUnavailable, err))
	}

	if d.session != nil {
		d.deps.Access.RecordLock(ctx, d.session.HolderCardID, d.session.ID, "shutdown")
		d.session = nil
	}
	d.enroll = nil
	d.mode = ModeIdle
	d.publish(d.clock.Now(), output{})

	d.logger.Info("controller stopped")
	return errors.Join(errs...)
}

// Status returns the snapshot published by the last tick.
func (d *Dispatcher) Status() types.Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

func (d *Dispatcher) publish(now time.Time, out output) {
	st := types.Status{
		Mode:           d.mode.String(),
		Powered:        d.powered,
		Frame:          out.frame,
		Color:          out.color,
		Ticks:          d.ticks,
		HardwareFaults: d.faults,
		UpdatedAt:      now,
	}
	if s := d.session; s != nil {
		st.HolderCardID = s.HolderCardID
		st.HolderName = s.HolderName
		st.SessionID = s.ID
		st.MissingTicks = s.ConsecutiveMissingTicks
		st.GraceTicks = s.GraceTicksAllowed
	}
	if e := d.enroll; e != nil {
		st.SessionID = e.ID
		st.EnrollmentState = e.State.String()
		st.TicksRemaining = e.TicksRemaining
	}

	d.mu.Lock()
	d.status = st
	d.mu.Unlock()
}

// setPower drives the relay and tracks its state. On failure the tracked
// state is left unchanged.
func (d *Dispatcher) setPower(on bool) error {
	if err := d.deps.Power.SetPower(on); err != nil {
		d.logger.Error("power switch failed", "on", on, "err", err)
		return fmt.Errorf("%w: power: %w", ErrHardwareUnavailable, err)
	}
	d.powered = on
	return nil
}
