package controller

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/service"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// Session is one powered use of the cutter.
type Session struct {
	ID                      string
	HolderCardID            string
	HolderName              string
	ConsecutiveMissingTicks int
	GraceTicksAllowed       int

	// lastIntruder is the foreign card currently on the reader and
	// intruderRes its decision. The card is evaluated and DENIED once
	// while it stays.
	lastIntruder string
	intruderRes  service.AccessResult
}

func newID() string {
	return uuid.NewString()
}

func (d *Dispatcher) beginSession(ctx context.Context, in tick, res service.AccessResult, sessionID string) output {
	if err := d.setPower(true); err != nil {
		// Fail closed: no session without a confirmed relay.
		d.deps.Access.RecordLock(ctx, in.card.ID, sessionID, "power_fault")
		_ = d.setPower(false)
		d.latched = in.card.ID
		return output{frame: frameError("Power fault"), color: types.ColorRed, delay: d.timing.DenyHold}
	}

	d.session = &Session{
		ID:                sessionID,
		HolderCardID:      in.card.ID,
		HolderName:        res.Record.FullName,
		GraceTicksAllowed: ticks(d.timing.GracePeriod, d.timing.OnPoll),
	}
	d.mode = ModeGranted
	d.logger.Info("session started",
		"card", in.card.ID, "name", res.Record.FullName, "session", sessionID,
		"grace_ticks", d.session.GraceTicksAllowed)

	return output{frame: frameAuthorized(res.Record.FullName), color: types.ColorGreen, delay: d.timing.OnPoll}
}

func (d *Dispatcher) stepGranted(ctx context.Context, in tick) output {
	s := d.session

	if in.done {
		name := s.HolderName
		d.endSession(ctx, "done")
		d.latched = in.card.ID
		return output{
			frame: types.Frame{}.Row(2, name+" DONE").Row(3, textRemove),
			color: types.ColorBlue,
			delay: d.timing.DoneHold,
		}
	}

	var out output
	switch {
	case in.present && in.card.ID == s.HolderCardID:
		s.ConsecutiveMissingTicks = 0
		s.lastIntruder = ""
		return output{frame: frameAuthorized(s.HolderName), color: types.ColorGreen, delay: d.timing.OnPoll}

	case in.present && in.card.ID == s.lastIntruder:
		s.ConsecutiveMissingTicks++
		out = intruderFrame(s.intruderRes)

	case in.present:
		res := d.deps.Access.Evaluate(ctx, in.card, s.ID)
		if res.Decision == types.Authorized {
			d.logger.Info("session holder changed",
				"from", s.HolderCardID, "to", in.card.ID, "session", s.ID)
			s.HolderCardID = in.card.ID
			s.HolderName = res.Record.FullName
			s.ConsecutiveMissingTicks = 0
			s.lastIntruder = ""
			return output{frame: frameAuthorized(s.HolderName), color: types.ColorGreen, delay: d.timing.OnPoll}
		}

		d.deps.Access.RecordDenied(ctx, in.card, res, s.ID)
		s.lastIntruder, s.intruderRes = in.card.ID, res
		s.ConsecutiveMissingTicks++
		out = intruderFrame(res)

	default:
		// Absent card and a failed read both count as missing so a dead
		// reader still de-powers.
		if in.scanErr == nil {
			s.lastIntruder = ""
		}
		s.ConsecutiveMissingTicks++
		left := s.GraceTicksAllowed - s.ConsecutiveMissingTicks
		secs := int((time.Duration(left) * d.timing.OnPoll).Round(time.Second) / time.Second)
		out = output{frame: frameMissing(secs), color: types.ColorDimRed}
	}

	if s.ConsecutiveMissingTicks >= s.GraceTicksAllowed {
		d.endSession(ctx, "timeout")
		if in.present {
			d.latched = in.card.ID
		}
		return output{frame: types.Frame{}.Row(2, "Time's up!"), color: types.ColorRed, delay: d.timing.TimeoutHold}
	}

	out.delay = d.timing.OnPoll
	return out
}

// endSession powers off and records the LOCK row. A failed power-off is
// retried from Idle.
func (d *Dispatcher) endSession(ctx context.Context, reason string) {
	s := d.session
	_ = d.setPower(false)
	d.deps.Access.RecordLock(ctx, s.HolderCardID, s.ID, reason)
	d.logger.Info("session ended", "card", s.HolderCardID, "reason", reason, "session", s.ID)
	d.session = nil
	d.mode = ModeIdle
}

func intruderFrame(res service.AccessResult) output {
	if res.Decision == types.Unauthorized {
		return output{frame: frameNotAuthorized(res.Record.FullName), color: types.ColorRed}
	}
	return output{frame: frameNotRecognized(), color: types.ColorRed}
}
