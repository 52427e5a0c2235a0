package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrandonDHaskell/lasergate/internal/lasergate/capture"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/types"
)

// EnrollmentState is the step an enrollment is on.
type EnrollmentState int

const (
	WaitingForCard EnrollmentState = iota
	ConfirmUpdate
	Capturing
	Committing
)

func (s EnrollmentState) String() string {
	switch s {
	case ConfirmUpdate:
		return "confirm_update"
	case Capturing:
		return "capturing"
	case Committing:
		return "committing"
	default:
		return "waiting_for_card"
	}
}

// EnrollmentSession is one admin-opened add-users window.
type EnrollmentSession struct {
	ID          string
	AdminCardID string
	State       EnrollmentState

	PendingCard     types.Card
	PendingExisting *types.UserRecord

	UpdateConfirmationDeadline time.Time
	CaptureDeadline            time.Time
	TicksRemaining             int

	Capture *capture.Session
	notice  string

	// armed is set once done has been seen released inside the
	// confirmation window; only then does done confirm.
	armed bool

	// ignore is a card already handled this window. It is skipped until it
	// leaves the reader.
	ignore string
}

func (d *Dispatcher) waitTicks() int {
	return ticks(d.timing.AddUserTimeout, d.timing.EnrollPoll)
}

func (d *Dispatcher) beginEnrollment(in tick, admin *types.UserRecord) output {
	d.enroll = &EnrollmentSession{
		ID:             newID(),
		AdminCardID:    in.card.ID,
		State:          WaitingForCard,
		TicksRemaining: d.waitTicks(),
		ignore:         in.card.ID,
	}
	d.mode = ModeEnrolling
	d.logger.Info("enrollment started", "admin", in.card.ID, "name", admin.FullName, "session", d.enroll.ID)

	return output{frame: types.Frame{}.Row(2, "Adding Users!"), color: types.ColorPurple, delay: d.timing.BannerHold}
}

func (d *Dispatcher) endEnrollment(reason string) {
	e := d.enroll
	d.logger.Info("enrollment ended", "admin", e.AdminCardID, "reason", reason, "session", e.ID)
	d.latched = e.AdminCardID
	d.enroll = nil
	d.mode = ModeIdle
}

// waitAgain returns to WaitingForCard with the full timeout, skipping card
// until it is removed.
func (e *EnrollmentSession) waitAgain(fullTicks int, card string) {
	e.State = WaitingForCard
	e.TicksRemaining = fullTicks
	e.PendingCard = types.Card{}
	e.PendingExisting = nil
	e.Capture = nil
	e.notice = ""
	e.ignore = card
}

func (d *Dispatcher) stepEnrolling(ctx context.Context, in tick) output {
	e := d.enroll
	if e.ignore != "" && in.scanErr == nil && (!in.present || in.card.ID != e.ignore) {
		e.ignore = ""
	}

	switch e.State {
	case ConfirmUpdate:
		return d.stepConfirm(in)
	case Capturing:
		return d.stepCapture(ctx, in)
	default:
		return d.stepWaiting(ctx, in)
	}
}

func (d *Dispatcher) stepWaiting(ctx context.Context, in tick) output {
	e := d.enroll
	purple := types.ColorPurple

	if in.fresh {
		d.endEnrollment("done")
		return output{frame: types.Frame{}.Row(2, "Exiting add mode"), color: types.ColorBlue, delay: d.timing.MessageHold}
	}

	if !in.present || in.card.ID == e.ignore {
		e.TicksRemaining--
		if e.TicksRemaining <= 0 {
			d.endEnrollment("timeout")
			return output{frame: types.Frame{}, color: types.ColorBlue, delay: d.timing.IdlePoll}
		}
		return output{frame: frameWaiting(e.TicksRemaining), color: purple, delay: d.timing.EnrollPoll}
	}

	rec, err := d.deps.Access.Lookup(ctx, in.card.ID)
	if err != nil {
		d.logger.Error("enrollment lookup failed", "card", in.card.ID, "err", err)
		e.ignore = in.card.ID
		return output{frame: frameError("Directory error"), color: types.ColorRed, delay: d.timing.MessageHold}
	}

	switch {
	case rec != nil && rec.IsAdmin:
		d.logger.Warn("admin card refused for enrollment", "card", in.card.ID, "session", e.ID)
		e.ignore = in.card.ID
		return output{
			frame: types.Frame{}.Row(1, "Admin card cannot").Row(2, "be updated"),
			color: types.ColorRed,
			delay: d.timing.MessageHold,
		}

	case rec != nil:
		e.State = ConfirmUpdate
		e.PendingCard = in.card
		e.PendingExisting = rec
		e.UpdateConfirmationDeadline = in.now.Add(d.timing.ConfirmWindow)
		e.armed = !in.done
		return output{frame: frameConfirm(rec.FullName), color: purple, delay: d.timing.ConfirmPoll}

	default:
		d.startCapture(in, in.card)
		return d.captureFrame(in.now)
	}
}

func (d *Dispatcher) stepConfirm(in tick) output {
	e := d.enroll

	if !in.done {
		e.armed = true
	}
	if in.done && e.armed {
		d.logger.Warn("updating existing entry",
			"card", e.PendingCard.ID, "name", e.PendingExisting.FullName, "session", e.ID)
		d.startCapture(in, e.PendingCard)
		return output{
			frame: types.Frame{}.Row(2, "Entry will").Row(3, "be updated"),
			color: types.ColorPurple,
			delay: d.timing.MessageHold,
		}
	}

	if in.now.After(e.UpdateConfirmationDeadline) {
		e.waitAgain(d.waitTicks(), e.PendingCard.ID)
		return output{
			frame: types.Frame{}.Row(2, "Entry will not").Row(3, "be updated"),
			color: types.ColorPurple,
			delay: d.timing.MessageHold,
		}
	}

	return output{frame: frameConfirm(e.PendingExisting.FullName), color: types.ColorPurple, delay: d.timing.ConfirmPoll}
}

func (d *Dispatcher) startCapture(in tick, card types.Card) {
	e := d.enroll
	e.State = Capturing
	e.PendingCard = card
	e.Capture = capture.NewSession(d.deps.Fields)
	e.CaptureDeadline = in.now.Add(d.timing.CaptureTimeout)
	e.notice = ""
}

func (d *Dispatcher) stepCapture(ctx context.Context, in tick) output {
	e := d.enroll

	if in.fresh {
		d.logger.Info("enrollment entry abandoned", "card", e.PendingCard.ID, "session", e.ID)
		e.waitAgain(d.waitTicks(), e.PendingCard.ID)
		return output{frame: types.Frame{}.Row(2, "Entry cancelled"), color: types.ColorPurple, delay: d.timing.MessageHold}
	}

	if len(in.keys) > 0 {
		e.CaptureDeadline = in.now.Add(d.timing.CaptureTimeout)
		e.notice = ""
	}
	for _, ev := range in.keys {
		if err := e.Capture.Handle(ev); err != nil {
			if errors.Is(err, capture.ErrValidation) {
				e.notice = validationNotice(e.Capture.Active())
				continue
			}
			d.logger.Warn("capture failed", "err", err)
		}
		if e.Capture.Submitted() {
			return d.commit(ctx, in)
		}
	}

	if !in.now.Before(e.CaptureDeadline) {
		d.endEnrollment("capture_timeout")
		return output{frame: types.Frame{}.Row(2, "Exiting add mode"), color: types.ColorBlue, delay: d.timing.MessageHold}
	}

	return d.captureFrame(in.now)
}

func (d *Dispatcher) captureFrame(now time.Time) output {
	e := d.enroll
	left := int(e.CaptureDeadline.Sub(now) / time.Second)
	e.TicksRemaining = max(left, 0)
	return output{
		frame: frameCapture(e.Capture.Active().Prompt, e.Capture.Buffer(), e.notice),
		color: types.ColorPurple,
		delay: d.timing.CapturePoll,
	}
}

func validationNotice(f capture.Field) string {
	switch {
	case f.ExactLen > 0 && f.Numeric:
		return fmt.Sprintf("Need %d digits", f.ExactLen)
	case f.ExactLen > 0:
		return fmt.Sprintf("Need %d characters", f.ExactLen)
	default:
		return "Cannot be empty"
	}
}

func (d *Dispatcher) commit(ctx context.Context, in tick) output {
	e := d.enroll
	e.State = Committing
	card := e.PendingCard

	name := e.Capture.Value(capture.FieldName)
	secondary := e.Capture.Value(capture.FieldSecondaryID)
	if secondary == "" {
		secondary = card.SecondaryID
	}

	updated, err := d.deps.Users.Enroll(ctx, card.ID, secondary, name, e.ID)
	e.waitAgain(d.waitTicks(), card.ID)

	switch {
	case errors.Is(err, store.ErrProtectedRecord):
		d.logger.Warn("enrollment refused, card is an admin", "card", card.ID, "session", e.ID)
		return output{
			frame: types.Frame{}.Row(1, "Admin card cannot").Row(2, "be updated"),
			color: types.ColorRed,
			delay: d.timing.MessageHold,
		}
	case err != nil:
		d.logger.Error("enrollment write failed", "card", card.ID, "session", e.ID, "err", err)
		return output{frame: frameError("Save failed"), color: types.ColorRed, delay: d.timing.MessageHold}
	}

	return output{frame: frameEnrolled(updated, name, secondary), color: types.ColorGreen, delay: d.timing.ResultHold}
}
