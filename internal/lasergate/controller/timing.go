package controller

import "time"

// Timing holds loop cadences, countdowns and how long result screens stay
// up. A hold is the delay before the next tick.
type Timing struct {
	IdlePoll    time.Duration
	OnPoll      time.Duration
	EnrollPoll  time.Duration
	ConfirmPoll time.Duration
	CapturePoll time.Duration

	GracePeriod    time.Duration
	AddUserTimeout time.Duration
	ConfirmWindow  time.Duration
	CaptureTimeout time.Duration
	Validity       time.Duration

	DenyHold     time.Duration
	DoneHold     time.Duration
	TimeoutHold  time.Duration
	IdentifyHold time.Duration
	BannerHold   time.Duration
	MessageHold  time.Duration
	ResultHold   time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		IdlePoll:    500 * time.Millisecond,
		OnPoll:      time.Second,
		EnrollPoll:  time.Second,
		ConfirmPoll: 250 * time.Millisecond,
		CapturePoll: 100 * time.Millisecond,

		GracePeriod:    20 * time.Second,
		AddUserTimeout: 30 * time.Second,
		ConfirmWindow:  7 * time.Second,
		CaptureTimeout: 2 * time.Minute,
		Validity:       180 * 24 * time.Hour,

		DenyHold:     3 * time.Second,
		DoneHold:     5 * time.Second,
		TimeoutHold:  2 * time.Second,
		IdentifyHold: 2 * time.Second,
		BannerHold:   3 * time.Second,
		MessageHold:  2 * time.Second,
		ResultHold:   3 * time.Second,
	}
}

// ticks returns how many polls of every fit in total, rounding up. At
// least one.
func ticks(total, every time.Duration) int {
	if every <= 0 || total <= 0 {
		return 1
	}
	n := int((total + every - 1) / every)
	if n < 1 {
		n = 1
	}
	return n
}
