package types

import "time"

// Status is a point-in-time snapshot of the controller, published after
// every tick for the HTTP and gRPC surfaces.
type Status struct {
	Mode    string `json:"mode"` // idle | granted | enrolling
	Powered bool   `json:"powered"`

	HolderCardID string `json:"holder_card_id,omitempty"`
	HolderName   string `json:"holder_name,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	MissingTicks int    `json:"missing_ticks,omitempty"`
	GraceTicks   int    `json:"grace_ticks,omitempty"`

	EnrollmentState string `json:"enrollment_state,omitempty"`
	TicksRemaining  int    `json:"ticks_remaining,omitempty"`

	Frame Frame `json:"frame"`
	Color Color `json:"color"`

	Ticks          uint64    `json:"ticks"`
	HardwareFaults int       `json:"hardware_faults"` // consecutive ticks with a hardware error
	UpdatedAt      time.Time `json:"updated_at"`
}
