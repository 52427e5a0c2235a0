package types

import "time"

// EventLog names one of the two append-only audit sets.
type EventLog string

const (
	UserLog  EventLog = "users_log"
	LaserLog EventLog = "laser_log"
)

// EventKind is the action column of an audit row.
type EventKind string

const (
	EventAdd           EventKind = "ADD"
	EventUpdate        EventKind = "UPDATE"
	EventDelete        EventKind = "DELETE"
	EventRemoveExpired EventKind = "REMOVE EXPIRED"
	EventDuplicate     EventKind = "DUPLICATE"
	EventUnlock        EventKind = "UNLOCK"
	EventDenied        EventKind = "DENIED"
	EventLock          EventKind = "LOCK"
)

// Log returns the audit set the kind belongs to.
func (k EventKind) Log() EventLog {
	switch k {
	case EventUnlock, EventDenied, EventLock:
		return LaserLog
	default:
		return UserLog
	}
}

// Event is one audit row.
type Event struct {
	At          time.Time `json:"at"`
	Kind        EventKind `json:"kind"`
	CardID      string    `json:"card_id,omitempty"`
	SecondaryID string    `json:"secondary_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}
