package types

import "time"

// Card is one read from the card reader.
type Card struct {
	ID          string `json:"card_id"`
	SecondaryID string `json:"secondary_id,omitempty"`
}

// UserRecord is the identity and entitlement of one cardholder.
type UserRecord struct {
	CardID      string    `json:"card_id"`
	SecondaryID string    `json:"secondary_id,omitempty"`
	FullName    string    `json:"full_name"`
	IsAdmin     bool      `json:"is_admin"`
	Expiration  time.Time `json:"expiration"`
}

// Expired reports whether now is past the record's expiration. Admin
// status is not considered.
func (r UserRecord) Expired(now time.Time) bool {
	return now.After(r.Expiration)
}

// Decision is the outcome of authorizing a scanned card. The zero value
// denies.
type Decision int

const (
	Unrecognized Decision = iota // no record for the card
	Unauthorized                 // record exists, not admin, expired
	Authorized
)

func (d Decision) String() string {
	switch d {
	case Authorized:
		return "authorized"
	case Unauthorized:
		return "unauthorized"
	default:
		return "unrecognized"
	}
}
