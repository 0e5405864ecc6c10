package model

import "time"

// PaymentProof is the verified content of a signed payment token. Only the
// payment authority issues these; the booking core verifies them.
type PaymentProof struct {
	TransactionID string
	HolderID      string
	EventID       string // empty when the token is not bound to an event
	IssuedAt      time.Time
	ExpiresAt     time.Time
}
