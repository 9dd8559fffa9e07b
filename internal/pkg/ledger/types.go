package ledger

import "errors"

// PaymentEvent is the canonical, authenticated form of an inbound payment
// notification. Only the paystack verifier constructs these; nothing else in
// the pipeline builds one from unvalidated input.
type PaymentEvent struct {
	Reference string
	Email     string
	Plan      string
	// Amount in major currency units, already converted from the gateway's
	// minor-unit representation.
	Amount   int64
	Verified bool
}

// Action is the outcome of applying a payment event to the ledger.
type Action string

const (
	ActionActivated Action = "activated"
	ActionRenewed   Action = "renewed"
	ActionIgnored   Action = "ignored"
)

var (
	// ErrNotFound is returned when no record or pending link matches a lookup.
	ErrNotFound = errors.New("ledger: not found")
	// ErrUnverifiedEvent rejects events that bypassed the verifier.
	ErrUnverifiedEvent = errors.New("ledger: payment event is not verified")
	// ErrInvalidEvent rejects events missing their identity fields.
	ErrInvalidEvent = errors.New("ledger: payment event is missing reference or email")
)
