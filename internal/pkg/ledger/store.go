package ledger

import "github.com/stakeaware/accessgate/app/models"

// Store is the durable mapping from subscriber email to SubscriptionRecord,
// plus the two companion sets the grant engine needs: applied payment
// references (idempotency) and pending link handshakes.
//
// Store implementations only need to be internally consistent per call; the
// Service serializes all read-modify-write sequences on top.
type Store interface {
	// Get returns the record for email or ErrNotFound.
	Get(email string) (*models.SubscriptionRecord, error)
	// Put creates or replaces the record for rec.Email.
	Put(rec *models.SubscriptionRecord) error
	// Snapshot returns all records.
	Snapshot() ([]models.SubscriptionRecord, error)
	// FindByChatID returns the record linked to chatID or ErrNotFound.
	FindByChatID(chatID int64) (*models.SubscriptionRecord, error)

	// ApplyGrant persists one grant atomically: the record, the applied
	// reference, and the pending-link handshake (superseding any older
	// handshakes for the same email). Either everything lands or nothing
	// does, so a failed grant leaves the reference unapplied and a gateway
	// redelivery can start over cleanly.
	ApplyGrant(rec *models.SubscriptionRecord, reference string) error

	// HasReference reports whether a payment reference was already applied.
	HasReference(reference string) (bool, error)

	// ConsumePendingLink removes the handshake row and returns its email,
	// or ErrNotFound.
	ConsumePendingLink(reference string) (string, error)
}
