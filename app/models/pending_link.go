package models

import "time"

// PendingLink is the short-lived handshake row binding a payment reference to
// the email it was issued for. Inserted at grant time, deleted once the link
// endpoint consumes it. A newer payment for the same email supersedes any
// older pending links, so only the latest reference can complete the handshake.
type PendingLink struct {
	Reference string    `gorm:"primaryKey;type:varchar(191)" json:"reference"`
	Email     string    `gorm:"type:varchar(191);not null;index" json:"email"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
