package models

import "time"

// AppliedReference records every payment reference the grant engine has already
// applied. Paystack redelivers webhooks, so the reference doubles as an
// idempotency key: a reference present here makes a second delivery a no-op.
type AppliedReference struct {
	Reference string    `gorm:"primaryKey;type:varchar(191)" json:"reference"`
	Email     string    `gorm:"type:varchar(191);not null;index" json:"email"`
	AppliedAt time.Time `gorm:"autoCreateTime" json:"applied_at"`
}
