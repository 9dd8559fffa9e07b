package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PlanDaily   = "daily"
	PlanWeekend = "weekend"
)

// SubscriptionRecord is the per-subscriber ledger entry, keyed by email.
// PaymentReference always reflects the most recently applied payment; prior
// references are only retained in the applied_references idempotency set.
type SubscriptionRecord struct {
	Email              string     `gorm:"primaryKey;type:varchar(191)" json:"email" validate:"required,email"`
	Plan               string     `gorm:"type:varchar(16);not null" json:"plan" validate:"oneof=daily weekend"`
	PaymentReference   string     `gorm:"type:varchar(191);not null;index" json:"payment_reference" validate:"required"`
	ExpiresAt          time.Time  `gorm:"not null;index" json:"expires_at"`
	Active             bool       `gorm:"not null;default:false;index" json:"active"`
	ChatID             *int64     `gorm:"default:null" json:"chat_id,omitempty"`
	LastReminderSentAt *time.Time `gorm:"type:timestamp;default:null" json:"last_reminder_sent_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *SubscriptionRecord) Validate() error {
	v := validator.New()

	return v.Struct(r)
}

// Expired reports whether the entitlement window has elapsed. The Active flag
// lags behind this until the next sweep reconciles it.
func (r *SubscriptionRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// ReminderDue reports whether an expiry reminder should fire: the record is
// active, expiry falls within (0, window], and no reminder was sent since the
// current alert window opened. A renewal moves ExpiresAt forward, which moves
// the window start past the old marker and re-arms the reminder.
func (r *SubscriptionRecord) ReminderDue(now time.Time, window time.Duration) bool {
	if !r.Active || r.Expired(now) {
		return false
	}
	if r.ExpiresAt.Sub(now) > window {
		return false
	}
	if r.LastReminderSentAt == nil {
		return true
	}
	windowStart := r.ExpiresAt.Add(-window)
	return r.LastReminderSentAt.Before(windowStart)
}

// NormalizePlan maps arbitrary input to a known plan, defaulting to daily.
func NormalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case PlanWeekend:
		return PlanWeekend
	default:
		return PlanDaily
	}
}

// IsKnownPlan reports whether plan is one of the configured plan names.
func IsKnownPlan(plan string) bool {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case PlanDaily, PlanWeekend:
		return true
	default:
		return false
	}
}
