package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubscriptionRecordExpired(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rec := &SubscriptionRecord{ExpiresAt: now.Add(time.Hour)}
	assert.False(t, rec.Expired(now))

	rec.ExpiresAt = now.Add(-time.Hour)
	assert.True(t, rec.Expired(now))

	// Expiry exactly at now counts as lapsed.
	rec.ExpiresAt = now
	assert.True(t, rec.Expired(now))
}

func TestSubscriptionRecordReminderDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 3 * 24 * time.Hour

	rec := &SubscriptionRecord{Active: true, ExpiresAt: now.Add(2 * 24 * time.Hour)}
	assert.True(t, rec.ReminderDue(now, window))

	// Outside the alert window nothing fires.
	rec.ExpiresAt = now.Add(10 * 24 * time.Hour)
	assert.False(t, rec.ReminderDue(now, window))

	// Inactive or lapsed records never get reminders.
	rec = &SubscriptionRecord{Active: false, ExpiresAt: now.Add(24 * time.Hour)}
	assert.False(t, rec.ReminderDue(now, window))
	rec = &SubscriptionRecord{Active: true, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, rec.ReminderDue(now, window))
}

func TestSubscriptionRecordReminderMarker(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	window := 3 * 24 * time.Hour

	sent := now.Add(-time.Hour)
	rec := &SubscriptionRecord{
		Active:             true,
		ExpiresAt:          now.Add(2 * 24 * time.Hour),
		LastReminderSentAt: &sent,
	}
	// Marker inside the current window suppresses a second reminder.
	assert.False(t, rec.ReminderDue(now, window))

	// A renewal pushes the window start past the old marker and re-arms it.
	rec.ExpiresAt = now.Add(30 * 24 * time.Hour)
	assert.False(t, rec.ReminderDue(now, window)) // not yet inside window
	later := now.Add(28 * 24 * time.Hour)
	assert.True(t, rec.ReminderDue(later, window))
}

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, PlanDaily, NormalizePlan("daily"))
	assert.Equal(t, PlanWeekend, NormalizePlan("  Weekend "))
	assert.Equal(t, PlanDaily, NormalizePlan("something-else"))
	assert.Equal(t, PlanDaily, NormalizePlan(""))
}

func TestIsKnownPlan(t *testing.T) {
	assert.True(t, IsKnownPlan("daily"))
	assert.True(t, IsKnownPlan("WEEKEND"))
	assert.False(t, IsKnownPlan("monthly"))
	assert.False(t, IsKnownPlan(""))
}

func TestSubscriptionRecordValidate(t *testing.T) {
	rec := &SubscriptionRecord{
		Email:            "user@example.com",
		Plan:             PlanDaily,
		PaymentReference: "ref_001",
		ExpiresAt:        time.Now().Add(24 * time.Hour),
		Active:           true,
	}
	assert.NoError(t, rec.Validate())

	rec.Email = "not-an-email"
	assert.Error(t, rec.Validate())

	rec.Email = "user@example.com"
	rec.Plan = "lifetime"
	assert.Error(t, rec.Validate())
}
