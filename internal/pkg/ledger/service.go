package ledger

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stakeaware/accessgate/app/models"
	"github.com/stakeaware/accessgate/internal/pkg/env"
)

// Config holds the entitlement window lengths per plan.
type Config struct {
	DailyPlanDuration   time.Duration
	WeekendPlanDuration time.Duration
}

// ConfigFromEnv reads plan durations (in days) from the environment.
func ConfigFromEnv() Config {
	return Config{
		DailyPlanDuration:   envDays("DAILY_PLAN_DURATION", 30),
		WeekendPlanDuration: envDays("WEEKEND_PLAN_DURATION", 30),
	}
}

func envDays(key string, def int) time.Duration {
	days := def
	if v, err := strconv.Atoi(strings.TrimSpace(env.GetEnv(key, ""))); err == nil && v > 0 {
		days = v
	}
	return time.Duration(days) * 24 * time.Hour
}

// Duration returns the entitlement window for a plan.
func (c Config) Duration(plan string) time.Duration {
	if models.NormalizePlan(plan) == models.PlanWeekend {
		return c.WeekendPlanDuration
	}
	return c.DailyPlanDuration
}

// Service owns all ledger mutations. Grants are computed from a full prior
// record, so every read-modify-write sequence (event application, linking,
// sweep transitions) runs under one mutex to rule out lost updates between
// concurrent callers.
type Service struct {
	mu    sync.Mutex
	store Store
	cfg   Config
	now   func() time.Time
}

// NewService creates the ledger service around a store.
func NewService(store Store, cfg Config) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// SetClock overrides the service's time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ApplyEvent applies a verified payment event to the ledger. Applying the same
// reference twice is a no-op returning ActionIgnored. A missing or lapsed
// record is (re)activated for one full window from now; an active record is
// extended to max(current expiry, now + window); renewals never stack.
func (s *Service) ApplyEvent(ctx context.Context, ev PaymentEvent) (*models.SubscriptionRecord, Action, error) {
	_ = ctx
	if !ev.Verified {
		return nil, "", ErrUnverifiedEvent
	}
	if strings.TrimSpace(ev.Reference) == "" || strings.TrimSpace(ev.Email) == "" {
		return nil, "", ErrInvalidEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen, err := s.store.HasReference(ev.Reference)
	if err != nil {
		return nil, "", err
	}
	if seen {
		rec, err := s.store.Get(ev.Email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, "", err
		}
		return rec, ActionIgnored, nil
	}

	now := s.now()
	window := s.cfg.Duration(ev.Plan)

	rec, err := s.store.Get(ev.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, "", err
	}

	var action Action
	if rec == nil || rec.Expired(now) {
		if rec == nil {
			rec = &models.SubscriptionRecord{Email: ev.Email}
		}
		rec.ExpiresAt = now.Add(window)
		action = ActionActivated
	} else {
		if newExpiry := now.Add(window); newExpiry.After(rec.ExpiresAt) {
			rec.ExpiresAt = newExpiry
		}
		action = ActionRenewed
	}
	rec.Plan = models.NormalizePlan(ev.Plan)
	rec.PaymentReference = ev.Reference
	rec.Active = true
	// A fresh window re-arms the expiry reminder.
	rec.LastReminderSentAt = nil

	// The record, the applied reference, and the handshake land in one
	// atomic store operation. A failure leaves the reference unapplied, so
	// a gateway redelivery replays the whole grant instead of renewing a
	// half-written one.
	if err := s.store.ApplyGrant(rec, ev.Reference); err != nil {
		return nil, "", err
	}
	return rec, action, nil
}

// Link consumes the pending handshake for reference and binds chatID to the
// matching record. References superseded by a later payment are gone by then,
// so only the latest reference can link (ErrNotFound otherwise).
func (s *Service) Link(ctx context.Context, reference string, chatID int64) (*models.SubscriptionRecord, error) {
	_ = ctx
	if strings.TrimSpace(reference) == "" {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email, err := s.store.ConsumePendingLink(reference)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.Get(email)
	if err != nil {
		return nil, err
	}
	rec.ChatID = &chatID
	rec.Active = true
	if err := s.store.Put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Snapshot returns all ledger records.
func (s *Service) Snapshot(ctx context.Context) ([]models.SubscriptionRecord, error) {
	_ = ctx
	return s.store.Snapshot()
}

// StatusByChatID returns the record linked to a chat identity.
func (s *Service) StatusByChatID(ctx context.Context, chatID int64) (*models.SubscriptionRecord, error) {
	_ = ctx
	return s.store.FindByChatID(chatID)
}

// CollectExpired flips every lapsed-but-still-active record to inactive and
// returns the flipped records. The deactivation is persisted before the caller
// gets to emit any notification, so a notifier failure cannot unwind it.
func (s *Service) CollectExpired(ctx context.Context) ([]models.SubscriptionRecord, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var expired []models.SubscriptionRecord
	for i := range recs {
		rec := recs[i]
		if !rec.Active || !rec.Expired(now) {
			continue
		}
		rec.Active = false
		if err := s.store.Put(&rec); err != nil {
			return expired, err
		}
		expired = append(expired, rec)
	}
	return expired, nil
}

// CollectReminders marks and returns every record whose expiry reminder is due
// within the alert window. The marker is persisted before the reminder is
// emitted, which keeps delivery at-most-once per entitlement window across
// repeated sweep ticks.
func (s *Service) CollectReminders(ctx context.Context, window time.Duration) ([]models.SubscriptionRecord, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.Snapshot()
	if err != nil {
		return nil, err
	}

	now := s.now()
	var due []models.SubscriptionRecord
	for i := range recs {
		rec := recs[i]
		if !rec.ReminderDue(now, window) {
			continue
		}
		sentAt := now
		rec.LastReminderSentAt = &sentAt
		if err := s.store.Put(&rec); err != nil {
			return due, err
		}
		due = append(due, rec)
	}
	return due, nil
}
