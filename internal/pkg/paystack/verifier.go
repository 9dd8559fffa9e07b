package paystack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stakeaware/accessgate/app/models"
	"github.com/stakeaware/accessgate/internal/pkg/env"
	"github.com/stakeaware/accessgate/internal/pkg/ledger"
)

// ErrEventIgnored marks webhook deliveries that are not charge.success and
// carry no entitlement. Handlers acknowledge them with 200/ignored.
var ErrEventIgnored = errors.New("paystack: event type carries no entitlement")

// MissingFieldError names the payload field the normalizer could not resolve.
// Partial events never travel further down the pipeline; callers get either a
// canonical PaymentEvent or one of these.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("paystack: payload is missing %s", e.Field)
}

// Verifier authenticates and normalizes inbound payment notifications into
// canonical ledger.PaymentEvent values.
type Verifier struct {
	WebhookSecret string
	// DailyPlanAmount is the major-unit threshold separating the plans when
	// the payload carries no explicit plan metadata.
	DailyPlanAmount int64
	// Client is the authoritative gateway lookup; nil skips re-verification.
	Client *Client
}

// NewVerifierFromEnv builds the verifier from environment configuration.
func NewVerifierFromEnv(cache VerificationCache) *Verifier {
	threshold := int64(50000)
	if v, err := strconv.ParseInt(strings.TrimSpace(env.GetEnv("DAILY_PLAN_AMOUNT", "")), 10, 64); err == nil && v > 0 {
		threshold = v
	}
	return &Verifier{
		WebhookSecret:   env.GetEnv("PAYSTACK_WEBHOOK_SECRET", ""),
		DailyPlanAmount: threshold,
		Client:          NewClientFromEnv(cache),
	}
}

// VerifySignature checks the webhook signature header against the raw body.
func (v *Verifier) VerifySignature(rawBody []byte, signatureHeader string) bool {
	return VerifyWebhookSignature(rawBody, signatureHeader, v.WebhookSecret)
}

type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		CustomerEmail string          `json:"customer_email"`
		Metadata      json.RawMessage `json:"metadata"`
	} `json:"data"`
}

// Normalize turns a raw webhook body into a canonical PaymentEvent.
// signatureOK is the result of VerifySignature on the same bytes; the event is
// marked verified when the signature held or the gateway confirmed the
// transaction. When a gateway client is configured, its email and amount
// override the payload's, so a forged notification body still cannot grant
// access, even with signature checking disabled.
func (v *Verifier) Normalize(ctx context.Context, rawBody []byte, signatureOK bool) (ledger.PaymentEvent, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return ledger.PaymentEvent{}, fmt.Errorf("paystack: malformed payload: %w", err)
	}
	if payload.Event != "charge.success" {
		return ledger.PaymentEvent{}, ErrEventIgnored
	}

	reference := strings.TrimSpace(payload.Data.Reference)
	if reference == "" {
		return ledger.PaymentEvent{}, &MissingFieldError{Field: "data.reference"}
	}
	email := strings.TrimSpace(payload.Data.Customer.Email)
	if email == "" {
		email = strings.TrimSpace(payload.Data.CustomerEmail)
	}
	if email == "" {
		return ledger.PaymentEvent{}, &MissingFieldError{Field: "data.customer.email"}
	}

	amount := payload.Data.Amount / 100
	planType := planTypeFromMetadata(payload.Data.Metadata)
	verified := signatureOK

	if v.Client != nil {
		tx, err := v.Client.VerifyTransaction(ctx, reference)
		if err != nil {
			return ledger.PaymentEvent{}, err
		}
		if tx.Email != "" {
			email = tx.Email
		}
		if tx.AmountMinor > 0 {
			amount = tx.AmountMinor / 100
		}
		if planType == "" {
			planType = tx.PlanType
		}
		verified = true
	}

	return ledger.PaymentEvent{
		Reference: reference,
		Email:     email,
		Plan:      v.resolvePlan(planType, amount),
		Amount:    amount,
		Verified:  verified,
	}, nil
}

// VerifyReference builds a PaymentEvent purely from the gateway's
// verify-by-reference response. This is the payment-return path, which has no
// signed body to normalize from.
func (v *Verifier) VerifyReference(ctx context.Context, reference string) (ledger.PaymentEvent, error) {
	if v.Client == nil {
		return ledger.PaymentEvent{}, fmt.Errorf("%w: no gateway secret key configured", ErrGatewayVerification)
	}
	tx, err := v.Client.VerifyTransaction(ctx, reference)
	if err != nil {
		return ledger.PaymentEvent{}, err
	}
	if tx.Email == "" {
		return ledger.PaymentEvent{}, &MissingFieldError{Field: "data.customer.email"}
	}

	amount := tx.AmountMinor / 100
	return ledger.PaymentEvent{
		Reference: tx.Reference,
		Email:     tx.Email,
		Plan:      v.resolvePlan(tx.PlanType, amount),
		Amount:    amount,
		Verified:  true,
	}, nil
}

// resolvePlan prefers explicit plan metadata and falls back to the amount
// threshold: amount >= daily threshold means daily, anything less weekend.
func (v *Verifier) resolvePlan(planType string, amount int64) string {
	if models.IsKnownPlan(planType) {
		return models.NormalizePlan(planType)
	}
	if amount >= v.DailyPlanAmount {
		return models.PlanDaily
	}
	return models.PlanWeekend
}

// planTypeFromMetadata extracts metadata.plan_type, tolerating the gateway
// sometimes sending metadata as a non-object (empty string, array).
func planTypeFromMetadata(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var md struct {
		PlanType string `json:"plan_type"`
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return ""
	}
	return strings.TrimSpace(md.PlanType)
}
