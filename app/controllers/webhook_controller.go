package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/internal/pkg/ledger"
	"github.com/stakeaware/accessgate/internal/pkg/notify"
	"github.com/stakeaware/accessgate/internal/pkg/paystack"
)

// HandlePaystackWebhook receives payment notifications from the gateway.
// Pipeline: signature check over the exact raw bytes, normalization into a
// canonical event, idempotent application to the ledger.
func HandlePaystackWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("X-Paystack-Signature"))

	if !deps.Verifier.VerifySignature(rawBody, signature) {
		log.Warn("[Webhook] Invalid Paystack signature")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ev, err := deps.Verifier.Normalize(ctx, rawBody, true)
	if err != nil {
		if errors.Is(err, paystack.ErrEventIgnored) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ignored"})
		}
		var missing *paystack.MissingFieldError
		if errors.As(err, &missing) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": missing.Error()})
		}
		if errors.Is(err, paystack.ErrGatewayVerification) {
			log.Warnf("[Webhook] Gateway verification failed: %v", err)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "verification_failed"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	rec, action, err := deps.Service.ApplyEvent(ctx, ev)
	if err != nil {
		// A computed grant that fails to persist must not be silently lost.
		log.Errorf("[Webhook] Ledger apply failed for %s: %v", ev.Reference, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ledger_persist_failed"})
	}
	if action == ledger.ActionIgnored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "email": ev.Email, "duplicate": true})
	}

	announceGrant(rec.Email, string(action), rec.Plan, ev.Reference)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok", "email": rec.Email, "action": string(action)})
}

// HandlePaystackRedirect is the payment-return page. It re-verifies the
// reference with the gateway, applies the grant, and hands the subscriber the
// bot deep link that completes the chat handshake.
func HandlePaystackRedirect(c *fiber.Ctx) error {
	ref := strings.TrimSpace(c.Query("reference"))
	if ref == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing reference")
	}

	deepLink := notify.DeepLink(deps.AccessBotUsername, ref)

	// Without a gateway secret key there is nothing to verify against; the
	// webhook is then the sole grant path and this page only forwards the
	// subscriber to the bot.
	if deps.Verifier.Client == nil {
		return c.Render("payment_success", fiber.Map{"DeepLink": deepLink})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	ev, err := deps.Verifier.VerifyReference(ctx, ref)
	if err != nil {
		log.Warnf("[Redirect] Verification failed for %s: %v", ref, err)
		return c.Status(fiber.StatusBadRequest).SendString("Payment verification failed")
	}

	rec, action, err := deps.Service.ApplyEvent(ctx, ev)
	if err != nil {
		log.Errorf("[Redirect] Ledger apply failed for %s: %v", ref, err)
		return c.Status(fiber.StatusInternalServerError).SendString("Could not record payment")
	}
	if action != ledger.ActionIgnored {
		announceGrant(rec.Email, string(action), rec.Plan, ref)
	}

	return c.Render("payment_success", fiber.Map{"DeepLink": deepLink})
}

// announceGrant tells the admin about a new/renewed entitlement, including
// the deep link in case the subscriber needs manual onboarding. Fire and
// forget: a notifier failure never affects the already-persisted grant.
func announceGrant(email, action, plan, reference string) {
	deepLink := notify.DeepLink(deps.AccessBotUsername, reference)
	go func() {
		msg := fmt.Sprintf("%s %s (%s). Paystack ref: %s\nDeep-link: %s", email, action, plan, reference, deepLink)
		if err := deps.Notifier.NotifyAdmin(msg); err != nil {
			log.Warnf("[Webhook] Admin notification failed: %v", err)
		}
	}()
}
