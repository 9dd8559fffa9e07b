package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/stakeaware/accessgate/app/models"
	"github.com/stakeaware/accessgate/internal/pkg/ledger"
)

type linkRequest struct {
	ChatID    int64  `json:"chat_id" validate:"required"`
	Reference string `json:"reference" validate:"required"`

	// Legacy clients send these aliases.
	TelegramID        int64  `json:"telegram_id"`
	PaystackReference string `json:"paystack_reference"`
}

func (r *linkRequest) normalize() {
	if r.ChatID == 0 {
		r.ChatID = r.TelegramID
	}
	if strings.TrimSpace(r.Reference) == "" {
		r.Reference = r.PaystackReference
	}
	r.Reference = strings.TrimSpace(r.Reference)
}

var linkValidator = validator.New()

// HandleLinkTelegram consumes a payment-reference handshake and binds the
// caller's chat identity to the matching ledger record.
func HandleLinkTelegram(c *fiber.Ctx) error {
	var req linkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid json"})
	}
	req.normalize()
	if err := linkValidator.StructPartial(&req, "ChatID", "Reference"); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "chat_id and reference are required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := deps.Service.Link(ctx, req.Reference, req.ChatID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		log.Errorf("[Link] Link failed for %s: %v", req.Reference, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "link_failed"})
	}

	welcomeSubscriber(req.ChatID, rec.Plan)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "linked", "email": rec.Email})
}

// HandleStatus reports the subscription linked to a chat identity. Backed by
// the access bot's status button.
func HandleStatus(c *fiber.Ctx) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(c.Query("chat_id")), 10, 64)
	if err != nil || chatID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "chat_id is required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rec, err := deps.Service.StatusByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no subscription for this account"})
		}
		log.Errorf("[Status] Lookup failed for chat %d: %v", chatID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "status_lookup_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"email":      rec.Email,
		"plan":       rec.Plan,
		"active":     rec.Active,
		"expires_at": rec.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// welcomeSubscriber DMs the freshly linked subscriber a join button for their
// plan's group. Best effort.
func welcomeSubscriber(chatID int64, plan string) {
	groupLink := deps.DailyGroupLink
	if plan == models.PlanWeekend {
		groupLink = deps.WeekendGroupLink
	}
	if groupLink == "" {
		return
	}
	go func() {
		text := "Payment verified! You now have " + plan + " access."
		if err := deps.Notifier.SendButton(chatID, text, "Join Group", groupLink); err != nil {
			log.Warnf("[Link] Failed to DM subscriber %d: %v", chatID, err)
		}
	}()
}
