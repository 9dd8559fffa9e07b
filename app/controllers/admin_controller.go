package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// HandleAdminUsers dumps the full ledger keyed by email.
func HandleAdminUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	records, err := deps.Service.Snapshot(ctx)
	if err != nil {
		log.Errorf("[Admin] Snapshot failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "snapshot_failed"})
	}

	out := make(fiber.Map, len(records))
	for _, rec := range records {
		out[rec.Email] = fiber.Map{
			"plan":                  rec.Plan,
			"payment_reference":     rec.PaymentReference,
			"expires_at":            rec.ExpiresAt.UTC().Format(time.RFC3339),
			"active":                rec.Active,
			"chat_id":               rec.ChatID,
			"last_reminder_sent_at": rec.LastReminderSentAt,
		}
	}
	return c.Status(fiber.StatusOK).JSON(out)
}

// HandleAdminSweep triggers an expiry sweep outside the regular schedule.
func HandleAdminSweep(c *fiber.Ctx) error {
	if deps.Sweep == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "sweeper_not_running"})
	}
	if err := deps.Sweep(); err != nil {
		log.Errorf("[Admin] Manual sweep failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sweep_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "sweep_completed"})
}
