package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/veloscope/VeloScope/internal/pkg/webhook"
)

// WebhookController exposes the externally reachable webhook endpoints.
type WebhookController struct {
	svc *webhook.Service
}

func NewWebhookController(svc *webhook.Service) *WebhookController {
	return &WebhookController{svc: svc}
}

// HandleStravaVerify handles the subscription-verification handshake. The
// challenge is echoed back unmodified only for a matching verify token and
// mode "subscribe".
func (wc *WebhookController) HandleStravaVerify(c *fiber.Ctx) error {
	mode := strings.TrimSpace(c.Query("hub.mode"))
	verifyToken := strings.TrimSpace(c.Query("hub.verify_token"))
	challenge := c.Query("hub.challenge")

	echoed, err := wc.svc.VerifySubscription(mode, verifyToken, challenge)
	if err != nil {
		if errors.Is(err, webhook.ErrVerificationFailed) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "verification_failed"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "verification_error"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"hub.challenge": echoed})
}

// HandleStravaEvent handles one inbound delivery. Everything past a durably
// recorded event is acknowledged with 200 — the upstream sender enforces a
// short response budget and redelivers on anything else.
func (wc *WebhookController) HandleStravaEvent(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := firstHeaderValue(c, "X-Hub-Signature-256", "X-Hub-Signature")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := wc.svc.Receive(ctx, rawBody, signature)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrInvalidSignature):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid_signature"})
		case errors.Is(err, webhook.ErrInvalidPayload):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
		}
	}

	switch result.Outcome {
	case webhook.OutcomeDuplicate:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	case webhook.OutcomeIgnored, webhook.OutcomeNoAccount:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	default:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}

// firstHeaderValue returns the first non-empty value among the headers
func firstHeaderValue(c *fiber.Ctx, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(c.Get(name)); v != "" {
			return v
		}
	}
	return ""
}
