package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veloscope/VeloScope/app/controllers"
)

// HttpRouter installs the externally reachable webhook endpoints
type HttpRouter struct {
	webhook *controllers.WebhookController
}

func NewHttpRouter(webhook *controllers.WebhookController) *HttpRouter {
	return &HttpRouter{webhook: webhook}
}

func (h *HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/webhooks/strava", h.webhook.HandleStravaVerify)
	app.Post("/webhooks/strava", h.webhook.HandleStravaEvent)
}
