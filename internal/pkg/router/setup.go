package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/veloscope/VeloScope/app/controllers"
	"github.com/veloscope/VeloScope/internal/pkg/syncqueue"
)

// Deps carries the constructed components the routes need. Built once in
// main and handed in; routers hold no globals.
type Deps struct {
	Webhook *controllers.WebhookController
	Jobs    syncqueue.Repository
	DB      *gorm.DB
}

type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app, NewHttpRouter(deps.Webhook), NewApiRouter(deps.Jobs, deps.DB))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
