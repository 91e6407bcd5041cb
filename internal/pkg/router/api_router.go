package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"gorm.io/gorm"

	apiv1 "github.com/veloscope/VeloScope/internal/api/v1"
	"github.com/veloscope/VeloScope/internal/pkg/syncqueue"
)

// ApiRouter installs the machine-facing operator API
type ApiRouter struct {
	jobs syncqueue.Repository
	db   *gorm.DB
}

func NewApiRouter(jobs syncqueue.Repository, db *gorm.DB) *ApiRouter {
	return &ApiRouter{jobs: jobs, db: db}
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	// API v1 routes
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer(h.jobs, h.db)
	apiv1.RegisterHandlers(v1, apiServer)
}
