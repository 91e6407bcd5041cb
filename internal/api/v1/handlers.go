package apiv1

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/veloscope/VeloScope/app/models"
	"github.com/veloscope/VeloScope/internal/pkg/syncqueue"
)

// Pong is the ping response body
type Pong struct {
	Ping string `json:"ping"`
}

// QueueStats summarizes pipeline health for operator tooling
type QueueStats struct {
	Jobs     map[models.SyncJobStatus]int64 `json:"jobs"`
	Counters map[string]int64               `json:"counters"`
}

// APIServer implements the machine-facing operator endpoints
type APIServer struct {
	jobs syncqueue.Repository
	db   *gorm.DB
}

// NewAPIServer creates a new API server instance
func NewAPIServer(jobs syncqueue.Repository, db *gorm.DB) *APIServer {
	return &APIServer{jobs: jobs, db: db}
}

// RegisterHandlers attaches the v1 routes
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Get("/queue/stats", s.GetQueueStats)
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// GetQueueStats reports job counts per status plus the flushed counters.
// Failures surface only through these numbers; the pipeline itself never
// re-surfaces errors to the upstream sender.
func (s *APIServer) GetQueueStats(c *fiber.Ctx) error {
	counts, err := s.jobs.CountJobsByStatus()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}

	var stats []models.SyncStat
	if err := s.db.Find(&stats).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "stats_unavailable"})
	}

	counters := make(map[string]int64, len(stats))
	for _, st := range stats {
		counters[st.Metric] = st.Count
	}

	return c.Status(fiber.StatusOK).JSON(QueueStats{Jobs: counts, Counters: counters})
}
