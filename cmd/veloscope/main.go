package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/veloscope/VeloScope/app/controllers"
	"github.com/veloscope/VeloScope/internal/pkg/cache"
	"github.com/veloscope/VeloScope/internal/pkg/database"
	"github.com/veloscope/VeloScope/internal/pkg/env"
	"github.com/veloscope/VeloScope/internal/pkg/metrics/counter"
	"github.com/veloscope/VeloScope/internal/pkg/router"
	"github.com/veloscope/VeloScope/internal/pkg/strava"
	"github.com/veloscope/VeloScope/internal/pkg/syncqueue"
	"github.com/veloscope/VeloScope/internal/pkg/webhook"
)

func main() {
	app, manager := NewApplication()

	manager.Start()
	defer manager.Stop()

	// Stop the manager cleanly on SIGINT/SIGTERM so in-flight jobs finish.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		manager.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the pipeline: every component is constructed here from
// environment configuration and injected explicitly, nothing reaches for
// globals.
func NewApplication() (*fiber.App, *syncqueue.Manager) {
	env.SetupEnvFile()

	db, err := database.Setup()
	if err != nil {
		log.Fatalf("database setup failed: %v", err)
	}
	rdb := cache.New()

	stravaClient := strava.NewClientFromEnv()
	tokens := strava.NewTokenService(strava.NewCredentialRepository(db), stravaClient)

	jobs := syncqueue.NewRepository(db)
	counters := counter.New(rdb)

	workers := syncqueue.DefaultWorkers
	if v, err := strconv.Atoi(env.GetEnv("SYNC_WORKER_COUNT", "")); err == nil && v > 0 {
		workers = v
	}
	queue := syncqueue.NewQueue(jobs, tokens, stravaClient, rdb, counters, workers)
	manager := syncqueue.NewManager(queue, jobs, counters, syncqueue.ManagerOptions{})

	dispatcher := syncqueue.NewDispatcher(jobs, rdb)
	webhookSvc := webhook.NewServiceFromDB(db, dispatcher, env.GetEnv("STRAVA_WEBHOOK_SECRET", ""))

	app := fiber.New(fiber.Config{
		AppName: "VeloScope",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Webhook: controllers.NewWebhookController(webhookSvc),
		Jobs:    jobs,
		DB:      db,
	})

	return app, manager
}
