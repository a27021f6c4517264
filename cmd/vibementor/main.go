package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vibecodementor/VibeMentor/app/repository"
	"github.com/vibecodementor/VibeMentor/internal/pkg/cache"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
	"github.com/vibecodementor/VibeMentor/internal/pkg/env"
	"github.com/vibecodementor/VibeMentor/internal/pkg/ledgerexport"
	"github.com/vibecodementor/VibeMentor/internal/pkg/metrics/counter"
	"github.com/vibecodementor/VibeMentor/internal/pkg/reconcile"
	"github.com/vibecodementor/VibeMentor/internal/pkg/router"
)

func main() {
	app := NewApplication()
	startBackgroundJobs()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/vibementor to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 1048576, // 1 MiB, webhook payloads are small
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			"admin": env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app
}

// startBackgroundJobs launches the periodic workers: usage counter flushing,
// ledger/entitlement reconciliation and the optional S3 ledger export.
func startBackgroundJobs() {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if err := counter.FlushAll(); err != nil {
				log.Printf("usage counter flush failed: %v", err)
			}
		}
	}()

	go func() {
		interval := time.Hour
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := reconcile.NewFromDB(database.GetDB()).Run(ctx); err != nil {
				log.Printf("reconcile run failed: %v", err)
			}
			cancel()
		}
	}()

	cfg, err := ledgerexport.LoadConfig()
	if err != nil {
		log.Printf("ledger export disabled: %v", err)
		return
	}
	if !cfg.IsEnabled() {
		return
	}
	go func() {
		client, err := ledgerexport.NewClient(cfg)
		if err != nil {
			log.Printf("ledger export client setup failed: %v", err)
			return
		}
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			if _, err := ledgerexport.NewExporter(database.GetDB(), client).Export(ctx); err != nil {
				log.Printf("ledger export failed: %v", err)
			}
			cancel()
		}
	}()
}
