package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/template/html/v2"

	"github.com/stakeaware/accessgate/app/controllers"
	"github.com/stakeaware/accessgate/internal/pkg/cache"
	"github.com/stakeaware/accessgate/internal/pkg/database"
	"github.com/stakeaware/accessgate/internal/pkg/env"
	"github.com/stakeaware/accessgate/internal/pkg/ledger"
	"github.com/stakeaware/accessgate/internal/pkg/notify"
	"github.com/stakeaware/accessgate/internal/pkg/paystack"
	"github.com/stakeaware/accessgate/internal/pkg/router"
	"github.com/stakeaware/accessgate/internal/pkg/s3backup"
	"github.com/stakeaware/accessgate/internal/pkg/sweeper"
)

func main() {
	app, manager := NewApplication()
	manager.Start()
	defer manager.Stop()

	// Fiber's Listen blocks, so shutdown runs off a signal handler.
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "0.0.0.0"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *sweeper.Manager) {
	env.SetupEnvFile()

	store := setupStore()
	svc := ledger.NewService(store, ledger.ConfigFromEnv())

	var verifyCache paystack.VerificationCache
	if cache.Enabled() {
		cache.SetupCache()
		verifyCache = cache.VerificationCache{}
	}
	verifier := paystack.NewVerifierFromEnv(verifyCache)
	notifier := notify.NewTelegramNotifierFromEnv()

	sweepCfg := sweeper.ConfigFromEnv()
	manager := sweeper.NewManager(svc, notifier, setupBackup(svc), sweepCfg)

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/accessgate to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "views"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		Views:     html.New(basePath+"views", ".html"),
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

	controllers.Setup(controllers.Deps{
		Service:           svc,
		Verifier:          verifier,
		Notifier:          notifier,
		Sweep:             manager.RunSweepOnce,
		AccessBotUsername: sweepCfg.AccessBotUsername,
		DailyGroupLink:    env.GetEnv("DAILY_GROUP_LINK", ""),
		WeekendGroupLink:  env.GetEnv("WEEKEND_GROUP_LINK", ""),
	})

	// ROUTER
	router.InstallRouter(app)

	return app, manager
}

// setupStore picks the ledger backend. The JSON document keeps single-host
// deployments dependency free, MySQL carries multi-replica ones.
func setupStore() ledger.Store {
	switch env.GetEnv("LEDGER_BACKEND", "document") {
	case "mysql":
		database.SetupDatabase()
		return ledger.NewGormStore(database.GetDB())
	default:
		path := env.GetEnv("LEDGER_PATH", "data/ledger.json")
		store, err := ledger.NewDocumentStore(path)
		if err != nil {
			log.Fatalf("ledger document at %s: %v", path, err)
		}
		return store
	}
}

func setupBackup(svc *ledger.Service) sweeper.BackupFunc {
	bkCfg, err := s3backup.LoadConfig()
	if err != nil {
		log.Fatalf("s3 backup config: %v", err)
	}
	if !bkCfg.IsEnabled() {
		return nil
	}
	client, err := s3backup.NewClient(bkCfg)
	if err != nil {
		log.Fatalf("s3 backup: %v", err)
	}
	return func(ctx context.Context) error {
		return client.BackupLedger(ctx, svc)
	}
}
