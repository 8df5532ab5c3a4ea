package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/LinHaoYu/ContractLens/app/repository"
	"github.com/LinHaoYu/ContractLens/internal/pkg/cache"
	"github.com/LinHaoYu/ContractLens/internal/pkg/constants"
	"github.com/LinHaoYu/ContractLens/internal/pkg/database"
	"github.com/LinHaoYu/ContractLens/internal/pkg/env"
	"github.com/LinHaoYu/ContractLens/internal/pkg/payloadstore"
	"github.com/LinHaoYu/ContractLens/internal/pkg/retention"
	"github.com/LinHaoYu/ContractLens/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())
	startRetentionSweeper()

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit: 2 * 1024 * 1024, // 2 MiB, contract texts only
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get(constants.MetricsRoute, monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

// startRetentionSweeper launches payload retention cleanup. Runs with a nil
// store when the payload store is disabled or unreachable; refs are still
// cleared so expired records stop pointing at dead objects.
func startRetentionSweeper() {
	var store retention.PayloadDeleter
	if cfg, err := payloadstore.LoadConfig(); err == nil && cfg.IsEnabled() {
		client, err := payloadstore.NewClient(cfg)
		if err != nil {
			log.Printf("Payload store unavailable for retention sweeps: %v", err)
		} else {
			store = client
		}
	}
	retention.NewSweeper(repository.GetGlobalFactory().GetAnalysisRepository(), store).Start()
}
