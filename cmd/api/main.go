package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/jeovahfialho/capital-gains/internal/api"
	"github.com/jeovahfialho/capital-gains/internal/config"
	"github.com/jeovahfialho/capital-gains/internal/ingestion"
	"github.com/jeovahfialho/capital-gains/internal/service"
	"github.com/jeovahfialho/capital-gains/internal/storage/cache"
	"github.com/jeovahfialho/capital-gains/internal/storage/postgres"
	"github.com/jeovahfialho/capital-gains/pkg/logger"
)

// @title Capital Gains API
// @version 1.0
// @description Cálculo de imposto sobre ganho de capital em operações de ações

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
func main() {
	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel, cfg.Environment == "development"); err != nil {
		fmt.Fprintln(os.Stderr, "Erro ao inicializar logger:", err)
		os.Exit(1)
	}
	defer logger.Close()

	checks := map[string]api.HealthChecker{}

	var resultCache service.ResultCache
	var invalidator api.CacheInvalidator
	if redisCache := connectRedis(cfg); redisCache != nil {
		defer redisCache.Close()
		resultCache = redisCache
		invalidator = redisCache
		checks["redis"] = redisCache
	}

	parser := ingestion.NewParser(int64(cfg.APIBodyLimit))
	engine := service.NewTaxEngine(service.RulesFromConfig(cfg))
	calculator := service.NewCalculatorService(engine, parser, resultCache, cfg.Workers)

	var replay *service.ReplayService
	if cfg.DatabaseEnabled {
		db, err := connectPostgres(cfg)
		if err != nil {
			logger.Fatal("erro ao conectar PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		checks["database"] = db
		replay = service.NewReplayService(postgres.NewOperationStore(db.Pool()), parser, calculator)
	}

	handler := api.NewHandler(calculator, replay, invalidator, checks)

	app := fiber.New(fiber.Config{
		ServerHeader:          "Capital-Gains",
		AppName:               "Capital Gains Calculator v1.0.0",
		DisableStartupMessage: cfg.Environment != "development",
		ReadTimeout:           cfg.APIReadTimeout,
		WriteTimeout:          cfg.APIWriteTimeout,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             cfg.APIBodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Output: os.Stderr,
	}))
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	api.SetupRoutes(app, handler, api.RouteOptions{
		Metrics:       cfg.MetricsEnabled,
		RateLimit:     100,
		AdminUser:     cfg.AdminUser,
		AdminPassword: cfg.AdminPassword,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("encerrando servidor")
		if err := app.Shutdown(); err != nil {
			logger.Error("erro ao encerrar servidor", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	logger.Info("iniciando servidor", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		logger.Fatal("erro no servidor", zap.Error(err))
	}
}

func connectPostgres(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("erro ao criar conexão: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("conectado ao PostgreSQL")
	return db, nil
}

func connectRedis(cfg *config.Config) *cache.RedisCache {
	if !cfg.CacheEnabled {
		return nil
	}

	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logger.Warn("Redis não disponível, continuando sem cache", zap.Error(err))
		return nil
	}

	logger.Info("conectado ao Redis")
	return redisCache
}
