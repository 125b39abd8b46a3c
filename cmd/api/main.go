package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/tanviriss/MockMate/internal/api/handlers"
	"github.com/tanviriss/MockMate/internal/auth"
	"github.com/tanviriss/MockMate/internal/cache/redis"
	"github.com/tanviriss/MockMate/internal/evaluation"
	"github.com/tanviriss/MockMate/internal/interview"
	"github.com/tanviriss/MockMate/internal/jobs"
	"github.com/tanviriss/MockMate/internal/llm"
	"github.com/tanviriss/MockMate/internal/metrics"
	"github.com/tanviriss/MockMate/internal/middleware/ratelimit"
	"github.com/tanviriss/MockMate/internal/middleware/security"
	"github.com/tanviriss/MockMate/internal/middleware/validation"
	"github.com/tanviriss/MockMate/internal/objectstore"
	"github.com/tanviriss/MockMate/internal/session"
	"github.com/tanviriss/MockMate/internal/speech"
	"github.com/tanviriss/MockMate/internal/storage/sqlite"
	"github.com/tanviriss/MockMate/pkg/config"
	appLogger "github.com/tanviriss/MockMate/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MockMate interview server")
	metrics.Init()

	ctx := context.Background()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(ctx); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Background evaluation gets its own pool so it never competes with
	// live sessions for a connection.
	evalClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create evaluation SQLite client", zap.Error(err))
	}
	defer evalClient.Close()

	redisClient := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	sessions := session.NewStore(redisClient, cfg.Session.TTL())
	sweeper := session.NewSweeper(sessions, cfg.Session.SweepSchedule)
	if err := sweeper.Start(); err != nil {
		appLogger.Fatal("Failed to start session sweeper", zap.Error(err))
	}

	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		appLogger.Fatal("Failed to create token verifier", zap.Error(err))
	}

	provider, err := llm.NewProvider(ctx, llm.ProviderConfig{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM provider", zap.Error(err))
	}
	llmClient := llm.NewClient(provider, llm.Options{
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	objects, err := objectstore.New(cfg.Storage)
	if err != nil {
		appLogger.Fatal("Failed to create object store", zap.Error(err))
	}
	defer objects.Close()

	runner := jobs.NewRunner()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
		Logger:            appLogger.GetLogger(),
	})
	defer limiter.Stop()

	deps := interview.Deps{
		Records:  sqliteClient,
		Sessions: sessions,
		Transcriber: speech.NewTranscriber(speech.TranscriberConfig{
			APIKey:  cfg.Transcription.APIKey,
			BaseURL: cfg.Transcription.BaseURL,
			Model:   cfg.Transcription.Model,
			Timeout: time.Duration(cfg.Transcription.TimeoutSec) * time.Second,
		}),
		Followups: llm.NewFollowupGenerator(llmClient),
		Objects:   objects,
		Jobs:      runner,
		Evaluator: evaluation.NewEvaluator(evalClient, llm.NewAnswerEvaluator(llmClient)),
		Limiter:   limiter,
	}
	if cfg.Speech.APIKey != "" {
		deps.Synthesizer = speech.NewSynthesizer(speech.SynthesizerConfig{
			APIKey:  cfg.Speech.APIKey,
			BaseURL: cfg.Speech.BaseURL,
			Model:   cfg.Speech.Model,
			Timeout: time.Duration(cfg.Speech.TimeoutSec) * time.Second,
		})
	} else {
		appLogger.Warn("No speech API key configured, questions will be sent as text only")
	}

	orchestrator := interview.NewOrchestrator(deps, interview.ConfigFrom(cfg.Interview))
	wsHandler := handlers.NewWebSocketHandler(orchestrator)

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:             cfg.Server.BodyLimit,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: joinOrigins(cfg.Server.AllowedOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Logging.Level == "debug",
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1", limiter.Middleware())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		checks := fiber.Map{"sqlite": "ok", "redis": "ok"}
		status, state := fiber.StatusOK, "ready"

		if err := sqliteClient.Ping(c.UserContext()); err != nil {
			checks["sqlite"] = err.Error()
			status, state = fiber.StatusServiceUnavailable, "unavailable"
		}
		// Redis is optional: sessions fall back to memory when it is down.
		if err := redisClient.Ping(c.UserContext()); err != nil {
			checks["redis"] = "degraded: " + err.Error()
		}
		checks["session_fallback_entries"] = sessions.FallbackSize()

		return c.Status(status).JSON(fiber.Map{
			"status": state,
			"checks": checks,
		})
	})

	app.Get("/ws/interview",
		validation.Handshake(validation.Config{
			Verifier:       verifier,
			MaxTokenLength: cfg.Auth.MaxTokenLength,
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Logger:         appLogger.GetLogger(),
		}),
		websocket.New(wsHandler.HandleConnection),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	grace := time.Duration(cfg.Server.ShutdownTimeout) * time.Second

	if err := app.ShutdownWithTimeout(grace); err != nil {
		appLogger.Error("HTTP shutdown failed", zap.Error(err))
	}
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := runner.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn("Background jobs did not finish in time", zap.Error(err), zap.Int("running", runner.Running()))
	}

	appLogger.Info("Server stopped")
}

func joinOrigins(origins []string) string {
	if len(origins) == 0 {
		return "*"
	}
	return strings.Join(origins, ", ")
}
