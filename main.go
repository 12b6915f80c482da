package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relay-hub/handlers"
	"relay-hub/services"
	"relay-hub/utils"
	"relay-hub/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal("failed to build logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	store := services.NewGormUserStore(db)
	if err := store.AutoMigrate(); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	clock := clockwork.NewRealClock()
	codes := services.NewLinkCodeRegistry(clock, cfg.LinkCodeTTL, logger)
	users := services.NewUserDirectory(store, logger)
	sessions := services.NewSessionRegistry(logger)

	var persona services.Persona = services.StaticPersona{Reply: cfg.PersonaFallback}
	if cfg.GeminiAPIKey != "" {
		p, err := services.NewGenAIPersona(ctx, services.PersonaConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.PersonaModel,
			Name:       cfg.PersonaName,
			Prompt:     cfg.PersonaPrompt,
			Fallback:   cfg.PersonaFallback,
			Timeout:    cfg.PersonaTimeout,
			HTTPClient: utils.NewHTTPClient(cfg.PersonaTimeout + 5*time.Second),
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize persona", zap.Error(err))
		}
		persona = p
	} else {
		logger.Warn("⚠️  GEMINI_API_KEY not set, persona will only send the fallback reply")
	}

	var gateway services.ExternalChannel
	var link *workers.GatewayLink
	if cfg.GatewayURL != "" {
		link = workers.NewGatewayLink(cfg.GatewayURL, cfg.GatewayToken, cfg.GatewayReconnectDelay, clock, logger)
		gateway = link
	} else {
		logger.Warn("⚠️  GATEWAY_URL not set, external chat forwarding disabled")
	}

	relay := services.NewRelayController(services.RelayConfig{
		Verifier:    services.Ed25519Verifier{},
		Codes:       codes,
		Users:       users,
		Sessions:    sessions,
		Persona:     persona,
		Gateway:     gateway,
		Admins:      services.NewWalletAllowlist(cfg.AdminWallets),
		PersonaName: cfg.PersonaName,
		Logger:      logger,
	})

	if link != nil {
		go link.Run(ctx, relay.HandleGatewayPayload)
	}

	sched, err := workers.StartMaintenanceScheduler(codes, sessions, clock, logger)
	if err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       86400, // 24 hours
	}))

	handlers.SetupRelayRoutes(ctx, app, relay, gateway, cfg.GatewayToken, logger)

	if err := utils.EnsureDir(cfg.PublicDir); err != nil {
		logger.Fatal("failed to ensure public dir", zap.Error(err))
	}
	app.Static("/", cfg.PublicDir)

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("✅ Relay hub running", zap.String("addr", cfg.ListenAddr()))
	logger.Info("✅ CORS configured", zap.String("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	logger.Info("Shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
}
