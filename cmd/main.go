/**
 * @description
 * Entry point of the credential-service. Wires configuration, the PostgreSQL
 * pool, the RabbitMQ delivery producer (with a logging fallback), the
 * credential service, the HTTP router and the challenge retention job, then
 * runs the server with graceful shutdown.
 */

package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/transfa/credential-service/internal/api"
	"github.com/transfa/credential-service/internal/app"
	"github.com/transfa/credential-service/internal/config"
	"github.com/transfa/credential-service/internal/store"
	"github.com/transfa/credential-service/pkg/rabbitmq"
)

func maskAMQPURLForLog(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	// Establish database connection pool
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}

	// Configure connection pool to prevent prepared statement conflicts
	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	// Ensure required tables exist (idempotent)
	if _, err := dbpool.Exec(context.Background(), `
        CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
            email TEXT NOT NULL UNIQUE,
            phone_number TEXT UNIQUE,
            password_hash TEXT NOT NULL,
            full_name TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'member',
            status TEXT NOT NULL DEFAULT 'active',
            email_verified BOOLEAN NOT NULL DEFAULT FALSE,
            phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_login_at TIMESTAMPTZ
        );
        CREATE TABLE IF NOT EXISTS single_use_tokens (
            id UUID PRIMARY KEY,
            user_id UUID NOT NULL,
            purpose TEXT NOT NULL,
            token_hash TEXT NOT NULL UNIQUE,
            expires_at TIMESTAMPTZ NOT NULL,
            used_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_single_use_tokens_user ON single_use_tokens (user_id);
        CREATE TABLE IF NOT EXISTS otp_challenges (
            id UUID PRIMARY KEY,
            user_id UUID,
            channel TEXT NOT NULL,
            destination TEXT NOT NULL,
            code_hash TEXT NOT NULL,
            attempts INT NOT NULL DEFAULT 0,
            max_attempts INT NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL,
            verified_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_otp_challenges_destination ON otp_challenges (destination, created_at DESC);
    `); err != nil {
		log.Printf("Warning: failed ensuring tables (may already exist): %v", err)
	}

	log.Printf("RABBITMQ_URL (masked)=%s", maskAMQPURLForLog(cfg.RabbitMQURL))

	// Set up the delivery producer with a fallback so the service can start
	// without the broker.
	var publisher rabbitmq.Publisher
	if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
		log.Printf("WARNING: Failed to connect to RabbitMQ at startup: %v. Continuing with fallback publisher.", err)
		publisher = &rabbitmq.EventProducerFallback{}
	} else {
		publisher = p
		defer publisher.Close()
		log.Println("RabbitMQ producer connected")
	}

	// Set up repositories and services
	userRepo := store.NewPostgresUserRepository(dbpool)
	tokenRepo := store.NewPostgresTokenRepository(dbpool)
	challengeRepo := store.NewPostgresChallengeRepository(dbpool)

	hasher := app.NewPasswordHasher(cfg.BcryptCost)
	tokens := app.NewTokenService(tokenRepo, time.Duration(cfg.TokenTTLHours)*time.Hour)
	otp := app.NewOTPService(challengeRepo, time.Duration(cfg.OTPTTLMinutes)*time.Minute, cfg.OTPCodeLength, cfg.OTPMaxAttempts)
	svc := app.NewService(userRepo, hasher, tokens, otp, publisher, cfg.DeliveryExchange, cfg.LinkBaseURL)

	// Challenge retention job
	cleanup := app.NewChallengeCleanup(challengeRepo, time.Duration(cfg.ChallengeRetentionHours)*time.Hour)
	scheduler := app.NewScheduler(cleanup)
	scheduler.Start(cfg.ChallengeCleanupSchedule)
	defer scheduler.Stop()

	// Set up router and handlers
	handlers := api.NewCredentialHandlers(svc)
	router := api.CredentialRoutes(handlers, cfg.AllowedOrigins, cfg.GatewayJWTSecret)

	// Start the server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
