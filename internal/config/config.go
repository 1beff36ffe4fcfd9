/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables, with an
 * optional .env file for local development, and applies sanity clamps so a
 * misconfigured deployment degrades to safe defaults instead of crashing.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the credential-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	DeliveryExchange         string `mapstructure:"DELIVERY_EXCHANGE"`
	LinkBaseURL              string `mapstructure:"LINK_BASE_URL"`
	AllowedOrigins           string `mapstructure:"ALLOWED_ORIGINS"`
	GatewayJWTSecret         string `mapstructure:"GATEWAY_JWT_SECRET"`
	BcryptCost               int    `mapstructure:"BCRYPT_COST"`
	TokenTTLHours            int    `mapstructure:"TOKEN_TTL_HOURS"`
	OTPTTLMinutes            int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPCodeLength            int    `mapstructure:"OTP_CODE_LENGTH"`
	OTPMaxAttempts           int    `mapstructure:"OTP_MAX_ATTEMPTS"`
	ChallengeCleanupSchedule string `mapstructure:"CHALLENGE_CLEANUP_SCHEDULE"`
	ChallengeRetentionHours  int    `mapstructure:"CHALLENGE_RETENTION_HOURS"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("DELIVERY_EXCHANGE", "credential_events")
	viper.SetDefault("LINK_BASE_URL", "https://app.example.com")
	viper.SetDefault("ALLOWED_ORIGINS", "*")
	viper.SetDefault("BCRYPT_COST", 12)
	viper.SetDefault("TOKEN_TTL_HOURS", 24)
	viper.SetDefault("OTP_TTL_MINUTES", 10)
	viper.SetDefault("OTP_CODE_LENGTH", 6)
	viper.SetDefault("OTP_MAX_ATTEMPTS", 3)
	viper.SetDefault("CHALLENGE_CLEANUP_SCHEDULE", "0 * * * *")
	viper.SetDefault("CHALLENGE_RETENTION_HOURS", 24)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("DELIVERY_EXCHANGE")
	_ = viper.BindEnv("LINK_BASE_URL")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("GATEWAY_JWT_SECRET")
	_ = viper.BindEnv("BCRYPT_COST")
	_ = viper.BindEnv("TOKEN_TTL_HOURS")
	_ = viper.BindEnv("OTP_TTL_MINUTES")
	_ = viper.BindEnv("OTP_CODE_LENGTH")
	_ = viper.BindEnv("OTP_MAX_ATTEMPTS")
	_ = viper.BindEnv("CHALLENGE_CLEANUP_SCHEDULE")
	_ = viper.BindEnv("CHALLENGE_RETENTION_HOURS")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	// Platform-provided PORT (Railway/Render) wins over SERVER_PORT.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	if strings.TrimSpace(config.DatabaseURL) == "" {
		err = errors.New("DATABASE_URL is required")
		return
	}

	if config.TokenTTLHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive token TTL configured; using 24h\" ttl_hours=%d", config.TokenTTLHours)
		config.TokenTTLHours = 24
	}
	if config.OTPTTLMinutes <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive OTP TTL configured; using 10m\" ttl_minutes=%d", config.OTPTTLMinutes)
		config.OTPTTLMinutes = 10
	}
	if config.OTPCodeLength < 4 || config.OTPCodeLength > 10 {
		log.Printf("level=warn component=config msg=\"OTP code length out of range; using 6\" length=%d", config.OTPCodeLength)
		config.OTPCodeLength = 6
	}
	if config.OTPMaxAttempts <= 0 {
		config.OTPMaxAttempts = 3
	}
	if config.ChallengeRetentionHours <= 0 {
		config.ChallengeRetentionHours = 24
	}
	if strings.TrimSpace(config.ChallengeCleanupSchedule) == "" {
		config.ChallengeCleanupSchedule = "0 * * * *"
	}

	return
}
