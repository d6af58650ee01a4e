/**
 * @description
 * This file handles configuration management for the settlement service.
 * It loads settings from environment variables, providing defaults for the
 * cron schedule and the cycle safety knobs.
 */
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all configuration for the settlement service.
type Config struct {
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	ServerPort               string `mapstructure:"SERVER_PORT"`
	InternalAPIKey           string `mapstructure:"INTERNAL_API_KEY"`
	SettlementJobSchedule    string `mapstructure:"SETTLEMENT_JOB_SCHEDULE"`
	CycleLockTTLSeconds      int    `mapstructure:"CYCLE_LOCK_TTL_SECONDS"`
	PendingDeltaBatchSize    int    `mapstructure:"PENDING_DELTA_BATCH_SIZE"`
	PendingDeltaStaleSeconds int    `mapstructure:"PENDING_DELTA_STALE_SECONDS"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SETTLEMENT_JOB_SCHEDULE", "*/10 * * * *") // Every 10 minutes.
	viper.SetDefault("CYCLE_LOCK_TTL_SECONDS", 300)
	viper.SetDefault("PENDING_DELTA_BATCH_SIZE", 100)
	viper.SetDefault("PENDING_DELTA_STALE_SECONDS", 120)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("SETTLEMENT_JOB_SCHEDULE")
	_ = viper.BindEnv("CYCLE_LOCK_TTL_SECONDS")
	_ = viper.BindEnv("PENDING_DELTA_BATCH_SIZE")
	_ = viper.BindEnv("PENDING_DELTA_STALE_SECONDS")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return &config, nil
}
