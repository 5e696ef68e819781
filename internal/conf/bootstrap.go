// Package conf provides configuration management using Viper.
// It supports loading configuration from YAML files and environment variables,
// with CLI flag overrides.
package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/protobuf/types/known/durationpb"
)

// NewBootstrap creates and initializes a Bootstrap configuration.
// It loads configuration from the specified config file path, applies
// defaults, and allows overrides from environment variables prefixed with
// ESCROWLANE_.
//
// Configuration priority: CLI flags > Environment variables > Config file > Defaults
//
// Required environment variables:
//   - MYSQL_DSN or ESCROWLANE_DATA_DATABASE_SOURCE: MySQL connection string
//   - ENCRYPTION_KEY or ESCROWLANE_AUTH_ENCRYPTION_KEY: signer secret encryption key
func NewBootstrap(configPath string) (*Bootstrap, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("ESCROWLANE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow direct environment variable names (without ESCROWLANE_ prefix) for compatibility
	_ = v.BindEnv("data.database.source", "MYSQL_DSN", "ESCROWLANE_DATA_DATABASE_SOURCE")
	_ = v.BindEnv("data.redis.addr", "ESCROWLANE_DATA_REDIS_ADDR")
	_ = v.BindEnv("data.nats.url", "NATS_URL", "ESCROWLANE_DATA_NATS_URL")
	_ = v.BindEnv("data.transfer.url", "TRANSFER_URL", "ESCROWLANE_DATA_TRANSFER_URL")
	_ = v.BindEnv("auth.encryption.key", "ENCRYPTION_KEY", "ESCROWLANE_AUTH_ENCRYPTION_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	bc := &Bootstrap{
		Server: &Server{
			Http: &ServerHTTP{
				Network: v.GetString("server.http.network"),
				Addr:    v.GetString("server.http.addr"),
				Timeout: durationpb.New(v.GetDuration("server.http.timeout")),
			},
		},
		Data: &Data{
			Database: &Database{
				Driver: v.GetString("data.database.driver"),
				Source: v.GetString("data.database.source"),
			},
			Redis: &Redis{
				Network:      v.GetString("data.redis.network"),
				Addr:         v.GetString("data.redis.addr"),
				ReadTimeout:  durationpb.New(v.GetDuration("data.redis.read_timeout")),
				WriteTimeout: durationpb.New(v.GetDuration("data.redis.write_timeout")),
			},
			Nats: &Nats{
				Url:     v.GetString("data.nats.url"),
				Subject: v.GetString("data.nats.subject"),
			},
			Transfer: &Transfer{
				Url:     v.GetString("data.transfer.url"),
				Timeout: durationpb.New(v.GetDuration("data.transfer.timeout")),
			},
		},
		Auth: &Auth{
			Encryption: &Encryption{
				Key: v.GetString("auth.encryption.key"),
			},
		},
		Log: &Log{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			OutputFile: v.GetString("log.output_file"),
		},
		Thresholds: &Thresholds{
			FailureRateThreshold:   v.GetUint32("thresholds.failure_rate_threshold"),
			OutflowVolumeThreshold: v.GetInt64("thresholds.outflow_volume_threshold"),
			MaxSinglePayout:        v.GetInt64("thresholds.max_single_payout"),
			TimeWindowSecs:         v.GetUint64("thresholds.time_window_secs"),
			CooldownPeriodSecs:     v.GetUint64("thresholds.cooldown_period_secs"),
			CooldownMultiplier:     v.GetUint32("thresholds.cooldown_multiplier"),
		},
	}

	if err := Validate(bc); err != nil {
		return nil, err
	}

	return bc, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.http.network", "tcp")
	v.SetDefault("server.http.addr", ":8080")
	v.SetDefault("server.http.timeout", 30*time.Second)

	// Data defaults
	v.SetDefault("data.database.driver", "mysql")
	// Note: data.database.source (MYSQL_DSN) is required from environment

	v.SetDefault("data.redis.network", "tcp")
	v.SetDefault("data.redis.addr", "127.0.0.1:6379")
	v.SetDefault("data.redis.read_timeout", 200*time.Millisecond)
	v.SetDefault("data.redis.write_timeout", 200*time.Millisecond)

	v.SetDefault("data.nats.subject", "escrow.events")
	v.SetDefault("data.transfer.timeout", 10*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Threshold defaults mirror the conservative built-in configuration:
	// 10 failures or 5M tokens (7 decimals) outflow per 10-minute window,
	// 500K token single-payout cap, 5-minute cooldown doubling per breach.
	v.SetDefault("thresholds.failure_rate_threshold", 10)
	v.SetDefault("thresholds.outflow_volume_threshold", int64(5_000_000_0000000))
	v.SetDefault("thresholds.max_single_payout", int64(500_000_0000000))
	v.SetDefault("thresholds.time_window_secs", 600)
	v.SetDefault("thresholds.cooldown_period_secs", 300)
	v.SetDefault("thresholds.cooldown_multiplier", 2)
}

// Validate checks that all required configuration fields are present and valid.
// It returns an error listing all missing required fields.
func Validate(bc *Bootstrap) error {
	var missingFields []string

	if bc.Data == nil || bc.Data.Database == nil || bc.Data.Database.Source == "" {
		missingFields = append(missingFields, "data.database.source (MYSQL_DSN)")
	}

	if bc.Auth == nil || bc.Auth.Encryption == nil || bc.Auth.Encryption.Key == "" {
		missingFields = append(missingFields, "auth.encryption.key (ENCRYPTION_KEY)")
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration fields: %s", strings.Join(missingFields, ", "))
	}

	return nil
}
