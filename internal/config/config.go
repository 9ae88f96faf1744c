// Package config loads application configuration from environment variables.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values. Each field maps to one
// environment variable. Database settings are required; everything else
// has a sensible default.
type Config struct {
	Env    string // application environment (dev/test/prod)
	Port   string // HTTP port to listen on
	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret for verifying bearer tokens; empty disables auth

	RabbitURL string // AMQP URL for the audit queue; empty disables auditing

	HoldTTL      time.Duration // default seat hold lifetime
	HoldMaxTTL   time.Duration // upper bound a client may request
	HoldMaxBatch int           // max seats per hold request

	ExpiryMode            string        // reservation deadline mode: before_start or fixed
	ExpiryBeforeStart     time.Duration // before_start: pending deadline offset from screening start
	ExpiryPendingTTL      time.Duration // fixed: pending lifetime from checkout
	HoldSweepEvery        string        // cron spec for the expired-hold sweep
	ReservationSweepEvery string        // cron spec for the overdue-reservation sweep
}

// Load reads configuration from the environment. Missing required
// variables are fatal; malformed optional values fall back to defaults.
func Load() Config {
	return Config{
		Env:    envStr("APP_ENV", "dev"),
		Port:   envStr("APP_PORT", "8080"),
		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		RabbitURL: envStr("RABBITMQ_URL", envStr("AMQP_URL", "")),

		HoldTTL:      envDur("HOLD_TTL", 5*time.Minute),
		HoldMaxTTL:   envDur("HOLD_MAX_TTL", time.Hour),
		HoldMaxBatch: envInt("HOLD_MAX_BATCH", 10),

		ExpiryMode:            envStr("RESERVATION_EXPIRY_MODE", "before_start"),
		ExpiryBeforeStart:     envDur("RESERVATION_EXPIRY_BEFORE_START", 30*time.Minute),
		ExpiryPendingTTL:      envDur("RESERVATION_PENDING_TTL", 15*time.Minute),
		HoldSweepEvery:        envStr("HOLD_SWEEP_EVERY", "@every 1m"),
		ReservationSweepEvery: envStr("RESERVATION_SWEEP_EVERY", "@every 5m"),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}
