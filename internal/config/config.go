package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AdminPassword         string
	AdminPasswordHash     string
	DirectStockUpdates    bool
	ReportCacheTTLSeconds int
	ReconcileSchedule     string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	reportTTL, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "30"))
	if err != nil || reportTTL < 1 {
		reportTTL = 30
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AdminPassword:         strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		AdminPasswordHash:     strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH")),
		DirectStockUpdates:    getEnv("DIRECT_STOCK_UPDATES", "allow") != "deny",
		ReportCacheTTLSeconds: reportTTL,
		ReconcileSchedule:     getEnv("RECONCILE_SCHEDULE", "0 * * * *"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
