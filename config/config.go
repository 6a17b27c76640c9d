package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime parameter of the application.
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string

	// ReportWindow is how long both players have to report a match
	// before the forfeit sweep takes over.
	ReportWindow time.Duration

	// StartingBalance is credited to every new account.
	StartingBalance int64

	WeeklyCreatorID       int
	WeeklyEntryFee        int64
	WeeklyPrizePool       int64
	WeeklyMaxParticipants int
	WeeklyMinParticipants int
}

// Load reads configuration from environment variables. A .env file is
// loaded first when present; its absence is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	reportWindowHours, err := intEnv("REPORT_WINDOW_HOURS", 48)
	if err != nil {
		return nil, err
	}
	if reportWindowHours <= 0 {
		return nil, fmt.Errorf("REPORT_WINDOW_HOURS must be positive, got %d", reportWindowHours)
	}

	startingBalance, err := int64Env("STARTING_BALANCE", 1000)
	if err != nil {
		return nil, err
	}

	weeklyCreatorID, err := intEnv("WEEKLY_CREATOR_ID", 1)
	if err != nil {
		return nil, err
	}
	weeklyEntryFee, err := int64Env("WEEKLY_ENTRY_FEE", 25)
	if err != nil {
		return nil, err
	}
	weeklyPrizePool, err := int64Env("WEEKLY_PRIZE_POOL", 500)
	if err != nil {
		return nil, err
	}
	weeklyMax, err := intEnv("WEEKLY_MAX_PARTICIPANTS", 64)
	if err != nil {
		return nil, err
	}
	weeklyMin, err := intEnv("WEEKLY_MIN_PARTICIPANTS", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		RedisAddr:     getEnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),

		ReportWindow:    time.Duration(reportWindowHours) * time.Hour,
		StartingBalance: startingBalance,

		WeeklyCreatorID:       weeklyCreatorID,
		WeeklyEntryFee:        weeklyEntryFee,
		WeeklyPrizePool:       weeklyPrizePool,
		WeeklyMaxParticipants: weeklyMax,
		WeeklyMinParticipants: weeklyMin,
	}

	return cfg, nil
}

// R2Configured reports whether every credential for the banner store is
// present. Banner uploads are disabled otherwise.
func (c *Config) R2Configured() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return parsed, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return parsed, nil
}
