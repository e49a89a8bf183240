package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ProductCacheTTL       time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	ReturnWindowDays      int
	StoreCreditExpiryDays int
	LogLevel              string
}

type SyncConfig struct {
	APIBaseURL        string
	APIUsername       string
	APIPassword       string
	DatabaseURL       string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	BatchSize         int
	TokenRefreshEvery int
	TokenAttempts     int
	ReceiptAttempts   int
	SafetyMargin      time.Duration
	DefaultWindowDays int
	RequestTimeout    time.Duration
	ThrottleEvery     int
	ThrottlePause     time.Duration
	WatermarkPath     string
	ErrorLogPath      string
	Schedule          string
	LockTTL           time.Duration
	LogLevel          string

	AggregatesEnabled      bool
	LowStockThreshold      int
	CriticalStockThreshold int
	SummaryDays            int
	TopSellerDays          int
	Timezone               string
}

type ReportingConfig struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	JWTSecret     string
	TokenTTL      time.Duration
	APIUsername   string
	APIPassword   string
	LogLevel      string
}

// LoadDotEnv reads .env into the process environment when the file exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ProductCacheTTL:       time.Duration(getInt("PRODUCT_CACHE_TTL_SECONDS", 300, 1)) * time.Second,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: getInt("ACCESS_TOKEN_TTL_MINUTES", 480, 1),
		ReturnWindowDays:      getInt("RETURN_WINDOW_DAYS", 7, 1),
		StoreCreditExpiryDays: getInt("STORE_CREDIT_EXPIRY_DAYS", 0, 0),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}
}

func LoadSync() SyncConfig {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return SyncConfig{
		APIBaseURL:        strings.TrimRight(getEnv("OEM_API_BASE_URL", "http://127.0.0.1:8090"), "/"),
		APIUsername:       strings.TrimSpace(os.Getenv("OEM_API_USERNAME")),
		APIPassword:       os.Getenv("OEM_API_PASSWORD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisDB:           redisDB,
		BatchSize:         getInt("SYNC_BATCH_SIZE", 50, 1),
		TokenRefreshEvery: getInt("SYNC_TOKEN_REFRESH_EVERY", 50, 1),
		TokenAttempts:     getInt("SYNC_TOKEN_ATTEMPTS", 3, 1),
		ReceiptAttempts:   getInt("SYNC_RECEIPT_ATTEMPTS", 2, 1),
		SafetyMargin:      time.Duration(getInt("SYNC_SAFETY_MARGIN_MINUTES", 5, 0)) * time.Minute,
		DefaultWindowDays: getInt("SYNC_DEFAULT_WINDOW_DAYS", 90, 1),
		RequestTimeout:    time.Duration(getInt("SYNC_REQUEST_TIMEOUT_SECONDS", 60, 1)) * time.Second,
		ThrottleEvery:     getInt("SYNC_THROTTLE_EVERY", 10, 0),
		ThrottlePause:     time.Duration(getInt("SYNC_THROTTLE_PAUSE_MS", 500, 0)) * time.Millisecond,
		WatermarkPath:     getEnv("SYNC_WATERMARK_PATH", ".last_sync_time.txt"),
		ErrorLogPath:      getEnv("SYNC_ERROR_LOG_PATH", "sync_errors.log"),
		Schedule:          strings.TrimSpace(os.Getenv("SYNC_SCHEDULE")),
		LockTTL:           time.Duration(getInt("SYNC_LOCK_TTL_MINUTES", 30, 1)) * time.Minute,
		LogLevel:          getEnv("LOG_LEVEL", "info"),

		AggregatesEnabled:      getBool("SYNC_AGGREGATES", true),
		LowStockThreshold:      getInt("SYNC_LOW_STOCK_THRESHOLD", 10, 1),
		CriticalStockThreshold: getInt("SYNC_CRITICAL_STOCK_THRESHOLD", 3, 1),
		SummaryDays:            getInt("SYNC_SUMMARY_DAYS", 30, 1),
		TopSellerDays:          getInt("SYNC_TOP_SELLER_DAYS", 7, 1),
		Timezone:               getEnv("SYNC_TIMEZONE", "Africa/Lagos"),
	}
}

func LoadReporting() ReportingConfig {
	return ReportingConfig{
		Port:          getEnv("REPORTING_PORT", "8090"),
		AllowedOrigin: getEnv("REPORTING_ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:   os.Getenv("REPORTING_DATABASE_URL"),
		JWTSecret:     strings.TrimSpace(os.Getenv("REPORTING_JWT_SECRET")),
		TokenTTL:      time.Duration(getInt("REPORTING_TOKEN_TTL_MINUTES", 30, 1)) * time.Minute,
		APIUsername:   strings.TrimSpace(os.Getenv("REPORTING_API_USERNAME")),
		APIPassword:   os.Getenv("REPORTING_API_PASSWORD"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReturnWindow() time.Duration {
	return time.Duration(c.ReturnWindowDays) * 24 * time.Hour
}

func (c ReportingConfig) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt parses an integer variable, falling back when it is unset,
// malformed or below floor.
func getInt(key string, fallback int, floor int) int {
	val, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || val < floor {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return val
}
