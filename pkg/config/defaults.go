// Package config provides centralized default values for the StoryKeep console
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.Trim(strings.TrimSpace(value), `"`)

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	AllowedOrigins     []string

	// Backend Configuration
	BackendURL      string
	DefaultTenantID string
	BackendTimeout  time.Duration
	ConfigRoot      string

	// Analytics Window
	MaxAnalyticsHours  int
	DefaultWindowHours int
	ViewerTimezone     string

	// Fetch Service Timing
	AnalyticsCacheTTL   time.Duration
	FetchDebounce       time.Duration
	PollInterval        time.Duration
	MaxPollAttempts     int
	FloodWindow         time.Duration
	FloodThreshold      int
	FloodCooldown       time.Duration
	ApplySuccessHold    time.Duration
	DashboardRetryDelay []time.Duration

	// Console Protection
	ConsoleRateLimit float64
	ConsoleRateBurst int

	// Session Cleanup
	CleanupInterval  time.Duration
	CleanupVerbose   bool
	DashboardIdleTTL time.Duration
	ContentMapTTL    time.Duration
	ContentMapMaxAge time.Duration

	// Tenant Defaults
	JWTSecret   string
	MultiTenant bool

	// Logging
	LogJSONFormat bool
	LogToFile     bool
	LogDirectory  string
	LogLevel      string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "4322")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	AllowedOrigins = strings.Split(getEnvString("ALLOWED_ORIGINS", "http://localhost:4321,http://127.0.0.1:4321,http://[::1]:4321"), ",")

	// Backend Configuration
	BackendURL = strings.TrimRight(getEnvString("BACKEND_URL", "http://localhost:8080"), "/")
	DefaultTenantID = getEnvString("TENANT_ID", "default")
	BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 30*time.Second)
	ConfigRoot = getEnvString("CONFIG_ROOT", "")

	// Analytics Window
	MaxAnalyticsHours = getEnvInt("MAX_ANALYTICS_HOURS", 672)
	DefaultWindowHours = getEnvInt("DEFAULT_WINDOW_HOURS", 168)
	ViewerTimezone = getEnvString("VIEWER_TIMEZONE", "Local")

	// Fetch Service Timing
	AnalyticsCacheTTL = time.Duration(getEnvInt("ANALYTICS_CACHE_TTL_SECONDS", 5)) * time.Second
	FetchDebounce = time.Duration(getEnvInt("FETCH_DEBOUNCE_MS", 300)) * time.Millisecond
	PollInterval = time.Duration(getEnvInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond
	MaxPollAttempts = getEnvInt("MAX_POLL_ATTEMPTS", 60)
	FloodWindow = time.Duration(getEnvInt("FLOOD_WINDOW_MS", 10000)) * time.Millisecond
	FloodThreshold = getEnvInt("FLOOD_THRESHOLD", 5)
	FloodCooldown = time.Duration(getEnvInt("FLOOD_COOLDOWN_MS", 30000)) * time.Millisecond
	ApplySuccessHold = time.Duration(getEnvInt("APPLY_SUCCESS_HOLD_MS", 1000)) * time.Millisecond
	DashboardRetryDelay = []time.Duration{
		getEnvDuration("DASHBOARD_RETRY_DELAY_1", 2*time.Second),
		getEnvDuration("DASHBOARD_RETRY_DELAY_2", 5*time.Second),
		getEnvDuration("DASHBOARD_RETRY_DELAY_3", 10*time.Second),
	}

	// Console Protection
	ConsoleRateLimit = float64(getEnvInt("CONSOLE_RATE_LIMIT", 20))
	ConsoleRateBurst = getEnvInt("CONSOLE_RATE_BURST", 40)

	// Session Cleanup
	CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 5*time.Minute)
	CleanupVerbose = getEnvBool("CLEANUP_VERBOSE", false)
	DashboardIdleTTL = getEnvDuration("DASHBOARD_IDLE_TTL", 2*time.Hour)
	ContentMapTTL = getEnvDuration("CONTENT_MAP_TTL", time.Minute)
	ContentMapMaxAge = getEnvDuration("CONTENT_MAP_MAX_AGE", 24*time.Hour)

	// Tenant Defaults
	JWTSecret = os.Getenv("JWT_SECRET") // never logged
	MultiTenant = getEnvBool("ENABLE_MULTI_TENANT", false)

	// Logging
	LogJSONFormat = getEnvString("LOG_FORMAT", "json") == "json"
	LogToFile = getEnvBool("LOG_TO_FILE", false)
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogLevel = getEnvString("LOG_LEVEL", "info")
}
