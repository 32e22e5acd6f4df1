package config

import (
	"math/rand"
	"os"
	"strconv"
	"time"
)

// AppConfig represents the application configuration
type AppConfig struct {
	Port             string
	BaseURL          string
	Environment      string
	KVDriver         string
	KVPath           string
	CloverAPIToken   string
	CloverPakmsKey   string
	CloverProduction bool
	GHLClientID      string
	GHLClientSecret  string
	OpenSearchURL    string
	OpenSearchUser   string
	OpenSearchPass   string
	EnableLogging    bool
	LoggingLevel     string
}

var appConfigInstance *AppConfig

// GetAppConfig returns the application configuration
func GetAppConfig() *AppConfig {
	if appConfigInstance == nil {
		appConfigInstance = &AppConfig{
			Port:             GetEnv("APP_PORT", "9999"),
			BaseURL:          GetEnv("APP_URL", "http://localhost:9999"),
			Environment:      GetEnv("ENVIRONMENT", "development"),
			KVDriver:         GetEnv("KV_DRIVER", "sqlite"),
			KVPath:           GetEnv("KV_PATH", "data/cloverbridge.db"),
			CloverAPIToken:   GetEnv("CLOVER_API_TOKEN", ""),
			CloverPakmsKey:   GetEnv("CLOVER_PAKMS_KEY", ""),
			CloverProduction: GetEnv("CLOVER_ENVIRONMENT", "sandbox") == "production",
			GHLClientID:      GetEnv("GHL_CLIENT_ID", ""),
			GHLClientSecret:  GetEnv("GHL_CLIENT_SECRET", ""),
			OpenSearchURL:    GetEnv("OPENSEARCH_URL", "http://localhost:9200"),
			OpenSearchUser:   GetEnv("OPENSEARCH_USER", ""),
			OpenSearchPass:   GetEnv("OPENSEARCH_PASSWORD", ""),
			EnableLogging:    GetBoolEnv("ENABLE_OPENSEARCH_LOGGING", false),
			LoggingLevel:     GetEnv("LOGGING_LEVEL", "info"),
		}
	}
	return appConfigInstance
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBoolEnv returns the boolean value of an environment variable or a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetIntEnv returns the integer value of an environment variable or a default value
func GetIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func RandomString(length int) string {
	var charset = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rnd.Intn(len(charset))]
	}
	return string(b)
}
