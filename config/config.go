package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	KeyPort            = "port"
	KeyDatabaseType    = "database_type"
	KeyDatabaseURL     = "database_url"
	KeyRedisURL        = "redis_url"
	KeyLogLevel        = "log_level"
	KeyEnvironment     = "environment"
	KeyFrontendURL     = "frontend_url"
	KeyAdminURL        = "admin_url"
	KeyCORSOrigins     = "cors_origins"
	KeyFirebaseBucket  = "firebase_storage_bucket"
	KeyFirebaseCreds   = "google_application_credentials"
	KeyBalanceCacheTTL = "balance_cache_ttl"
)

type Config struct {
	Port            string
	DatabaseType    string
	DatabaseURL     string
	RedisURL        string
	LogLevel        string
	Environment     string
	AllowedOrigins  []string
	FirebaseBucket  string
	FirebaseCreds   string
	BalanceCacheTTL time.Duration
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// FirebaseEnabled reports whether Firebase sign-in and storage should start.
func (c *Config) FirebaseEnabled() bool {
	return c.FirebaseCreds != "" || c.FirebaseBucket != ""
}

// LoadEnv reads a .env file when one exists. Deployed environments set the
// variables directly, so a missing file is not an error.
func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		return nil
	}
	return nil
}

// ValidateEnv checks that critical environment variables are set.
// Returns an error if any critical variable is missing.
func ValidateEnv() error {
	var missing []string

	if os.Getenv("JWT_SECRET") == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if os.Getenv("DATABASE_URL") == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return fmt.Errorf("critical environment variables not set: %v", missing)
	}

	warnings := map[string]string{
		"FIREBASE_STORAGE_BUCKET":        "product image uploads will fail",
		"GOOGLE_APPLICATION_CREDENTIALS": "Firebase sign-in may not work",
		"FRONTEND_URL":                   "CORS may not work correctly",
		"REDIS_URL":                      "balance cache disabled",
		"SMTP_HOST":                      "email notifications will not work",
		"SMTP_FROM":                      "email notifications will not work",
	}
	for key, consequence := range warnings {
		if os.Getenv(key) == "" {
			zap.L().Warn("environment variable not set", zap.String("key", key), zap.String("effect", consequence))
		}
	}

	return nil
}

func GetEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// NewViper returns a viper instance reading the process environment, with
// service defaults applied. Command flags are bound onto it by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyDatabaseType, "postgres")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyEnvironment, "production")
	v.SetDefault(KeyFrontendURL, "http://localhost:3000")
	v.SetDefault(KeyBalanceCacheTTL, 5*time.Minute)

	_ = v.BindEnv(KeyEnvironment, "APP_ENV")
	return v
}

// Load assembles the typed configuration from v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:            v.GetString(KeyPort),
		DatabaseType:    strings.ToLower(v.GetString(KeyDatabaseType)),
		DatabaseURL:     v.GetString(KeyDatabaseURL),
		RedisURL:        v.GetString(KeyRedisURL),
		LogLevel:        v.GetString(KeyLogLevel),
		Environment:     v.GetString(KeyEnvironment),
		FirebaseBucket:  v.GetString(KeyFirebaseBucket),
		FirebaseCreds:   v.GetString(KeyFirebaseCreds),
		BalanceCacheTTL: v.GetDuration(KeyBalanceCacheTTL),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	switch cfg.DatabaseType {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DatabaseType)
	}

	cfg.AllowedOrigins = allowedOrigins(
		v.GetString(KeyFrontendURL),
		v.GetString(KeyAdminURL),
		v.GetString(KeyCORSOrigins),
	)
	return cfg, nil
}

func allowedOrigins(frontend, admin, extra string) []string {
	seen := map[string]bool{}
	var origins []string
	add := func(o string) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			return
		}
		seen[o] = true
		origins = append(origins, o)
	}
	add(frontend)
	add(admin)
	for _, o := range strings.Split(extra, ",") {
		add(o)
	}
	return origins
}
