package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Identity   IdentityConfig
	Cloudinary CloudinaryConfig
	AMQP       AMQPConfig
	Dashboard  DashboardConfig
	Jobs       JobsConfig
}

type ServerConfig struct {
	Port           string
	GinMode        string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL          string
	Driver       string // "postgres" or "memory"
	MaxIdleConns int
	MaxOpenConns int
	LogLevel     string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type IdentityConfig struct {
	DefaultWorkerPassword string
	AdminEmail            string
	AdminPassword         string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Enabled reports whether all Cloudinary credentials are set
func (c CloudinaryConfig) Enabled() bool {
	return c.CloudName != "" && c.APIKey != "" && c.APISecret != ""
}

type AMQPConfig struct {
	URL            string
	StatusExchange string
}

type DashboardConfig struct {
	TimeZone string
}

// Location resolves the dashboard time zone, falling back to UTC
func (d DashboardConfig) Location() *time.Location {
	if d.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type JobsConfig struct {
	ReconcileIntervalSeconds int
}

var AppConfig *Config

// Load reads the configuration from the environment
func Load() *Config {
	AppConfig = &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			GinMode:        getEnv("GIN_MODE", "debug"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			URL:          getEnv("DB_URL", ""),
			Driver:       getEnv("STORE_DRIVER", "postgres"),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "your-super-secret-jwt-key-change-this-in-production"),
			ExpiryHours: getEnvAsInt("JWT_EXPIRY_HOURS", 24),
		},
		Identity: IdentityConfig{
			DefaultWorkerPassword: getEnv("DEFAULT_WORKER_PASSWORD", "test@123"),
			AdminEmail:            getEnv("ADMIN_EMAIL", ""),
			AdminPassword:         getEnv("ADMIN_PASSWORD", ""),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
			Folder:    getEnv("CLOUDINARY_FOLDER", "workers/id_documents"),
		},
		AMQP: AMQPConfig{
			URL:            getEnv("AMQP_URL", ""),
			StatusExchange: getEnv("AMQP_STATUS_EXCHANGE", "order_status_fanout"),
		},
		Dashboard: DashboardConfig{
			TimeZone: getEnv("DASHBOARD_TIMEZONE", "UTC"),
		},
		Jobs: JobsConfig{
			ReconcileIntervalSeconds: getEnvAsInt("RECONCILE_INTERVAL_SECONDS", 300),
		},
	}
	return AppConfig
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
