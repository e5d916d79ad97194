package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port    int           `mapstructure:"port"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig points the task store at a SQLite DSN. The default is an
// in-process memory database, so state resets on restart.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type AuthConfig struct {
	// KeyEndpoints is the ordered list of identity-service URLs that serve
	// the current signing public key as PEM. The first non-empty response
	// wins.
	KeyEndpoints      []string      `mapstructure:"key_endpoints"`
	KeyFetchTimeout   time.Duration `mapstructure:"key_fetch_timeout"`
	KeyRefreshCron    string        `mapstructure:"key_refresh_cron"`
	TrustedHeaderAuth bool          `mapstructure:"trusted_header_auth"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type EventsConfig struct {
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// If CONFIG_FILE environment variable is set, use it
	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		name := strings.TrimSuffix(file, filepath.Ext(file))

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("database.dsn", "file::memory:?cache=shared")
	v.SetDefault("auth.key_fetch_timeout", 5*time.Second)
	v.SetDefault("auth.trusted_header_auth", true)
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("events.subscriber_buffer", 64)
	v.SetDefault("logging.level", "info")

	// Config file is optional; env vars and defaults are enough to boot.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error loading config file: %v", err)
		}
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	envVars := map[string]string{
		"server.port":              "SERVER_PORT",
		"server.mode":              "SERVER_MODE",
		"server.timeout":           "SERVER_TIMEOUT",
		"database.dsn":             "DATABASE_DSN",
		"auth.key_endpoints":       "AUTH_KEY_ENDPOINTS",
		"auth.key_fetch_timeout":   "AUTH_KEY_FETCH_TIMEOUT",
		"auth.key_refresh_cron":    "AUTH_KEY_REFRESH_CRON",
		"auth.trusted_header_auth": "AUTH_TRUSTED_HEADER_AUTH",
		"events.subscriber_buffer": "EVENTS_SUBSCRIBER_BUFFER",
		"logging.level":            "LOG_LEVEL",
	}

	for configKey, envVar := range envVars {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		switch envVar {
		case "SERVER_PORT", "EVENTS_SUBSCRIBER_BUFFER":
			if intVal, err := strconv.Atoi(value); err == nil {
				v.Set(configKey, intVal)
			}
		case "SERVER_TIMEOUT", "AUTH_KEY_FETCH_TIMEOUT":
			if d, err := time.ParseDuration(value); err == nil {
				v.Set(configKey, d)
			}
		case "AUTH_KEY_ENDPOINTS":
			v.Set(configKey, strings.Split(value, ","))
		case "AUTH_TRUSTED_HEADER_AUTH":
			v.Set(configKey, value == "true" || value == "1")
		default:
			v.Set(configKey, value)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return &config, nil
}
