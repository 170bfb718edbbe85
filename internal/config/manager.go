// Package config loads configuration from environment variables, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gemini-shim/internal/types"
	"gemini-shim/internal/utils"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Constants holds validation bounds and fallback values.
type Constants struct {
	MinPort         int
	MaxPort         int
	MinTimeout      int
	DefaultTimeout  int
	DefaultMaxConns int
}

// DefaultConstants provides the default validation constants
var DefaultConstants = Constants{
	MinPort:         1,
	MaxPort:         65535,
	MinTimeout:      1,
	DefaultTimeout:  600,
	DefaultMaxConns: 100,
}

// Config represents the complete application configuration
type Config struct {
	Server   types.ServerConfig
	Auth     types.AuthConfig
	CORS     types.CORSConfig
	Log      types.LogConfig
	Database types.DatabaseConfig
	Upstream types.UpstreamConfig
	Shim     types.ShimSettings

	RedisDSN      string
	EncryptionKey string
}

// Manager implements types.ConfigManager
type Manager struct {
	config *Config
}

// NewManager creates a configuration manager from the environment.
func NewManager() (types.ConfigManager, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	manager := &Manager{}
	if err := manager.ReloadConfig(); err != nil {
		return nil, err
	}
	return manager, nil
}

// ReloadConfig re-reads the environment and validates the result.
func (m *Manager) ReloadConfig() error {
	config := &Config{
		Server: types.ServerConfig{
			Port:                    parseInteger(os.Getenv("PORT"), 3001),
			Host:                    getEnvOrDefault(os.Getenv("HOST"), "0.0.0.0"),
			ReadTimeout:             parseInteger(os.Getenv("SERVER_READ_TIMEOUT"), 120),
			WriteTimeout:            parseInteger(os.Getenv("SERVER_WRITE_TIMEOUT"), 1800),
			IdleTimeout:             parseInteger(os.Getenv("SERVER_IDLE_TIMEOUT"), 120),
			GracefulShutdownTimeout: parseInteger(os.Getenv("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT"), 10),
		},
		Auth: types.AuthConfig{
			Key: os.Getenv("AUTH_KEY"),
		},
		CORS: types.CORSConfig{
			Enabled:          parseBoolean(os.Getenv("ENABLE_CORS"), false),
			AllowedOrigins:   parseArray(os.Getenv("ALLOWED_ORIGINS"), nil),
			AllowedMethods:   parseArray(os.Getenv("ALLOWED_METHODS"), []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   parseArray(os.Getenv("ALLOWED_HEADERS"), []string{"*"}),
			AllowCredentials: parseBoolean(os.Getenv("ALLOW_CREDENTIALS"), false),
		},
		Log: types.LogConfig{
			Level:      getEnvOrDefault(os.Getenv("LOG_LEVEL"), "info"),
			Format:     getEnvOrDefault(os.Getenv("LOG_FORMAT"), "text"),
			EnableFile: parseBoolean(os.Getenv("LOG_ENABLE_FILE"), false),
			FilePath:   getEnvOrDefault(os.Getenv("LOG_FILE_PATH"), "./data/logs/app.log"),
		},
		Database: types.DatabaseConfig{
			DSN: os.Getenv("DATABASE_DSN"),
		},
		Upstream: types.UpstreamConfig{
			BaseURL:               strings.TrimSuffix(os.Getenv("UPSTREAM_BASE_URL"), "/"),
			APIKey:                os.Getenv("UPSTREAM_API_KEY"),
			RequestTimeout:        parseInteger(os.Getenv("UPSTREAM_REQUEST_TIMEOUT"), DefaultConstants.DefaultTimeout),
			ConnectTimeout:        parseInteger(os.Getenv("UPSTREAM_CONNECT_TIMEOUT"), 15),
			IdleConnTimeout:       parseInteger(os.Getenv("UPSTREAM_IDLE_CONN_TIMEOUT"), 120),
			ResponseHeaderTimeout: parseInteger(os.Getenv("UPSTREAM_RESPONSE_HEADER_TIMEOUT"), 600),
			MaxIdleConns:          parseInteger(os.Getenv("UPSTREAM_MAX_IDLE_CONNS"), DefaultConstants.DefaultMaxConns),
			MaxIdleConnsPerHost:   parseInteger(os.Getenv("UPSTREAM_MAX_IDLE_CONNS_PER_HOST"), 50),
			ProxyURL:              os.Getenv("UPSTREAM_PROXY_URL"),
		},
		Shim: types.ShimSettings{
			SanitizeToolSchemas:     parseBoolean(os.Getenv("SANITIZE_TOOL_SCHEMAS"), true),
			PatchToolCallIndexes:    parseBoolean(os.Getenv("PATCH_TOOL_CALL_INDEXES"), true),
			FilterEmptyChunks:       parseBoolean(os.Getenv("FILTER_EMPTY_CHUNKS"), true),
			BridgeThoughtSignatures: parseBoolean(os.Getenv("BRIDGE_THOUGHT_SIGNATURES"), true),
			SchemaRemoveKeywords:    parseArray(os.Getenv("SCHEMA_REMOVE_KEYWORDS"), nil),
			SignatureTTL:            time.Duration(parseInteger(os.Getenv("SIGNATURE_TTL_MINUTES"), 120)) * time.Minute,
			RequestLogRetentionDays: parseInteger(os.Getenv("REQUEST_LOG_RETENTION_DAYS"), 7),
			EnableRequestBodyLog:    parseBoolean(os.Getenv("ENABLE_REQUEST_BODY_LOG"), false),
		},
		RedisDSN:      os.Getenv("REDIS_DSN"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
	}

	m.config = config
	return m.Validate()
}

// Validate checks the loaded configuration for usability.
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port < DefaultConstants.MinPort || config.Server.Port > DefaultConstants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", DefaultConstants.MinPort, DefaultConstants.MaxPort)
	}

	if config.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}
	if u, err := url.Parse(config.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("UPSTREAM_BASE_URL must be a valid http(s) URL")
	}
	if config.Upstream.RequestTimeout < DefaultConstants.MinTimeout {
		return fmt.Errorf("upstream request timeout cannot be less than %d", DefaultConstants.MinTimeout)
	}

	if config.CORS.Enabled {
		if len(config.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("ALLOWED_ORIGINS is required when CORS is enabled")
		}
		for _, origin := range config.CORS.AllowedOrigins {
			if origin == "*" {
				logrus.Warn("CORS allows all origins, do not use this in production")
			}
		}
	}

	if config.Shim.SignatureTTL < time.Minute {
		return fmt.Errorf("signature TTL cannot be less than one minute")
	}

	return nil
}

// GetAuthConfig returns authentication configuration
func (m *Manager) GetAuthConfig() types.AuthConfig {
	return m.config.Auth
}

// GetCORSConfig returns CORS configuration
func (m *Manager) GetCORSConfig() types.CORSConfig {
	return m.config.CORS
}

// GetLogConfig returns logging configuration
func (m *Manager) GetLogConfig() types.LogConfig {
	return m.config.Log
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() types.DatabaseConfig {
	return m.config.Database
}

// GetUpstreamConfig returns the upstream relay configuration
func (m *Manager) GetUpstreamConfig() types.UpstreamConfig {
	return m.config.Upstream
}

// GetShimSettings returns the interception toggles
func (m *Manager) GetShimSettings() types.ShimSettings {
	shim := m.config.Shim
	shim.SchemaRemoveKeywords = append([]string(nil), m.config.Shim.SchemaRemoveKeywords...)
	return shim
}

// GetEffectiveServerConfig returns the server configuration
func (m *Manager) GetEffectiveServerConfig() types.ServerConfig {
	return m.config.Server
}

// GetEncryptionKey returns the key protecting stored signature state
func (m *Manager) GetEncryptionKey() string {
	return m.config.EncryptionKey
}

// GetRedisDSN returns the Redis connection string
func (m *Manager) GetRedisDSN() string {
	return m.config.RedisDSN
}

// DisplayServerConfig logs an overview of the loaded configuration.
func (m *Manager) DisplayServerConfig() {
	cfg := m.config
	logrus.Info("")
	logrus.Info("======= Gemini Shim Configuration =======")
	logrus.Infof("  Listen: %s:%d", cfg.Server.Host, cfg.Server.Port)
	logrus.Infof("  Upstream: %s", cfg.Upstream.BaseURL)
	if cfg.Upstream.APIKey != "" {
		logrus.Infof("  Upstream key: %s", utils.MaskKey(cfg.Upstream.APIKey))
	}
	logrus.Infof("  Sanitize tool schemas: %v", cfg.Shim.SanitizeToolSchemas)
	logrus.Infof("  Patch tool-call indexes: %v", cfg.Shim.PatchToolCallIndexes)
	logrus.Infof("  Filter empty chunks: %v", cfg.Shim.FilterEmptyChunks)
	logrus.Infof("  Bridge thought signatures: %v (TTL %s)", cfg.Shim.BridgeThoughtSignatures, cfg.Shim.SignatureTTL)
	logrus.Infof("  Store: %s", storeKind(cfg.RedisDSN))
	logrus.Infof("  Request log: %s", requestLogKind(cfg.Database.DSN))
	logrus.Info("==========================================")
	logrus.Info("")
}

func storeKind(redisDSN string) string {
	if redisDSN != "" {
		return "redis"
	}
	return "memory"
}

func requestLogKind(dsn string) string {
	if dsn == "" {
		return "disabled"
	}
	return "enabled"
}

func getEnvOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func parseInteger(value string, defaultValue int) int {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolean(value string, defaultValue bool) bool {
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseArray(value string, defaultValue []string) []string {
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
