package types

import "time"

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetAuthConfig() AuthConfig
	GetCORSConfig() CORSConfig
	GetLogConfig() LogConfig
	GetDatabaseConfig() DatabaseConfig
	GetUpstreamConfig() UpstreamConfig
	GetShimSettings() ShimSettings
	GetEffectiveServerConfig() ServerConfig
	GetEncryptionKey() string
	GetRedisDSN() string
	Validate() error
	DisplayServerConfig()
	ReloadConfig() error
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port                    int    `json:"port"`
	Host                    string `json:"host"`
	ReadTimeout             int    `json:"read_timeout"`
	WriteTimeout            int    `json:"write_timeout"`
	IdleTimeout             int    `json:"idle_timeout"`
	GracefulShutdownTimeout int    `json:"graceful_shutdown_timeout"`
}

// AuthConfig represents management API authentication configuration
type AuthConfig struct {
	Key string `json:"key"`
}

// CORSConfig represents CORS configuration
type CORSConfig struct {
	Enabled          bool     `json:"enabled"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"`
	EnableFile bool   `json:"enable_file"`
	FilePath   string `json:"file_path"`
}

// DatabaseConfig represents database connection configuration.
// An empty DSN disables the request audit log entirely.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

// UpstreamConfig represents the single upstream this shim relays to
type UpstreamConfig struct {
	BaseURL               string `json:"base_url"`
	APIKey                string `json:"-"`
	RequestTimeout        int    `json:"request_timeout"`
	ConnectTimeout        int    `json:"connect_timeout"`
	IdleConnTimeout       int    `json:"idle_conn_timeout"`
	ResponseHeaderTimeout int    `json:"response_header_timeout"`
	MaxIdleConns          int    `json:"max_idle_conns"`
	MaxIdleConnsPerHost   int    `json:"max_idle_conns_per_host"`
	ProxyURL              string `json:"proxy_url"`
}

// ShimSettings holds the per-behavior toggles for the interception pipeline.
// Each toggle maps to one repair the shim applies to traffic in flight.
type ShimSettings struct {
	SanitizeToolSchemas     bool          `json:"sanitize_tool_schemas"`
	PatchToolCallIndexes    bool          `json:"patch_tool_call_indexes"`
	FilterEmptyChunks       bool          `json:"filter_empty_chunks"`
	BridgeThoughtSignatures bool          `json:"bridge_thought_signatures"`
	SchemaRemoveKeywords    []string      `json:"schema_remove_keywords"`
	SignatureTTL            time.Duration `json:"signature_ttl"`
	RequestLogRetentionDays int           `json:"request_log_retention_days"`
	EnableRequestBodyLog    bool          `json:"enable_request_body_log"`
}
