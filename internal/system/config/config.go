// Package config loads and validates the service configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Security   SecurityConfig   `mapstructure:"security"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Consent    ConsentConfig    `mapstructure:"consent"`
	PII        PIIConfig        `mapstructure:"pii"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds authentication configuration.
// The JWT signing secret itself is environment-sourced, never stored in the file.
type SecurityConfig struct {
	JWTSecretEnvVar string `mapstructure:"jwt_secret_env_var"`
	JWTIssuer       string `mapstructure:"jwt_issuer"`
}

// EncryptionConfig holds field encryption key ring configuration.
// The master secret is environment-sourced; versioned field keys are derived from it.
type EncryptionConfig struct {
	KeyEnvVar       string `mapstructure:"key_env_var"`
	ActiveVersion   int    `mapstructure:"active_version"`
	RetiredVersions []int  `mapstructure:"retired_versions"`
}

// ConsentConfig holds consent lifecycle configuration
type ConsentConfig struct {
	RequiredTypes   []string      `mapstructure:"required_types"`
	DefaultValidity time.Duration `mapstructure:"default_validity"`
}

// PIIConfig holds the protected field allow-list per entity type
type PIIConfig struct {
	AllowedFields map[string][]string `mapstructure:"allowed_fields"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   string   `mapstructure:"allowed_methods"`
	AllowedHeaders   string   `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

var globalConfig *Config

// Load reads the configuration from the given path (or default search paths)
// and validates it.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("deployment")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("repository/conf")
		v.AddConfigPath("cmd/server/repository/conf")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("PII_PROTECTION")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.type", "mysql")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("security.jwt_secret_env_var", "JWT_SECRET")
	v.SetDefault("encryption.key_env_var", "ENCRYPTION_KEY")
	v.SetDefault("encryption.active_version", 1)
	v.SetDefault("consent.required_types", []string{
		"DATA_PROCESSING", "TREATMENT", "DATA_SHARING", "RESEARCH",
	})
	v.SetDefault("pii.allowed_fields", map[string][]string{
		"user":    {"email", "phone", "address"},
		"patient": {"email", "phone", "address", "diagnosis", "findings", "medical_history"},
	})
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Hostname == "" {
		return fmt.Errorf("database hostname is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Encryption.ActiveVersion < 1 {
		return fmt.Errorf("encryption active_version must be >= 1")
	}
	for _, retired := range config.Encryption.RetiredVersions {
		if retired >= config.Encryption.ActiveVersion {
			return fmt.Errorf("retired key version %d must be older than active version %d",
				retired, config.Encryption.ActiveVersion)
		}
	}

	// Secrets are environment-sourced and must be present at startup, not per request.
	if os.Getenv(config.Encryption.KeyEnvVar) == "" {
		return fmt.Errorf("encryption key environment variable %s is not set", config.Encryption.KeyEnvVar)
	}
	if os.Getenv(config.Security.JWTSecretEnvVar) == "" {
		return fmt.Errorf("JWT secret environment variable %s is not set", config.Security.JWTSecretEnvVar)
	}

	if len(config.Consent.RequiredTypes) == 0 {
		return fmt.Errorf("at least one required consent type must be configured")
	}

	return nil
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// SetGlobal sets the global configuration (for testing purposes)
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// JWTSecret returns the environment-sourced JWT signing secret.
func (s *SecurityConfig) JWTSecret() []byte {
	return []byte(os.Getenv(s.JWTSecretEnvVar))
}

// AllowedFieldsFor returns the protected field allow-list for an entity type.
func (p *PIIConfig) AllowedFieldsFor(entityType string) []string {
	return p.AllowedFields[entityType]
}

// IsFieldAllowed reports whether a field name is on the allow-list for an entity type.
func (p *PIIConfig) IsFieldAllowed(entityType, fieldName string) bool {
	for _, f := range p.AllowedFields[entityType] {
		if f == fieldName {
			return true
		}
	}
	return false
}

// IsRequiredType reports whether a consent type is part of the required set.
func (c *ConsentConfig) IsRequiredType(consentType string) bool {
	for _, t := range c.RequiredTypes {
		if t == consentType {
			return true
		}
	}
	return false
}
