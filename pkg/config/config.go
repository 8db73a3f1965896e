package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig represents chat server configuration
type ServerConfig struct {
	ChatAddress    string         `yaml:"chat_address"`
	GatewayAddress string         `yaml:"gateway_address"`
	AdminAddress   string         `yaml:"admin_address"`
	Database       DatabaseConfig `yaml:"database"`
	Logging        LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig represents database settings
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite | mysql
	Path string `yaml:"path"` // file path for sqlite, DSN for mysql
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		ChatAddress:    ":5000",
		GatewayAddress: "",
		AdminAddress:   "",
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "./chat.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*ServerConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, config *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(config *ServerConfig) {
	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		config.ChatAddress = addr
	}

	if addr := os.Getenv("GATEWAY_ADDR"); addr != "" {
		config.GatewayAddress = addr
	}

	if addr := os.Getenv("ADMIN_ADDR"); addr != "" {
		config.AdminAddress = addr
	}

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}

	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
}

// Validate validates the configuration
func (c *ServerConfig) Validate() error {
	if c.ChatAddress == "" {
		return fmt.Errorf("chat address cannot be empty")
	}

	switch c.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *ServerConfig) String() string {
	return fmt.Sprintf("Config{Chat: %s, Gateway: %s, Admin: %s, DB: %s/%s, LogLevel: %s}",
		c.ChatAddress, c.GatewayAddress, c.AdminAddress,
		c.Database.Type, c.Database.Path, c.Logging.Level)
}
