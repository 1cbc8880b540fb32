package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"commission-observer/src/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the YAML file.
const (
	EnvAPIToken  = "DERIV_API_TOKEN"
	EnvAppID     = "DERIV_APP_ID"
	EnvEndpoint  = "DERIV_ENDPOINT"
	EnvServerURL = "DERIV_SERVER_URL"
)

// -----------------------------------------------------------------------------

// Config wraps models.MConfig and provides business logic methods
type Config struct {
	*models.MConfig
}

// -----------------------------------------------------------------------------

// NewConfig reads the YAML file, overlays .env and process environment,
// fills defaults and validates the result.
func NewConfig(configPath string) (*Config, error) {
	// 1. Read the YAML file content
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", configPath, err)
	}

	// 2. Unmarshal data into the models struct
	var modelConfig models.MConfig
	if err := yaml.Unmarshal(data, &modelConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	config := &Config{MConfig: &modelConfig}

	// 3. Secrets usually live in .env, never in the YAML file
	if err := loadDotEnv(configPath); err != nil {
		return nil, err
	}
	config.ApplyEnv()
	config.ApplyDefaults()

	// 4. Validate the loaded configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// -----------------------------------------------------------------------------

// loadDotEnv loads the first .env found beside the config file or in the
// working directory. Variables already set in the process win. A file that
// exists but does not parse is an error.
func loadDotEnv(configPath string) error {
	paths := []string{filepath.Join(filepath.Dir(configPath), ".env")}
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return fmt.Errorf("failed to load env file '%s': %w", path, err)
			}
			return nil
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// ApplyEnv overrides connection settings from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvAPIToken)); v != "" {
		c.Deriv.APIToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAppID)); v != "" {
		c.Deriv.AppID = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		c.Deriv.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		c.Deriv.ServerURL = v
	}
}

// -----------------------------------------------------------------------------

// ApplyDefaults fills every optional field left empty.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "commission-observer"
	}
	if c.LogLevel == "" {
		c.LogLevel = "INFO"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.GrpcHost == "" {
		c.GrpcHost = c.Host
	}

	if c.Deriv.Endpoint == "" {
		c.Deriv.Endpoint = models.DefaultEndpoint
	}
	if c.Deriv.AuthorizeTimeoutSeconds == 0 {
		c.Deriv.AuthorizeTimeoutSeconds = 10
	}
	if c.Deriv.RequestTimeoutSeconds == 0 {
		c.Deriv.RequestTimeoutSeconds = 15
	}
	if c.Deriv.ConnectRetries == 0 {
		c.Deriv.ConnectRetries = 3
	}

	if c.Dashboard.RefreshIntervalSeconds == 0 {
		c.Dashboard.RefreshIntervalSeconds = 300
	}
	if c.Dashboard.HistoryDays == 0 {
		c.Dashboard.HistoryDays = 30
	}

	if c.Storage.DBType == "" {
		c.Storage.DBType = "sqlite"
	}
	if c.Storage.DBType == "sqlite" && c.Storage.DBPath == "" {
		c.Storage.DBPath = "commission.db"
	}
	if c.Storage.RetentionDays == 0 {
		c.Storage.RetentionDays = 90
	}

	if c.TokenStore.Key == "" {
		c.TokenStore.Key = "commission-observer:credentials"
	}
	if c.Publisher.Topic == "" {
		c.Publisher.Topic = "commission-reports"
	}
}

// -----------------------------------------------------------------------------

// Validate performs basic configuration validation
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	// Validate Server configuration (Flattened)
	if c.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Port <= 1024 || c.Port > 65535 {
		return fmt.Errorf("invalid server port number: %d (must be between 1025 and 65535)", c.Port)
	}
	if c.GrpcPort != 0 && (c.GrpcPort <= 1024 || c.GrpcPort > 65535) {
		return fmt.Errorf("invalid grpc port number: %d (must be between 1025 and 65535)", c.GrpcPort)
	}
	if c.GrpcPort != 0 && c.GrpcPort == c.Port && c.GrpcHost == c.Host {
		return fmt.Errorf("grpc port %d collides with the http port", c.GrpcPort)
	}

	// Validate platform connection
	if c.Deriv.AppID == "" {
		return fmt.Errorf("deriv app_id cannot be empty (set it in the config or %s)", EnvAppID)
	}
	if _, err := c.ConnectionConfig().URL(); err != nil {
		return fmt.Errorf("invalid deriv endpoint: %w", err)
	}
	if c.Deriv.AuthorizeTimeoutSeconds < 0 || c.Deriv.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("deriv timeouts cannot be negative")
	}
	if c.Deriv.ConnectRetries < 0 {
		return fmt.Errorf("connect retries cannot be negative")
	}

	// Validate Dashboard configuration
	if c.Dashboard.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("refresh interval cannot be negative")
	}
	if c.Dashboard.HistoryDays <= 0 {
		return fmt.Errorf("history days must be greater than 0")
	}

	// Validate Storage configuration
	switch c.Storage.DBType {
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("database path cannot be empty for sqlite")
		}
	case "postgres":
		if c.Storage.DBConnectionString == "" {
			return fmt.Errorf("connection string cannot be empty for postgres")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported database type '%s'", c.Storage.DBType)
	}
	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days cannot be negative")
	}

	// Optional collaborators
	if c.TokenStore.Enabled && c.TokenStore.RedisURL == "" {
		return fmt.Errorf("token store enabled without redis_url")
	}
	if c.Publisher.Enabled && len(c.Publisher.Brokers) == 0 {
		return fmt.Errorf("publisher enabled without brokers")
	}

	return nil
}

// -----------------------------------------------------------------------------

// ConnectionConfig projects the settings a Session is built from.
func (c *Config) ConnectionConfig() models.MConnectionConfig {
	return models.MConnectionConfig{
		Endpoint:    c.Deriv.Endpoint,
		AppID:       c.Deriv.AppID,
		AccessToken: c.Deriv.APIToken,
		ServerURL:   c.Deriv.ServerURL,
	}
}

// AuthorizeTimeout and RequestTimeout convert the configured seconds.
func (c *Config) AuthorizeTimeout() time.Duration {
	return time.Duration(c.Deriv.AuthorizeTimeoutSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Deriv.RequestTimeoutSeconds) * time.Second
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Dashboard.RefreshIntervalSeconds) * time.Second
}

// -----------------------------------------------------------------------------

// Save persists the current configuration to the specified YAML file path.
// The API token is never written back.
func (c *Config) Save(configPath string) error {
	out := *c.MConfig
	out.Deriv.APIToken = ""

	// 1. Marshal the struct to YAML
	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// 2. Write to file (0644 permissions)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to file '%s': %w", configPath, err)
	}

	return nil
}
