package models

// MConfig Structure
type MConfig struct {
	Name       string            `yaml:"name"`
	Host       string            `yaml:"host"`
	Port       int               `yaml:"port"`
	LogLevel   string            `yaml:"log_level"`
	GrpcHost   string            `yaml:"grpc_host"`
	GrpcPort   int               `yaml:"grpc_port"`
	Deriv      MDerivConfig      `yaml:"deriv"`
	Dashboard  MDashboardConfig  `yaml:"dashboard"`
	Storage    MStorageConfig    `yaml:"storage"`
	TokenStore MTokenStoreConfig `yaml:"token_store"`
	Publisher  MPublisherConfig  `yaml:"publisher"`
}

type MDerivConfig struct {
	Endpoint                string `yaml:"endpoint"`
	ServerURL               string `yaml:"server_url"` // Optional alternate server
	AppID                   string `yaml:"app_id"`
	APIToken                string `yaml:"api_token"` // Prefer DERIV_API_TOKEN
	AuthorizeTimeoutSeconds int    `yaml:"authorize_timeout_seconds"`
	RequestTimeoutSeconds   int    `yaml:"request_timeout_seconds"`
	ConnectRetries          int    `yaml:"connect_retries"`
}

type MDashboardConfig struct {
	RefreshIntervalSeconds int `yaml:"refresh_interval_seconds"`
	HistoryDays            int `yaml:"history_days"`
}

type MStorageConfig struct {
	DBType             string `yaml:"db_type"`
	DBPath             string `yaml:"db_path"`
	DBConnectionString string `yaml:"db_connection_string"`
	Schema             string `yaml:"schema"`
	RetentionDays      int    `yaml:"retention_days"`
}

type MTokenStoreConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
	Key      string `yaml:"key"`
}

type MPublisherConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
