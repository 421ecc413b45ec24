// internal/common/config/config.go
package config

import "fmt"

// Config is the main runtime configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Contract ContractConfig `mapstructure:"contract"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Events   EventsConfig   `mapstructure:"events"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Query    QueryConfig    `mapstructure:"query"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

// ContractConfig locates the contract document the runtime executes.
type ContractConfig struct {
	Path         string `mapstructure:"path"`
	ReloadEnable bool   `mapstructure:"reload_enable"`
}

// StoreConfig selects the data store backend.
type StoreConfig struct {
	Backend      string `mapstructure:"backend"` // postgres | elasticsearch | memory
	CacheEnabled bool   `mapstructure:"cache_enabled"`
	CacheTTL     int    `mapstructure:"cache_ttl"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// EventsConfig holds change-event emission settings.
type EventsConfig struct {
	Backend     string `mapstructure:"backend"` // redis | sns | log
	TopicPrefix string `mapstructure:"topic_prefix"`
	MaxAttempts int    `mapstructure:"max_attempts"`
	BackoffBase int    `mapstructure:"backoff_base"` // milliseconds

	SNS struct {
		Region   string `mapstructure:"region"`
		TopicARN string `mapstructure:"topic_arn"`
	} `mapstructure:"sns"`

	Alerting struct {
		Enabled   bool   `mapstructure:"enabled"`
		Region    string `mapstructure:"region"`
		FromEmail string `mapstructure:"from_email"`
		ToEmail   string `mapstructure:"to_email"`
	} `mapstructure:"alerting"`
}

// ProxyConfig holds settings for proxy/transform operations.
type ProxyConfig struct {
	Timeout int `mapstructure:"timeout"` // milliseconds
}

// QueryConfig holds list-query policy knobs.
type QueryConfig struct {
	MaxPageSize     int `mapstructure:"max_page_size"`
	DefaultPageSize int `mapstructure:"default_page_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
