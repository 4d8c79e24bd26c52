package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ChannelConfig selects the messaging provider and carries its credentials.
type ChannelConfig struct {
	Provider string `yaml:"provider" envconfig:"CHANNEL_PROVIDER"`
	// VerifyToken is compared against hub.verify_token during the webhook handshake.
	VerifyToken string `yaml:"verify_token" envconfig:"META_VERIFY_TOKEN"`
	// AppSecret enables X-Hub-Signature-256 validation when set.
	AppSecret     string `yaml:"app_secret" envconfig:"META_APP_SECRET"`
	AccessToken   string `yaml:"access_token" envconfig:"META_ACCESS_TOKEN"`
	PhoneNumberID string `yaml:"phone_number_id" envconfig:"PHONE_NUMBER_ID"`
	GraphVersion  string `yaml:"graph_version" envconfig:"META_GRAPH_VERSION"`

	GupshupAPIKey  string `yaml:"gupshup_api_key" envconfig:"GUPSHUP_API_KEY"`
	GupshupSource  string `yaml:"gupshup_source" envconfig:"SANDBOX_NUMBER"`
	GupshupAppName string `yaml:"gupshup_app_name" envconfig:"GUPSHUP_APP_NAME"`

	TelegramToken string `yaml:"telegram_token" envconfig:"BOT_TOKEN"`

	// APIBaseURL overrides the provider REST endpoint (sandboxes, tests).
	APIBaseURL string `yaml:"api_base_url" envconfig:"CHANNEL_API_BASE_URL"`
}

// ServerConfig specifies the inbound webhook listener.
type ServerConfig struct {
	Listen         string   `yaml:"listen" envconfig:"SERVER_LISTEN"`
	Port           int      `yaml:"port" envconfig:"PORT"`
	WebhookPath    string   `yaml:"webhook_path" envconfig:"WEBHOOK_PATH"`
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	// ShutdownTimeoutSeconds bounds graceful shutdown; 0 -> default
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" envconfig:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// DispatcherConfig tunes the asynchronous outbound sender.
type DispatcherConfig struct {
	QueueSize      int `yaml:"queue_size" envconfig:"DISPATCH_QUEUE_SIZE"`
	Workers        int `yaml:"workers" envconfig:"DISPATCH_WORKERS"`
	MaxRetries     int `yaml:"max_retries" envconfig:"DISPATCH_MAX_RETRIES"`
	RetryBackoffMS int `yaml:"retry_backoff_ms" envconfig:"DISPATCH_RETRY_BACKOFF_MS"`
	TimeoutMS      int `yaml:"timeout_ms" envconfig:"DISPATCH_TIMEOUT_MS"`
}

// SessionConfig controls eviction of idle conversations.
type SessionConfig struct {
	// IdleTTLMinutes removes sessions without activity for this long; 0 disables sweeping.
	IdleTTLMinutes int    `yaml:"idle_ttl_minutes" envconfig:"SESSION_IDLE_TTL_MINUTES"`
	SweepSchedule  string `yaml:"sweep_schedule" envconfig:"SESSION_SWEEP_SCHEDULE"`
}

// CatalogConfig points at the listings file. Empty path selects the embedded sample.
type CatalogConfig struct {
	Path string `yaml:"path" envconfig:"CATALOG_PATH"`
	// SearchLimit caps listings shown per search; 0 -> default
	SearchLimit int `yaml:"search_limit" envconfig:"CATALOG_SEARCH_LIMIT"`
}

// DatabaseConfig holds lead storage connection settings.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// ProviderMeta selects the WhatsApp Cloud API (graph.facebook.com).
	ProviderMeta = "meta"
	// ProviderGupshup selects the Gupshup WhatsApp API.
	ProviderGupshup = "gupshup"
	// ProviderTelegram selects the Telegram Bot API.
	ProviderTelegram = "telegram"
)

const (
	defaultPort          = 8080
	defaultWebhookPath   = "/webhook"
	defaultGraphVersion  = "v22.0"
	defaultSweepSchedule = "*/5 * * * *"
	defaultMigrationsDir = "migrations"
)

// Config aggregates the whole application configuration.
type Config struct {
	Channel    ChannelConfig    `yaml:"channel"`
	Server     ServerConfig     `yaml:"server"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Sessions   SessionConfig    `yaml:"sessions"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
// A missing file is tolerated so the service can run from the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Channel.Provider))
	if provider == "" {
		provider = ProviderMeta
	}
	if provider == "whatsapp" || provider == "cloud" { // accept aliases
		provider = ProviderMeta
	}
	switch provider {
	case ProviderMeta:
		if strings.TrimSpace(cfg.Channel.AccessToken) == "" {
			return fmt.Errorf("channel.access_token is required for provider 'meta'")
		}
		if strings.TrimSpace(cfg.Channel.PhoneNumberID) == "" {
			return fmt.Errorf("channel.phone_number_id is required for provider 'meta'")
		}
		if strings.TrimSpace(cfg.Channel.VerifyToken) == "" {
			return fmt.Errorf("channel.verify_token is required for provider 'meta'")
		}
		if strings.TrimSpace(cfg.Channel.GraphVersion) == "" {
			cfg.Channel.GraphVersion = defaultGraphVersion
		}
	case ProviderGupshup:
		if strings.TrimSpace(cfg.Channel.GupshupAPIKey) == "" {
			return fmt.Errorf("channel.gupshup_api_key is required for provider 'gupshup'")
		}
		if strings.TrimSpace(cfg.Channel.GupshupSource) == "" {
			return fmt.Errorf("channel.gupshup_source is required for provider 'gupshup'")
		}
	case ProviderTelegram:
		if strings.TrimSpace(cfg.Channel.TelegramToken) == "" {
			return fmt.Errorf("channel.telegram_token is required for provider 'telegram'")
		}
	default:
		return fmt.Errorf("invalid channel.provider %q; allowed: meta, gupshup, telegram", cfg.Channel.Provider)
	}
	cfg.Channel.Provider = provider

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535")
	}
	path := strings.TrimSpace(cfg.Server.WebhookPath)
	if path == "" {
		path = defaultWebhookPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	cfg.Server.WebhookPath = path
	if cfg.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be >= 0")
	}

	if cfg.Dispatcher.QueueSize < 0 || cfg.Dispatcher.Workers < 0 {
		return fmt.Errorf("dispatcher.queue_size and dispatcher.workers must be >= 0")
	}
	if cfg.Dispatcher.MaxRetries < 0 {
		return fmt.Errorf("dispatcher.max_retries must be >= 0")
	}

	if cfg.Catalog.SearchLimit < 0 {
		return fmt.Errorf("catalog.search_limit must be >= 0")
	}

	if cfg.Sessions.IdleTTLMinutes < 0 {
		return fmt.Errorf("sessions.idle_ttl_minutes must be >= 0")
	}
	if strings.TrimSpace(cfg.Sessions.SweepSchedule) == "" {
		cfg.Sessions.SweepSchedule = defaultSweepSchedule
	}

	if cfg.Database.Enabled {
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when database.enabled is true")
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 5
		}
		if cfg.Database.MigrationsDir == "" {
			cfg.Database.MigrationsDir = defaultMigrationsDir
		}
	}
	return nil
}
