package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gmail     GmailConfig     `mapstructure:"gmail"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Links     LinksConfig     `mapstructure:"links"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

// GmailConfig holds Google API and IMAP configuration.
type GmailConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	UserEmail    string `mapstructure:"user_email"`
	UseIMAP      bool   `mapstructure:"use_imap"`
	IMAPHost     string `mapstructure:"imap_host"`
	IMAPPort     int    `mapstructure:"imap_port"`
	IMAPUser     string `mapstructure:"imap_user"`
	IMAPPassword string `mapstructure:"imap_password"`
}

// LLMConfig holds inference service configuration.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	UseKeyring  bool          `mapstructure:"use_keyring"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SchedulerConfig holds the two timer periods.
type SchedulerConfig struct {
	IngestionInterval  time.Duration `mapstructure:"ingestion_interval"`
	ProcessingInterval time.Duration `mapstructure:"processing_interval"`
	AutoStart          bool          `mapstructure:"auto_start"`
}

// QueueConfig holds retry controller settings.
type QueueConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	BatchLimit        int           `mapstructure:"batch_limit"`
	InterMessageDelay time.Duration `mapstructure:"inter_message_delay"`
	StatsWindow       time.Duration `mapstructure:"stats_window"`
}

// ResolverConfig holds meeting resolver settings.
type ResolverConfig struct {
	DefaultTimezone string `mapstructure:"default_timezone"`
}

// LinksConfig holds remediation links returned with permission errors.
type LinksConfig struct {
	ConsentURL string `mapstructure:"consent_url"`
	ReauthURL  string `mapstructure:"reauth_url"`
}

// EventsConfig holds optional audit sinks.
type EventsConfig struct {
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	SlackToken   string `mapstructure:"slack_token"`
	SlackChannel string `mapstructure:"slack_channel"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from .env, environment variables and config file
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	bindEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "smart-mail-assistant.db")

	v.SetDefault("gmail.use_imap", false)
	v.SetDefault("gmail.imap_host", "imap.gmail.com")
	v.SetDefault("gmail.imap_port", 993)

	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")

	v.SetDefault("scheduler.ingestion_interval", "5m")
	v.SetDefault("scheduler.processing_interval", "1m")
	v.SetDefault("scheduler.auto_start", true)

	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.cooldown", "15m")
	v.SetDefault("queue.batch_limit", 50)
	v.SetDefault("queue.inter_message_delay", "100ms")
	v.SetDefault("queue.stats_window", "24h")

	v.SetDefault("resolver.default_timezone", "UTC")

	v.SetDefault("links.consent_url", "/auth/google/consent")
	v.SetDefault("links.reauth_url", "/auth/google/login")

	v.SetDefault("events.amqp_exchange", "mail-assistant.audit")

	v.SetDefault("log.level", "info")
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	// Gmail
	v.BindEnv("gmail.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("gmail.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("gmail.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("gmail.user_email", "GMAIL_USER_EMAIL")
	v.BindEnv("gmail.use_imap", "GMAIL_USE_IMAP")
	v.BindEnv("gmail.imap_host", "GMAIL_IMAP_HOST")
	v.BindEnv("gmail.imap_port", "GMAIL_IMAP_PORT")
	v.BindEnv("gmail.imap_user", "GMAIL_IMAP_USER")
	v.BindEnv("gmail.imap_password", "GMAIL_IMAP_PASSWORD")

	// LLM
	v.BindEnv("llm.provider", "LLM_PROVIDER")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.use_keyring", "LLM_USE_KEYRING")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("llm.temperature", "LLM_TEMPERATURE")
	v.BindEnv("llm.max_tokens", "LLM_MAX_TOKENS")
	v.BindEnv("llm.timeout", "LLM_TIMEOUT")

	// Scheduler
	v.BindEnv("scheduler.ingestion_interval", "SCHEDULER_INGESTION_INTERVAL")
	v.BindEnv("scheduler.processing_interval", "SCHEDULER_PROCESSING_INTERVAL")
	v.BindEnv("scheduler.auto_start", "SCHEDULER_AUTO_START")

	// Queue
	v.BindEnv("queue.max_attempts", "QUEUE_MAX_ATTEMPTS")
	v.BindEnv("queue.cooldown", "QUEUE_COOLDOWN")
	v.BindEnv("queue.batch_limit", "QUEUE_BATCH_LIMIT")
	v.BindEnv("queue.inter_message_delay", "QUEUE_INTER_MESSAGE_DELAY")
	v.BindEnv("queue.stats_window", "QUEUE_STATS_WINDOW")

	v.BindEnv("resolver.default_timezone", "RESOLVER_DEFAULT_TIMEZONE")

	v.BindEnv("links.consent_url", "LINKS_CONSENT_URL")
	v.BindEnv("links.reauth_url", "LINKS_REAUTH_URL")

	// Events
	v.BindEnv("events.amqp_url", "EVENTS_AMQP_URL")
	v.BindEnv("events.amqp_exchange", "EVENTS_AMQP_EXCHANGE")
	v.BindEnv("events.slack_token", "EVENTS_SLACK_TOKEN")
	v.BindEnv("events.slack_channel", "EVENTS_SLACK_CHANNEL")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the database connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	switch c.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	case "sqlite":
		return c.Path
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if !c.Gmail.UseIMAP {
		if c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "" || c.Gmail.RefreshToken == "" {
			return fmt.Errorf("Gmail OAuth2 credentials are required when not using IMAP")
		}
	} else {
		if c.Gmail.IMAPUser == "" || c.Gmail.IMAPPassword == "" {
			return fmt.Errorf("IMAP credentials are required when using IMAP")
		}
	}

	switch strings.ToLower(c.LLM.Provider) {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}

	if c.Scheduler.IngestionInterval <= 0 || c.Scheduler.ProcessingInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be greater than 0")
	}

	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max_attempts must be greater than 0")
	}
	if c.Queue.BatchLimit <= 0 {
		return fmt.Errorf("queue batch_limit must be greater than 0")
	}
	if c.Queue.Cooldown < 0 {
		return fmt.Errorf("queue cooldown must not be negative")
	}

	if _, err := time.LoadLocation(c.Resolver.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid resolver timezone %q: %w", c.Resolver.DefaultTimezone, err)
	}

	return nil
}
