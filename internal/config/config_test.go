package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080"},
		Database: DatabaseConfig{
			Driver: "mysql",
			Host:   "localhost",
			User:   "test",
			DBName: "test",
		},
		Gmail: GmailConfig{
			ClientID:     "test",
			ClientSecret: "test",
			RefreshToken: "test",
		},
		LLM: LLMConfig{Provider: "anthropic"},
		Scheduler: SchedulerConfig{
			IngestionInterval:  5 * time.Minute,
			ProcessingInterval: time.Minute,
		},
		Queue:    QueueConfig{MaxAttempts: 3, Cooldown: 15 * time.Minute, BatchLimit: 50},
		Resolver: ResolverConfig{DefaultTimezone: "UTC"},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalid := &Config{Server: ServerConfig{Port: ""}}
	assert.Error(t, invalid.Validate())
}

func TestConfigValidationRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"driver":      func(c *Config) { c.Database.Driver = "oracle" },
		"sqlite path": func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" },
		"imap creds":  func(c *Config) { c.Gmail.UseIMAP = true },
		"provider":    func(c *Config) { c.LLM.Provider = "mystery" },
		"interval":    func(c *Config) { c.Scheduler.ProcessingInterval = 0 },
		"attempts":    func(c *Config) { c.Queue.MaxAttempts = 0 },
		"batch":       func(c *Config) { c.Queue.BatchLimit = 0 },
		"timezone":    func(c *Config) { c.Resolver.DefaultTimezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validConfig()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   "mysql",
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}
	assert.Equal(t, "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=UTC", cfg.GetDSN())

	cfg.Driver = "postgres"
	cfg.Port = 5432
	cfg.SSLMode = "disable"
	assert.Equal(t, "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable", cfg.GetDSN())

	cfg.Driver = "sqlite"
	cfg.Path = "/tmp/assistant.db"
	assert.Equal(t, "/tmp/assistant.db", cfg.GetDSN())
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 15*time.Minute, cfg.Queue.Cooldown)
	assert.Equal(t, 50, cfg.Queue.BatchLimit)
	assert.Equal(t, 100*time.Millisecond, cfg.Queue.InterMessageDelay)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.IngestionInterval)
	assert.Equal(t, time.Minute, cfg.Scheduler.ProcessingInterval)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("QUEUE_COOLDOWN", "1h")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Hour, cfg.Queue.Cooldown)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}
