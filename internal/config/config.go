package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	HTTP     HTTPConfig     `yaml:"http"`
	Sync     SyncConfig     `yaml:"sync"`
	Outbox   OutboxConfig   `yaml:"outbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
}

type HTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type SyncConfig struct {
	// WatermarkOverlap is an extra margin subtracted from the store-clock
	// watermark handed to terminals; rows inside it are shipped again.
	WatermarkOverlap  time.Duration `yaml:"watermark_overlap"`
	PostCommitTimeout time.Duration `yaml:"post_commit_timeout"`
}

type OutboxConfig struct {
	EmbeddedWorker bool          `yaml:"embedded_worker"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchSize      int           `yaml:"batch_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	Lease          time.Duration `yaml:"lease"`
}

// Load reads the YAML file at path (if it exists), applies environment
// overrides and defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// env and defaults only
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "qristal",
			Database: "qristal",
			SSLMode:  "disable",
			MaxConns: 10,
		},
		RabbitMQ: RabbitMQConfig{
			Host:     "localhost",
			Port:     5672,
			User:     "guest",
			Password: "guest",
			VHost:    "/",
		},
		HTTP: HTTPConfig{
			Port:         3000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Sync: SyncConfig{
			PostCommitTimeout: 10 * time.Second,
		},
		Outbox: OutboxConfig{
			EmbeddedWorker: true,
			PollInterval:   2 * time.Second,
			BatchSize:      20,
			MaxAttempts:    1,
			RetryBackoff:   30 * time.Second,
			Lease:          time.Minute,
		},
	}
}

func (c *Config) Validate() error {
	if c.Database.Host == "" || c.Database.Database == "" {
		return errors.New("invalid config: database host and name are required")
	}
	if c.RabbitMQ.Host == "" {
		return errors.New("invalid config: rabbitmq host is required")
	}
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid config: http port %d out of range", c.HTTP.Port)
	}
	if c.Sync.WatermarkOverlap < 0 {
		return errors.New("invalid config: sync.watermark_overlap must not be negative")
	}
	if c.Outbox.MaxAttempts < 1 {
		return errors.New("invalid config: outbox.max_attempts must be at least 1")
	}
	if c.Outbox.BatchSize < 1 {
		return errors.New("invalid config: outbox.batch_size must be at least 1")
	}
	if c.Outbox.PollInterval <= 0 || c.Outbox.Lease <= 0 {
		return errors.New("invalid config: outbox.poll_interval and outbox.lease must be positive")
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.Host, "DATABASE_HOST")
	setString(&c.Database.User, "DATABASE_USER")
	setString(&c.Database.Password, "DATABASE_PASSWORD")
	setString(&c.Database.Database, "DATABASE_NAME")
	setString(&c.RabbitMQ.Host, "RABBITMQ_HOST")
	setString(&c.RabbitMQ.User, "RABBITMQ_USER")
	setString(&c.RabbitMQ.Password, "RABBITMQ_PASSWORD")
	setString(&c.RabbitMQ.VHost, "RABBITMQ_VHOST")

	for key, dst := range map[string]*int{
		"DATABASE_PORT": &c.Database.Port,
		"RABBITMQ_PORT": &c.RabbitMQ.Port,
		"HTTP_PORT":     &c.HTTP.Port,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
