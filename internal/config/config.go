package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Outbox   OutboxConfig   `mapstructure:"outbox"   validate:"required"`
	Cache    CacheConfig    `mapstructure:"cache"    validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// QueueConfig contains the work-queue broker settings.
type QueueConfig struct {
	URL      string `mapstructure:"url"      validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required"`
}

// OutboxConfig controls the event dispatcher that drains committed
// outbox rows to the broker.
type OutboxConfig struct {
	DispatchInterval time.Duration `mapstructure:"dispatch_interval" validate:"required,gt=0"`
	BatchSize        int           `mapstructure:"batch_size"        validate:"required,gt=0"`
}

// CacheConfig controls the in-process TTL cache.
type CacheConfig struct {
	DefaultTTL    time.Duration `mapstructure:"default_ttl"    validate:"required,gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0"`
}
