// Package config loads the orchestrator's configuration from a YAML file
// with environment-variable overrides, following the same load-defaults,
// decode-file, apply-env-overrides, validate sequence used across this
// codebase's services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Port         string        `yaml:"port"`
	Mode         string        `yaml:"mode"` // "development" or "production"
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type RedisConfig struct {
	Address      string        `yaml:"address"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`
}

type JobQueueConfig struct {
	WorkerCount int           `yaml:"worker_count"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
	QueueKey    string        `yaml:"queue_key"`
}

// TitanConfig holds the tier escalation ladder's timeouts (spec.md §5).
type TitanConfig struct {
	RequestTierTimeout  time.Duration `yaml:"request_tier_timeout"`
	BrowserTierTimeout  time.Duration `yaml:"browser_tier_timeout"`
	MaxTier             int           `yaml:"max_tier"`
	RateLimitPerHostRPS float64       `yaml:"rate_limit_per_host_rps"`
}

// CaptchaConfig holds the CAPTCHA Task Manager's TTLs and priorities
// (SPEC_FULL.md "Session TTL defaults", values from the original system).
type CaptchaConfig struct {
	SessionTTL        time.Duration `yaml:"session_ttl"`
	SessionMaxTTL     time.Duration `yaml:"session_max_ttl"`
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	TaskLockTTL       time.Duration `yaml:"task_lock_ttl"`
	WorkerWaitTimeout time.Duration `yaml:"worker_wait_timeout"`
	DefaultPriority   int           `yaml:"default_priority"`
	SessionKeyPrefix  string        `yaml:"session_key_prefix"`
	TaskLockKeyPrefix string        `yaml:"task_lock_key_prefix"`
	EventsChannel     string        `yaml:"events_channel"`
}

// HITLConfig holds the human-in-the-loop session timeouts and streaming
// parameters (spec.md §4.4, §5, §6).
type HITLConfig struct {
	AdminConnectTimeout time.Duration `yaml:"admin_connect_timeout"`
	SolveTimeout        time.Duration `yaml:"solve_timeout"`
	StreamFPS           int           `yaml:"stream_fps"`
	StreamJPEGQuality   int           `yaml:"stream_jpeg_quality"`
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	DB       DatabaseConfig `yaml:"database"`
	JobQueue JobQueueConfig `yaml:"job_queue"`
	Titan    TitanConfig    `yaml:"titan"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	HITL     HITLConfig     `yaml:"hitl"`
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Titan.MaxTier < 1 || c.Titan.MaxTier > 7 {
		return fmt.Errorf("titan max_tier must be in [1, 7], got %d", c.Titan.MaxTier)
	}
	if c.JobQueue.WorkerCount <= 0 {
		return fmt.Errorf("job_queue worker_count must be positive")
	}
	if c.Captcha.SessionTTL > c.Captcha.SessionMaxTTL {
		return fmt.Errorf("captcha session_ttl cannot exceed session_max_ttl")
	}
	if c.DB.Driver != "postgres" && c.DB.Driver != "sqlite" {
		return fmt.Errorf("database driver must be 'postgres' or 'sqlite', got %q", c.DB.Driver)
	}
	return nil
}

// Load reads configuration from a YAML file at path and overrides with
// environment variables, matching this codebase's Load convention: set
// defaults, decode the file over them, then apply env overrides.
func Load(path string) (*Config, error) {
	cfg := defaults()

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return cfg, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			Mode:         "production",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			MaxRetries:   3,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		DB: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:titan.db?cache=shared",
		},
		JobQueue: JobQueueConfig{
			WorkerCount: 10,
			JobTimeout:  5 * time.Minute,
			QueueKey:    "titan:jobs",
		},
		Titan: TitanConfig{
			RequestTierTimeout:  60 * time.Second,
			BrowserTierTimeout:  90 * time.Second,
			MaxTier:             7,
			RateLimitPerHostRPS: 2,
		},
		Captcha: CaptchaConfig{
			SessionTTL:        15 * time.Minute,
			SessionMaxTTL:     time.Hour,
			TaskTimeout:       10 * time.Minute,
			TaskLockTTL:       30 * time.Minute,
			WorkerWaitTimeout: 15 * time.Minute,
			DefaultPriority:   5,
			SessionKeyPrefix:  "captcha:session",
			TaskLockKeyPrefix: "captcha:task",
			EventsChannel:     "captcha:events",
		},
		HITL: HITLConfig{
			AdminConnectTimeout: 5 * time.Minute,
			SolveTimeout:        10 * time.Minute,
			StreamFPS:           10,
			StreamJPEGQuality:   70,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("TITAN_MAX_TIER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Titan.MaxTier = n
		}
	}
	if v := os.Getenv("JOB_QUEUE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.JobQueue.WorkerCount = n
		}
	}
	if v := os.Getenv("CAPTCHA_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Captcha.SessionTTL = d
		}
	}
	if v := os.Getenv("CAPTCHA_SESSION_MAX_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Captcha.SessionMaxTTL = d
		}
	}
	if v := os.Getenv("CAPTCHA_TASK_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Captcha.TaskTimeout = d
		}
	}
	if v := os.Getenv("CAPTCHA_TASK_LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Captcha.TaskLockTTL = d
		}
	}
	if v := os.Getenv("CAPTCHA_WORKER_WAIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Captcha.WorkerWaitTimeout = d
		}
	}
}
