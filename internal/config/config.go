// Package config loads the journey engine's configuration: which store
// backend to run against, how to reach Redis/Postgres/DynamoDB, and the
// host integration endpoints. It follows the same yaml.v3 + godotenv layer
// the rest of the corpus uses: a config.yaml for structure, environment
// variables for secrets and per-deployment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the journey engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Redis    RedisConfig    `yaml:"redis"`
	Profile  ProfileConfig  `yaml:"profile"`
	Events   EventsConfig   `yaml:"events"`
	Polling  PollingConfig  `yaml:"polling"`
}

// ServerConfig holds the debug HTTP server's bind settings.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, detecting common container runtimes the
// same way the rest of the corpus does so a container image need not bake
// in a host.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// StoreBackend selects which journeystore.Store implementation to run.
type StoreBackend string

const (
	StoreBackendFile     StoreBackend = "file"
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendDynamo   StoreBackend = "dynamo"
)

// StoreConfig holds settings for whichever store backend is selected.
type StoreConfig struct {
	Backend StoreBackend `yaml:"backend"`

	// FileDir is the FileStore's journeys/ledger directory.
	FileDir string `yaml:"file_dir"`

	// Postgres.
	DatabaseURL string `yaml:"database_url"`

	// DynamoDB + S3 archival.
	DynamoTable   string `yaml:"dynamo_table"`
	ArchiveBucket string `yaml:"archive_bucket"`
	AWSRegion     string `yaml:"aws_region"`
	AWSProfile    string `yaml:"aws_profile"` // empty uses the default credential chain (IAM role on ECS)
}

// GetAWSProfile returns the AWS profile, with environment variable
// override, falling back to the IAM role on ECS the same way the storage
// config elsewhere in this codebase does.
func (c StoreConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds settings for the cross-device admission lock.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	LockTTLSecs  int    `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the configured admission-lock TTL as a duration.
func (c RedisConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSecs) * time.Second
}

// ProfileConfig holds settings for the HTTP-backed ProfileService.
type ProfileConfig struct {
	BaseURL        string   `yaml:"base_url"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	TokenURL       string   `yaml:"token_url"`
	Scopes         []string `yaml:"scopes"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

func (c ProfileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// EventsConfig holds settings for the SQS-backed event emitter and the
// host's synchronous remote-node dispatch endpoint.
type EventsConfig struct {
	SQSQueueURL string `yaml:"sqs_queue_url"`
	RemoteURL   string `yaml:"remote_url"`
}

// PollingConfig holds timer/reconciliation intervals.
type PollingConfig struct {
	// ExpirySweepSeconds is the configured interval for scanning live
	// journeys for deadlines that passed while the process was asleep. The
	// orchestrator (journeysvc) runs no such sweep and does not read it.
	ExpirySweepSeconds int `yaml:"expiry_sweep_seconds"`
}

func (c PollingConfig) ExpirySweepInterval() time.Duration {
	return time.Duration(c.ExpirySweepSeconds) * time.Second
}

// Load reads and parses the configuration file, applying defaults for
// anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendFile
	}
	if cfg.Store.FileDir == "" {
		cfg.Store.FileDir = "./data/journeys"
	}
	if cfg.Redis.LockTTLSecs == 0 {
		cfg.Redis.LockTTLSecs = 30
	}
	if cfg.Profile.TimeoutSeconds == 0 {
		cfg.Profile.TimeoutSeconds = 10
	}
	if cfg.Polling.ExpirySweepSeconds == 0 {
		cfg.Polling.ExpirySweepSeconds = 60
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides. It
// automatically loads a .env file (if present) before reading env vars, so
// secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		cfg.Store.Backend = StoreBackend(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv("DYNAMO_TABLE"); v != "" {
		cfg.Store.DynamoTable = v
	}
	if v := os.Getenv("ARCHIVE_BUCKET"); v != "" {
		cfg.Store.ArchiveBucket = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Store.AWSRegion = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PROFILE_BASE_URL"); v != "" {
		cfg.Profile.BaseURL = v
	}
	if v := os.Getenv("PROFILE_CLIENT_ID"); v != "" {
		cfg.Profile.ClientID = v
	}
	if v := os.Getenv("PROFILE_CLIENT_SECRET"); v != "" {
		cfg.Profile.ClientSecret = v
	}
	if v := os.Getenv("SQS_EVENTS_QUEUE_URL"); v != "" {
		cfg.Events.SQSQueueURL = v
	}
	if v := os.Getenv("REMOTE_DISPATCH_URL"); v != "" {
		cfg.Events.RemoteURL = v
	}

	return cfg, nil
}
