package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/careassist/hospital-assistant/internal/sentiment"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Sentiment  sentiment.Config `yaml:"sentiment"`
	Session    SessionConfig    `yaml:"session"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
	RatePerSecond   float64       `yaml:"ratePerSecond"`
	RateBurst       int           `yaml:"rateBurst"`
	WSPerMinute     int           `yaml:"wsMessagesPerMinute"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// KnowledgeConfig points at the intent catalog. An empty path uses the
// embedded catalog.
type KnowledgeConfig struct {
	Path string `yaml:"path"`
}

// ClassifierConfig overrides the intent thresholds
type ClassifierConfig struct {
	MatchThreshold  float64 `yaml:"matchThreshold"`
	AcceptThreshold float64 `yaml:"acceptThreshold"`
}

// SessionConfig configures the simulated reply latency
type SessionConfig struct {
	MinDelay time.Duration `yaml:"minDelay"`
	MaxDelay time.Duration `yaml:"maxDelay"`
}

// StoreConfig selects and configures the persistence backend
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Breaker  BreakerConfig  `yaml:"breaker"`
}

// RedisConfig Redis connection settings
type RedisConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// PostgresConfig PostgreSQL connection settings
type PostgresConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"maxConnections"`
}

// MongoConfig MongoDB connection settings
type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// BreakerConfig configures the circuit breaker around the store
type BreakerConfig struct {
	MaxFailures  int           `yaml:"maxFailures"`
	ResetTimeout time.Duration `yaml:"resetTimeout"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Name:            "hospital-assistant",
			AllowedOrigins:  []string{"*"},
			RatePerSecond:   100.0 / 60.0,
			RateBurst:       200,
			WSPerMinute:     30,
			ShutdownTimeout: 5 * time.Second,
		},
		Log:       LogConfig{Level: "info"},
		Sentiment: sentiment.DefaultConfig(),
		Session: SessionConfig{
			MinDelay: 800 * time.Millisecond,
			MaxDelay: 1500 * time.Millisecond,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Redis: RedisConfig{
				Host:   "localhost",
				Port:   6379,
				Prefix: "assistant:",
			},
			Postgres: PostgresConfig{MaxConnections: 10},
			Mongo: MongoConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "hospital_assistant",
				Collection: "assistant_kv",
			},
			Breaker: BreakerConfig{
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults, then applies
// a .env file and environment overrides. An empty path skips the file.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// A missing .env is normal outside development
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KNOWLEDGE_PATH"); v != "" {
		c.Knowledge.Path = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, portStr, err := net.SplitHostPort(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_ADDR %q: %w", v, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid REDIS_ADDR port %q: %w", portStr, err)
		}
		c.Store.Redis.Host, c.Store.Redis.Port = host, port
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Store.Postgres.URL = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Store.Mongo.URI = v
	}
	return nil
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Session.MinDelay < 0 || c.Session.MaxDelay < c.Session.MinDelay {
		errs = append(errs, fmt.Errorf("session delay range [%s, %s] is invalid", c.Session.MinDelay, c.Session.MaxDelay))
	}

	switch c.Store.Driver {
	case DriverMemory, DriverRedis:
	case DriverPostgres:
		if c.Store.Postgres.URL == "" {
			errs = append(errs, errors.New("store.postgres.url (DATABASE_URL) is required for the postgres driver"))
		}
	case DriverMongo:
		if c.Store.Mongo.URI == "" {
			errs = append(errs, errors.New("store.mongo.uri (MONGO_URI) is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}

	return errors.Join(errs...)
}
