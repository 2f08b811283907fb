// Package config loads runtime settings for the context services from
// flags, AICONTEXT_* environment variables, an optional .env file and an
// optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/creastat/aicontext/vectorstore"
	"github.com/creastat/aicontext/vectorstore/qdrant"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. AICONTEXT_REDIS_ADDR.
const EnvPrefix = "AICONTEXT"

// Config is the full runtime configuration.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Supabase SupabaseConfig `mapstructure:"supabase"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Log      LogConfig      `mapstructure:"log"`
}

// StoreConfig selects the record store driver: memory, redis or supabase.
type StoreConfig struct {
	Type string `mapstructure:"type"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type SupabaseConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
	Table  string `mapstructure:"table"`
}

// QdrantConfig is optional; an empty URL disables vector id checks.
type QdrantConfig struct {
	URL         string `mapstructure:"url"`
	Collection  string `mapstructure:"collection"`
	APIKey      string `mapstructure:"api_key"`
	TenantField string `mapstructure:"tenant_field"`
}

// VectorStore opens the configured Qdrant collection for
// aicontext.WithVectorStore. It returns nil when no URL is set.
func (c QdrantConfig) VectorStore() (vectorstore.VectorStore, error) {
	if c.URL == "" {
		return nil, nil
	}
	client, err := qdrant.New(qdrant.Config{
		URL:            c.URL,
		CollectionName: c.Collection,
		APIKey:         c.APIKey,
		TenantField:    c.TenantField,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

type SweepConfig struct {
	Schedule      string        `mapstructure:"schedule"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	InactiveAfter time.Duration `mapstructure:"inactive_after"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Every key needs a default, even an empty one, or Unmarshal never sees the
// matching environment variable.
var defaults = map[string]any{
	"store.type":           "memory",
	"redis.addr":           "localhost:6379",
	"redis.password":       "",
	"redis.db":             0,
	"redis.key_prefix":     "aicontext:",
	"supabase.url":         "",
	"supabase.api_key":     "",
	"supabase.table":       "ai_contexts",
	"qdrant.url":           "",
	"qdrant.collection":    "",
	"qdrant.api_key":       "",
	"qdrant.tenant_field":  "tenant_id",
	"sweep.schedule":       "@every 1h",
	"sweep.stale_after":    30 * 24 * time.Hour,
	"sweep.inactive_after": 7 * 24 * time.Hour,
	"log.level":            "info",
	"log.format":           "text",
}

// RegisterFlags adds the command line overrides to flags. Flag names use the
// config keys with dots replaced by dashes.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flags.String("store-type", "", "record store: memory, redis or supabase")
	flags.String("redis-addr", "", "redis address")
	flags.String("supabase-url", "", "supabase project url")
	flags.String("sweep-schedule", "", "cron spec for the retention sweep")
	flags.Duration("sweep-stale-after", 0, "remove records not updated for this long")
	flags.Duration("sweep-inactive-after", 0, "remove inactive records not updated for this long")
	flags.String("log-level", "", "log level")
}

// Load resolves the configuration. flags may be nil.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	envFile := ".env"
	if flags != nil {
		if f := flags.Lookup("env-file"); f != nil {
			envFile = f.Value.String()
		}
	}
	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// bindFlags maps "redis-addr" style flags onto "redis.addr" keys. Only flags
// the user actually set override lower layers.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" || f.Name == "env-file" {
			return
		}
		key := strings.Replace(f.Name, "-", ".", 1)
		key = strings.ReplaceAll(key, "-", "_")
		err = v.BindPFlag(key, f)
	})
	return err
}

// Validate checks that the selected store has what it needs.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis store")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.APIKey == "" {
			return fmt.Errorf("supabase.url and supabase.api_key are required for the supabase store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Qdrant.URL != "" && c.Qdrant.Collection == "" {
		return fmt.Errorf("qdrant.collection is required when qdrant.url is set")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %w", err)
	}
	return nil
}

// Logger builds a logrus logger from the log settings.
func (c *Config) Logger() *logrus.Logger {
	log := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		log.SetLevel(level)
	}
	if c.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}
