// Package config reads service settings from defaults, an optional config
// file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/c4u/launchpad/pkg/logger"
	"github.com/spf13/viper"
)

const envPrefix = "LAUNCHPAD"

type Config struct {
	Port     string         `mapstructure:"port"`
	Store    string         `mapstructure:"store"`
	Timezone string         `mapstructure:"timezone"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Papers   PapersConfig   `mapstructure:"papers"`
	Mail     MailConfig     `mapstructure:"mail"`
	Gate     GateConfig     `mapstructure:"gate"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Logger   logger.Config  `mapstructure:"logger"`
}

type CORSConfig struct {
	Hosts []string `mapstructure:"hosts"`
}

type FirebaseConfig struct {
	ProjectID       string `mapstructure:"projectid"`
	CredentialsJSON string `mapstructure:"credentialsjson"`
}

// RedisConfig enables the metadata cache when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PapersConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Refresh         time.Duration `mapstructure:"refresh"`
	Concurrency     int           `mapstructure:"concurrency"`
	MetadataTimeout time.Duration `mapstructure:"metadatatimeout"`
}

// MailConfig enables event announcements when ResendKey and To are set.
type MailConfig struct {
	ResendKey string   `mapstructure:"resendkey"`
	From      string   `mapstructure:"from"`
	To        []string `mapstructure:"to"`
	HostURL   string   `mapstructure:"hosturl"`
}

type GateConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxPending int           `mapstructure:"maxpending"`
}

type MirrorConfig struct {
	MaxRetries uint64 `mapstructure:"maxretries"`
}

// Location returns the configured timezone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Legacy variable names shared with the deployment scripts.
var envAliases = map[string]string{
	"port":                     "PORT",
	"cors.hosts":               "CORS_HOSTS",
	"firebase.projectid":       "FIREBASE_PROJECT_ID",
	"firebase.credentialsjson": "FIREBASE_CREDENTIALS_JSON",
	"mail.resendkey":           "RESEND_KEY",
}

// NewConfig loads the configuration. configFile may be empty.
func NewConfig(configFile string) (Config, error) {
	config := Config{}
	v := viper.New()

	v.SetDefault("port", "8080")
	v.SetDefault("store", "firestore")
	v.SetDefault("timezone", "")
	v.SetDefault("cors.hosts", []string{})
	v.SetDefault("firebase.projectid", "")
	v.SetDefault("firebase.credentialsjson", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("papers.endpoint", "")
	v.SetDefault("papers.refresh", "10m")
	v.SetDefault("papers.concurrency", 8)
	v.SetDefault("papers.metadatatimeout", "10s")
	v.SetDefault("mail.resendkey", "")
	v.SetDefault("mail.from", "onboarding@resend.dev")
	v.SetDefault("mail.to", []string{})
	v.SetDefault("mail.hosturl", "")
	v.SetDefault("gate.ttl", "10m")
	v.SetDefault("gate.maxpending", 1024)
	v.SetDefault("mirror.maxretries", 8)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return config, fmt.Errorf("failed to read config %q: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, alias := range envAliases {
		envKey := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, alias); err != nil {
			return config, fmt.Errorf("failed to prepare config: %w", err)
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("unable to decode into config struct: %w", err)
	}
	config.CORS.Hosts = splitList(config.CORS.Hosts)
	config.Mail.To = splitList(config.Mail.To)

	return config, config.Validate()
}

// Validate checks values that would otherwise fail late or silently.
// Call it again after overriding fields from flags.
func (c Config) Validate() error {
	switch c.Store {
	case "firestore", "memory":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Gate.TTL <= 0 {
		return fmt.Errorf("gate.ttl must be positive, got %s", c.Gate.TTL)
	}
	if c.Gate.MaxPending <= 0 {
		return fmt.Errorf("gate.maxpending must be positive, got %d", c.Gate.MaxPending)
	}
	if c.Papers.Concurrency <= 0 {
		return fmt.Errorf("papers.concurrency must be positive, got %d", c.Papers.Concurrency)
	}
	return nil
}

// splitList trims entries and drops empty ones; env values arrive comma separated.
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
