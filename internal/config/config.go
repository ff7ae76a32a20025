package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Signaling backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the global ~/.famcall/config.toml.
type Config struct {
	DefaultAccount string    `toml:"default_account" env:"FAMCALL_DEFAULT_ACCOUNT"`
	Identity       Identity  `toml:"identity"`
	Signaling      Signaling `toml:"signaling"`
	Media          Media     `toml:"media"`
	Push           Push      `toml:"push"`
	Contacts       []Contact `toml:"contacts"`
}

// Identity is the local user.
type Identity struct {
	UserID string `toml:"user_id" env:"FAMCALL_USER_ID"`
	Name   string `toml:"name"    env:"FAMCALL_USER_NAME"`
	Avatar string `toml:"avatar,omitempty"`
}

type Signaling struct {
	Backend       string `toml:"backend"        env:"FAMCALL_SIGNALING_BACKEND"`
	RedisAddr     string `toml:"redis_addr"     env:"FAMCALL_REDIS_ADDR"`
	RedisPassword string `toml:"redis_password" env:"FAMCALL_REDIS_PASSWORD"`
	RedisDB       int    `toml:"redis_db"       env:"FAMCALL_REDIS_DB"`
}

// Media configures the channel media service.
type Media struct {
	AppID      string   `toml:"app_id"      env:"FAMCALL_MEDIA_APP_ID"`
	Token      string   `toml:"token"       env:"FAMCALL_MEDIA_TOKEN"`
	Endpoint   string   `toml:"endpoint"    env:"FAMCALL_MEDIA_ENDPOINT"`
	ICEServers []string `toml:"ice_servers" env:"FAMCALL_MEDIA_ICE_SERVERS" envSeparator:","`
}

// Push configures ring notifications. HubURL is used by clients, ListenAddr
// and Secret by the hub.
type Push struct {
	HubURL     string `toml:"hub_url"     env:"FAMCALL_PUSH_HUB_URL"`
	Token      string `toml:"token"       env:"FAMCALL_PUSH_TOKEN"`
	ListenAddr string `toml:"listen_addr" env:"FAMCALL_PUSH_LISTEN_ADDR"`
	Secret     string `toml:"secret"      env:"FAMCALL_PUSH_SECRET"`
}

// Contact is a known user seeded into the profile directory.
type Contact struct {
	ID     string `toml:"id"`
	Name   string `toml:"name"`
	Avatar string `toml:"avatar,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Signaling: Signaling{Backend: BackendMemory, RedisAddr: "localhost:6379"},
		Push:      Push{ListenAddr: ":8787"},
	}
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Read returns the effective configuration: defaults, overlaid by the file
// at path when it exists, overlaid by FAMCALL_* environment variables.
func Read(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings a daemon needs.
func (c *Config) Validate() error {
	var errs []error
	if c.Identity.UserID == "" {
		errs = append(errs, errors.New("identity.user_id is required"))
	}
	switch c.Signaling.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Signaling.RedisAddr == "" {
			errs = append(errs, errors.New("signaling.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("signaling.backend %q: must be memory or redis", c.Signaling.Backend))
	}
	seen := make(map[string]bool, len(c.Contacts))
	for i, ct := range c.Contacts {
		if ct.ID == "" {
			errs = append(errs, fmt.Errorf("contacts[%d]: id is required", i))
			continue
		}
		if seen[ct.ID] {
			errs = append(errs, fmt.Errorf("contacts[%d]: duplicate id %q", i, ct.ID))
		}
		seen[ct.ID] = true
	}
	return errors.Join(errs...)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
