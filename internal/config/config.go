// Package config handles configuration loading and validation for lanboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/lanboard/lanboard/pkg/bytesize"
)

// Defaults applied when a key is absent from the config file.
const (
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8787
	DefaultPassphrase    = "1234"
	DefaultHistoryLimit  = 800
	DefaultMaxFileSize   = "30MB"
	DefaultRetention     = "24h"
	DefaultSweepInterval = "24h"
)

// Config holds the full lanboard configuration.
type Config struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Passphrase   string `yaml:"passphrase"`
	DataDir      string `yaml:"data_dir"`   // durable journal location
	UploadDir    string `yaml:"upload_dir"` // attachment store root
	HistoryLimit int    `yaml:"history_limit"`

	// MaxFileSize bounds a single attachment, e.g. "30MB". "0" means unlimited.
	MaxFileSize string `yaml:"max_file_size"`

	// Retention is the age after which attachment files are swept, e.g. "24h".
	Retention string `yaml:"retention"`

	// SweepInterval is how often the retention sweep runs, e.g. "24h".
	SweepInterval string `yaml:"sweep_interval"`
}

// Default returns a config populated with default values.
func Default() *Config {
	return &Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		Passphrase:    DefaultPassphrase,
		DataDir:       "data",
		UploadDir:     "uploads",
		HistoryLimit:  DefaultHistoryLimit,
		MaxFileSize:   DefaultMaxFileSize,
		Retention:     DefaultRetention,
		SweepInterval: DefaultSweepInterval,
	}
}

// Load reads configuration from a YAML file. A missing file is created with
// defaults; an unparseable file is backed up and replaced with defaults so a
// broken edit never prevents startup.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if werr := cfg.write(path); werr != nil {
			return nil, fmt.Errorf("create default config: %w", werr)
		}
		cfg.applyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Keep the broken file around for inspection, then start fresh.
		bak := path + fmt.Sprintf(".bad.%d", time.Now().Unix())
		if rerr := os.Rename(path, bak); rerr == nil {
			log.Warn().Str("backup", bak).Msg("config file unparseable, rebuilt with defaults")
		}
		cfg = Default()
		if werr := cfg.write(path); werr != nil {
			return nil, fmt.Errorf("rewrite config: %w", werr)
		}
		cfg.applyEnv()
		return cfg, nil
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) write(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Passphrase) == "" {
		c.Passphrase = DefaultPassphrase
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxFileSize == "" {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Retention == "" {
		c.Retention = DefaultRetention
	}
	if c.SweepInterval == "" {
		c.SweepInterval = DefaultSweepInterval
	}

	// Expand home directory in paths
	for _, p := range []*string{&c.DataDir, &c.UploadDir} {
		if strings.HasPrefix(*p, "~/") {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				*p = filepath.Join(homeDir, (*p)[2:])
			}
		}
	}
}

// applyEnv lets the environment override host, port and passphrase.
func (c *Config) applyEnv() {
	if v := os.Getenv("LANBOARD_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("LANBOARD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("LANBOARD_PASS")); v != "" {
		c.Passphrase = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Passphrase) == "" {
		return fmt.Errorf("passphrase is required")
	}
	if c.HistoryLimit < 1 {
		return fmt.Errorf("history_limit must be positive")
	}
	if _, err := bytesize.Parse(c.MaxFileSize); err != nil {
		return fmt.Errorf("invalid max_file_size: %w", err)
	}
	if _, err := time.ParseDuration(c.Retention); err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}
	if _, err := time.ParseDuration(c.SweepInterval); err != nil {
		return fmt.Errorf("invalid sweep_interval: %w", err)
	}
	return nil
}

// ListenAddr returns the host:port the server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxFileBytes returns the attachment size limit in bytes, 0 for unlimited.
func (c *Config) MaxFileBytes() int64 {
	n, err := bytesize.Parse(c.MaxFileSize)
	if err != nil {
		n, _ = bytesize.Parse(DefaultMaxFileSize)
	}
	return n
}

// RetentionAge returns the attachment retention age.
func (c *Config) RetentionAge() time.Duration {
	d, err := time.ParseDuration(c.Retention)
	if err != nil {
		d, _ = time.ParseDuration(DefaultRetention)
	}
	return d
}

// SweepEvery returns the retention sweep interval.
func (c *Config) SweepEvery() time.Duration {
	d, err := time.ParseDuration(c.SweepInterval)
	if err != nil {
		d, _ = time.ParseDuration(DefaultSweepInterval)
	}
	return d
}
