package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRPCPort       = 26657
	DefaultP2PPort       = 26656
	DefaultTimeoutSec    = 5
	DefaultExpandWorkers = 10
	DefaultSweepWorkers  = 20
	DefaultLogSize       = 100
	DefaultListen        = ":8080"
	DefaultLogLevel      = "info"
	DefaultHistoryFile   = "history.db"
)

// Config holds crawler and explorer settings.
type Config struct {
	Crawler     *CrawlerConfig `yaml:"crawler,omitempty"`
	Server      *ServerConfig  `yaml:"server,omitempty"`
	STUNServers []string       `yaml:"stun_servers,omitempty"`
	LogLevel    string         `yaml:"log_level,omitempty"`
}

// Seed is a configured entry point for the crawl.
type Seed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name,omitempty"`
}

// CrawlerConfig drives the discovery engine.
type CrawlerConfig struct {
	Seeds         []Seed `yaml:"seeds"`
	RPCPort       int    `yaml:"rpc_port"`
	P2PPort       int    `yaml:"p2p_port"`
	TimeoutSec    int    `yaml:"timeout_sec"`
	ExpandWorkers int    `yaml:"expand_workers"`
	SweepWorkers  int    `yaml:"sweep_workers"`
	// Sweep enables the reachability pass after the crawl converges.
	// Pointer so an explicit false survives ApplyDefaults.
	Sweep   *bool `yaml:"sweep,omitempty"`
	LogSize int   `yaml:"log_size"`
}

// ServerConfig is used by the HTTP explorer.
type ServerConfig struct {
	Listen  string `yaml:"listen"`
	DataDir string `yaml:"data_dir,omitempty"`
	// History stores every completed run in a LevelDB under DataDir.
	History bool `yaml:"history,omitempty"`
}

// Timeout returns the per-call RPC timeout.
func (c CrawlerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// SweepEnabled reports whether the reachability sweep should run.
func (c CrawlerConfig) SweepEnabled() bool {
	return c.Sweep == nil || *c.Sweep
}

// HistoryPath returns the LevelDB directory, or "" when history is disabled.
func (s ServerConfig) HistoryPath() string {
	if !s.History || s.DataDir == "" {
		return ""
	}
	return filepath.Join(s.DataDir, DefaultHistoryFile)
}

// Load reads and parses a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// Save writes a YAML config file to disk.
func Save(path string, cfg Config) error {
	ApplyDefaults(&cfg)
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate performs minimal validation for required fields.
func Validate(cfg Config) error {
	if cfg.Crawler == nil {
		return fmt.Errorf("config must contain a crawler section")
	}
	if len(cfg.Crawler.Seeds) == 0 {
		return fmt.Errorf("crawler.seeds requires at least one seed")
	}
	for i, seed := range cfg.Crawler.Seeds {
		if seed.URL == "" {
			return fmt.Errorf("crawler.seeds[%d].url is required", i)
		}
	}
	if cfg.Crawler.RPCPort <= 0 || cfg.Crawler.RPCPort > 65535 {
		return fmt.Errorf("crawler.rpc_port %d out of range", cfg.Crawler.RPCPort)
	}
	if cfg.Crawler.ExpandWorkers < 1 || cfg.Crawler.SweepWorkers < 1 {
		return fmt.Errorf("crawler worker limits must be positive")
	}
	if cfg.Server != nil && cfg.Server.History && cfg.Server.DataDir == "" {
		return fmt.Errorf("server.data_dir is required when history is enabled")
	}
	return nil
}

// ApplyDefaults fills in default values when empty.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	if cfg.Crawler != nil {
		if cfg.Crawler.RPCPort == 0 {
			cfg.Crawler.RPCPort = DefaultRPCPort
		}
		if cfg.Crawler.P2PPort == 0 {
			cfg.Crawler.P2PPort = DefaultP2PPort
		}
		if cfg.Crawler.TimeoutSec == 0 {
			cfg.Crawler.TimeoutSec = DefaultTimeoutSec
		}
		if cfg.Crawler.ExpandWorkers == 0 {
			cfg.Crawler.ExpandWorkers = DefaultExpandWorkers
		}
		if cfg.Crawler.SweepWorkers == 0 {
			cfg.Crawler.SweepWorkers = DefaultSweepWorkers
		}
		if cfg.Crawler.Sweep == nil {
			enabled := true
			cfg.Crawler.Sweep = &enabled
		}
		if cfg.Crawler.LogSize == 0 {
			cfg.Crawler.LogSize = DefaultLogSize
		}
	}

	if cfg.Server != nil {
		if cfg.Server.Listen == "" {
			cfg.Server.Listen = DefaultListen
		}
	}
}
