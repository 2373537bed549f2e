// Package config reads the YAML configuration of the connect command.
package config

import (
	"fmt"
	"github.com/cyclopcam/connect/lib/network"
	"github.com/cyclopcam/connect/lib/probe"
	"github.com/cyclopcam/connect/lib/relay"
	"github.com/cyclopcam/connect/lib/router"
	"github.com/cyclopcam/connect/lib/scanner"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

const (
	StoreLevelDB  = "leveldb"
	StoreSqlite   = "sqlite3"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	Device DeviceConfig `yaml:"device"`
	Scan   ScanConfig   `yaml:"scan"`
	Relay  RelayConfig  `yaml:"relay"`
	Router RouterConfig `yaml:"router"`
	Store  StoreConfig  `yaml:"store"`
	API    APIConfig    `yaml:"api"`
}

// DeviceConfig describes how devices are contacted on the LAN.
type DeviceConfig struct {
	Port             int      `yaml:"port"`
	ProbeTimeout     Duration `yaml:"probe_timeout"`
	PreflightTimeout Duration `yaml:"preflight_timeout"`
}

type ScanConfig struct {
	Workers int `yaml:"workers"`
}

type RelayConfig struct {
	ProxyHost    string   `yaml:"proxy_host"`
	ProxyPort    int      `yaml:"proxy_port"`
	OriginDomain string   `yaml:"origin_domain"`
	DialTimeout  Duration `yaml:"dial_timeout"`
}

type RouterConfig struct {
	ForceRelay   bool     `yaml:"force_relay"`
	Debounce     Duration `yaml:"debounce"`
	PollInterval Duration `yaml:"poll_interval"`
}

// StoreConfig selects where devices are kept.
// Driver is one of leveldb, sqlite3, postgres and redis.
type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`           // leveldb directory or sqlite3 file
	DSN           string `yaml:"dsn"`            // postgres
	RedisAddr     string `yaml:"redis_addr"`     // redis
	RedisPassword string `yaml:"redis_password"` // redis
	RedisDB       int    `yaml:"redis_db"`       // redis
	RedisPrefix   string `yaml:"redis_prefix"`   // redis
}

type APIConfig struct {
	Listen string `yaml:"listen"`
}

// Duration wraps time.Duration for YAML strings like "200ms" and "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func Default() Config {
	return Config{
		Device: DeviceConfig{
			Port:             probe.DefaultPort,
			ProbeTimeout:     Duration{probe.DefaultProbeTimeout},
			PreflightTimeout: Duration{probe.DefaultPreflightTimeout},
		},
		Scan: ScanConfig{
			Workers: scanner.DefaultWorkers,
		},
		Relay: RelayConfig{
			ProxyHost:    relay.DefaultProxyHost,
			ProxyPort:    relay.DefaultProxyPort,
			OriginDomain: relay.DefaultOriginDomain,
			DialTimeout:  Duration{relay.DefaultDialTimeout},
		},
		Router: RouterConfig{
			Debounce:     Duration{router.DefaultDebounce},
			PollInterval: Duration{network.DefaultPollInterval},
		},
		Store: StoreConfig{
			Driver:      StoreLevelDB,
			Path:        "devices",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "cyclops:",
		},
		API: APIConfig{
			Listen: "127.0.0.1:8090",
		},
	}
}

// Load reads a YAML file. Settings missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %v: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %v: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreLevelDB, StoreSqlite, StorePostgres, StoreRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("invalid device port %v", c.Device.Port)
	}
	if c.Scan.Workers <= 0 {
		return fmt.Errorf("invalid number of scan workers %v", c.Scan.Workers)
	}
	return nil
}

func (c *Config) Probe() probe.Config {
	return probe.Config{
		Port:             c.Device.Port,
		ProbeTimeout:     c.Device.ProbeTimeout.Duration,
		PreflightTimeout: c.Device.PreflightTimeout.Duration,
	}
}

func (c *Config) RelayConfig() relay.Config {
	return relay.Config{
		ProxyHost:    c.Relay.ProxyHost,
		ProxyPort:    c.Relay.ProxyPort,
		OriginDomain: c.Relay.OriginDomain,
		DialTimeout:  c.Relay.DialTimeout.Duration,
	}
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
