package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables overlaid on top of the file configuration.
const (
	EnvAuthSecret  = "LOYALTY_AUTH_SECRET"
	EnvJournalDSN  = "LOYALTY_JOURNAL_DSN"
	EnvEnvironment = "LOYALTY_ENV"
)

type Config struct {
	ListenAddress  string   `toml:"ListenAddress" yaml:"listenAddress"`
	Environment    string   `toml:"Environment" yaml:"environment"`
	DataDir        string   `toml:"DataDir" yaml:"dataDir"`
	Businesses     []string `toml:"Businesses" yaml:"businesses"`
	// AllowedOrigins enables CORS for the listed browser origins.
	AllowedOrigins []string `toml:"AllowedOrigins" yaml:"allowedOrigins"`

	Storage   Storage    `toml:"storage" yaml:"storage"`
	Journal   Journal    `toml:"journal" yaml:"journal"`
	Staking   Staking    `toml:"staking" yaml:"staking"`
	Tiers     []TierSeed `toml:"tiers" yaml:"tiers"`
	Auth      Auth       `toml:"auth" yaml:"auth"`
	RateLimit RateLimit  `toml:"rate_limit" yaml:"rateLimit"`
	Logging   Logging    `toml:"logging" yaml:"logging"`
	Telemetry Telemetry  `toml:"telemetry" yaml:"telemetry"`
	Pauses    Pauses     `toml:"pauses" yaml:"pauses"`
}

// Load loads the configuration from the given path. A missing TOML file is
// created with defaults. Files ending in .yaml or .yml are decoded as YAML.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if isYAML(path) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	if isYAML(path) {
		if err := decodeYAML(path, cfg); err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	cfg.applyDefaults(path)
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh install.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8080",
		Environment:   "local",
		DataDir:       "./loyalty-data",
		Businesses:    []string{},
		Storage: Storage{
			Backend:   "leveldb",
			CacheSize: 4096,
		},
		Staking: Staking{
			BonusRateBps:       100,
			BonusPeriodSeconds: 100,
		},
		Tiers: []TierSeed{},
		Auth: Auth{
			Enabled:          false,
			ScopeClaim:       "scope",
			ClockSkewSeconds: 120,
		},
		RateLimit: RateLimit{
			RatePerSecond: 20,
			Burst:         40,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults(path)
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyDefaults(path string) {
	def := Default()
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = def.ListenAddress
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = def.Environment
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = def.DataDir
	}
	if c.Businesses == nil {
		c.Businesses = []string{}
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = def.Storage.Backend
	}
	if c.Storage.Path == "" && c.Storage.Backend != "memory" {
		c.Storage.Path = filepath.Join(c.DataDir, c.Storage.Backend)
	}
	if c.Staking.BonusRateBps == 0 {
		c.Staking.BonusRateBps = def.Staking.BonusRateBps
	}
	if c.Staking.BonusPeriodSeconds == 0 {
		c.Staking.BonusPeriodSeconds = def.Staking.BonusPeriodSeconds
	}
	if c.Auth.ScopeClaim == "" {
		c.Auth.ScopeClaim = def.Auth.ScopeClaim
	}
	if c.Auth.ClockSkewSeconds == 0 {
		c.Auth.ClockSkewSeconds = def.Auth.ClockSkewSeconds
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = def.Telemetry.Endpoint
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "loyaltyd"
	}
}

func (c *Config) applyEnv() {
	if secret := strings.TrimSpace(os.Getenv(EnvAuthSecret)); secret != "" {
		c.Auth.HMACSecret = secret
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvJournalDSN)); dsn != "" {
		c.Journal.DSN = dsn
		c.Journal.Enabled = true
	}
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		c.Environment = env
	}
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeYAML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
