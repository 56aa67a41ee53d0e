package config

import "time"

// Storage selects the key-value backend holding ledger state.
type Storage struct {
	Backend   string `toml:"Backend" yaml:"backend"` // memory, leveldb or badger
	Path      string `toml:"Path" yaml:"path"`
	CacheSize int    `toml:"CacheSize" yaml:"cacheSize"`
}

// Journal configures the append-only event journal. DSNs starting with
// postgres:// or postgresql:// use Postgres, anything else is a sqlite path.
type Journal struct {
	Enabled bool   `toml:"Enabled" yaml:"enabled"`
	DSN     string `toml:"DSN" yaml:"dsn"`
}

// Staking holds the unstake bonus parameters.
type Staking struct {
	BonusRateBps       uint64 `toml:"BonusRateBps" yaml:"bonusRateBps"`
	BonusPeriodSeconds uint64 `toml:"BonusPeriodSeconds" yaml:"bonusPeriodSeconds"`
}

func (s Staking) BonusPeriod() time.Duration {
	return time.Duration(s.BonusPeriodSeconds) * time.Second
}

// TierSeed is applied to the tier registry on startup. Requirement is a
// decimal string; a zero Multiplier leaves the stored multiplier untouched.
type TierSeed struct {
	Tier        uint8  `toml:"Tier" yaml:"tier"`
	Requirement string `toml:"Requirement" yaml:"requirement"`
	Multiplier  uint32 `toml:"Multiplier" yaml:"multiplier"`
}

type Auth struct {
	Enabled          bool   `toml:"Enabled" yaml:"enabled"`
	HMACSecret       string `toml:"HMACSecret" yaml:"hmacSecret"`
	Issuer           string `toml:"Issuer" yaml:"issuer"`
	Audience         string `toml:"Audience" yaml:"audience"`
	ScopeClaim       string `toml:"ScopeClaim" yaml:"scopeClaim"`
	ClockSkewSeconds uint64 `toml:"ClockSkewSeconds" yaml:"clockSkewSeconds"`
}

func (a Auth) ClockSkew() time.Duration {
	return time.Duration(a.ClockSkewSeconds) * time.Second
}

// RateLimit applies per client. A zero rate disables limiting.
type RateLimit struct {
	RatePerSecond float64 `toml:"RatePerSecond" yaml:"ratePerSecond"`
	Burst         int     `toml:"Burst" yaml:"burst"`
}

type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `toml:"MaxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"maxAgeDays"`
}

// Telemetry configures the OTLP/HTTP exporters. Headers uses the
// key=value,key2=value2 form of OTEL_EXPORTER_OTLP_HEADERS.
type Telemetry struct {
	ServiceName string `toml:"ServiceName" yaml:"serviceName"`
	Endpoint    string `toml:"Endpoint" yaml:"endpoint"`
	Insecure    bool   `toml:"Insecure" yaml:"insecure"`
	Headers     string `toml:"Headers" yaml:"headers"`
	Metrics     bool   `toml:"Metrics" yaml:"metrics"`
	Traces      bool   `toml:"Traces" yaml:"traces"`
}

type Pauses struct {
	Loyalty bool `toml:"Loyalty" yaml:"loyalty"`
}

// Modules lists the paused module names.
func (p Pauses) Modules() []string {
	var out []string
	if p.Loyalty {
		out = append(out, "loyalty")
	}
	return out
}
