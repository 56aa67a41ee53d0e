package config

import (
	"fmt"
	"math/big"
	"strings"
)

var (
	MinTier       = uint8(1)
	MaxTier       = uint8(5)
	MinMultiplier = uint32(100)
	MaxMultiplier = uint32(200)
)

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "leveldb", "badger":
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	if c.Storage.CacheSize < 0 {
		return fmt.Errorf("storage: cache_size < 0")
	}
	if c.Journal.Enabled && strings.TrimSpace(c.Journal.DSN) == "" {
		return fmt.Errorf("journal: enabled without dsn")
	}
	if c.Staking.BonusPeriodSeconds == 0 {
		return fmt.Errorf("staking: bonus_period_seconds must be positive")
	}
	seen := make(map[uint8]struct{}, len(c.Tiers))
	for _, seed := range c.Tiers {
		if seed.Tier < MinTier || seed.Tier > MaxTier {
			return fmt.Errorf("tiers: tier %d outside [%d,%d]", seed.Tier, MinTier, MaxTier)
		}
		if _, dup := seen[seed.Tier]; dup {
			return fmt.Errorf("tiers: tier %d configured twice", seed.Tier)
		}
		seen[seed.Tier] = struct{}{}
		if _, err := seed.RequirementAmount(); err != nil {
			return fmt.Errorf("tiers: tier %d: %w", seed.Tier, err)
		}
		if seed.Multiplier != 0 && (seed.Multiplier < MinMultiplier || seed.Multiplier > MaxMultiplier) {
			return fmt.Errorf("tiers: tier %d multiplier %d outside [%d,%d]", seed.Tier, seed.Multiplier, MinMultiplier, MaxMultiplier)
		}
	}
	for _, biz := range c.Businesses {
		if strings.TrimSpace(biz) == "" {
			return fmt.Errorf("businesses: empty identifier")
		}
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: enabled without hmac secret (set %s)", EnvAuthSecret)
	}
	if c.RateLimit.RatePerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: negative rate or burst")
	}
	if c.RateLimit.RatePerSecond > 0 && c.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit: burst must be positive when rate is set")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}

// RequirementAmount parses the decimal requirement. Empty means zero.
func (t TierSeed) RequirementAmount() (*big.Int, error) {
	return parseUintAmount(t.Requirement)
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(big.Int), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}
