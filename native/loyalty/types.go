package loyalty

import (
	"math/big"
	"time"
)

// Tier is a loyalty rank. Zero means the user has no tier.
type Tier uint8

const (
	NoTier  Tier = 0
	MinTier Tier = 1
	MaxTier Tier = 5
)

// Valid reports whether t is a configurable tier.
func (t Tier) Valid() bool {
	return t >= MinTier && t <= MaxTier
}

const (
	// MultiplierBase is the basis of reward multipliers: 100 leaves an amount
	// unchanged.
	MultiplierBase = 100
	// MinMultiplier and MaxMultiplier bound the values accepted by
	// SetTierMultiplier.
	MinMultiplier = 100
	MaxMultiplier = 200
	// DefaultMultiplier applies to tiers without a configured multiplier.
	DefaultMultiplier = MultiplierBase
)

// TierConfig is a snapshot of one tier's configuration.
type TierConfig struct {
	Tier        Tier
	Requirement *big.Int
	Multiplier  uint32
}

// Account is a read-only view of a user's ledger position. StakingStart is the
// zero time when nothing is staked.
type Account struct {
	User         string
	Balance      *big.Int
	Staked       *big.Int
	StakingStart time.Time
}

// UnstakeResult describes a released stake.
type UnstakeResult struct {
	Principal *big.Int
	Bonus     *big.Int
	Total     *big.Int
	Elapsed   time.Duration
}
