package loyalty

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

const (
	// BonusBpsDenominator defines the scaling factor used for basis point math
	// when computing staking bonuses.
	BonusBpsDenominator = 10_000
	// DefaultBonusRateBps is the bonus earned per bonus period (1%).
	DefaultBonusRateBps = 100
	// DefaultBonusPeriod is the accrual period DefaultBonusRateBps applies to.
	DefaultBonusPeriod = 100 * time.Second
)

// StakingParams configures the time bonus paid on unstake.
type StakingParams struct {
	BonusRateBps uint64
	BonusPeriod  time.Duration
}

// DefaultStakingParams pays 1% of the principal per 100 seconds staked.
func DefaultStakingParams() StakingParams {
	return StakingParams{BonusRateBps: DefaultBonusRateBps, BonusPeriod: DefaultBonusPeriod}
}

// ApplyDefaults ensures unset fields fall back to module defaults.
func (p StakingParams) ApplyDefaults() StakingParams {
	if p.BonusRateBps == 0 {
		p.BonusRateBps = DefaultBonusRateBps
	}
	if p.BonusPeriod == 0 {
		p.BonusPeriod = DefaultBonusPeriod
	}
	return p
}

// Validate rejects periods below the millisecond resolution of stake
// timestamps.
func (p StakingParams) Validate() error {
	if p.BonusPeriod < time.Millisecond {
		return fmt.Errorf("%w: bonus period %s below 1ms", ErrInvalidStakingParams, p.BonusPeriod)
	}
	return nil
}

// Bonus returns floor(staked * elapsedMillis * rateBps / (10_000 * periodMillis)).
// Negative elapsed time counts as zero.
func (p StakingParams) Bonus(staked *uint256.Int, elapsed time.Duration) (*uint256.Int, error) {
	if staked == nil || staked.IsZero() || elapsed <= 0 || p.BonusRateBps == 0 {
		return new(uint256.Int), nil
	}
	periodMillis := p.BonusPeriod.Milliseconds()
	if periodMillis <= 0 {
		return nil, fmt.Errorf("%w: bonus period %s below 1ms", ErrInvalidStakingParams, p.BonusPeriod)
	}
	numerator := new(uint256.Int).Mul(uint256.NewInt(uint64(elapsed.Milliseconds())), uint256.NewInt(p.BonusRateBps))
	denominator := new(uint256.Int).Mul(uint256.NewInt(BonusBpsDenominator), uint256.NewInt(uint64(periodMillis)))
	bonus, overflow := new(uint256.Int).MulDivOverflow(staked, numerator, denominator)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return bonus, nil
}
