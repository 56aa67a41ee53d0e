package loyalty

import (
	"fmt"
	"math/big"

	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
	nativecommon "loyaltyledger/native/common"
)

// TierRegistry stores per-tier thresholds and multipliers and the current
// tier of every user.
type TierRegistry struct {
	st      State
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewTierRegistry creates a registry backed by the provided state.
func NewTierRegistry(st State) *TierRegistry {
	return &TierRegistry{st: st, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *TierRegistry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *TierRegistry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// SetTierRequirement stores the minimum balance for tier. Thresholds are not
// required to increase with the tier number, but must fit the 256-bit range
// balances are held in.
func (r *TierRegistry) SetTierRequirement(tier Tier, required *big.Int) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	value, err := toUint256(required)
	if err != nil {
		return err
	}
	amount := value.ToBig()
	return r.st.AtomicThen(func(kv state.KV) error {
		return kv.KVPut(tierRequirementKey(tier), amount)
	}, func() {
		emitTo(r.emitter, events.LoyaltyTierRequirement{Tier: uint8(tier), Requirement: new(big.Int).Set(amount)})
	})
}

// SetTierMultiplier stores the basis-100 reward multiplier for tier.
func (r *TierRegistry) SetTierMultiplier(tier Tier, multiplier uint32) error {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return err
	}
	if !tier.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	if multiplier < MinMultiplier || multiplier > MaxMultiplier {
		return fmt.Errorf("%w: %d outside [%d,%d]", ErrInvalidMultiplier, multiplier, MinMultiplier, MaxMultiplier)
	}
	return r.st.AtomicThen(func(kv state.KV) error {
		return kv.KVPut(tierMultiplierKey(tier), uint64(multiplier))
	}, func() {
		emitTo(r.emitter, events.LoyaltyTierMultiplier{Tier: uint8(tier), Multiplier: multiplier})
	})
}

// TierRequirement returns the configured threshold, or zero when unset.
func (r *TierRegistry) TierRequirement(tier Tier) (*big.Int, error) {
	return tierRequirement(r.st, tier)
}

// TierMultiplier returns the configured multiplier, or DefaultMultiplier when
// unset.
func (r *TierRegistry) TierMultiplier(tier Tier) (uint32, error) {
	return tierMultiplier(r.st, tier)
}

// UserTier returns the stored tier of user, or NoTier.
func (r *TierRegistry) UserTier(user string) (Tier, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return NoTier, err
	}
	return userTier(r.st, addr)
}

// DetermineTier returns the highest tier whose requirement is at most
// balance, scanning from MaxTier down. Unset requirements read as zero.
func (r *TierRegistry) DetermineTier(balance *big.Int) (Tier, error) {
	amount, err := sanitizeAmount(balance)
	if err != nil {
		return NoTier, err
	}
	return determineTier(r.st, amount)
}

// UpdateUserTier recomputes the user's tier from balance. The stored tier
// never decreases through this path: a lower result fails with
// ErrInvalidTierUpdate and leaves the stored tier in place.
func (r *TierRegistry) UpdateUserTier(user string, balance *big.Int) (Tier, error) {
	if err := nativecommon.Guard(r.pauses, moduleName); err != nil {
		return NoTier, err
	}
	addr, err := normalizeAddress(user)
	if err != nil {
		return NoTier, err
	}
	amount, err := sanitizeAmount(balance)
	if err != nil {
		return NoTier, err
	}
	var current, next Tier
	err = r.st.AtomicThen(func(kv state.KV) error {
		var err error
		if current, err = userTier(kv, addr); err != nil {
			return err
		}
		if next, err = determineTier(kv, amount); err != nil {
			return err
		}
		if next < current {
			return fmt.Errorf("%w: %d below current tier %d", ErrInvalidTierUpdate, next, current)
		}
		return kv.KVPut(userTierKey(addr), uint64(next))
	}, func() {
		emitTo(r.emitter, events.LoyaltyTierUpdated{
			User:     addr,
			Previous: uint8(current),
			Current:  uint8(next),
			Balance:  amount,
		})
	})
	if err != nil {
		return current, err
	}
	return next, nil
}

// AdjustedAmount scales base by the multiplier of the user's tier, rounding
// down: floor(base * multiplier / 100).
func (r *TierRegistry) AdjustedAmount(user string, base *big.Int) (*big.Int, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return nil, err
	}
	amount, err := sanitizeAmount(base)
	if err != nil {
		return nil, err
	}
	tier, err := userTier(r.st, addr)
	if err != nil {
		return nil, err
	}
	multiplier, err := tierMultiplier(r.st, tier)
	if err != nil {
		return nil, err
	}
	adjusted := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(multiplier)))
	return adjusted.Quo(adjusted, big.NewInt(MultiplierBase)), nil
}

// Tiers returns the configuration of every tier from MinTier to MaxTier.
func (r *TierRegistry) Tiers() ([]TierConfig, error) {
	out := make([]TierConfig, 0, int(MaxTier))
	err := r.st.View(func(kv state.KV) error {
		for tier := MinTier; tier <= MaxTier; tier++ {
			requirement, err := tierRequirement(kv, tier)
			if err != nil {
				return err
			}
			multiplier, err := tierMultiplier(kv, tier)
			if err != nil {
				return err
			}
			out = append(out, TierConfig{Tier: tier, Requirement: requirement, Multiplier: multiplier})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func tierRequirement(kv state.KV, tier Tier) (*big.Int, error) {
	out := new(big.Int)
	if _, err := kv.KVGet(tierRequirementKey(tier), out); err != nil {
		return nil, err
	}
	return out, nil
}

func tierMultiplier(kv state.KV, tier Tier) (uint32, error) {
	var stored uint64
	ok, err := kv.KVGet(tierMultiplierKey(tier), &stored)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultMultiplier, nil
	}
	return uint32(stored), nil
}

func userTier(kv state.KV, user string) (Tier, error) {
	var stored uint64
	ok, err := kv.KVGet(userTierKey(user), &stored)
	if err != nil || !ok {
		return NoTier, err
	}
	return Tier(stored), nil
}

func determineTier(kv state.KV, balance *big.Int) (Tier, error) {
	for tier := MaxTier; tier >= MinTier; tier-- {
		requirement, err := tierRequirement(kv, tier)
		if err != nil {
			return NoTier, err
		}
		if balance.Cmp(requirement) >= 0 {
			return tier, nil
		}
	}
	return NoTier, nil
}
