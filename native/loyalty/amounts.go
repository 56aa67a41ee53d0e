package loyalty

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"loyaltyledger/core/state"
)

// stakeRecord keeps the staked amount and its accrual start under one key, so
// a start time exists exactly when a stake does.
type stakeRecord struct {
	Amount      *big.Int
	StartMillis uint64
}

type businessRecord struct {
	RegisteredAtMillis uint64
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrAmountOverflow, v)
	}
	return u, nil
}

func sanitizeAmount(v *big.Int) (*big.Int, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: amount required", ErrInvalidAmount)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, v)
	}
	return new(big.Int).Set(v), nil
}

func readAmount(kv state.KV, key []byte) (*uint256.Int, error) {
	stored := new(big.Int)
	ok, err := kv.KVGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	u, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, fmt.Errorf("%w: stored value exceeds 256 bits", ErrAmountOverflow)
	}
	return u, nil
}

func writeAmount(kv state.KV, key []byte, v *uint256.Int) error {
	return kv.KVPut(key, v.ToBig())
}

func readStake(kv state.KV, user string) (*stakeRecord, bool, error) {
	rec := new(stakeRecord)
	ok, err := kv.KVGet(stakeKey(user), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	if rec.Amount == nil {
		rec.Amount = new(big.Int)
	}
	return rec, true, nil
}
