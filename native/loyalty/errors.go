package loyalty

import "errors"

var (
	ErrInvalidTier          = errors.New("loyalty: invalid tier")
	ErrInvalidMultiplier    = errors.New("loyalty: invalid multiplier")
	ErrInvalidTierUpdate    = errors.New("loyalty: invalid tier update")
	ErrNotAuthorized        = errors.New("loyalty: not authorized")
	ErrInsufficientBalance  = errors.New("loyalty: insufficient balance")
	ErrNoStakedTokens       = errors.New("loyalty: no staked tokens")
	ErrInvalidAmount        = errors.New("loyalty: invalid amount")
	ErrInvalidAddress       = errors.New("loyalty: invalid address")
	ErrAmountOverflow       = errors.New("loyalty: amount overflow")
	ErrInvalidStakingParams = errors.New("loyalty: invalid staking params")
)
