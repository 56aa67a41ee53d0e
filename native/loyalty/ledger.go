package loyalty

import (
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
	nativecommon "loyaltyledger/native/common"
)

// Ledger tracks spendable and staked loyalty token balances and the set of
// businesses allowed to mint.
type Ledger struct {
	st      State
	emitter events.Emitter
	pauses  nativecommon.PauseView
	params  StakingParams
	now     func() time.Time
}

// NewLedger creates a ledger backed by the provided state with the default
// staking parameters and the wall clock.
func NewLedger(st State) *Ledger {
	return &Ledger{
		st:      st,
		emitter: events.NoopEmitter{},
		params:  DefaultStakingParams(),
		now:     time.Now,
	}
}

// SetEmitter configures the event emitter used to broadcast ledger updates.
// Passing nil resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) SetPauses(p nativecommon.PauseView) {
	if l == nil {
		return
	}
	l.pauses = p
}

// SetClock overrides the time source used for stake timestamps. Passing nil
// restores the wall clock.
func (l *Ledger) SetClock(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	l.now = now
}

// SetStakingParams replaces the bonus parameters after applying defaults.
func (l *Ledger) SetStakingParams(p StakingParams) error {
	p = p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return err
	}
	l.params = p
	return nil
}

// StakingParams returns the active bonus parameters.
func (l *Ledger) StakingParams() StakingParams {
	return l.params
}

// MintAndDistribute credits amount to recipient on behalf of a registered
// business.
func (l *Ledger) MintAndDistribute(business, recipient string, amount *big.Int) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	biz, err := normalizeAddress(business)
	if err != nil {
		return err
	}
	to, err := normalizeAddress(recipient)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.st.AtomicThen(func(kv state.KV) error {
		registered, err := kv.KVGet(businessKey(biz), nil)
		if err != nil {
			return err
		}
		if !registered {
			return fmt.Errorf("%w: %s is not a registered business", ErrNotAuthorized, biz)
		}
		balance, err := readAmount(kv, balanceKey(to))
		if err != nil {
			return err
		}
		next, overflow := new(uint256.Int).AddOverflow(balance, value)
		if overflow {
			return ErrAmountOverflow
		}
		return writeAmount(kv, balanceKey(to), next)
	}, func() {
		emitTo(l.emitter, events.LoyaltyTokensMinted{Business: biz, Recipient: to, Amount: value.ToBig()})
	})
}

// RedeemTokens debits amount from the user's spendable balance.
func (l *Ledger) RedeemTokens(user string, amount *big.Int) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	addr, err := normalizeAddress(user)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	return l.st.AtomicThen(func(kv state.KV) error {
		balance, err := readAmount(kv, balanceKey(addr))
		if err != nil {
			return err
		}
		if balance.Lt(value) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), value.Dec())
		}
		return writeAmount(kv, balanceKey(addr), new(uint256.Int).Sub(balance, value))
	}, func() {
		emitTo(l.emitter, events.LoyaltyTokensRedeemed{User: addr, Amount: value.ToBig()})
	})
}

// StakeTokens moves amount from the spendable balance into the staked
// balance. Staking again while already staked adds to the stake and restarts
// the accrual clock at the current time.
func (l *Ledger) StakeTokens(user string, amount *big.Int) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	addr, err := normalizeAddress(user)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return fmt.Errorf("%w: stake amount must be positive", ErrInvalidAmount)
	}
	startMillis := uint64(l.now().UnixMilli())
	var total *uint256.Int
	return l.st.AtomicThen(func(kv state.KV) error {
		balance, err := readAmount(kv, balanceKey(addr))
		if err != nil {
			return err
		}
		if balance.Lt(value) {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, balance.Dec(), value.Dec())
		}
		staked := new(uint256.Int)
		rec, ok, err := readStake(kv, addr)
		if err != nil {
			return err
		}
		if ok {
			if staked, err = toUint256(rec.Amount); err != nil {
				return err
			}
		}
		var overflow bool
		total, overflow = new(uint256.Int).AddOverflow(staked, value)
		if overflow {
			return ErrAmountOverflow
		}
		if err := writeAmount(kv, balanceKey(addr), new(uint256.Int).Sub(balance, value)); err != nil {
			return err
		}
		return kv.KVPut(stakeKey(addr), &stakeRecord{Amount: total.ToBig(), StartMillis: startMillis})
	}, func() {
		emitTo(l.emitter, events.LoyaltyTokensStaked{
			User:        addr,
			Amount:      value.ToBig(),
			TotalStaked: total.ToBig(),
			StartMillis: startMillis,
		})
	})
}

// UnstakeTokens releases the whole stake plus its time bonus into the
// spendable balance and removes the stake record.
func (l *Ledger) UnstakeTokens(user string) (*UnstakeResult, error) {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return nil, err
	}
	addr, err := normalizeAddress(user)
	if err != nil {
		return nil, err
	}
	nowMillis := l.now().UnixMilli()
	var (
		principal, bonus, total *uint256.Int
		elapsed                 time.Duration
		result                  *UnstakeResult
	)
	err = l.st.AtomicThen(func(kv state.KV) error {
		rec, ok, err := readStake(kv, addr)
		if err != nil {
			return err
		}
		if !ok || rec.Amount.Sign() == 0 {
			return ErrNoStakedTokens
		}
		if principal, err = toUint256(rec.Amount); err != nil {
			return err
		}
		if delta := nowMillis - int64(rec.StartMillis); delta > 0 {
			elapsed = time.Duration(delta) * time.Millisecond
		}
		if bonus, err = l.params.Bonus(principal, elapsed); err != nil {
			return err
		}
		var overflow bool
		if total, overflow = new(uint256.Int).AddOverflow(principal, bonus); overflow {
			return ErrAmountOverflow
		}
		balance, err := readAmount(kv, balanceKey(addr))
		if err != nil {
			return err
		}
		credited, overflow := new(uint256.Int).AddOverflow(balance, total)
		if overflow {
			return ErrAmountOverflow
		}
		if err := writeAmount(kv, balanceKey(addr), credited); err != nil {
			return err
		}
		return kv.KVDelete(stakeKey(addr))
	}, func() {
		result = &UnstakeResult{
			Principal: principal.ToBig(),
			Bonus:     bonus.ToBig(),
			Total:     total.ToBig(),
			Elapsed:   elapsed,
		}
		emitTo(l.emitter, events.LoyaltyTokensUnstaked{
			User:          addr,
			Principal:     result.Principal,
			Bonus:         result.Bonus,
			Total:         result.Total,
			ElapsedMillis: uint64(elapsed.Milliseconds()),
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Balance returns the user's spendable balance, zero when unknown.
func (l *Ledger) Balance(user string) (*big.Int, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return nil, err
	}
	balance, err := readAmount(l.st, balanceKey(addr))
	if err != nil {
		return nil, err
	}
	return balance.ToBig(), nil
}

// StakedBalance returns the user's staked amount, zero when nothing is staked.
func (l *Ledger) StakedBalance(user string) (*big.Int, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return nil, err
	}
	rec, ok, err := readStake(l.st, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(big.Int), nil
	}
	return rec.Amount, nil
}

// StakingStartTime returns the accrual start in milliseconds since the epoch,
// zero when nothing is staked.
func (l *Ledger) StakingStartTime(user string) (uint64, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return 0, err
	}
	rec, ok, err := readStake(l.st, addr)
	if err != nil || !ok {
		return 0, err
	}
	return rec.StartMillis, nil
}

// Account returns the user's spendable and staked balances as read from one
// committed state.
func (l *Ledger) Account(user string) (*Account, error) {
	addr, err := normalizeAddress(user)
	if err != nil {
		return nil, err
	}
	account := &Account{User: addr, Staked: new(big.Int)}
	err = l.st.View(func(kv state.KV) error {
		balance, err := readAmount(kv, balanceKey(addr))
		if err != nil {
			return err
		}
		account.Balance = balance.ToBig()
		rec, ok, err := readStake(kv, addr)
		if err != nil || !ok {
			return err
		}
		account.Staked = rec.Amount
		account.StakingStart = time.UnixMilli(int64(rec.StartMillis))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
