package loyalty_test

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"loyaltyledger/core/events"
	nativecommon "loyaltyledger/native/common"
	loyalty "loyaltyledger/native/loyalty"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLedger(t *testing.T) (*loyalty.Ledger, *fakeClock) {
	t.Helper()
	ledger := loyalty.NewLedger(newTestState(t))
	clock := newFakeClock()
	ledger.SetClock(clock.Now)
	if err := ledger.RegisterBusiness("acme"); err != nil {
		t.Fatalf("register business: %v", err)
	}
	return ledger, clock
}

func mustMint(t *testing.T, ledger *loyalty.Ledger, user string, amount int64) {
	t.Helper()
	if err := ledger.MintAndDistribute("acme", user, big.NewInt(amount)); err != nil {
		t.Fatalf("mint %d to %s: %v", amount, user, err)
	}
}

func requireAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: expected %d, got %v", label, want, got)
	}
}

func requireBalance(t *testing.T, ledger *loyalty.Ledger, user string, want int64) {
	t.Helper()
	got, err := ledger.Balance(user)
	if err != nil {
		t.Fatalf("balance %s: %v", user, err)
	}
	requireAmount(t, "balance "+user, got, want)
}

func requireStaked(t *testing.T, ledger *loyalty.Ledger, user string, want int64) {
	t.Helper()
	got, err := ledger.StakedBalance(user)
	if err != nil {
		t.Fatalf("staked %s: %v", user, err)
	}
	requireAmount(t, "staked "+user, got, want)
}

func TestMintThenRedeem(t *testing.T) {
	ledger, _ := newTestLedger(t)
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)

	mustMint(t, ledger, "alice", 100)
	requireBalance(t, ledger, "alice", 100)

	if err := ledger.RedeemTokens("alice", big.NewInt(50)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	requireBalance(t, ledger, "alice", 50)

	want := []string{events.TypeLoyaltyTokensMinted, events.TypeLoyaltyTokensRedeemed}
	got := emitter.types()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestRedeemInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 10)
	if err := ledger.RedeemTokens("alice", big.NewInt(11)); !errors.Is(err, loyalty.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	requireBalance(t, ledger, "alice", 10)
	if err := ledger.RedeemTokens("nobody", big.NewInt(1)); !errors.Is(err, loyalty.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for unknown user, got %v", err)
	}
}

func TestZeroMintAndRedeemAreNoOps(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 0)
	if err := ledger.RedeemTokens("alice", big.NewInt(0)); err != nil {
		t.Fatalf("zero redeem: %v", err)
	}
	requireBalance(t, ledger, "alice", 0)
}

func TestAmountValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if err := ledger.MintAndDistribute("acme", "alice", big.NewInt(-1)); !errors.Is(err, loyalty.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := ledger.MintAndDistribute("acme", "alice", nil); !errors.Is(err, loyalty.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for nil, got %v", err)
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := ledger.MintAndDistribute("acme", "alice", huge); !errors.Is(err, loyalty.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	if err := ledger.MintAndDistribute("acme", "", big.NewInt(1)); !errors.Is(err, loyalty.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestMintOverflowRejected(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ceiling := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := ledger.MintAndDistribute("acme", "whale", ceiling); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := ledger.MintAndDistribute("acme", "whale", big.NewInt(1)); !errors.Is(err, loyalty.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	got, err := ledger.Balance("whale")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(ceiling) != 0 {
		t.Fatalf("balance changed after overflow")
	}
}

func TestStakeMovesBalance(t *testing.T) {
	ledger, clock := newTestLedger(t)
	mustMint(t, ledger, "alice", 100)

	if err := ledger.StakeTokens("alice", big.NewInt(25)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	requireStaked(t, ledger, "alice", 25)
	requireBalance(t, ledger, "alice", 75)

	start, err := ledger.StakingStartTime("alice")
	if err != nil {
		t.Fatalf("start time: %v", err)
	}
	if start != uint64(clock.Now().UnixMilli()) {
		t.Fatalf("expected start %d, got %d", clock.Now().UnixMilli(), start)
	}
}

func TestStakeTopUpResetsClock(t *testing.T) {
	ledger, clock := newTestLedger(t)
	mustMint(t, ledger, "alice", 100)
	if err := ledger.StakeTokens("alice", big.NewInt(20)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.Advance(10 * time.Second)
	if err := ledger.StakeTokens("alice", big.NewInt(30)); err != nil {
		t.Fatalf("top up: %v", err)
	}
	requireStaked(t, ledger, "alice", 50)
	requireBalance(t, ledger, "alice", 50)

	account, err := ledger.Account("alice")
	if err != nil {
		t.Fatalf("account: %v", err)
	}
	if !account.StakingStart.Equal(clock.Now()) {
		t.Fatalf("expected start reset to %v, got %v", clock.Now(), account.StakingStart)
	}
}

func TestStakeValidation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 10)
	if err := ledger.StakeTokens("alice", big.NewInt(0)); !errors.Is(err, loyalty.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero stake, got %v", err)
	}
	if err := ledger.StakeTokens("alice", big.NewInt(11)); !errors.Is(err, loyalty.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	requireBalance(t, ledger, "alice", 10)
	requireStaked(t, ledger, "alice", 0)
	start, err := ledger.StakingStartTime("alice")
	if err != nil {
		t.Fatalf("start time: %v", err)
	}
	if start != 0 {
		t.Fatalf("expected no start time, got %d", start)
	}
}

func TestUnstakePaysTimeBonus(t *testing.T) {
	ledger, clock := newTestLedger(t)
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)
	mustMint(t, ledger, "alice", 100)
	if err := ledger.StakeTokens("alice", big.NewInt(50)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.Advance(1_000_000 * time.Millisecond)

	result, err := ledger.UnstakeTokens("alice")
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	requireAmount(t, "principal", result.Principal, 50)
	requireAmount(t, "bonus", result.Bonus, 5)
	requireAmount(t, "total", result.Total, 55)
	if result.Elapsed != 1000*time.Second {
		t.Fatalf("unexpected elapsed %s", result.Elapsed)
	}
	requireBalance(t, ledger, "alice", 105)
	requireStaked(t, ledger, "alice", 0)
	start, err := ledger.StakingStartTime("alice")
	if err != nil {
		t.Fatalf("start time: %v", err)
	}
	if start != 0 {
		t.Fatalf("expected stake record removed, start %d", start)
	}

	last, ok := emitter.events[len(emitter.events)-1].(events.LoyaltyTokensUnstaked)
	if !ok {
		t.Fatalf("expected unstake event, got %v", emitter.types())
	}
	if last.Total.Cmp(big.NewInt(55)) != 0 || last.ElapsedMillis != 1_000_000 {
		t.Fatalf("unexpected unstake event %#v", last)
	}
}

func TestUnstakeImmediatelyPaysNoBonus(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 100)
	if err := ledger.StakeTokens("alice", big.NewInt(100)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	result, err := ledger.UnstakeTokens("alice")
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	requireAmount(t, "bonus", result.Bonus, 0)
	requireBalance(t, ledger, "alice", 100)
}

func TestUnstakeClockSkewCountsAsZero(t *testing.T) {
	ledger, clock := newTestLedger(t)
	mustMint(t, ledger, "alice", 100)
	if err := ledger.StakeTokens("alice", big.NewInt(100)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.Advance(-time.Hour)
	result, err := ledger.UnstakeTokens("alice")
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	requireAmount(t, "bonus", result.Bonus, 0)
	if result.Elapsed != 0 {
		t.Fatalf("expected zero elapsed, got %s", result.Elapsed)
	}
}

func TestUnstakeWithoutStake(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if _, err := ledger.UnstakeTokens("alice"); !errors.Is(err, loyalty.ErrNoStakedTokens) {
		t.Fatalf("expected ErrNoStakedTokens, got %v", err)
	}
	mustMint(t, ledger, "alice", 10)
	if err := ledger.StakeTokens("alice", big.NewInt(10)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if _, err := ledger.UnstakeTokens("alice"); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	if _, err := ledger.UnstakeTokens("alice"); !errors.Is(err, loyalty.ErrNoStakedTokens) {
		t.Fatalf("expected ErrNoStakedTokens after unstake, got %v", err)
	}
}

func TestCustomStakingParams(t *testing.T) {
	ledger, clock := newTestLedger(t)
	if err := ledger.SetStakingParams(loyalty.StakingParams{BonusRateBps: 1_000, BonusPeriod: time.Hour}); err != nil {
		t.Fatalf("set params: %v", err)
	}
	mustMint(t, ledger, "alice", 1_000)
	if err := ledger.StakeTokens("alice", big.NewInt(1_000)); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.Advance(2 * time.Hour)
	result, err := ledger.UnstakeTokens("alice")
	if err != nil {
		t.Fatalf("unstake: %v", err)
	}
	// 10% per hour for two hours.
	requireAmount(t, "bonus", result.Bonus, 200)

	if err := ledger.SetStakingParams(loyalty.StakingParams{BonusPeriod: time.Microsecond}); !errors.Is(err, loyalty.ErrInvalidStakingParams) {
		t.Fatalf("expected ErrInvalidStakingParams, got %v", err)
	}
}

func TestLedgerPausedRejectsWrites(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 10)
	ledger.SetPauses(nativecommon.NewPauses("LOYALTY"))

	if err := ledger.RegisterBusiness("other"); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("register: expected ErrModulePaused, got %v", err)
	}
	if err := ledger.MintAndDistribute("acme", "alice", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("mint: expected ErrModulePaused, got %v", err)
	}
	if err := ledger.RedeemTokens("alice", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("redeem: expected ErrModulePaused, got %v", err)
	}
	if err := ledger.StakeTokens("alice", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("stake: expected ErrModulePaused, got %v", err)
	}
	if _, err := ledger.UnstakeTokens("alice"); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("unstake: expected ErrModulePaused, got %v", err)
	}
	requireBalance(t, ledger, "alice", 10)
}

func TestConcurrentMintsAreSerialized(t *testing.T) {
	ledger, _ := newTestLedger(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.MintAndDistribute("acme", "alice", big.NewInt(2)); err != nil {
				t.Errorf("mint: %v", err)
			}
		}()
	}
	wg.Wait()
	requireBalance(t, ledger, "alice", 100)
}

type orderedEmitter struct {
	mu     sync.Mutex
	totals []int64
}

func (o *orderedEmitter) Emit(e events.Event) {
	staked, ok := e.(events.LoyaltyTokensStaked)
	if !ok {
		return
	}
	o.mu.Lock()
	o.totals = append(o.totals, staked.TotalStaked.Int64())
	o.mu.Unlock()
}

func TestConcurrentStakesEmitInCommitOrder(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 60)
	emitter := &orderedEmitter{}
	ledger.SetEmitter(emitter)

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.StakeTokens("alice", big.NewInt(1)); err != nil {
				t.Errorf("stake: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(emitter.totals) != 60 {
		t.Fatalf("expected 60 stake events, got %d", len(emitter.totals))
	}
	for i, total := range emitter.totals {
		if total != int64(i+1) {
			t.Fatalf("event %d reports total %d; events out of commit order: %v", i, total, emitter.totals)
		}
	}
}

func TestAccountSnapshotIsConsistent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	mustMint(t, ledger, "alice", 200)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if err := ledger.StakeTokens("alice", big.NewInt(1)); err != nil {
				t.Errorf("stake: %v", err)
				return
			}
		}
	}()

	for {
		account, err := ledger.Account("alice")
		if err != nil {
			t.Fatalf("account: %v", err)
		}
		if sum := new(big.Int).Add(account.Balance, account.Staked); sum.Int64() != 200 {
			t.Fatalf("snapshot balance %v + staked %v does not add up to 200", account.Balance, account.Staked)
		}
		select {
		case <-done:
			return
		default:
		}
	}
}
