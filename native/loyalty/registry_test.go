package loyalty_test

import (
	"errors"
	"math/big"
	"testing"

	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
	nativecommon "loyaltyledger/native/common"
	loyalty "loyaltyledger/native/loyalty"
	"loyaltyledger/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(e events.Event) {
	c.events = append(c.events, e)
}

func (c *capturingEmitter) types() []string {
	out := make([]string, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType())
	}
	return out
}

func newTestState(t *testing.T) *state.Manager {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return state.NewManager(db)
}

func newTestRegistry(t *testing.T) *loyalty.TierRegistry {
	t.Helper()
	return loyalty.NewTierRegistry(newTestState(t))
}

func TestTierDefaults(t *testing.T) {
	registry := newTestRegistry(t)
	for tier := loyalty.MinTier; tier <= loyalty.MaxTier; tier++ {
		req, err := registry.TierRequirement(tier)
		if err != nil {
			t.Fatalf("requirement %d: %v", tier, err)
		}
		if req.Sign() != 0 {
			t.Fatalf("tier %d: expected zero requirement, got %s", tier, req)
		}
		mult, err := registry.TierMultiplier(tier)
		if err != nil {
			t.Fatalf("multiplier %d: %v", tier, err)
		}
		if mult != loyalty.DefaultMultiplier {
			t.Fatalf("tier %d: expected default multiplier, got %d", tier, mult)
		}
	}
	userTier, err := registry.UserTier("alice")
	if err != nil {
		t.Fatalf("user tier: %v", err)
	}
	if userTier != loyalty.NoTier {
		t.Fatalf("expected no tier, got %d", userTier)
	}
}

func TestTierSettingsReadBack(t *testing.T) {
	registry := newTestRegistry(t)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	if err := registry.SetTierRequirement(1, big.NewInt(1000)); err != nil {
		t.Fatalf("set requirement: %v", err)
	}
	if err := registry.SetTierMultiplier(1, 110); err != nil {
		t.Fatalf("set multiplier: %v", err)
	}
	req, err := registry.TierRequirement(1)
	if err != nil || req.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("requirement: got %v, %v", req, err)
	}
	mult, err := registry.TierMultiplier(1)
	if err != nil || mult != 110 {
		t.Fatalf("multiplier: got %d, %v", mult, err)
	}
	got := emitter.types()
	if len(got) != 2 || got[0] != events.TypeLoyaltyTierRequirement || got[1] != events.TypeLoyaltyTierMultiplier {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestDetermineTierWithoutConfigurationIsTopTier(t *testing.T) {
	registry := newTestRegistry(t)
	tier, err := registry.DetermineTier(big.NewInt(0))
	if err != nil {
		t.Fatalf("determine: %v", err)
	}
	if tier != loyalty.MaxTier {
		t.Fatalf("expected tier %d, got %d", loyalty.MaxTier, tier)
	}
}

func configureLadder(t *testing.T, registry *loyalty.TierRegistry) {
	t.Helper()
	ladder := map[loyalty.Tier]int64{1: 100, 2: 500, 3: 1000, 4: 5000, 5: 10000}
	for tier, req := range ladder {
		if err := registry.SetTierRequirement(tier, big.NewInt(req)); err != nil {
			t.Fatalf("set requirement %d: %v", tier, err)
		}
	}
}

func TestDetermineTierLadder(t *testing.T) {
	registry := newTestRegistry(t)
	configureLadder(t, registry)
	cases := []struct {
		balance int64
		want    loyalty.Tier
	}{
		{balance: 50, want: loyalty.NoTier},
		{balance: 100, want: 1},
		{balance: 750, want: 2},
		{balance: 1000, want: 3},
		{balance: 9999, want: 4},
		{balance: 10000, want: 5},
		{balance: 1_000_000, want: 5},
	}
	for _, tc := range cases {
		got, err := registry.DetermineTier(big.NewInt(tc.balance))
		if err != nil {
			t.Fatalf("determine %d: %v", tc.balance, err)
		}
		if got != tc.want {
			t.Fatalf("balance %d: expected tier %d, got %d", tc.balance, tc.want, got)
		}
	}
}

func TestDetermineTierNonMonotonicThresholds(t *testing.T) {
	registry := newTestRegistry(t)
	configureLadder(t, registry)
	// Tier 5 below tier 4 wins the downward scan first.
	if err := registry.SetTierRequirement(5, big.NewInt(200)); err != nil {
		t.Fatalf("set requirement: %v", err)
	}
	got, err := registry.DetermineTier(big.NewInt(300))
	if err != nil {
		t.Fatalf("determine: %v", err)
	}
	if got != 5 {
		t.Fatalf("expected tier 5, got %d", got)
	}
}

func TestSetTierRequirementValidation(t *testing.T) {
	registry := newTestRegistry(t)
	for _, tier := range []loyalty.Tier{0, 6, 255} {
		if err := registry.SetTierRequirement(tier, big.NewInt(1)); !errors.Is(err, loyalty.ErrInvalidTier) {
			t.Fatalf("tier %d: expected ErrInvalidTier, got %v", tier, err)
		}
	}
	if err := registry.SetTierRequirement(1, big.NewInt(-1)); !errors.Is(err, loyalty.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestSetTierRequirementRejectsUnreachableThreshold(t *testing.T) {
	registry := newTestRegistry(t)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	tooWide := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := registry.SetTierRequirement(5, tooWide); !errors.Is(err, loyalty.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
	got, err := registry.TierRequirement(5)
	if err != nil {
		t.Fatalf("read requirement: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("rejected requirement was stored: %v", got)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("rejected requirement emitted %v", emitter.types())
	}

	maxBalance := new(big.Int).Sub(tooWide, big.NewInt(1))
	if err := registry.SetTierRequirement(5, maxBalance); err != nil {
		t.Fatalf("largest balance must be a valid threshold: %v", err)
	}
}

func TestSetTierMultiplierBounds(t *testing.T) {
	registry := newTestRegistry(t)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	for _, mult := range []uint32{0, 99, 201, 1000} {
		if err := registry.SetTierMultiplier(1, mult); !errors.Is(err, loyalty.ErrInvalidMultiplier) {
			t.Fatalf("multiplier %d: expected ErrInvalidMultiplier, got %v", mult, err)
		}
	}
	if err := registry.SetTierMultiplier(6, 150); !errors.Is(err, loyalty.ErrInvalidTier) {
		t.Fatalf("expected ErrInvalidTier, got %v", err)
	}
	for _, mult := range []uint32{100, 200} {
		if err := registry.SetTierMultiplier(3, mult); err != nil {
			t.Fatalf("multiplier %d: %v", mult, err)
		}
	}
	got, err := registry.TierMultiplier(3)
	if err != nil {
		t.Fatalf("multiplier: %v", err)
	}
	if got != 200 {
		t.Fatalf("expected 200, got %d", got)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected two events, got %v", emitter.types())
	}
	evt, ok := emitter.events[1].(events.LoyaltyTierMultiplier)
	if !ok || evt.Tier != 3 || evt.Multiplier != 200 {
		t.Fatalf("unexpected event %#v", emitter.events[1])
	}
}

func TestUpdateUserTierIsMonotonic(t *testing.T) {
	registry := newTestRegistry(t)
	configureLadder(t, registry)
	emitter := &capturingEmitter{}
	registry.SetEmitter(emitter)

	tier, err := registry.UpdateUserTier("alice", big.NewInt(1200))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if tier != 3 {
		t.Fatalf("expected tier 3, got %d", tier)
	}

	tier, err = registry.UpdateUserTier("alice", big.NewInt(600))
	if !errors.Is(err, loyalty.ErrInvalidTierUpdate) {
		t.Fatalf("expected ErrInvalidTierUpdate, got %v", err)
	}
	if tier != 3 {
		t.Fatalf("expected stored tier 3 on failure, got %d", tier)
	}
	stored, err := registry.UserTier("alice")
	if err != nil {
		t.Fatalf("user tier: %v", err)
	}
	if stored != 3 {
		t.Fatalf("tier changed after failed update: %d", stored)
	}

	// Same tier is accepted.
	if _, err := registry.UpdateUserTier("alice", big.NewInt(1000)); err != nil {
		t.Fatalf("same-tier update: %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected two tier events, got %v", emitter.types())
	}
	first, ok := emitter.events[0].(events.LoyaltyTierUpdated)
	if !ok || first.Previous != 0 || first.Current != 3 || first.User != "alice" {
		t.Fatalf("unexpected event %#v", emitter.events[0])
	}
}

func TestUpdateUserTierRejectsEmptyUser(t *testing.T) {
	registry := newTestRegistry(t)
	if _, err := registry.UpdateUserTier("  ", big.NewInt(10)); !errors.Is(err, loyalty.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestAdjustedAmount(t *testing.T) {
	registry := newTestRegistry(t)
	configureLadder(t, registry)
	if err := registry.SetTierMultiplier(2, 150); err != nil {
		t.Fatalf("set multiplier: %v", err)
	}

	// Users without a tier use the default multiplier.
	got, err := registry.AdjustedAmount("bob", big.NewInt(1000))
	if err != nil {
		t.Fatalf("adjusted: %v", err)
	}
	if got.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected 1000, got %s", got)
	}

	if _, err := registry.UpdateUserTier("bob", big.NewInt(600)); err != nil {
		t.Fatalf("update tier: %v", err)
	}
	got, err = registry.AdjustedAmount("bob", big.NewInt(1000))
	if err != nil {
		t.Fatalf("adjusted: %v", err)
	}
	if got.Cmp(big.NewInt(1500)) != 0 {
		t.Fatalf("expected 1500, got %s", got)
	}
	got, err = registry.AdjustedAmount("bob", big.NewInt(3))
	if err != nil {
		t.Fatalf("adjusted: %v", err)
	}
	if got.Cmp(big.NewInt(4)) != 0 {
		t.Fatalf("expected floor(3*150/100)=4, got %s", got)
	}
}

func TestTiersSnapshot(t *testing.T) {
	registry := newTestRegistry(t)
	configureLadder(t, registry)
	if err := registry.SetTierMultiplier(5, 200); err != nil {
		t.Fatalf("set multiplier: %v", err)
	}
	tiers, err := registry.Tiers()
	if err != nil {
		t.Fatalf("tiers: %v", err)
	}
	if len(tiers) != 5 {
		t.Fatalf("expected 5 tiers, got %d", len(tiers))
	}
	if tiers[0].Tier != 1 || tiers[0].Requirement.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("unexpected tier 1 %#v", tiers[0])
	}
	if tiers[4].Multiplier != 200 {
		t.Fatalf("expected tier 5 multiplier 200, got %d", tiers[4].Multiplier)
	}
}

func TestRegistryPausedRejectsWrites(t *testing.T) {
	registry := newTestRegistry(t)
	pauses := nativecommon.NewPauses(loyalty.ModuleName())
	registry.SetPauses(pauses)

	if err := registry.SetTierRequirement(1, big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := registry.SetTierMultiplier(1, 150); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := registry.UpdateUserTier("alice", big.NewInt(1)); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	// Reads stay available.
	if _, err := registry.DetermineTier(big.NewInt(1)); err != nil {
		t.Fatalf("determine while paused: %v", err)
	}

	pauses.Set(loyalty.ModuleName(), false)
	if err := registry.SetTierRequirement(1, big.NewInt(1)); err != nil {
		t.Fatalf("set after resume: %v", err)
	}
}
