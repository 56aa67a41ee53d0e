package loyalty_test

import (
	"errors"
	"math/big"
	"testing"

	"loyaltyledger/core/events"
	loyalty "loyaltyledger/native/loyalty"
)

func TestRegisterBusinessIsIdempotent(t *testing.T) {
	ledger := loyalty.NewLedger(newTestState(t))
	emitter := &capturingEmitter{}
	ledger.SetEmitter(emitter)

	ok, err := ledger.IsBusiness("acme")
	if err != nil {
		t.Fatalf("is business: %v", err)
	}
	if ok {
		t.Fatalf("expected acme to be unregistered")
	}
	for i := 0; i < 3; i++ {
		if err := ledger.RegisterBusiness("acme"); err != nil {
			t.Fatalf("register #%d: %v", i, err)
		}
	}
	ok, err = ledger.IsBusiness(" acme ")
	if err != nil {
		t.Fatalf("is business: %v", err)
	}
	if !ok {
		t.Fatalf("expected acme to be registered")
	}
	if len(emitter.events) != 1 {
		t.Fatalf("expected a single registration event, got %v", emitter.types())
	}
	if evt, ok := emitter.events[0].(events.LoyaltyBusinessRegistered); !ok || evt.Business != "acme" {
		t.Fatalf("unexpected event %#v", emitter.events[0])
	}
}

func TestRegisterBusinessRejectsEmptyIdentifier(t *testing.T) {
	ledger := loyalty.NewLedger(newTestState(t))
	if err := ledger.RegisterBusiness(""); !errors.Is(err, loyalty.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestUnregisteredBusinessCannotMint(t *testing.T) {
	ledger := loyalty.NewLedger(newTestState(t))
	err := ledger.MintAndDistribute("shady", "alice", big.NewInt(10))
	if !errors.Is(err, loyalty.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	balance, err := ledger.Balance("alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}
}
