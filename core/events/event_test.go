package events

import (
	"math/big"
	"testing"
)

type recorder struct {
	seen []string
}

func (r *recorder) Emit(e Event) {
	r.seen = append(r.seen, e.EventType())
}

func TestFanoutDeliversToEveryEmitter(t *testing.T) {
	first := &recorder{}
	second := &recorder{}
	fan := NewFanout(first, nil, second)

	fan.Emit(LoyaltyBusinessRegistered{Business: "acme"})
	fan.Emit(nil)

	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected one event per emitter, got %d and %d", len(first.seen), len(second.seen))
	}
	if first.seen[0] != TypeLoyaltyBusinessRegistered {
		t.Fatalf("unexpected event type %q", first.seen[0])
	}
}

func TestUnstakedAttributes(t *testing.T) {
	evt := LoyaltyTokensUnstaked{
		User:          "alice",
		Principal:     big.NewInt(50),
		Bonus:         big.NewInt(5),
		Total:         big.NewInt(55),
		ElapsedMillis: 1_000_000,
	}
	attrs := evt.Attributes()
	if attrs["total"] != "55" || attrs["bonus"] != "5" || attrs["elapsedMillis"] != "1000000" {
		t.Fatalf("unexpected attributes: %v", attrs)
	}
	if got := (LoyaltyTokensRedeemed{User: "bob"}).Attributes()["amount"]; got != "0" {
		t.Fatalf("nil amount should render as 0, got %q", got)
	}
}
