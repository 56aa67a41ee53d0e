package metrics

import (
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"loyaltyledger/core/events"
)

// LoyaltyMetrics tracks token flows through the ledger and tier movements.
type LoyaltyMetrics struct {
	minted      prometheus.Counter
	redeemed    prometheus.Counter
	staked      prometheus.Counter
	unstaked    prometheus.Counter
	bonusPaid   prometheus.Counter
	stakeAge    prometheus.Histogram
	tierChanges *prometheus.CounterVec
	businesses  prometheus.Counter
}

var (
	loyaltyOnce     sync.Once
	loyaltyRegistry *LoyaltyMetrics
)

func Loyalty() *LoyaltyMetrics {
	loyaltyOnce.Do(func() {
		loyaltyRegistry = &LoyaltyMetrics{
			minted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_tokens_minted_total",
				Help: "Loyalty tokens credited by registered businesses.",
			}),
			redeemed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_tokens_redeemed_total",
				Help: "Loyalty tokens debited through redemption.",
			}),
			staked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_tokens_staked_total",
				Help: "Loyalty tokens moved into stake.",
			}),
			unstaked: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_tokens_unstaked_total",
				Help: "Staked principal released back to spendable balances.",
			}),
			bonusPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_staking_bonus_paid_total",
				Help: "Time bonus credited on unstake.",
			}),
			stakeAge: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "loyalty_stake_age_seconds",
				Help:    "Age of stakes when released.",
				Buckets: prometheus.ExponentialBuckets(60, 4, 10),
			}),
			tierChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loyalty_tier_updates_total",
				Help: "Successful user tier updates by resulting tier.",
			}, []string{"tier"}),
			businesses: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loyalty_businesses_registered_total",
				Help: "Businesses newly authorised to mint.",
			}),
		}
		prometheus.MustRegister(
			loyaltyRegistry.minted,
			loyaltyRegistry.redeemed,
			loyaltyRegistry.staked,
			loyaltyRegistry.unstaked,
			loyaltyRegistry.bonusPaid,
			loyaltyRegistry.stakeAge,
			loyaltyRegistry.tierChanges,
			loyaltyRegistry.businesses,
		)
	})
	return loyaltyRegistry
}

// Emit implements events.Emitter. Unknown events are ignored.
func (m *LoyaltyMetrics) Emit(evt events.Event) {
	if m == nil {
		return
	}
	switch e := evt.(type) {
	case events.LoyaltyTokensMinted:
		m.minted.Add(bigToFloat(e.Amount))
	case events.LoyaltyTokensRedeemed:
		m.redeemed.Add(bigToFloat(e.Amount))
	case events.LoyaltyTokensStaked:
		m.staked.Add(bigToFloat(e.Amount))
	case events.LoyaltyTokensUnstaked:
		m.unstaked.Add(bigToFloat(e.Principal))
		m.bonusPaid.Add(bigToFloat(e.Bonus))
		m.stakeAge.Observe(float64(e.ElapsedMillis) / 1000)
	case events.LoyaltyTierUpdated:
		m.tierChanges.WithLabelValues(fmt.Sprintf("%d", e.Current)).Inc()
	case events.LoyaltyBusinessRegistered:
		m.businesses.Inc()
	}
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() <= 0 {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) {
		return math.MaxFloat64
	}
	return f
}
