package events

import (
	"math/big"
	"strconv"
)

const (
	// TypeLoyaltyTierRequirement is emitted when a tier's minimum balance is
	// configured.
	TypeLoyaltyTierRequirement = "loyalty.tier.requirement"
	// TypeLoyaltyTierMultiplier is emitted when a tier's reward multiplier is
	// configured.
	TypeLoyaltyTierMultiplier = "loyalty.tier.multiplier"
	// TypeLoyaltyTierUpdated is emitted when a user's tier is recomputed.
	TypeLoyaltyTierUpdated = "loyalty.tier.updated"
	// TypeLoyaltyBusinessRegistered is emitted when an address is authorised
	// to mint.
	TypeLoyaltyBusinessRegistered = "loyalty.business.registered"
	// TypeLoyaltyTokensMinted is emitted when a business distributes tokens.
	TypeLoyaltyTokensMinted = "loyalty.tokens.minted"
	// TypeLoyaltyTokensRedeemed is emitted when a user burns spendable tokens.
	TypeLoyaltyTokensRedeemed = "loyalty.tokens.redeemed"
	// TypeLoyaltyTokensStaked is emitted when spendable tokens move into the
	// staked balance.
	TypeLoyaltyTokensStaked = "loyalty.tokens.staked"
	// TypeLoyaltyTokensUnstaked is emitted when a stake is released together
	// with its time bonus.
	TypeLoyaltyTokensUnstaked = "loyalty.tokens.unstaked"
)

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// LoyaltyTierRequirement captures a tier threshold update.
type LoyaltyTierRequirement struct {
	Tier        uint8
	Requirement *big.Int
}

// EventType implements the Event interface.
func (LoyaltyTierRequirement) EventType() string { return TypeLoyaltyTierRequirement }

// Attributes implements the Event interface.
func (e LoyaltyTierRequirement) Attributes() map[string]string {
	return map[string]string{
		"tier":        strconv.FormatUint(uint64(e.Tier), 10),
		"requirement": amountString(e.Requirement),
	}
}

// LoyaltyTierMultiplier captures a tier multiplier update.
type LoyaltyTierMultiplier struct {
	Tier       uint8
	Multiplier uint32
}

// EventType implements the Event interface.
func (LoyaltyTierMultiplier) EventType() string { return TypeLoyaltyTierMultiplier }

// Attributes implements the Event interface.
func (e LoyaltyTierMultiplier) Attributes() map[string]string {
	return map[string]string{
		"tier":       strconv.FormatUint(uint64(e.Tier), 10),
		"multiplier": strconv.FormatUint(uint64(e.Multiplier), 10),
	}
}

// LoyaltyTierUpdated captures the committed result of a tier recomputation.
type LoyaltyTierUpdated struct {
	User     string
	Previous uint8
	Current  uint8
	Balance  *big.Int
}

// EventType implements the Event interface.
func (LoyaltyTierUpdated) EventType() string { return TypeLoyaltyTierUpdated }

// Attributes implements the Event interface.
func (e LoyaltyTierUpdated) Attributes() map[string]string {
	return map[string]string{
		"user":     e.User,
		"previous": strconv.FormatUint(uint64(e.Previous), 10),
		"current":  strconv.FormatUint(uint64(e.Current), 10),
		"balance":  amountString(e.Balance),
	}
}

// LoyaltyBusinessRegistered captures a business authorisation.
type LoyaltyBusinessRegistered struct {
	Business string
}

// EventType implements the Event interface.
func (LoyaltyBusinessRegistered) EventType() string { return TypeLoyaltyBusinessRegistered }

// Attributes implements the Event interface.
func (e LoyaltyBusinessRegistered) Attributes() map[string]string {
	return map[string]string{"business": e.Business}
}

// LoyaltyTokensMinted captures a distribution from a business to a recipient.
type LoyaltyTokensMinted struct {
	Business  string
	Recipient string
	Amount    *big.Int
}

// EventType implements the Event interface.
func (LoyaltyTokensMinted) EventType() string { return TypeLoyaltyTokensMinted }

// Attributes implements the Event interface.
func (e LoyaltyTokensMinted) Attributes() map[string]string {
	return map[string]string{
		"business":  e.Business,
		"recipient": e.Recipient,
		"amount":    amountString(e.Amount),
	}
}

// LoyaltyTokensRedeemed captures a redemption.
type LoyaltyTokensRedeemed struct {
	User   string
	Amount *big.Int
}

// EventType implements the Event interface.
func (LoyaltyTokensRedeemed) EventType() string { return TypeLoyaltyTokensRedeemed }

// Attributes implements the Event interface.
func (e LoyaltyTokensRedeemed) Attributes() map[string]string {
	return map[string]string{
		"user":   e.User,
		"amount": amountString(e.Amount),
	}
}

// LoyaltyTokensStaked captures a stake or top-up. StartMillis is the reset
// accrual start.
type LoyaltyTokensStaked struct {
	User        string
	Amount      *big.Int
	TotalStaked *big.Int
	StartMillis uint64
}

// EventType implements the Event interface.
func (LoyaltyTokensStaked) EventType() string { return TypeLoyaltyTokensStaked }

// Attributes implements the Event interface.
func (e LoyaltyTokensStaked) Attributes() map[string]string {
	return map[string]string{
		"user":        e.User,
		"amount":      amountString(e.Amount),
		"totalStaked": amountString(e.TotalStaked),
		"startMillis": strconv.FormatUint(e.StartMillis, 10),
	}
}

// LoyaltyTokensUnstaked captures the release of a stake.
type LoyaltyTokensUnstaked struct {
	User          string
	Principal     *big.Int
	Bonus         *big.Int
	Total         *big.Int
	ElapsedMillis uint64
}

// EventType implements the Event interface.
func (LoyaltyTokensUnstaked) EventType() string { return TypeLoyaltyTokensUnstaked }

// Attributes implements the Event interface.
func (e LoyaltyTokensUnstaked) Attributes() map[string]string {
	return map[string]string{
		"user":          e.User,
		"principal":     amountString(e.Principal),
		"bonus":         amountString(e.Bonus),
		"total":         amountString(e.Total),
		"elapsedMillis": strconv.FormatUint(e.ElapsedMillis, 10),
	}
}
