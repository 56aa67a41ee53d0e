package rpc

import (
	"encoding/json"
	"time"

	"loyaltyledger/native/loyalty"
	"loyaltyledger/storage/journal"
)

type requirementRequest struct {
	RequiredBalance string `json:"requiredBalance"`
}

type multiplierRequest struct {
	Multiplier uint32 `json:"multiplier"`
}

type balanceRequest struct {
	Balance string `json:"balance"`
}

type adjustedAmountRequest struct {
	BaseAmount string `json:"baseAmount"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type mintRequest struct {
	Business  string `json:"business"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type tierView struct {
	Tier        uint8  `json:"tier"`
	Requirement string `json:"requirement"`
	Multiplier  uint32 `json:"multiplier"`
}

func tierViewFrom(cfg loyalty.TierConfig) tierView {
	return tierView{
		Tier:        uint8(cfg.Tier),
		Requirement: amountString(cfg.Requirement),
		Multiplier:  cfg.Multiplier,
	}
}

type accountView struct {
	User               string `json:"user"`
	Balance            string `json:"balance"`
	Staked             string `json:"staked"`
	StakingStartMillis int64  `json:"stakingStartMillis"`
	Tier               uint8  `json:"tier"`
}

type journalEntry struct {
	ID         string            `json:"id"`
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Subject    string            `json:"subject,omitempty"`
	Attributes map[string]string `json:"attributes"`
	PrevDigest string            `json:"prevDigest,omitempty"`
	Digest     string            `json:"digest"`
	CreatedAt  time.Time         `json:"createdAt"`
}

func journalEntryFrom(e journal.Entry) journalEntry {
	attrs := map[string]string{}
	_ = json.Unmarshal([]byte(e.Attributes), &attrs)
	return journalEntry{
		ID:         e.ID.String(),
		Sequence:   e.Sequence,
		Type:       e.Type,
		Subject:    e.Subject,
		Attributes: attrs,
		PrevDigest: e.PrevDigest,
		Digest:     e.Digest,
		CreatedAt:  e.CreatedAt.UTC(),
	}
}
