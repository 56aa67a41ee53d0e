package loyalty

var (
	tierRequirementPrefix = []byte("loyalty/tier/requirement/")
	tierMultiplierPrefix  = []byte("loyalty/tier/multiplier/")
	userTierPrefix        = []byte("loyalty/user-tier/")
	balancePrefix         = []byte("loyalty/balance/")
	stakePrefix           = []byte("loyalty/stake/")
	businessPrefix        = []byte("loyalty/business/")
)

func prefixed(prefix []byte, id []byte) []byte {
	key := make([]byte, len(prefix)+len(id))
	copy(key, prefix)
	copy(key[len(prefix):], id)
	return key
}

func tierRequirementKey(tier Tier) []byte {
	return prefixed(tierRequirementPrefix, []byte{byte(tier)})
}

func tierMultiplierKey(tier Tier) []byte {
	return prefixed(tierMultiplierPrefix, []byte{byte(tier)})
}

func userTierKey(user string) []byte {
	return prefixed(userTierPrefix, []byte(user))
}

func balanceKey(user string) []byte {
	return prefixed(balancePrefix, []byte(user))
}

func stakeKey(user string) []byte {
	return prefixed(stakePrefix, []byte(user))
}

func businessKey(business string) []byte {
	return prefixed(businessPrefix, []byte(business))
}

// BalanceStorageKey returns the raw key under which a user's spendable balance
// is persisted.
func BalanceStorageKey(user string) []byte {
	return balanceKey(user)
}

// StakeStorageKey returns the raw key under which a user's stake record is
// persisted.
func StakeStorageKey(user string) []byte {
	return stakeKey(user)
}
