package loyalty

import (
	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
	nativecommon "loyaltyledger/native/common"
)

// RegisterBusiness authorises business to mint. Registering an existing
// business succeeds without changing state.
func (l *Ledger) RegisterBusiness(business string) error {
	if err := nativecommon.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	biz, err := normalizeAddress(business)
	if err != nil {
		return err
	}
	var created bool
	return l.st.AtomicThen(func(kv state.KV) error {
		exists, err := kv.KVGet(businessKey(biz), nil)
		if err != nil || exists {
			return err
		}
		created = true
		return kv.KVPut(businessKey(biz), &businessRecord{RegisteredAtMillis: uint64(l.now().UnixMilli())})
	}, func() {
		if created {
			emitTo(l.emitter, events.LoyaltyBusinessRegistered{Business: biz})
		}
	})
}

// IsBusiness reports whether business may mint.
func (l *Ledger) IsBusiness(business string) (bool, error) {
	biz, err := normalizeAddress(business)
	if err != nil {
		return false, err
	}
	return l.st.KVGet(businessKey(biz), nil)
}
