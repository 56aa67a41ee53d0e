// Package loyalty implements the loyalty tier registry and the loyalty token
// ledger. Both components keep their state in a KV store and run every
// mutation inside State.AtomicThen, so an operation either commits all of its
// writes or none of them. Events are emitted from the commit hook, in commit
// order.
package loyalty

import (
	"strings"

	"loyaltyledger/core/events"
	"loyaltyledger/core/state"
)

const moduleName = "loyalty"

// State is the storage contract the loyalty components depend on.
type State interface {
	state.KV
	AtomicThen(fn func(kv state.KV) error, committed func()) error
	View(fn func(kv state.KV) error) error
}

// ModuleName is the pause key of the loyalty module.
func ModuleName() string { return moduleName }

func normalizeAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return "", ErrInvalidAddress
	}
	return trimmed, nil
}

func emitTo(emitter events.Emitter, evt events.Event) {
	if emitter == nil {
		return
	}
	emitter.Emit(evt)
}
