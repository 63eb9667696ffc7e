package core

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// entryKey names one payer's balance on one token ledger.
type entryKey struct {
	token common.Address
	payer common.Address
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// entryLocks serializes read-modify-write sequences on the same ledger entry.
type entryLocks struct {
	mu    sync.Mutex
	locks map[entryKey]*entryLock
}

func newEntryLocks() *entryLocks {
	return &entryLocks{locks: make(map[entryKey]*entryLock)}
}

// lock acquires the entry and returns its release function.
func (l *entryLocks) lock(token, payer common.Address) func() {
	key := entryKey{token: token, payer: payer}

	l.mu.Lock()
	el, ok := l.locks[key]
	if !ok {
		el = &entryLock{}
		l.locks[key] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()

	return func() {
		el.mu.Unlock()

		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}
