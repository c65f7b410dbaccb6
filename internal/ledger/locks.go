package ledger

import (
	"slices"
	"sync"
)

// RiderLocks serializes roster writes per rider. Entries are reference
// counted and dropped once no goroutine holds or waits on them.
type RiderLocks struct {
	mu    sync.Mutex
	locks map[int64]*riderLock
}

type riderLock struct {
	mu   sync.Mutex
	refs int
}

// NewRiderLocks creates an empty lock table.
func NewRiderLocks() *RiderLocks {
	return &RiderLocks{locks: make(map[int64]*riderLock)}
}

// Lock acquires the locks of every given rider in ascending ID order and
// returns the function releasing them.
func (l *RiderLocks) Lock(riderIDs ...int64) (unlock func()) {
	ids := slices.Clone(riderIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	held := make([]*riderLock, 0, len(ids))
	for _, id := range ids {
		rl := l.acquire(id)
		rl.mu.Lock()
		held = append(held, rl)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ids[i])
		}
	}
}

func (l *RiderLocks) acquire(id int64) *riderLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl, ok := l.locks[id]
	if !ok {
		rl = &riderLock{}
		l.locks[id] = rl
	}
	rl.refs++
	return rl
}

func (l *RiderLocks) release(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rl := l.locks[id]
	rl.refs--
	if rl.refs == 0 {
		delete(l.locks, id)
	}
}

// size reports how many riders have a live entry.
func (l *RiderLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
