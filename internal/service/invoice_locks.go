package service

import "sync"

// invoiceLocks serializes multi-step transitions per invoice. Different
// invoices proceed in parallel; entries are dropped once unused.
type invoiceLocks struct {
	mu    sync.Mutex
	locks map[int64]*invoiceLock
}

type invoiceLock struct {
	sync.Mutex
	refs int
}

func newInvoiceLocks() *invoiceLocks {
	return &invoiceLocks{locks: make(map[int64]*invoiceLock)}
}

// lock blocks until the invoice is free and returns the matching unlock.
func (l *invoiceLocks) lock(id int64) func() {
	l.mu.Lock()
	il, ok := l.locks[id]
	if !ok {
		il = &invoiceLock{}
		l.locks[id] = il
	}
	il.refs++
	l.mu.Unlock()

	il.Lock()
	return func() {
		il.Unlock()
		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
