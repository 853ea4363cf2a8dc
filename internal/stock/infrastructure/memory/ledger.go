package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
)

type entry struct {
	state   application.LedgerState
	expires time.Time
}

// Ledger is an in-process ReservationLedger. Entries expire after ttl.
type Ledger struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

func NewLedger(ttl time.Duration) *Ledger {
	return &Ledger{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (l *Ledger) Begin(_ context.Context, orderID string) (application.LedgerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.entries[orderID]; ok && now.Before(e.expires) {
		return e.state, nil
	}
	l.entries[orderID] = entry{state: application.LedgerPending, expires: now.Add(l.ttl)}
	return application.LedgerClaimed, nil
}

func (l *Ledger) Complete(_ context.Context, orderID string, success bool) error {
	state := application.LedgerRejected
	if success {
		state = application.LedgerReserved
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[orderID] = entry{state: state, expires: l.now().Add(l.ttl)}
	return nil
}

func (l *Ledger) Abort(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, orderID)
	return nil
}
