package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
)

const (
	statePending  = "pending"
	stateReserved = "reserved"
	stateRejected = "rejected"
)

// Ledger records per-order reservation decisions in Redis. Begin claims an
// order with SETNX, so only one delivery of a reserve command does the work.
type Ledger struct {
	rdb redis.UniversalClient
	ttl time.Duration
}

func NewLedger(rdb redis.UniversalClient, ttl time.Duration) *Ledger {
	return &Ledger{rdb: rdb, ttl: ttl}
}

func (l *Ledger) Key(orderID string) string {
	return fmt.Sprintf("stock:reservation:%s", orderID)
}

func (l *Ledger) Begin(ctx context.Context, orderID string) (application.LedgerState, error) {
	key := l.Key(orderID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.rdb.SetNX(ctx, key, statePending, l.ttl).Result()
		if err != nil {
			return 0, err
		}
		if ok {
			return application.LedgerClaimed, nil
		}

		v, err := l.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return 0, err
		}
		return parseState(v)
	}
	return 0, fmt.Errorf("ledger key %s keeps expiring", key)
}

func (l *Ledger) Complete(ctx context.Context, orderID string, success bool) error {
	v := stateRejected
	if success {
		v = stateReserved
	}
	return l.rdb.Set(ctx, l.Key(orderID), v, l.ttl).Err()
}

func (l *Ledger) Abort(ctx context.Context, orderID string) error {
	return l.rdb.Del(ctx, l.Key(orderID)).Err()
}

func parseState(v string) (application.LedgerState, error) {
	switch v {
	case statePending:
		return application.LedgerPending, nil
	case stateReserved:
		return application.LedgerReserved, nil
	case stateRejected:
		return application.LedgerRejected, nil
	}
	return 0, fmt.Errorf("unknown ledger state %q", v)
}
