package natsx

import (
	"context"
	"sync"
	"time"

	"PPRealtime/tools/safe"
)

const headerMsgID = "Nats-Msg-Id"

// IdemStore remembers message ids for a while.
type IdemStore interface {
	SeenOnce(key string, ttl time.Duration) (seen bool, err error)
}

// ----- in-memory, single process -----
type memIdem struct {
	mu  sync.Mutex
	m   map[string]int64 // key -> expireUnixNano
	ttl time.Duration
	now func() time.Time
}

// NewMemIdem returns an in-memory store whose sweeper stops with ctx.
func NewMemIdem(ctx context.Context, defaultTTL time.Duration) IdemStore {
	mi := &memIdem{m: make(map[string]int64), ttl: defaultTTL, now: time.Now}
	safe.Go("nats-idem-sweep", func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				mi.sweep()
			}
		}
	})
	return mi
}

func (mi *memIdem) sweep() {
	now := mi.now().UnixNano()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	for k, exp := range mi.m {
		if exp <= now {
			delete(mi.m, k)
		}
	}
}

func (mi *memIdem) SeenOnce(key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = mi.ttl
	}
	now := mi.now()
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if exp, ok := mi.m[key]; ok && exp > now.UnixNano() {
		return true, nil
	}
	mi.m[key] = now.Add(ttl).UnixNano()
	return false, nil
}

// Idempotent skips messages whose Nats-Msg-Id was already handled.
// Messages without an id always pass.
func Idempotent(store IdemStore, ttl time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) error {
			id := msg.Header[headerMsgID]
			if id == "" {
				return next(ctx, msg)
			}
			if seen, _ := store.SeenOnce(id, ttl); seen {
				return nil
			}
			return next(ctx, msg)
		}
	}
}
