package chat

import (
	"context"
	"sync"

	"PPRealtime/module/chat/model"

	"go.uber.org/zap"
)

const EventUserStatusChange = "userStatusChange"

// StatusChange is the payload of userStatusChange.
type StatusChange struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// StatusStore persists the durable status flag.
type StatusStore interface {
	SetUserStatus(ctx context.Context, userID, status string) error
}

// Emitter delivers broadcasts; *Router implements it.
type Emitter interface {
	Emit(b Broadcast) error
}

// PresenceMirror receives every connection change, e.g. a shared cache.
type PresenceMirror interface {
	Online(ctx context.Context, userID, connID string) error
	Offline(ctx context.Context, userID, connID string) error
}

// Presence turns registry changes into online/offline transitions. Register or
// unregister and the resulting side effects run under a per-user lock, so a fast
// connect/disconnect pair persists and broadcasts in the order it happened.
type Presence struct {
	reg    *Registry
	store  StatusStore
	out    Emitter
	mirror PresenceMirror
	log    *zap.Logger

	locks userLocks
}

func NewPresence(reg *Registry, store StatusStore, out Emitter, log *zap.Logger) *Presence {
	if log == nil {
		log = zap.NewNop()
	}
	return &Presence{reg: reg, store: store, out: out, log: log.Named("presence"), locks: userLocks{m: make(map[string]*userLock)}}
}

// SetMirror installs an optional mirror. Call before serving.
func (p *Presence) SetMirror(m PresenceMirror) { p.mirror = m }

// Connected registers connID and announces online on the user's first connection.
// A registration error leaves no state behind.
func (p *Presence) Connected(ctx context.Context, userID, connID string) error {
	unlock := p.locks.lock(userID)
	defer unlock()

	first, err := p.reg.Register(userID, connID)
	if err != nil {
		return err
	}
	p.mirrorCall(ctx, userID, connID, true)
	if first {
		return p.transition(ctx, userID, model.StatusOnline)
	}
	return nil
}

// Disconnected unregisters connID and announces offline when it was the last one.
func (p *Presence) Disconnected(ctx context.Context, userID, connID string) error {
	unlock := p.locks.lock(userID)
	defer unlock()

	last := p.reg.Unregister(userID, connID)
	p.mirrorCall(ctx, userID, connID, false)
	if last {
		return p.transition(ctx, userID, model.StatusOffline)
	}
	return nil
}

// transition persists and broadcasts. The registry is authoritative for live
// state, so the broadcast goes out even when persisting fails.
func (p *Presence) transition(ctx context.Context, userID, status string) error {
	err := p.store.SetUserStatus(ctx, userID, status)
	if err != nil {
		p.log.Error("persist status failed", zap.String("userId", userID), zap.String("status", status), zap.Error(err))
	}
	if berr := p.out.Emit(ToAll(EventUserStatusChange, StatusChange{UserID: userID, Status: status})); berr != nil {
		p.log.Error("broadcast status failed", zap.String("userId", userID), zap.Error(berr))
	}
	p.log.Debug("transition", zap.String("userId", userID), zap.String("status", status))
	return err
}

func (p *Presence) mirrorCall(ctx context.Context, userID, connID string, online bool) {
	if p.mirror == nil {
		return
	}
	var err error
	if online {
		err = p.mirror.Online(ctx, userID, connID)
	} else {
		err = p.mirror.Offline(ctx, userID, connID)
	}
	if err != nil {
		p.log.Warn("presence mirror failed", zap.String("userId", userID), zap.String("connId", connID), zap.Bool("online", online), zap.Error(err))
	}
}

func (p *Presence) IsOnline(userID string) bool { return p.reg.IsOnline(userID) }

// userLocks hands out one mutex per user. Entries live only while someone holds
// or waits on them, so a slow status write blocks that user alone.
type userLocks struct {
	mu sync.Mutex
	m  map[string]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) lock(key string) (unlock func()) {
	l.mu.Lock()
	ul, ok := l.m[key]
	if !ok {
		ul = &userLock{}
		l.m[key] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.Lock()
	return func() {
		ul.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.m, key)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
