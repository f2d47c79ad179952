package mgo

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"PPRealtime/data/database/mgo/mongoutil"
	"PPRealtime/tools/errs"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	baseBackoff = 200 * time.Millisecond
	maxBackoff  = 5 * time.Second
	healthEvery = 10 * time.Second // health check period
	failThresh  = 3                // consecutive failures before reconnect
)

// Manager keeps one Mongo client alive: connects with backoff, pings periodically
// and reconnects after failThresh consecutive ping failures.
type Manager struct {
	cfg *mongoutil.Config
	log *zap.Logger

	mu        sync.RWMutex
	client    *mongoutil.Client
	readyCh   chan struct{} // closed once, on first connect
	readyOnce sync.Once

	lastErr atomic.Value // error

	// connect is swapped in tests.
	connect func(ctx context.Context, cfg *mongoutil.Config) (*mongoutil.Client, error)
}

func NewManager(cfg *mongoutil.Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		log:     log.Named("mongo"),
		readyCh: make(chan struct{}),
		connect: mongoutil.NewMongoDB,
	}
}

// StartAsync runs until ctx is done. It closes Ready on the first connect and
// reconnects after later failures.
func (m *Manager) StartAsync(ctx context.Context) {
	go func() {
		for {
			if !m.connectLoop(ctx) {
				return
			}
			if !m.healthLoop(ctx) {
				return
			}
		}
	}()
}

// connectLoop returns false when ctx ends before a client is obtained.
func (m *Manager) connectLoop(ctx context.Context) bool {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		cli, err := m.connect(ctx, m.cfg)
		if err == nil {
			m.mu.Lock()
			m.client = cli
			m.mu.Unlock()
			m.readyOnce.Do(func() { close(m.readyCh) })
			m.log.Info("connected", zap.String("database", m.cfg.Database))
			return true
		}

		m.lastErr.Store(err)
		m.log.Warn("connect failed", zap.Int("attempt", attempt), zap.Error(err))

		timer := time.NewTimer(backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
		if attempt < 6 {
			attempt++
		}
	}
}

// healthLoop returns true when the client was dropped and must be re-dialed.
func (m *Manager) healthLoop(ctx context.Context) bool {
	fail := 0
	ticker := time.NewTicker(healthEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.drop()
			return false
		case <-ticker.C:
			m.mu.RLock()
			c := m.client
			m.mu.RUnlock()
			if c == nil {
				return true
			}
			if err := c.Ping(ctx); err != nil {
				fail++
				m.lastErr.Store(err)
				m.log.Warn("ping failed", zap.Int("fail", fail), zap.Error(err))
				if fail >= failThresh {
					m.drop()
					return true
				}
			} else {
				fail = 0
			}
		}
	}
}

func (m *Manager) drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		_ = m.client.Disconnect(context.Background())
		m.client = nil
	}
}

// Close disconnects the current client, if any.
func (m *Manager) Close() { m.drop() }

// exponential backoff with jitter
func backoff(attempt int) time.Duration {
	b := baseBackoff << attempt
	if b > maxBackoff || b <= 0 {
		b = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(b / 5))) // 0~20%
	return b - jitter/2
}

// Ready is closed after the first successful connect.
func (m *Manager) Ready() <-chan struct{} {
	return m.readyCh
}

// Err returns the last connection error.
func (m *Manager) Err() error {
	if v := m.lastErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// DB returns the live database handle or a storage error when disconnected.
func (m *Manager) DB() (*mongo.Database, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		if err := m.Err(); err != nil {
			return nil, errs.ErrStorage.Wrap(err, "state", "disconnected")
		}
		return nil, errs.ErrStorage.WrapMsg("mongo not ready")
	}
	return m.client.GetDB(), nil
}

func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.readyCh:
		return nil
	case <-ctx.Done():
		return errs.ErrStorage.Wrap(ctx.Err(), "state", "waiting for mongo")
	}
}
