package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"PPRealtime/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// presence key: im:presence:<user>
// ZSET member = <node>/<connId>, score = expireAt unix seconds.
const presencePrefix = "im:presence:"

func presenceKey(user string) string { return presencePrefix + user }

// KEYS[1] = user zset
// ARGV[1] = member, ARGV[2] = expAt, ARGV[3] = nowUnix, ARGV[4] = key ttl seconds
// returns the live member count
const luaTouch = `
local userZ = KEYS[1]
redis.call("ZREMRANGEBYSCORE", userZ, "-inf", tonumber(ARGV[3]))
redis.call("ZADD", userZ, tonumber(ARGV[2]), ARGV[1])
redis.call("EXPIRE", userZ, tonumber(ARGV[4]))
return redis.call("ZCARD", userZ)
`

// KEYS[1] = user zset
// ARGV[1] = member
// returns the remaining member count; the key is deleted at zero
const luaDrop = `
local userZ = KEYS[1]
redis.call("ZREM", userZ, ARGV[1])
local left = redis.call("ZCARD", userZ)
if left == 0 then
  redis.call("DEL", userZ)
end
return left
`

// drops expired members and returns the live ones
// KEYS[1] = user zset
// ARGV[1] = nowUnix
const luaActive = `
local userZ = KEYS[1]
local now   = tonumber(ARGV[1])
redis.call("ZREMRANGEBYSCORE", userZ, "-inf", now)
return redis.call("ZRANGEBYSCORE", userZ, now + 1, "+inf")
`

// Endpoint is one live connection as seen cluster-wide.
type Endpoint struct {
	Node   string
	ConnID string
}

// Ranger enumerates local sessions; *chat.Registry implements it.
type Ranger interface {
	Range(fn func(userID string, connIDs []string))
}

// PresenceMirror mirrors local connections into Redis so other nodes and
// services can ask whether a user is online. Entries expire unless refreshed.
type PresenceMirror struct {
	rdb  redis.Scripter
	node string
	ttl  time.Duration
	now  func() time.Time
	log  *zap.Logger

	touch  *redis.Script
	drop   *redis.Script
	active *redis.Script
}

func NewPresenceMirror(rdb redis.Scripter, nodeID string, ttl time.Duration, log *zap.Logger) *PresenceMirror {
	if ttl < 2*time.Second {
		ttl = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PresenceMirror{
		rdb:    rdb,
		node:   nodeID,
		ttl:    ttl,
		now:    time.Now,
		log:    log.Named("presence-mirror"),
		touch:  redis.NewScript(luaTouch),
		drop:   redis.NewScript(luaDrop),
		active: redis.NewScript(luaActive),
	}
}

func (m *PresenceMirror) member(connID string) string { return m.node + "/" + connID }

func parseMember(s string) Endpoint {
	node, conn, ok := strings.Cut(s, "/")
	if !ok {
		return Endpoint{ConnID: s}
	}
	return Endpoint{Node: node, ConnID: conn}
}

// Online records connID for user and renews its expiry.
func (m *PresenceMirror) Online(ctx context.Context, user, connID string) error {
	now := m.now()
	expAt := now.Add(m.ttl).Unix()
	keyTTL := int64(2 * m.ttl / time.Second)
	err := m.touch.Run(ctx, m.rdb, []string{presenceKey(user)},
		m.member(connID), expAt, now.Unix(), keyTTL).Err()
	if err != nil {
		return errs.ErrStorage.Wrap(err, "userId", user, "connId", connID)
	}
	return nil
}

// Offline removes connID. Removing an unknown connection is a no-op.
func (m *PresenceMirror) Offline(ctx context.Context, user, connID string) error {
	if err := m.drop.Run(ctx, m.rdb, []string{presenceKey(user)}, m.member(connID)).Err(); err != nil {
		return errs.ErrStorage.Wrap(err, "userId", user, "connId", connID)
	}
	return nil
}

// Lookup returns the unexpired endpoints of user on every node.
func (m *PresenceMirror) Lookup(ctx context.Context, user string) ([]Endpoint, error) {
	members, err := m.active.Run(ctx, m.rdb, []string{presenceKey(user)}, m.now().Unix()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errs.ErrStorage.Wrap(err, "userId", user)
	}
	out := make([]Endpoint, 0, len(members))
	for _, s := range members {
		out = append(out, parseMember(s))
	}
	return out, nil
}

func (m *PresenceMirror) IsOnline(ctx context.Context, user string) (bool, error) {
	eps, err := m.Lookup(ctx, user)
	return len(eps) > 0, err
}

// Refresh renews every local connection and returns how many were renewed.
// It keeps going after a failure and reports the first error.
func (m *PresenceMirror) Refresh(ctx context.Context, src Ranger) (int, error) {
	var (
		n        int
		firstErr error
	)
	src.Range(func(user string, conns []string) {
		for _, c := range conns {
			if ctx.Err() != nil {
				return
			}
			if err := m.Online(ctx, user, c); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			n++
		}
	})
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return n, firstErr
}

// Run refreshes at a third of the ttl until ctx is done.
func (m *PresenceMirror) Run(ctx context.Context, src Ranger) error {
	t := time.NewTicker(m.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := m.Refresh(ctx, src)
			if err != nil && ctx.Err() == nil {
				m.log.Warn("refresh presence failed", zap.Int("renewed", n), zap.Error(err))
				continue
			}
			m.log.Debug("presence refreshed", zap.Int("renewed", n), zap.String("node", m.node))
		}
	}
}

// String is used in logs.
func (e Endpoint) String() string { return e.Node + "/" + e.ConnID }
