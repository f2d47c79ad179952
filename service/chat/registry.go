package chat

import (
	"hash/fnv"
	"sync"

	"PPRealtime/tools/errs"
)

const registryShards = 64

type userShard struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{} // user -> conn ids
}

type connShard struct {
	mu     sync.Mutex
	owners map[string]string // conn id -> user
}

// Registry maps users to their live connection ids. Operations on one user are
// serialized by that user's shard; unrelated users on other shards never contend.
type Registry struct {
	users  [registryShards]userShard
	owners [registryShards]connShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.users {
		r.users[i].conns = make(map[string]map[string]struct{})
		r.owners[i].owners = make(map[string]string)
	}
	return r
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % registryShards
}

// Register adds connID to userID's set. first is true when the set was empty,
// i.e. the user just came online. Re-registering an owned pair is a no-op.
func (r *Registry) Register(userID, connID string) (first bool, err error) {
	if userID == "" || connID == "" {
		return false, errs.ErrValidation.WrapMsg("register needs user and connection", "userId", userID, "connId", connID)
	}
	cs := &r.owners[shardOf(connID)]
	cs.mu.Lock()
	if owner, ok := cs.owners[connID]; ok {
		cs.mu.Unlock()
		if owner != userID {
			return false, errs.ErrValidation.WrapMsg("connection owned by another user", "connId", connID, "owner", owner, "userId", userID)
		}
		return false, nil
	}
	cs.owners[connID] = userID
	cs.mu.Unlock()

	us := &r.users[shardOf(userID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	set := us.conns[userID]
	if set == nil {
		set = make(map[string]struct{}, 1)
		us.conns[userID] = set
	}
	set[connID] = struct{}{}
	return len(set) == 1, nil
}

// Unregister removes connID. last is true when the user has no connection left.
// Unknown or foreign connections report false.
func (r *Registry) Unregister(userID, connID string) (last bool) {
	cs := &r.owners[shardOf(connID)]
	cs.mu.Lock()
	if owner, ok := cs.owners[connID]; !ok || owner != userID {
		cs.mu.Unlock()
		return false
	}
	delete(cs.owners, connID)
	cs.mu.Unlock()

	us := &r.users[shardOf(userID)]
	us.mu.Lock()
	defer us.mu.Unlock()
	set := us.conns[userID]
	if set == nil {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(us.conns, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	us := &r.users[shardOf(userID)]
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.conns[userID]) > 0
}

// Connections returns a snapshot of userID's connection ids.
func (r *Registry) Connections(userID string) []string {
	us := &r.users[shardOf(userID)]
	us.mu.RLock()
	defer us.mu.RUnlock()
	set := us.conns[userID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (r *Registry) OwnerOf(connID string) (string, bool) {
	cs := &r.owners[shardOf(connID)]
	cs.mu.Lock()
	defer cs.mu.Unlock()
	u, ok := cs.owners[connID]
	return u, ok
}

// Count returns online users and live connections.
func (r *Registry) Count() (users, conns int) {
	for i := range r.users {
		us := &r.users[i]
		us.mu.RLock()
		users += len(us.conns)
		for _, set := range us.conns {
			conns += len(set)
		}
		us.mu.RUnlock()
	}
	return users, conns
}

// Range calls fn for every online user with a snapshot of its connections,
// one shard at a time. fn must not call back into the registry.
func (r *Registry) Range(fn func(userID string, connIDs []string)) {
	for i := range r.users {
		us := &r.users[i]
		us.mu.RLock()
		snap := make(map[string][]string, len(us.conns))
		for u, set := range us.conns {
			ids := make([]string, 0, len(set))
			for id := range set {
				ids = append(ids, id)
			}
			snap[u] = ids
		}
		us.mu.RUnlock()
		for u, ids := range snap {
			fn(u, ids)
		}
	}
}
