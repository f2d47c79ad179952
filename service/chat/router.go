package chat

import (
	"encoding/json"
	"sync"

	"PPRealtime/tools/errs"

	"go.uber.org/zap"
)

const routerShards = 64

// Room keys
const (
	userRoomPrefix = "user:"
	convRoomPrefix = "conv:"
)

func UserRoom(userID string) string { return userRoomPrefix + userID }

func ConversationRoom(convID string) string { return convRoomPrefix + convID }

// Delivery is one encoded broadcast ready for local fan-out. It is also the unit
// forwarded to peer nodes.
type Delivery struct {
	Origin     string          `json:"origin,omitempty"`
	Target     Target          `json:"target"`
	Room       string          `json:"room,omitempty"`
	ConnID     string          `json:"connId,omitempty"`
	ExceptConn string          `json:"exceptConn,omitempty"`
	ExceptUser string          `json:"exceptUser,omitempty"`
	Frame      json.RawMessage `json:"frame"`
}

// Forwarder carries locally originated deliveries to other nodes.
type Forwarder interface {
	Forward(d Delivery) error
}

type member struct {
	id     string
	userID string
	sink   Sink

	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

type memberShard struct {
	mu sync.RWMutex
	m  map[string]*member
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*member // room -> conn id -> member
}

// Router tracks room membership of local connections and fans frames out to
// their sinks. Delivery is fire-and-forget.
type Router struct {
	members [routerShards]memberShard
	rooms   [routerShards]roomShard

	fwd Forwarder
	log *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{log: log.Named("router")}
	for i := range r.members {
		r.members[i].m = make(map[string]*member)
		r.rooms[i].rooms = make(map[string]map[string]*member)
	}
	return r
}

// SetForwarder installs the cluster relay. Call before serving.
func (r *Router) SetForwarder(f Forwarder) { r.fwd = f }

func (r *Router) memberShard(connID string) *memberShard { return &r.members[shardOf(connID)%routerShards] }

func (r *Router) roomShard(room string) *roomShard { return &r.rooms[shardOf(room)%routerShards] }

func (r *Router) member(connID string) *member {
	s := r.memberShard(connID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[connID]
}

// Attach makes connID deliverable and joins it to the user's personal room.
func (r *Router) Attach(connID, userID string, sink Sink) error {
	m := &member{id: connID, userID: userID, sink: sink, rooms: make(map[string]struct{})}
	s := r.memberShard(connID)
	s.mu.Lock()
	if _, ok := s.m[connID]; ok {
		s.mu.Unlock()
		return errs.ErrValidation.WrapMsg("connection already attached", "connId", connID)
	}
	s.m[connID] = m
	s.mu.Unlock()
	return r.Join(connID, UserRoom(userID))
}

// Detach leaves every room and forgets connID.
func (r *Router) Detach(connID string) {
	s := r.memberShard(connID)
	s.mu.Lock()
	m := s.m[connID]
	delete(s.m, connID)
	s.mu.Unlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	m.closed = true
	rooms := make([]string, 0, len(m.rooms))
	for room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.rooms = nil
	m.mu.Unlock()

	for _, room := range rooms {
		r.removeFromRoom(room, connID)
	}
}

func (r *Router) Join(connID, room string) error {
	m := r.member(connID)
	if m == nil {
		return errs.ErrNotFound.WrapMsg("connection not attached", "connId", connID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errs.ErrNotFound.WrapMsg("connection detached", "connId", connID)
	}
	if _, ok := m.rooms[room]; ok {
		return nil
	}
	m.rooms[room] = struct{}{}

	rs := r.roomShard(room)
	rs.mu.Lock()
	set := rs.rooms[room]
	if set == nil {
		set = make(map[string]*member)
		rs.rooms[room] = set
	}
	set[connID] = m
	rs.mu.Unlock()
	return nil
}

func (r *Router) Leave(connID, room string) {
	m := r.member(connID)
	if m == nil {
		return
	}
	m.mu.Lock()
	_, ok := m.rooms[room]
	delete(m.rooms, room)
	m.mu.Unlock()
	if ok {
		r.removeFromRoom(room, connID)
	}
}

func (r *Router) removeFromRoom(room, connID string) {
	rs := r.roomShard(room)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if set := rs.rooms[room]; set != nil {
		delete(set, connID)
		if len(set) == 0 {
			delete(rs.rooms, room)
		}
	}
}

// InRoom reports whether connID is a member of room.
func (r *Router) InRoom(connID, room string) bool {
	rs := r.roomShard(room)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	_, ok := rs.rooms[room][connID]
	return ok
}

// RoomSize returns the local member count of room.
func (r *Router) RoomSize(room string) int {
	rs := r.roomShard(room)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms[room])
}

func (r *Router) BroadcastToRoom(room, event string, payload any, exceptConns ...string) error {
	b := ToRoom(room, event, payload)
	if len(exceptConns) > 0 {
		b.ExceptConn = exceptConns[0]
	}
	return r.Emit(b)
}

func (r *Router) BroadcastToUser(userID, event string, payload any) error {
	return r.Emit(ToUser(userID, event, payload))
}

func (r *Router) BroadcastAll(event string, payload any) error {
	return r.Emit(ToAll(event, payload))
}

// Emit encodes b once, enqueues it on every local recipient and forwards it to
// peers. It returns after all local enqueues.
func (r *Router) Emit(b Broadcast) error {
	frame, err := EncodeFrame(b.Event, b.AckID, b.Payload)
	if err != nil {
		return err
	}
	d := Delivery{Target: b.Target, ExceptConn: b.ExceptConn, ExceptUser: b.ExceptUser, Frame: frame}
	switch b.Target {
	case TargetRoom:
		d.Room = b.Key
	case TargetUser:
		d.Target, d.Room = TargetRoom, UserRoom(b.Key)
	case TargetConn:
		d.ConnID = b.Key
	case TargetAll:
	default:
		return errs.ErrInternal.WrapMsg("unknown broadcast target", "target", int(b.Target))
	}
	r.Deliver(d)
	if r.fwd != nil && d.Target != TargetConn {
		if err := r.fwd.Forward(d); err != nil {
			r.log.Warn("forward failed", zap.String("event", b.Event), zap.Error(err))
		}
	}
	return nil
}

// Deliver fans d out to local connections and returns how many accepted it.
func (r *Router) Deliver(d Delivery) int {
	var targets []*member
	switch d.Target {
	case TargetConn:
		if m := r.member(d.ConnID); m != nil {
			targets = append(targets, m)
		}
	case TargetRoom:
		rs := r.roomShard(d.Room)
		rs.mu.RLock()
		set := rs.rooms[d.Room]
		targets = make([]*member, 0, len(set))
		for _, m := range set {
			targets = append(targets, m)
		}
		rs.mu.RUnlock()
	case TargetAll:
		for i := range r.members {
			s := &r.members[i]
			s.mu.RLock()
			for _, m := range s.m {
				targets = append(targets, m)
			}
			s.mu.RUnlock()
		}
	}

	sent := 0
	for _, m := range targets {
		if m.id == d.ExceptConn || (d.ExceptUser != "" && m.userID == d.ExceptUser) {
			continue
		}
		if m.sink.Send(d.Frame) {
			sent++
		} else {
			r.log.Warn("frame dropped", zap.String("connId", m.id), zap.String("userId", m.userID), zap.String("room", d.Room))
		}
	}
	return sent
}
