package chat

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// HandlerFunc executes one client event. Broadcasts in the returned Outcome are
// applied by the Dispatcher only when err is nil.
type HandlerFunc func(ctx context.Context, s *Session, data json.RawMessage) (Outcome, error)

// Outcome is what a handler asks the Dispatcher to deliver.
type Outcome struct {
	Broadcasts []Broadcast
	Reply      any // sent as an ack when the request carried an ackId
}

// Emit appends broadcasts and returns the outcome for chaining.
func (o Outcome) Emit(b ...Broadcast) Outcome {
	o.Broadcasts = append(o.Broadcasts, b...)
	return o
}

type Target int

const (
	TargetRoom Target = iota + 1
	TargetUser
	TargetAll
	TargetConn
)

func (t Target) String() string {
	switch t {
	case TargetRoom:
		return "room"
	case TargetUser:
		return "user"
	case TargetAll:
		return "all"
	case TargetConn:
		return "conn"
	}
	return "unknown"
}

// Broadcast addresses one event to a room, a user's personal room, every
// connection or a single connection.
type Broadcast struct {
	Target     Target
	Key        string // room key, user id or connection id
	Event      string
	Payload    any
	AckID      string
	ExceptConn string
	ExceptUser string
}

func ToRoom(room, event string, payload any) Broadcast {
	return Broadcast{Target: TargetRoom, Key: room, Event: event, Payload: payload}
}

func ToUser(userID, event string, payload any) Broadcast {
	return Broadcast{Target: TargetUser, Key: userID, Event: event, Payload: payload}
}

func ToAll(event string, payload any) Broadcast {
	return Broadcast{Target: TargetAll, Event: event, Payload: payload}
}

func ToConn(connID, event string, payload any) Broadcast {
	return Broadcast{Target: TargetConn, Key: connID, Event: event, Payload: payload}
}

func (b Broadcast) ExcludingConn(connID string) Broadcast {
	b.ExceptConn = connID
	return b
}

func (b Broadcast) ExcludingUser(userID string) Broadcast {
	b.ExceptUser = userID
	return b
}

// Sink is the outbound side of one connection. Send must not block; it reports
// false when the frame was dropped.
type Sink interface {
	Send(frame []byte) bool
}

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is the authenticated identity of one connection as seen by handlers.
type Session struct {
	ConnID string
	UserID string
	Remote string

	state atomic.Int32
}

func NewSession(connID, userID string) *Session {
	return &Session{ConnID: connID, UserID: userID}
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }
