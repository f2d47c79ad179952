package chat

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recSink records frames; a positive limit makes it drop beyond that many.
type recSink struct {
	mu     sync.Mutex
	frames [][]byte
	limit  int
}

func (s *recSink) Send(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limit > 0 && len(s.frames) >= s.limit {
		return false
	}
	s.frames = append(s.frames, frame)
	return true
}

type decoded struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId"`
	Data  json.RawMessage `json:"data"`
}

func (s *recSink) events(t *testing.T) []decoded {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]decoded, 0, len(s.frames))
	for _, f := range s.frames {
		var d decoded
		require.NoError(t, json.Unmarshal(f, &d))
		out = append(out, d)
	}
	return out
}

func (s *recSink) names(t *testing.T) []string {
	var out []string
	for _, d := range s.events(t) {
		out = append(out, d.Event)
	}
	return out
}

// recEmitter records broadcasts instead of delivering them.
type recEmitter struct {
	mu  sync.Mutex
	out []Broadcast
	err error
}

func (e *recEmitter) Emit(b Broadcast) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.out = append(e.out, b)
	return nil
}

func (e *recEmitter) all() []Broadcast {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Broadcast(nil), e.out...)
}

// statusLog records persisted statuses per user.
type statusLog struct {
	mu   sync.Mutex
	seq  map[string][]string
	fail error
}

func newStatusLog() *statusLog { return &statusLog{seq: make(map[string][]string)} }

func (l *statusLog) SetUserStatus(_ context.Context, userID, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.seq[userID] = append(l.seq[userID], status)
	return nil
}

func (l *statusLog) of(userID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.seq[userID]...)
}
