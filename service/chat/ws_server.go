package chat

import (
	"context"
	"sync"

	midsec "PPRealtime/middleware/security"
	"PPRealtime/tools/ids"
	"PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func genConnID() string {
	return ids.GenerateString()
}

// HandleWS runs one connection through Connecting → Authenticated → Active → Closed.
// The credential is checked before the upgrade; a failure answers 401 and the
// socket is never opened.
func (s *Server) HandleWS(c *gin.Context) {
	userID, token, err := s.authenticate(c.Request)
	if err != nil {
		fields := []zap.Field{zap.String("remote", c.ClientIP()), zap.Error(err)}
		if token != "" {
			fields = append(fields, zap.String("token", security.HashToken(token)))
		}
		s.log.Info("handshake rejected", fields...)
		midsec.AbortUnauthorized(c, err)
		return
	}

	sess := NewSession(s.opts.NewConnID(), userID)
	sess.Remote = c.ClientIP()
	sess.setState(StateAuthenticated)

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// not a WebSocket request or a bad handshake; Upgrade already replied
		s.log.Info("upgrade failed", zap.String("userId", userID), zap.Error(err))
		return
	}
	client := NewClient(sess.ConnID, userID, ws, s.opts.Client, s.log)
	s.serve(c.Request.Context(), sess, client)
}

// serve activates the session, pumps it and tears it down.
func (s *Server) serve(parent context.Context, sess *Session, client *Client) {
	// handlers get a ctx detached from the connection so committed writes finish after a disconnect
	ctx := context.WithoutCancel(parent)
	log := s.log.With(zap.String("connId", sess.ConnID), zap.String("userId", sess.UserID))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		client.writePump()
	}()

	if err := s.activate(ctx, sess, client); err != nil {
		log.Warn("activation failed", zap.Error(err))
		client.Close()
		wg.Wait()
		sess.setState(StateClosed)
		return
	}
	s.sessions.add(sess.ConnID, client)
	log.Info("connected", zap.String("remote", sess.Remote))

	client.readLoop(ctx, func(ctx context.Context, raw []byte) {
		_ = s.disp.Handle(ctx, sess, raw)
	})

	sess.setState(StateClosed)
	s.deactivate(ctx, sess)
	client.Close()
	wg.Wait()
	s.sessions.remove(sess.ConnID)
	log.Info("disconnected")
}

// activate attaches the sink, joins the personal room and registers presence.
func (s *Server) activate(ctx context.Context, sess *Session, client *Client) error {
	if err := s.router.Attach(sess.ConnID, sess.UserID, client); err != nil {
		return err
	}
	if err := s.presence.Connected(ctx, sess.UserID, sess.ConnID); err != nil {
		if _, owned := s.registry.OwnerOf(sess.ConnID); !owned {
			s.router.Detach(sess.ConnID)
			return err
		}
		// registered; only persisting the status failed
		s.log.Warn("presence persisted with error", zap.String("connId", sess.ConnID), zap.Error(err))
	}
	sess.setState(StateActive)
	return nil
}

func (s *Server) deactivate(ctx context.Context, sess *Session) {
	s.router.Detach(sess.ConnID)
	if err := s.presence.Disconnected(ctx, sess.UserID, sess.ConnID); err != nil {
		s.log.Warn("presence offline persisted with error", zap.String("connId", sess.ConnID), zap.Error(err))
	}
}

type sessionSet struct {
	mu sync.Mutex
	m  map[string]*Client
}

func newSessionSet() *sessionSet {
	return &sessionSet{m: make(map[string]*Client)}
}

func (s *sessionSet) add(id string, c *Client) {
	s.mu.Lock()
	s.m[id] = c
	s.mu.Unlock()
}

func (s *sessionSet) remove(id string) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *sessionSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func (s *sessionSet) snapshot() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.m))
	for _, c := range s.m {
		out = append(out, c)
	}
	return out
}
