package chat

import (
	"context"
	"net/http"
	"time"

	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/tools/safe"
	"PPRealtime/tools/security"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ServerOptions configures the WebSocket endpoint.
type ServerOptions struct {
	Client           ClientOptions
	HandshakeTimeout time.Duration
	AllowedOrigins   []string // empty: any origin
	// NewConnID overrides connection id generation.
	NewConnID func() string
}

// Server ties the realtime core together: authenticated upgrade, registry,
// presence, routing and dispatch.
type Server struct {
	validator security.Validator
	registry  *Registry
	presence  *Presence
	router    *Router
	disp      *Dispatcher
	opts      ServerOptions
	upgrader  websocket.Upgrader
	log       *zap.Logger

	sessions *sessionSet
}

func NewServer(v security.Validator, reg *Registry, p *Presence, r *Router, d *Dispatcher, opts ServerOptions, log *zap.Logger) *Server {
	safe.MustNotNil(v, "validator")
	safe.MustNotNil(reg, "registry")
	safe.MustNotNil(p, "presence")
	safe.MustNotNil(r, "router")
	safe.MustNotNil(d, "dispatcher")
	if log == nil {
		log = zap.NewNop()
	}
	if opts.NewConnID == nil {
		opts.NewConnID = genConnID
	}
	opts.Client.norm()
	s := &Server{
		validator: v,
		registry:  reg,
		presence:  p,
		router:    r,
		disp:      d,
		opts:      opts,
		log:       log.Named("ws"),
		sessions:  newSessionSet(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		HandshakeTimeout: opts.HandshakeTimeout,
		CheckOrigin:      s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	return middleware.OriginAllowed(r.Header.Get("Origin"), s.opts.AllowedOrigins)
}

func (s *Server) Registry() *Registry { return s.registry }

func (s *Server) Router() *Router { return s.router }

// Stats is the health snapshot of this node.
type Stats struct {
	OnlineUsers int `json:"onlineUsers"`
	Connections int `json:"connections"`
	Sessions    int `json:"sessions"`
}

func (s *Server) Stats() Stats {
	u, c := s.registry.Count()
	return Stats{OnlineUsers: u, Connections: c, Sessions: s.sessions.len()}
}

// Shutdown closes every live connection and waits until their close paths ran
// or ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, c := range s.sessions.snapshot() {
		c.Close()
	}
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for s.sessions.len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func (s *Server) authenticate(r *http.Request) (userID, token string, err error) {
	return midsec.Authenticate(r, s.validator, midsec.SocketOptions())
}
