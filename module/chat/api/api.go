package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"PPRealtime/middleware"
	midsec "PPRealtime/middleware/security"
	"PPRealtime/module/chat/store"
	"PPRealtime/service/chat/handlers"
	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatsFunc reports live connection counts for /health.
type StatsFunc func() any

// MessageSender stores a message and fans it out to connected clients;
// *handlers.Handlers implements it.
type MessageSender interface {
	PostMessage(ctx context.Context, senderID string, req handlers.SendMessageReq) (*handlers.SendMessageReply, error)
}

// Server answers the REST queries clients use to rebuild state after (re)connecting.
type Server struct {
	store  store.Store
	sender MessageSender
	stats  StatsFunc
	log    *zap.Logger
	now    func() time.Time
}

// NewServer builds the REST surface. A nil sender leaves POST /api/messages unmounted.
func NewServer(st store.Store, sender MessageSender, stats StatsFunc, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: st, sender: sender, stats: stats, log: log.Named("api"), now: store.Now}
}

// Register mounts the routes; auth guards everything except /health.
func (s *Server) Register(r gin.IRouter, auth gin.HandlerFunc) {
	opt := middleware.RouteOpt{Auth: auth}
	g := r.Group("/api")
	middleware.GET(g, "/conversations/user", s.handle(s.GetUserConversations), opt)
	middleware.POST(g, "/conversations", s.handle(s.CreateConversation), opt)
	middleware.GET(g, "/messages/:conversationId", s.handle(s.GetMessages), opt)
	if s.sender != nil {
		middleware.POST(g, "/messages", s.handle(s.PostMessage), opt)
	}
	middleware.GET(g, "/users/all", s.handle(s.GetAllUsers), opt)
	middleware.GET(g, "/stories/all", s.handle(s.GetContactStories), opt)
	middleware.GET(g, "/stories/mine", s.handle(s.GetMyStories), opt)
	middleware.GET(r, "/health", s.Health, middleware.RouteOpt{})
}

// handle adapts an error-returning handler and maps coded errors to statuses.
func (s *Server) handle(h func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h(c)
		if err == nil {
			return
		}
		status := httpStatus(err)
		if status >= http.StatusInternalServerError {
			s.log.Error("request failed", zap.String("path", c.FullPath()), zap.String("userId", midsec.UserID(c)), zap.Error(err))
		}
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"code": errs.Code(err), "msg": publicMessage(status)})
	}
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, errs.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(status int) string {
	if status >= http.StatusInternalServerError {
		return "internal error"
	}
	return http.StatusText(status)
}

func (s *Server) Health(c *gin.Context) {
	var stats any
	if s.stats != nil {
		stats = s.stats()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "stats": stats})
}
