package middleware

import (
	"github.com/gin-gonic/gin"
)

// RouteOpt configures a route; a non-nil Auth runs before the handlers.
type RouteOpt struct {
	Auth gin.HandlerFunc
}

func (o RouteOpt) chain(h gin.HandlerFunc) []gin.HandlerFunc {
	if o.Auth == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{o.Auth, h}
}

// POST registers h under path.
func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

// GET registers h under path.
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
