package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDAssignedOrKept(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), AccessLog(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(CtxRequestIDKey)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
	assert.Equal(t, w.Header().Get(HeaderRequestID), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "abc")
	w = serve(r, req)
	assert.Equal(t, "abc", w.Body.String())
}

func TestOrigin(t *testing.T) {
	r := gin.New()
	r.Use(Origin([]string{"https://app.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		origin string
		code   int
	}{
		{"", http.StatusNoContent},
		{"https://app.example", http.StatusNoContent},
		{"https://evil.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.code, serve(r, req).Code, tt.origin)
	}
	assert.True(t, OriginAllowed("https://any", nil))
}

func TestManagerStopsOnAbort(t *testing.T) {
	var ran []string
	m := NewManager(func(c *gin.Context) { ran = append(ran, "a") })
	m.Add(func(c *gin.Context) { ran = append(ran, "b"); c.AbortWithStatus(http.StatusTeapot) })
	m.Add(func(c *gin.Context) { ran = append(ran, "c") })

	r := gin.New()
	r.Use(m.Use())
	r.GET("/x", func(c *gin.Context) { ran = append(ran, "handler") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestRouteAuth(t *testing.T) {
	deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	r := gin.New()
	GET(r, "/open", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{})
	POST(r, "/closed", func(c *gin.Context) { c.Status(http.StatusOK) }, RouteOpt{Auth: deny})

	assert.Equal(t, http.StatusOK, serve(r, httptest.NewRequest(http.MethodGet, "/open", nil)).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, httptest.NewRequest(http.MethodPost, "/closed", nil)).Code)
}
