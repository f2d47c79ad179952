package security

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"
	toolsec "PPRealtime/tools/security"

	"github.com/gin-gonic/gin"
)

// ----- context key -----
// Downstream handlers read the token and user id under these keys.
const (
	PPCtxAuthKey   = "authorization" // string: raw token
	PPCtxUserIDKey = "userId"        // string: validated user id
)

type Options struct {
	HeaderToken               string // default "authorization"
	EnableAuthorizationBearer bool   // default true
	QueryParam                string // when set, ?token= is accepted for browser WebSocket handshakes
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               PPCtxAuthKey,
		EnableAuthorizationBearer: true,
	}
}

// SocketOptions also accepts the token query parameter.
func SocketOptions() *Options {
	o := DefaultOptions()
	o.QueryParam = "token"
	return o
}

// ExtractToken reads the credential from Authorization: Bearer, the raw token
// header, then the query parameter when enabled.
func ExtractToken(r *http.Request, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	// Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(r.Header.Get("Authorization")); len(authz) > len("bearer ") &&
			strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
	}
	if opts.HeaderToken != "" && !strings.EqualFold(opts.HeaderToken, "Authorization") {
		if t := strings.TrimSpace(r.Header.Get(opts.HeaderToken)); t != "" {
			return t
		}
	}
	if opts.QueryParam != "" {
		return strings.TrimSpace(r.URL.Query().Get(opts.QueryParam))
	}
	return ""
}

// Authenticate validates the request credential. The error is an errs auth error.
func Authenticate(r *http.Request, v toolsec.Validator, opts *Options) (userID, token string, err error) {
	token = ExtractToken(r, opts)
	if token == "" {
		return "", "", errs.ErrAuth.WrapMsg("token missing")
	}
	userID, err = v.Validate(token)
	if err != nil {
		return "", token, err
	}
	return userID, token, nil
}

// Middleware aborts with 401 unless the request carries a valid token, and stores
// the user id under PPCtxUserIDKey.
func Middleware(v toolsec.Validator, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		uid, token, err := Authenticate(c.Request, v, opts)
		if err != nil {
			AbortUnauthorized(c, err)
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxUserIDKey, uid)
		c.Next()
	}
}

// AbortUnauthorized answers 401 with the coded error body.
func AbortUnauthorized(c *gin.Context, err error) {
	code := errs.Code(err)
	if code == 0 {
		code = errs.AuthError
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": code, "msg": "unauthorized"})
}

// UserID returns the user id stored by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}
