package security

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"PPRealtime/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options controls signing and token lifetime.
type Options struct {
	Secret []byte        // HMAC key
	Alg    string        // HS256, HS384 or HS512 (default HS256)
	TTL    time.Duration // token lifetime (default 7 days)
	Leeway time.Duration // clock skew allowed on exp/nbf
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 7 * 24 * time.Hour}
}

// Validator resolves a presented credential token to a user id.
type Validator interface {
	Validate(token string) (userID string, err error)
}

// JWTValidator checks HMAC-signed tokens issued by Generate. The user id is read
// from the "id" claim, falling back to "sub".
type JWTValidator struct {
	opts Options
}

func NewJWTValidator(opts Options) (*JWTValidator, error) {
	if len(opts.Secret) == 0 {
		return nil, errs.New("jwt secret is empty")
	}
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, err
	}
	return &JWTValidator{opts: opts}, nil
}

func (v *JWTValidator) Validate(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errs.ErrAuth.WrapMsg("token missing")
	}
	claims, err := Verify(v.opts, token)
	if err != nil {
		return "", err
	}
	uid := claims.UserID()
	if uid == "" {
		return "", errs.ErrAuth.WrapMsg("token carries no user id")
	}
	return uid, nil
}

type JWTClaims struct {
	jwtlib.MapClaims
}

// UserID returns the "id" claim, or "sub" when "id" is absent.
func (c *JWTClaims) UserID() string {
	if id, ok := c.MapClaims["id"].(string); ok && id != "" {
		return id
	}
	sub, _ := c.GetSubject()
	return sub
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func Generate(opts Options, userID string, now time.Time) (token string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if now.IsZero() {
		now = time.Now()
	}
	exp := now.Add(opts.TTL)

	claims := jwtlib.MapClaims{
		"id":  userID,
		"sub": userID,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func Verify(opts Options, token string) (*JWTClaims, error) {
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, err
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithExpirationRequired(), jwtlib.WithLeeway(opts.Leeway))
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired.Wrap(err)
		}
		return nil, errs.ErrAuth.Wrap(err)
	}
	if !parsed.Valid {
		return nil, errs.ErrAuth.WrapMsg("invalid token")
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.ErrAuth.WrapMsg("claims type mismatch")
	}
	return &JWTClaims{claims}, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
