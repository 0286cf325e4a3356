// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller identity. Bearer tokens are HS256 JWTs whose
// subject is the user id. Without a configured secret the X-User-ID demo
// header is trusted instead, which keeps local development and tests simple.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderUserID carries the caller id when token auth is not configured.
	HeaderUserID = "X-User-ID"

	ctxKeyUserID = "userID"
	demoUserID   = "demo-user"
)

var errMissingSubject = errors.New("token has no subject")

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HS256 signing key. Empty disables token checks.
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Required rejects requests that carry no valid token.
	Required bool
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// Auth stores the caller's user id in the Gin context under "userID".
//
//   - A present but invalid bearer token is always rejected with 401.
//   - Without a token, Required rejects the request; otherwise X-User-ID is
//     used when present.
func Auth(opts AuthOptions) gin.HandlerFunc {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Leeway > 0 {
		parserOpts = append(parserOpts, jwt.WithLeeway(opts.Leeway))
	}
	parser := jwt.NewParser(parserOpts...)

	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))

		if len(opts.Secret) > 0 && token != "" {
			sub, err := subjectOf(parser, token, opts.Secret)
			if err != nil {
				LoggerFrom(c).Debug().Err(err).Msg("rejected bearer token")
				unauthorized(c, "invalid bearer token")
				return
			}
			c.Set(ctxKeyUserID, sub)
			c.Next()
			return
		}

		if opts.Required {
			unauthorized(c, "bearer token required")
			return
		}
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			c.Set(ctxKeyUserID, h)
		}
		c.Next()
	}
}

// UserID returns the caller id set by Auth, or "demo-user" when the request
// is anonymous.
func UserID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return demoUserID
}

func subjectOf(p *jwt.Parser, raw string, secret []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := p.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errMissingSubject
	}
	return sub, nil
}

func bearerToken(header string) string {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
