package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// Principal is the authenticated caller: its user id and the assistant ids it
// owns. Every aggregation query downstream is scoped by this set.
type Principal struct {
	UserID       string
	AssistantIDs []string
}

// SessionResolver maps a bearer token to a principal. A resolution failure
// means the session is missing or expired, not a server fault.
type SessionResolver interface {
	ResolveSession(ctx context.Context, token string) (userID string, assistantIDs []string, err error)
}

// Auth validates the Authorization header and attaches the principal to the
// request context.
func Auth(resolver SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "Missing bearer token")
			return
		}

		userID, assistantIDs, err := resolver.ResolveSession(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "Invalid or expired session")
			return
		}

		c.Set(principalKey, Principal{UserID: userID, AssistantIDs: assistantIDs})
		c.Next()
	}
}

// PrincipalFrom returns the principal attached by Auth.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// StaticResolver authorizes a single fixed token, used in demo mode.
type StaticResolver struct {
	Token        string
	UserID       string
	AssistantIDs []string
}

var errInvalidToken = errors.New("invalid token")

func (r StaticResolver) ResolveSession(ctx context.Context, token string) (string, []string, error) {
	if token != r.Token {
		return "", nil, errInvalidToken
	}
	return r.UserID, r.AssistantIDs, nil
}
