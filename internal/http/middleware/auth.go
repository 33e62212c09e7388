package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/neurobridge-hydration/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

// ActorKey is the gin context key holding the authenticated actor id.
const ActorKey = "actor_id"

// AuthMiddleware verifies HS256 bearer tokens and attaches the subject as the
// acting operator. With an empty secret every request acts as "anonymous";
// that mode is meant for local development only.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	am := &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), secret: []byte(secret)}
	if secret == "" {
		am.log.Warn("ADMIN_JWT_SECRET is empty; admin routes are unauthenticated")
	}
	return am
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if len(am.secret) == 0 {
			am.attach(c, "anonymous")
			c.Next()
			return
		}
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or invalid token", "code": "unauthorized"},
			})
			return
		}
		subject, err := am.verify(tokenString)
		if err != nil {
			am.log.Debug("Rejected admin token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": err.Error(), "code": "unauthorized"},
			})
			return
		}
		am.attach(c, subject)
		c.Next()
	}
}

func (am *AuthMiddleware) verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return "", fmt.Errorf("invalid or expired token")
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func (am *AuthMiddleware) attach(c *gin.Context, actorID string) {
	c.Set(ActorKey, actorID)
	c.Request = c.Request.WithContext(ctxutil.WithActor(c.Request.Context(), actorID))
}

// Actor returns the actor attached by RequireAuth, or "" on public routes.
func Actor(c *gin.Context) string {
	return c.GetString(ActorKey)
}

func extractBearer(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
