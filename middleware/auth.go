package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"carwash-ops-server/config"
	"carwash-ops-server/models"
	"carwash-ops-server/types"
	"carwash-ops-server/utils"
)

const (
	ContextPrincipalID = "principal_id"
	ContextRole        = "role"
)

// PrincipalFinder confirms that a token's principal still exists
type PrincipalFinder interface {
	FindPrincipal(ctx context.Context, id string) (*models.Principal, error)
}

// AuthMiddleware validates the Bearer token and puts the session in the
// request context.
func AuthMiddleware(cfg config.JWTConfig, principals PrincipalFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Authorization header required",
				"message": "Please provide a valid token",
			})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid token format",
				"message": "Token must be in format: Bearer <token>",
			})
			c.Abort()
			return
		}

		authenticate(c, cfg, principals, tokenString)
	}
}

// WebSocketAuthMiddleware validates JWT tokens from query parameters for WebSocket connections
func WebSocketAuthMiddleware(cfg config.JWTConfig, principals PrincipalFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Token required",
				"message": "Please provide a valid token in query parameters",
			})
			c.Abort()
			return
		}

		authenticate(c, cfg, principals, tokenString)
	}
}

func authenticate(c *gin.Context, cfg config.JWTConfig, principals PrincipalFinder, tokenString string) {
	claims, err := utils.VerifyToken(cfg, tokenString)
	if err != nil {
		log.Printf("🔍 Token rejected for %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Invalid token",
			"message": "Token is invalid or expired",
		})
		c.Abort()
		return
	}

	principal, err := principals.FindPrincipal(c.Request.Context(), claims.PrincipalID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Principal not found",
			"message": "Principal associated with token not found",
		})
		c.Abort()
		return
	}

	session := types.Session{PrincipalID: principal.ID, Role: string(principal.Role)}
	c.Request = c.Request.WithContext(types.WithSession(c.Request.Context(), session))
	c.Set(ContextPrincipalID, session.PrincipalID)
	c.Set(ContextRole, session.Role)

	c.Next()
}

// RequireRole rejects sessions whose role is not one of roles
func RequireRole(roles ...models.PrincipalRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := types.SessionFrom(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		for _, role := range roles {
			if session.Role == string(role) {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		c.Abort()
	}
}
