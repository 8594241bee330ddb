package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carwash-ops-server/config"
	"carwash-ops-server/models"
	"carwash-ops-server/types"
	"carwash-ops-server/utils"
)

var testJWT = config.JWTConfig{Secret: "middleware-secret", ExpiryHours: 1}

type principalTable map[string]models.Principal

func (p principalTable) FindPrincipal(ctx context.Context, id string) (*models.Principal, error) {
	principal, ok := p[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &principal, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(principals PrincipalFinder, roles ...models.PrincipalRole) *gin.Engine {
	r := gin.New()
	r.GET("/private", AuthMiddleware(testJWT, principals), RequireRole(roles...), func(c *gin.Context) {
		session, _ := types.SessionFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"principal": session.PrincipalID, "ctx": c.GetString(ContextPrincipalID)})
	})
	r.GET("/ws", WebSocketAuthMiddleware(testJWT, principals), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func token(t *testing.T, principalID string, role models.PrincipalRole) string {
	t.Helper()
	tok, _, err := utils.GenerateToken(testJWT, principalID, string(role))
	require.NoError(t, err)
	return tok
}

func TestAuthMiddleware(t *testing.T) {
	principals := principalTable{
		"admin-1":  {ID: "admin-1", Role: models.RoleAdmin},
		"worker-1": {ID: "worker-1", Role: models.RoleWorker},
	}
	router := protectedRouter(principals, models.RoleAdmin)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc", http.StatusUnauthorized},
		{"deleted principal", "Bearer " + token(t, "ghost", models.RoleAdmin), http.StatusUnauthorized},
		{"wrong role", "Bearer " + token(t, "worker-1", models.RoleWorker), http.StatusForbidden},
		{"admin", "Bearer " + token(t, "admin-1", models.RoleAdmin), http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"principal":"admin-1","ctx":"admin-1"}`, w.Body.String())
			}
		})
	}
}

func TestRoleComesFromStoredPrincipal(t *testing.T) {
	// A token minted with an admin role for a principal that is now a worker
	principals := principalTable{"p": {ID: "p", Role: models.RoleWorker}}
	router := protectedRouter(principals, models.RoleAdmin)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "p", models.RoleAdmin))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebSocketAuthMiddleware(t *testing.T) {
	principals := principalTable{"admin-1": {ID: "admin-1", Role: models.RoleAdmin}}
	router := protectedRouter(principals)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws?token="+token(t, "admin-1", models.RoleAdmin), nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter()
	rl.GetLimiterWithConfig("a", 1, 1)
	rl.GetLimiterWithConfig("b", 1, 1)

	assert.Equal(t, 0, rl.Cleanup(time.Hour))
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, rl.Cleanup(time.Millisecond))
}

func TestAuthRateLimit(t *testing.T) {
	rl := NewRateLimiter()
	r := gin.New()
	r.POST("/login", AuthRateLimitMiddleware(rl), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 200, 200, 200, 200, 429}, codes)
}

func TestInputValidation(t *testing.T) {
	r := gin.New()
	r.Use(InputValidationMiddleware())
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Empty bodies need no content type
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORS(t *testing.T) {
	build := func(origins []string) *gin.Engine {
		r := gin.New()
		r.Use(CORSMiddleware(origins))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://admin.wash.test")
	w := httptest.NewRecorder()
	build([]string{"https://admin.wash.test"}).ServeHTTP(w, req)
	assert.Equal(t, "https://admin.wash.test", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.test")
	w = httptest.NewRecorder()
	build([]string{"https://admin.wash.test"}).ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anything.test")
	w = httptest.NewRecorder()
	build(nil).ServeHTTP(w, req)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeaders(t *testing.T) {
	r := gin.New()
	r.Use(SecurityHeadersMiddleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
