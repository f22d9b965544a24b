package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"coursemart_backend/internal/config"
	"coursemart_backend/internal/model"
	"coursemart_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authed := r.Group("/", AuthMiddleware(&config.JWTConfig{Secret: testSecret}))
	authed.GET("/students/:studentId", OwnerOrAdmin("studentId"), func(c *gin.Context) { c.Status(http.StatusOK) })
	authed.GET("/admin", RoleMiddleware(model.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func request(t *testing.T, r *gin.Engine, path, userID string, role model.UserRole) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		token, err := util.GenerateJWT(userID, role, userID+"@example.com", testSecret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestOwnerOrAdmin(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusUnauthorized, request(t, r, "/students/s1", "", ""))
	assert.Equal(t, http.StatusOK, request(t, r, "/students/s1", "s1", model.RoleStudent))
	assert.Equal(t, http.StatusForbidden, request(t, r, "/students/s1", "s2", model.RoleStudent))
	assert.Equal(t, http.StatusOK, request(t, r, "/students/s1", "root", model.RoleAdmin))
}

func TestRoleMiddleware(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusForbidden, request(t, r, "/admin", "s1", model.RoleStudent))
	assert.Equal(t, http.StatusOK, request(t, r, "/admin", "root", model.RoleAdmin))
}

func TestAuthMiddlewareRejectsBadToken(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/students/s1", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
