package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExecutionContext_ReadsHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Tenant-Id", "t1")
	req.Header.Set("X-User-Id", "u1")
	req.Header.Set("X-Roles", "member, admin")
	req.Header.Set("X-Conversation-Id", "c1")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	execCtx := buildExecutionContext(c)
	assert.Equal(t, "t1", execCtx.TenantID)
	assert.Equal(t, "u1", execCtx.UserID)
	assert.Equal(t, []string{"member", "admin"}, execCtx.Roles)
	assert.Equal(t, "c1", execCtx.ConversationID)
	assert.NotEmpty(t, execCtx.CorrelationID)
}

func TestBuildExecutionContext_FallsBackToJWTRolesClaim(t *testing.T) {
	gin.SetMode(gin.TestMode)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"roles": []any{"admin"}})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	execCtx := buildExecutionContext(c)
	assert.Equal(t, []string{"admin"}, execCtx.Roles)
}

func TestBuildExecutionContext_XRolesTakesPrecedenceOverJWT(t *testing.T) {
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Roles", "member")
	req.Header.Set("Authorization", "Bearer not-even-a-jwt")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req

	execCtx := buildExecutionContext(c)
	assert.Equal(t, []string{"member"}, execCtx.Roles)
}
