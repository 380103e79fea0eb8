package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	usermodel "chatwire/module/user/model"
	"chatwire/tools/errs"
)

type stubAuth struct{}

func (stubAuth) Authenticate(_ context.Context, token string) (*usermodel.User, error) {
	if token == "good" {
		return &usermodel.User{ID: "alice", Name: "Alice"}, nil
	}
	return nil, errs.ErrAuthentication
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", Auth(stubAuth{}), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUser(c).ID)
	})
	return r
}

func do(r *gin.Engine, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	mutate(req)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthAcceptsBothHeaders(t *testing.T) {
	r := newRouter()

	w := do(r, func(req *http.Request) { req.Header.Set("x-auth-token", "good") })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())

	w = do(r, func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") })
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, func(req *http.Request) { req.Header.Set("Authorization", "bearer good") })
	assert.Equal(t, http.StatusOK, w.Code, "scheme is case-insensitive")
}

func TestAuthRejects(t *testing.T) {
	r := newRouter()

	w := do(r, func(*http.Request) {})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "missing token")

	w = do(r, func(req *http.Request) { req.Header.Set("x-auth-token", "bad") })
	assert.Equal(t, http.StatusUnauthorized, w.Code, "invalid token")
	assert.Contains(t, w.Body.String(), "authentication failed")
}
