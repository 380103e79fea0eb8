package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	usermodel "chatwire/module/user/model"
	"chatwire/tools/errs"
)

const ctxUserKey = "authUser"

// Authenticator matches the user service's token verification.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*usermodel.User, error)
}

// Auth verifies the request's bearer token and stores the account in the gin
// context. Missing and invalid tokens get the same generic 401.
func Auth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := requestToken(c)
		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrAuthentication)
			return
		}
		c.Set(ctxUserKey, user)
		c.Next()
	}
}

// CurrentUser returns the account set by Auth. Only valid on routes behind
// the middleware.
func CurrentUser(c *gin.Context) *usermodel.User {
	v, _ := c.Get(ctxUserKey)
	u, _ := v.(*usermodel.User)
	return u
}

// requestToken reads the credential from x-auth-token (the legacy client
// header) or an Authorization bearer header.
func requestToken(c *gin.Context) string {
	if t := strings.TrimSpace(c.GetHeader("x-auth-token")); t != "" {
		return t
	}
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("bearer "):])
	}
	return ""
}
