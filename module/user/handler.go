package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatwire/middleware"
	"chatwire/module/user/service"
	"chatwire/tools/errs"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Register handles POST /register.
func (h *Handler) Register(c *gin.Context) {
	var in service.RegisterParams
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, errs.ErrValidation.WithDetail("malformed body"))
		return
	}
	if _, err := h.svc.Register(c.Request.Context(), in); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "user registered successfully"})
}

// Login handles POST /login.
func (h *Handler) Login(c *gin.Context) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, errs.ErrValidation.WithDetail("malformed body"))
		return
	}
	res, err := h.svc.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"token":   res.Token,
		"user":    res.User.Public(),
	})
}

// Info handles GET /user-info.
func (h *Handler) Info(c *gin.Context) {
	u := middleware.CurrentUser(c)
	c.JSON(http.StatusOK, gin.H{"user": u.Public()})
}

// Search handles GET /search-users?query=.
func (h *Handler) Search(c *gin.Context) {
	u := middleware.CurrentUser(c)
	out, err := h.svc.Search(c.Request.Context(), u.ID, c.Query("query"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func fail(c *gin.Context, err error) {
	c.JSON(errs.HTTPStatus(err), errs.AsCodeError(err))
}
