package chat

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatwire/middleware"
	"chatwire/module/chat/service"
	"chatwire/tools/errs"
)

type Handler struct {
	router *service.Router
}

func NewHandler(router *service.Router) *Handler {
	return &Handler{router: router}
}

// CreateConversation handles POST /conversations. Direct conversations are
// get-or-create: posting the same pair twice returns the same id.
func (h *Handler) CreateConversation(c *gin.Context) {
	u := middleware.CurrentUser(c)
	var in service.CreateParams
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, errs.ErrValidation.WithDetail("malformed body"))
		return
	}
	view, err := h.router.Create(c.Request.Context(), u.ID, in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListConversations handles GET /conversations.
func (h *Handler) ListConversations(c *gin.Context) {
	u := middleware.CurrentUser(c)
	out, err := h.router.ListConversations(c.Request.Context(), u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// ListMessages handles GET /messages/:conversationId. Fetching the thread
// marks it read and pushes the receipt to the other participants.
func (h *Handler) ListMessages(c *gin.Context) {
	u := middleware.CurrentUser(c)
	out, err := h.router.ListMessages(c.Request.Context(), u.ID, c.Param("conversationId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// SendMessage handles POST /messages/:conversationId. REST sends follow the
// same router path as live-channel sends; with no originating connection,
// every connection of the sender receives the echo.
func (h *Handler) SendMessage(c *gin.Context) {
	u := middleware.CurrentUser(c)
	var in struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, errs.ErrValidation.WithDetail("malformed body"))
		return
	}
	view, err := h.router.SendMessage(c.Request.Context(), u.ID, "", c.Param("conversationId"), in.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

// MarkRead handles POST /conversations/:conversationId/read, the fetch-based
// twin of the mark_read live event.
func (h *Handler) MarkRead(c *gin.Context) {
	u := middleware.CurrentUser(c)
	if err := h.router.MarkRead(c.Request.Context(), u.ID, c.Param("conversationId")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, err error) {
	c.JSON(errs.HTTPStatus(err), errs.AsCodeError(err))
}
