package http

import (
	"context"
	"net/http"

	"campuschat/internal/core/domain"
	apperrors "campuschat/pkg/errors"

	"github.com/gin-gonic/gin"
)

// OnlineLister is the read surface of the presence registry the UI polls.
type OnlineLister interface {
	ListOnline(ctx context.Context) ([]domain.IdentityRecord, error)
}

type UsersHandler struct {
	online OnlineLister
}

func NewUsersHandler(online OnlineLister) *UsersHandler {
	return &UsersHandler{online: online}
}

func (h *UsersHandler) SetupRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	api := router.Group("/api/users", authMiddleware)
	{
		api.GET("/online", h.OnlineUsers)
	}
}

// OnlineUsers returns the Identity Records of everyone currently holding
// a signaling connection.
func (h *UsersHandler) OnlineUsers(c *gin.Context) {
	records, err := h.online.ListOnline(c.Request.Context())
	if err != nil {
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to list online users", http.StatusInternalServerError))
		return
	}

	if records == nil {
		records = []domain.IdentityRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"onlineUsers": records})
}
