package billing

import (
	"net/http"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/billing"

	"github.com/gin-gonic/gin"
)

// GET /api/payment/history
func (h *Handler) History(c *gin.Context) {
	userID := middleware.UserID(c)
	list, err := billing.ListByUser(c.Request.Context(), h.db, userID)
	if err != nil {
		respond.Internal(c, "Failed to load payments", err, "user_id", userID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": list})
}
