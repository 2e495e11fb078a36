package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/users"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	db          *gorm.DB
	frontendURL string
	log         *slog.Logger
	now         func() time.Time
}

func NewHandler(db *gorm.DB, frontendURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, frontendURL: strings.TrimRight(frontendURL, "/"), log: logger, now: time.Now}
}

// GET /auth/profile
func (h *Handler) Profile(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var user users.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(c, http.StatusNotFound, "User not found")
			return
		}
		respond.Internal(c, "Failed to load profile", err, "user_id", userID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// GET /auth/verify?token=
func (h *Handler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respond.Error(c, http.StatusBadRequest, "Missing token")
		return
	}

	ctx := c.Request.Context()
	var t users.VerificationToken
	if err := h.db.WithContext(ctx).Where("token = ?", token).First(&t).Error; err != nil || t.Expired(h.now()) {
		respond.Error(c, http.StatusBadRequest, "Invalid or expired token")
		return
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&users.User{}).Where("id = ?", t.UserID).Update("email_verified", true).Error; err != nil {
			return err
		}
		return tx.Delete(&t).Error
	})
	if err != nil {
		respond.Internal(c, "Failed to verify user", err, "user_id", t.UserID)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.frontendURL+"/login?verified=1")
}
