package admin

import (
	"errors"
	"net/http"
	"strings"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/analysis"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/quota"
	"econfere-api/internal/domain/users"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// GET /api/admin/users?page&limit&search
func (h *Handler) ListUsers(c *gin.Context) {
	page, limit := pageParams(c, 10)

	q := h.db.WithContext(c.Request.Context()).Model(&users.User{})
	if s := strings.TrimSpace(c.Query("search")); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		respond.Internal(c, "Failed to count users", err)
		return
	}
	list := []users.User{}
	if err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error; err != nil {
		respond.Internal(c, "Failed to load users", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": list, "pagination": newPagination(page, limit, total)})
}

// GET /api/admin/users/:id
func (h *Handler) GetUser(c *gin.Context) {
	id := c.Param("id")

	var u users.User
	if err := h.db.WithContext(c.Request.Context()).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(c, http.StatusNotFound, "User not found")
			return
		}
		respond.Internal(c, "Failed to load user", err, "user_id", id)
		return
	}

	var analyses, paid int64
	var spent float64
	g, ctx := errgroup.WithContext(c.Request.Context())
	db := h.db.WithContext(ctx)
	g.Go(func() error {
		return db.Model(&analysis.Analysis{}).Where("user_id = ?", id).Count(&analyses).Error
	})
	g.Go(func() error {
		return db.Model(&billing.Payment{}).Where("user_id = ?", id).Count(&paid).Error
	})
	g.Go(func() error {
		return db.Model(&billing.Payment{}).
			Where("user_id = ? AND status = ?", id, string(billing.StatusCompleted)).
			Select("COALESCE(SUM(amount), 0)").
			Scan(&spent).Error
	})
	if err := g.Wait(); err != nil {
		respond.Internal(c, "Failed to load user details", err, "user_id", id)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":          u,
		"analysesCount": analyses,
		"paymentsCount": paid,
		"totalSpent":    roundCents(spent),
	})
}

// PATCH /api/admin/users/:id/role
func (h *Handler) UpdateRole(c *gin.Context) {
	var body struct {
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || !users.ValidRole(body.Role) {
		respond.Error(c, http.StatusBadRequest, "role must be user or admin")
		return
	}

	id := c.Param("id")
	db := h.db.WithContext(c.Request.Context())
	res := db.Model(&users.User{}).Where("id = ?", id).Update("role", body.Role)
	if res.Error != nil {
		respond.Internal(c, "Failed to update role", res.Error, "user_id", id)
		return
	}
	if res.RowsAffected == 0 {
		respond.Error(c, http.StatusNotFound, "User not found")
		return
	}

	h.log.Info("user role changed", "user_id", id, "role", body.Role, "by", middleware.UserID(c))
	c.JSON(http.StatusOK, gin.H{"message": "Role updated"})
}

// DELETE /api/admin/users/:id
func (h *Handler) DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if id == middleware.UserID(c) {
		respond.Error(c, http.StatusBadRequest, "You cannot delete your own account")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var u users.User
	if err := db.Select("id").First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respond.Error(c, http.StatusNotFound, "User not found")
			return
		}
		respond.Internal(c, "Failed to load user", err, "user_id", id)
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&quota.FreeGrant{},
			&analysis.Analysis{},
			&billing.Payment{},
			&users.VerificationToken{},
		} {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&users.User{}, "id = ?", id).Error
	})
	if err != nil {
		respond.Internal(c, "Failed to delete user", err, "user_id", id)
		return
	}

	h.log.Info("user deleted", "user_id", id, "by", middleware.UserID(c))
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}
