package admin

import (
	"net/http"
	"time"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/domain/analysis"
	"econfere-api/internal/domain/billing"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentRow is a payment joined with its payer and the linked analysis tag.
type PaymentRow struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	AnalysisID       *string        `json:"analysis_id,omitempty"`
	Tipo             string         `json:"tipo"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	PaymentMethod    string         `json:"payment_method"`
	PaymentGateway   string         `json:"payment_gateway"`
	GatewayPaymentID *string        `json:"gateway_payment_id,omitempty"`
	Status           string         `json:"status"`
	ReceiptSent      bool           `json:"receipt_sent"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UserName         string         `json:"user_name"`
	UserEmail        string         `json:"user_email"`
	AnalysisType     *string        `json:"analysis_type,omitempty"`
}

type AnalysisRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Tipo      string    `json:"tipo"`
	FileName  string    `json:"file_name"`
	Status    string    `json:"status"`
	IsFree    bool      `json:"is_free"`
	PaymentID *string   `json:"payment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserName  string    `json:"user_name"`
	UserEmail string    `json:"user_email"`
}

func paymentRows(db *gorm.DB) *gorm.DB {
	return db.Table("payments p").
		Select(`p.id, p.user_id, p.analysis_id, p.tipo, p.amount, p.currency, p.payment_method,
			p.payment_gateway, p.gateway_payment_id, p.status, p.receipt_sent, p.metadata, p.created_at,
			u.name AS user_name, u.email AS user_email, a.tipo AS analysis_type`).
		Joins("JOIN users u ON u.id = p.user_id").
		Joins("LEFT JOIN analyses a ON a.id = p.analysis_id")
}

func analysisRows(db *gorm.DB) *gorm.DB {
	return db.Table("analyses a").
		Select(`a.id, a.user_id, a.tipo, a.file_name, a.status, a.is_free, a.payment_id,
			a.created_at, a.updated_at, u.name AS user_name, u.email AS user_email`).
		Joins("JOIN users u ON u.id = a.user_id")
}

// GET /api/admin/payments?page&limit&status
func (h *Handler) ListPayments(c *gin.Context) {
	page, limit := pageParams(c, 20)
	status := c.Query("status")
	if status != "" && !billing.ValidStatus(status) {
		respond.Error(c, http.StatusBadRequest, "Invalid status")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	count := db.Model(&billing.Payment{})
	rows := paymentRows(db)
	if status != "" {
		count = count.Where("status = ?", status)
		rows = rows.Where("p.status = ?", status)
	}

	var total int64
	if err := count.Count(&total).Error; err != nil {
		respond.Internal(c, "Failed to count payments", err)
		return
	}
	list := []PaymentRow{}
	if err := rows.Order("p.created_at DESC").Limit(limit).Offset((page - 1) * limit).Scan(&list).Error; err != nil {
		respond.Internal(c, "Failed to load payments", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": list, "pagination": newPagination(page, limit, total)})
}

// GET /api/admin/analyses?page&limit&status
func (h *Handler) ListAnalyses(c *gin.Context) {
	page, limit := pageParams(c, 20)
	status := c.Query("status")
	if status != "" && !analysis.ValidStatus(status) {
		respond.Error(c, http.StatusBadRequest, "Invalid status")
		return
	}

	db := h.db.WithContext(c.Request.Context())
	count := db.Model(&analysis.Analysis{})
	rows := analysisRows(db)
	if status != "" {
		count = count.Where("status = ?", status)
		rows = rows.Where("a.status = ?", status)
	}

	var total int64
	if err := count.Count(&total).Error; err != nil {
		respond.Internal(c, "Failed to count analyses", err)
		return
	}
	list := []AnalysisRow{}
	if err := rows.Order("a.created_at DESC").Limit(limit).Offset((page - 1) * limit).Scan(&list).Error; err != nil {
		respond.Internal(c, "Failed to load analyses", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"analyses": list, "pagination": newPagination(page, limit, total)})
}
