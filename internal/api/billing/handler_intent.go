package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/users"
	"econfere-api/internal/infra/payments"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

// POST /api/payment/intent
func (h *Handler) CreateIntent(c *gin.Context) {
	var body struct {
		Tipo           string `json:"tipo" binding:"required"`
		PaymentGateway string `json:"paymentGateway"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "Document type (tipo) is required")
		return
	}

	gw, err := h.gateways.Get(body.PaymentGateway)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "Unsupported payment gateway")
		return
	}

	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	var user users.User
	if err := h.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		respond.Error(c, http.StatusUnauthorized, "User not found")
		return
	}

	tipo := strings.TrimSpace(body.Tipo)
	amount := billing.ServicePrice(tipo)
	payment := billing.Payment{
		UserID:         user.ID,
		Tipo:           tipo,
		Amount:         amount,
		Currency:       billing.CurrencyBRL,
		PaymentMethod:  gw.Method(),
		PaymentGateway: gw.Name(),
		Status:         billing.StatusPending,
	}
	if err := h.db.WithContext(ctx).Create(&payment).Error; err != nil {
		respond.Internal(c, "Failed to create payment", err, "user_id", user.ID)
		return
	}

	intent, err := gw.CreateIntent(ctx, payments.IntentRequest{
		Amount:      amount,
		Currency:    billing.CurrencyBRL,
		Description: "Análise de documento - " + tipo,
		Metadata: map[string]string{
			"payment_id": payment.ID,
			"user_id":    user.ID,
			"tipo":       tipo,
		},
		CustomerName:      user.Name,
		CustomerEmail:     user.Email,
		ExternalReference: payment.ID,
	})
	if err != nil {
		h.metrics.RecordPaymentIntent(gw.Name(), false)
		status := http.StatusBadGateway
		if errors.Is(err, payments.ErrNotConfigured) {
			status = http.StatusServiceUnavailable
		}
		respond.Failure(c, status, "Failed to create payment intent", err,
			"payment_id", payment.ID, "gateway", gw.Name())
		return
	}
	h.metrics.RecordPaymentIntent(gw.Name(), true)

	meta, _ := json.Marshal(map[string]string{
		"provider_status": intent.Status,
		"invoice_url":     intent.InvoiceURL,
	})
	err = h.db.WithContext(ctx).Model(&payment).Updates(map[string]any{
		"gateway_payment_id": intent.ExternalID,
		"metadata":           datatypes.JSON(meta),
	}).Error
	if err != nil {
		respond.Internal(c, "Failed to store payment intent", err, "payment_id", payment.ID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"paymentId":        payment.ID,
		"clientSecret":     intent.ClientSecret,
		"gatewayPaymentId": intent.ExternalID,
		"amount":           amount,
		"paymentGateway":   gw.Name(),
		"qrCode":           intent.QRCode,
		"pixCopyPaste":     intent.PixCopyPaste,
		"invoiceUrl":       intent.InvoiceURL,
	})
}
