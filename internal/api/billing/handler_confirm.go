package billing

import (
	"errors"
	"net/http"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/app/http/middleware"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/metrics"

	"github.com/gin-gonic/gin"
)

// POST /api/payment/confirm
func (h *Handler) Confirm(c *gin.Context) {
	var body struct {
		PaymentID        string `json:"paymentId" binding:"required"`
		GatewayPaymentID string `json:"gatewayPaymentId" binding:"required"`
		PaymentGateway   string `json:"paymentGateway" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, "paymentId, gatewayPaymentId and paymentGateway are required")
		return
	}

	ctx := c.Request.Context()
	payment, err := billing.FindByID(ctx, h.db, body.PaymentID)
	if err != nil {
		if errors.Is(err, billing.ErrPaymentNotFound) {
			respond.Error(c, http.StatusNotFound, "Payment not found")
			return
		}
		respond.Internal(c, "Failed to load payment", err, "payment_id", body.PaymentID)
		return
	}
	if payment.UserID != middleware.UserID(c) {
		respond.Error(c, http.StatusNotFound, "Payment not found")
		return
	}

	gw, err := h.gateways.Get(body.PaymentGateway)
	if err != nil || !payment.MatchesGatewayRef(gw.Name(), body.GatewayPaymentID) {
		respond.Error(c, http.StatusBadRequest, "Payment does not match the gateway reference")
		return
	}

	if payment.Status == billing.StatusCompleted {
		c.JSON(http.StatusOK, gin.H{"message": "Payment already confirmed", "payment": payment})
		return
	}

	if !gw.Verify(ctx, body.GatewayPaymentID) {
		respond.Error(c, http.StatusBadRequest, "Payment not confirmed")
		return
	}

	payment, sent, err := h.confirmer.Complete(ctx, payment.ID)
	if err != nil {
		if errors.Is(err, billing.ErrNotCompletable) {
			respond.Error(c, http.StatusConflict, "Payment cannot be completed")
			return
		}
		respond.Internal(c, "Failed to confirm payment", err, "payment_id", body.PaymentID)
		return
	}
	h.metrics.RecordPaymentConfirmed(gw.Name(), metrics.SourceConfirm)
	if sent {
		h.metrics.RecordReceiptSent()
	}

	c.JSON(http.StatusOK, gin.H{"message": "Payment confirmed", "payment": payment})
}
