package asaaswebhooks

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/infra/dedupe"
	"econfere-api/internal/infra/payments"
	"econfere-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const tokenHeader = "asaas-access-token"

type event struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment struct {
		ID                string `json:"id"`
		ExternalReference string `json:"externalReference"`
		Status            string `json:"status"`
	} `json:"payment"`
}

// dedupeKey prefers the event id; older payloads only carry the payment id.
func (e event) dedupeKey() string {
	if e.ID != "" {
		return "asaas:" + e.ID
	}
	return "asaas:" + e.Event + ":" + e.Payment.ID
}

type Handler struct {
	db        *gorm.DB
	confirmer *billing.Confirmer
	seen      dedupe.Store
	token     string
	metrics   metrics.Recorder
	log       *slog.Logger
}

// NewHandler builds the Asaas webhook. An empty token disables the header check.
func NewHandler(db *gorm.DB, confirmer *billing.Confirmer, seen dedupe.Store, token string, rec metrics.Recorder, logger *slog.Logger) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, confirmer: confirmer, seen: seen, token: token, metrics: rec, log: logger}
}

// POST /api/payment/webhook/asaas
func (h *Handler) Handle(c *gin.Context) {
	if h.token != "" && subtle.ConstantTimeCompare([]byte(c.GetHeader(tokenHeader)), []byte(h.token)) != 1 {
		respond.Error(c, http.StatusUnauthorized, "Invalid webhook token")
		return
	}

	var ev event
	if err := c.ShouldBindJSON(&ev); err != nil || ev.Event == "" {
		respond.Error(c, http.StatusBadRequest, "Invalid payload")
		return
	}

	ctx := c.Request.Context()
	key := ev.dedupeKey()
	first, err := h.seen.MarkSeen(ctx, key)
	if err != nil {
		h.log.Warn("webhook dedupe unavailable", "event", ev.Event, "key", key, "error", err)
		first = true
	}
	if !first {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	if err := h.dispatch(ctx, ev); err != nil {
		if ferr := h.seen.Forget(ctx, key); ferr != nil {
			h.log.Warn("webhook dedupe release failed", "key", key, "error", ferr)
		}
		respond.Internal(c, "Failed to process event", err, "event", ev.Event, "gateway_payment_id", ev.Payment.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) dispatch(ctx context.Context, ev event) error {
	switch ev.Event {
	case "PAYMENT_RECEIVED", "PAYMENT_CONFIRMED", "PAYMENT_REFUNDED":
	default:
		return nil
	}

	payment, err := billing.ResolveGatewayPayment(ctx, h.db, payments.GatewayAsaas, ev.Payment.ID, ev.Payment.ExternalReference)
	if errors.Is(err, billing.ErrPaymentNotFound) {
		h.log.Warn("asaas event for unknown payment", "event", ev.Event, "gateway_payment_id", ev.Payment.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if ev.Event == "PAYMENT_REFUNDED" {
		changed, err := h.confirmer.MarkRefunded(ctx, payment.ID)
		if err == nil && !changed {
			h.log.Info("asaas refund ignored", "payment_id", payment.ID, "status", string(payment.Status))
		}
		return err
	}

	_, sent, err := h.confirmer.Complete(ctx, payment.ID)
	if errors.Is(err, billing.ErrNotCompletable) {
		h.log.Warn("asaas confirmation for a payment that cannot complete", "payment_id", payment.ID)
		return nil
	}
	if err != nil {
		return err
	}
	h.metrics.RecordPaymentConfirmed(payments.GatewayAsaas, metrics.SourceWebhook)
	if sent {
		h.metrics.RecordReceiptSent()
	}
	return nil
}
