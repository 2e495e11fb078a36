package stripewebhooks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"econfere-api/internal/api/respond"
	"econfere-api/internal/domain/billing"
	"econfere-api/internal/infra/dedupe"
	"econfere-api/internal/infra/payments"
	"econfere-api/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/webhook"
	"gorm.io/gorm"
)

const maxBodyBytes = 65536

type Handler struct {
	db        *gorm.DB
	confirmer *billing.Confirmer
	seen      dedupe.Store
	secret    string
	metrics   metrics.Recorder
	log       *slog.Logger
}

func NewHandler(db *gorm.DB, confirmer *billing.Confirmer, seen dedupe.Store, endpointSecret string, rec metrics.Recorder, logger *slog.Logger) *Handler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{db: db, confirmer: confirmer, seen: seen, secret: endpointSecret, metrics: rec, log: logger}
}

// POST /api/payment/webhook/stripe
func (h *Handler) Handle(c *gin.Context) {
	if h.secret == "" {
		respond.Error(c, http.StatusServiceUnavailable, "STRIPE_WEBHOOK_SECRET not configured")
		return
	}

	payload, err := readStripeBody(c, maxBodyBytes)
	if err != nil {
		respond.Error(c, http.StatusRequestEntityTooLarge, "Error reading request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		payload,
		c.GetHeader("Stripe-Signature"),
		h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		h.log.Warn("stripe signature verification failed", "error", err)
		respond.Error(c, http.StatusBadRequest, "Signature verification failed")
		return
	}

	ctx := c.Request.Context()
	key := "stripe:" + event.ID
	first, err := h.seen.MarkSeen(ctx, key)
	if err != nil {
		h.log.Warn("webhook dedupe unavailable", "event_id", event.ID, "error", err)
		first = true
	}
	if !first {
		c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}

	if err := h.dispatch(c, event); err != nil {
		if ferr := h.seen.Forget(ctx, key); ferr != nil {
			h.log.Warn("webhook dedupe release failed", "event_id", event.ID, "error", ferr)
		}
		respond.Internal(c, "Failed to process event", err, "event_id", event.ID, "event_type", string(event.Type))
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) dispatch(c *gin.Context, event stripe.Event) error {
	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		// Acknowledge unknown events to avoid retries
		return nil
	}

	var pi stripe.PaymentIntent
	if event.Data == nil {
		return nil
	}
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.log.Warn("stripe event not parseable", "event_id", event.ID, "error", err)
		return nil
	}

	ctx := c.Request.Context()
	payment, err := billing.ResolveGatewayPayment(ctx, h.db, payments.GatewayStripe, pi.ID, pi.Metadata["payment_id"])
	if errors.Is(err, billing.ErrPaymentNotFound) {
		h.log.Warn("stripe event for unknown payment", "event_id", event.ID, "gateway_payment_id", pi.ID)
		return nil
	}
	if err != nil {
		return err
	}

	if event.Type == "payment_intent.payment_failed" {
		_, err := h.confirmer.MarkFailed(ctx, payment.ID)
		return err
	}

	_, sent, err := h.confirmer.Complete(ctx, payment.ID)
	if errors.Is(err, billing.ErrNotCompletable) {
		h.log.Warn("stripe success for a payment that cannot complete", "payment_id", payment.ID)
		return nil
	}
	if err != nil {
		return err
	}
	h.metrics.RecordPaymentConfirmed(payments.GatewayStripe, metrics.SourceWebhook)
	if sent {
		h.metrics.RecordReceiptSent()
	}
	return nil
}

func readStripeBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
