package stripe

import (
	"context"
	"log/slog"
	"strings"

	"econfere-api/internal/infra/payments"

	stripego "github.com/stripe/stripe-go/v75"
	"github.com/stripe/stripe-go/v75/paymentintent"
)

// Gateway creates and verifies card payments through Stripe PaymentIntents.
type Gateway struct {
	client *paymentintent.Client
	log    *slog.Logger
}

type Option func(*stripego.BackendConfig)

// WithBackendURL points the client at another API host.
func WithBackendURL(url string) Option {
	return func(c *stripego.BackendConfig) { c.URL = stripego.String(url) }
}

func New(secretKey string, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := &stripego.BackendConfig{
		MaxNetworkRetries: stripego.Int64(2),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Gateway{
		client: &paymentintent.Client{
			B:   stripego.GetBackendWithConfig(stripego.APIBackend, cfg),
			Key: secretKey,
		},
		log: logger,
	}
}

func (g *Gateway) Name() string   { return payments.GatewayStripe }
func (g *Gateway) Method() string { return "card" }

func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if g.client.Key == "" {
		return nil, payments.ErrNotConfigured
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "brl"
	}

	params := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(ToMinorUnits(req.Amount)),
		Currency: stripego.String(currency),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripego.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripego.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.client.New(params)
	if err != nil {
		return nil, err
	}

	return &payments.Intent{
		ExternalID:   pi.ID,
		Status:       string(pi.Status),
		ClientSecret: pi.ClientSecret,
	}, nil
}

func (g *Gateway) Verify(ctx context.Context, externalID string) bool {
	if g.client.Key == "" || externalID == "" {
		return false
	}

	params := &stripego.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.Get(externalID, params)
	if err != nil {
		g.log.Warn("stripe verify failed", "gateway_payment_id", externalID, "error", err)
		return false
	}
	return IsPaid(string(pi.Status))
}
