// Package mercadopago talks to the MercadoPago payments REST API.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"econfere-api/internal/infra/payments"

	"github.com/google/uuid"
)

const DefaultBaseURL = "https://api.mercadopago.com"

type Gateway struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	log         *slog.Logger
}

type Option func(*Gateway)

func WithBaseURL(u string) Option { return func(g *Gateway) { g.baseURL = u } }

func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.httpClient = c } }

func New(accessToken string, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		log:         logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string   { return payments.GatewayMercadoPago }
func (g *Gateway) Method() string { return "card" }

type payerRequest struct {
	Email string `json:"email,omitempty"`
}

type paymentRequest struct {
	TransactionAmount float64           `json:"transaction_amount"`
	Description       string            `json:"description,omitempty"`
	PaymentMethodID   string            `json:"payment_method_id"`
	Payer             payerRequest      `json:"payer"`
	ExternalReference string            `json:"external_reference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if g.accessToken == "" {
		return nil, payments.ErrNotConfigured
	}

	body := paymentRequest{
		TransactionAmount: math.Round(req.Amount*100) / 100,
		Description:       req.Description,
		PaymentMethodID:   "credit_card",
		Payer:             payerRequest{Email: req.CustomerEmail},
		ExternalReference: req.ExternalReference,
		Metadata:          req.Metadata,
	}

	var out paymentResponse
	if err := g.do(ctx, http.MethodPost, "/v1/payments", body, &out); err != nil {
		return nil, err
	}

	return &payments.Intent{
		ExternalID:   out.ID.String(),
		Status:       out.Status,
		ClientSecret: out.ID.String(),
	}, nil
}

func (g *Gateway) Verify(ctx context.Context, externalID string) bool {
	if g.accessToken == "" || externalID == "" {
		return false
	}
	var out paymentResponse
	if err := g.do(ctx, http.MethodGet, "/v1/payments/"+externalID, nil, &out); err != nil {
		g.log.Warn("mercadopago verify failed", "gateway_payment_id", externalID, "error", err)
		return false
	}
	return out.Status == "approved"
}

func (g *Gateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode mercadopago request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", uuid.NewString())
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mercadopago request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read mercadopago response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e apiError
		_ = json.Unmarshal(raw, &e)
		msg := e.Message
		if msg == "" {
			msg = e.Error
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("mercadopago: %s (status %d)", msg, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode mercadopago response: %w", err)
	}
	return nil
}
