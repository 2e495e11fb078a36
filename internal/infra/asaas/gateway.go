// Package asaas issues PIX charges through the Asaas v3 API.
package asaas

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
)

const (
	ProductionURL = "https://www.asaas.com/api/v3"
	SandboxURL    = "https://sandbox.asaas.com/api/v3"
)

// BaseURLFor picks the API host for ASAAS_ENVIRONMENT.
func BaseURLFor(environment string) string {
	if environment == "production" {
		return ProductionURL
	}
	return SandboxURL
}

type Gateway struct {
	apiKey     string
	customerID string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
	log        *slog.Logger
}

type Option func(*Gateway)

func WithBaseURL(u string) Option { return func(g *Gateway) { g.baseURL = u } }

func WithHTTPClient(c *http.Client) Option { return func(g *Gateway) { g.httpClient = c } }

func WithClock(now func() time.Time) Option { return func(g *Gateway) { g.now = now } }

func New(apiKey, customerID string, logger *slog.Logger, opts ...Option) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		apiKey:     apiKey,
		customerID: customerID,
		baseURL:    SandboxURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
		log:        logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Name() string   { return payments.GatewayAsaas }
func (g *Gateway) Method() string { return "pix" }

type chargeRequest struct {
	Customer          string  `json:"customer"`
	BillingType       string  `json:"billingType"`
	Value             float64 `json:"value"`
	DueDate           string  `json:"dueDate"`
	Description       string  `json:"description,omitempty"`
	ExternalReference string  `json:"externalReference,omitempty"`
}

type chargeResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoiceUrl"`
}

type pixQRCodeResponse struct {
	EncodedImage   string `json:"encodedImage"`
	Payload        string `json:"payload"`
	ExpirationDate string `json:"expirationDate"`
}

type errorResponse struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
	Message string `json:"message"`
}

func (g *Gateway) CreateIntent(ctx context.Context, req payments.IntentRequest) (*payments.Intent, error) {
	if g.apiKey == "" {
		return nil, payments.ErrNotConfigured
	}
	if g.customerID == "" {
		return nil, fmt.Errorf("%w: ASAAS_CUSTOMER_ID is empty", payments.ErrNotConfigured)
	}

	body := chargeRequest{
		Customer:          g.customerID,
		BillingType:       "PIX",
		Value:             math.Round(req.Amount*100) / 100,
		DueDate:           g.now().AddDate(0, 0, 3).Format("2006-01-02"),
		Description:       req.Description,
		ExternalReference: req.ExternalReference,
	}

	var charge chargeResponse
	if err := g.do(ctx, http.MethodPost, "/payments", body, &charge); err != nil {
		return nil, err
	}

	intent := &payments.Intent{
		ExternalID:   charge.ID,
		Status:       charge.Status,
		ClientSecret: charge.ID,
		InvoiceURL:   charge.InvoiceURL,
	}

	// The QR code is a second call. If it fails the charge still stands and the
	// client can pay through the invoice URL.
	qr, err := g.pixQRCode(ctx, charge.ID)
	if err != nil {
		g.log.Warn("asaas pix qr code unavailable", "gateway_payment_id", charge.ID, "error", err)
		return intent, nil
	}
	intent.QRCode = qr.image
	intent.PixCopyPaste = qr.payload
	return intent, nil
}

type pixCode struct {
	image   string
	payload string
}

func (g *Gateway) pixQRCode(ctx context.Context, chargeID string) (*pixCode, error) {
	var out pixQRCodeResponse
	if err := g.do(ctx, http.MethodGet, "/payments/"+chargeID+"/pixQrCode", nil, &out); err != nil {
		return nil, err
	}

	code := &pixCode{payload: out.Payload}
	switch {
	case out.EncodedImage != "":
		code.image = DataURI(out.EncodedImage)
	case out.Payload != "":
		img, err := RenderQRCode(out.Payload)
		if err != nil {
			return nil, err
		}
		code.image = img
	default:
		return nil, fmt.Errorf("asaas returned an empty pix qr code")
	}
	return code, nil
}

// IsPaidStatus reports whether a charge status means the money arrived.
func IsPaidStatus(status string) bool {
	switch status {
	case "RECEIVED", "CONFIRMED", "RECEIVED_IN_CASH":
		return true
	}
	return false
}

func (g *Gateway) Verify(ctx context.Context, externalID string) bool {
	if g.apiKey == "" || externalID == "" {
		return false
	}
	var charge chargeResponse
	if err := g.do(ctx, http.MethodGet, "/payments/"+externalID, nil, &charge); err != nil {
		g.log.Warn("asaas verify failed", "gateway_payment_id", externalID, "error", err)
		return false
	}
	return IsPaidStatus(charge.Status)
}

func (g *Gateway) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode asaas request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("access_token", g.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("asaas request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read asaas response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e errorResponse
		_ = json.Unmarshal(raw, &e)
		msg := e.Message
		if len(e.Errors) > 0 && e.Errors[0].Description != "" {
			msg = e.Errors[0].Description
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("asaas: %s (status %d)", msg, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode asaas response: %w", err)
	}
	return nil
}
