// Package payments defines the contract every payment provider adapter meets.
package payments

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	GatewayStripe      = "stripe"
	GatewayMercadoPago = "mercadopago"
	GatewayAsaas       = "asaas"
)

var (
	ErrUnknownGateway = errors.New("unsupported payment gateway")
	ErrNotConfigured  = errors.New("payment gateway not configured")
)

// IntentRequest amounts are BRL decimals. Adapters convert to provider units.
type IntentRequest struct {
	Amount            float64
	Currency          string
	Description       string
	Metadata          map[string]string
	CustomerName      string
	CustomerEmail     string
	ExternalReference string
}

type Intent struct {
	ExternalID   string
	Status       string
	ClientSecret string
	QRCode       string
	PixCopyPaste string
	InvoiceURL   string
}

// Gateway is one payment provider. Verify never errors: any status other than
// the provider's paid status, and any transport failure, reads as not paid.
type Gateway interface {
	Name() string
	Method() string
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	Verify(ctx context.Context, externalID string) bool
}

type Registry struct {
	gateways    map[string]Gateway
	defaultName string
}

func NewRegistry(defaultName string, gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways)), defaultName: defaultName}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Get resolves the discriminator. An empty name selects the default gateway;
// an unrecognized one is ErrUnknownGateway.
func (r *Registry) Get(name string) (Gateway, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = r.defaultName
	}
	g, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for n := range r.gateways {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
