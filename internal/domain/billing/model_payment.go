package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"econfere-api/internal/domain/users"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

func ValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

const CurrencyBRL = "BRL"

type Payment struct {
	ID               string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string         `gorm:"type:varchar(36);not null;index" json:"user_id"`
	User             *users.User    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AnalysisID       *string        `gorm:"type:varchar(36)" json:"analysis_id,omitempty"`
	Tipo             string         `gorm:"type:varchar(100)" json:"tipo"`
	Amount           float64        `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string         `gorm:"type:varchar(3);not null;default:'BRL'" json:"currency"`
	PaymentMethod    string         `gorm:"type:varchar(50);not null" json:"payment_method"`
	PaymentGateway   string         `gorm:"type:varchar(50);not null;index:idx_payments_gateway_ref,priority:1" json:"payment_gateway"`
	GatewayPaymentID *string        `gorm:"type:varchar(255);index:idx_payments_gateway_ref,priority:2" json:"gateway_payment_id,omitempty"`
	Status           Status         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReceiptSent      bool           `gorm:"not null;default:false" json:"receipt_sent"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.Currency == "" {
		p.Currency = CurrencyBRL
	}
	return nil
}

// MatchesGatewayRef reports whether the payment was issued by gateway under ref.
func (p *Payment) MatchesGatewayRef(gateway, ref string) bool {
	return p.PaymentGateway == gateway && p.GatewayPaymentID != nil && *p.GatewayPaymentID == ref
}

var (
	ErrPaymentNotFound = errors.New("payment not found")
	ErrNotCompletable  = errors.New("payment cannot be completed from its current status")
)

func FindByID(ctx context.Context, db *gorm.DB, id string) (*Payment, error) {
	var p Payment
	if err := db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return &p, nil
}

func FindByGatewayRef(ctx context.Context, db *gorm.DB, gateway, ref string) (*Payment, error) {
	var p Payment
	err := db.WithContext(ctx).
		Where("payment_gateway = ? AND gateway_payment_id = ?", gateway, ref).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("load payment by gateway ref: %w", err)
	}
	return &p, nil
}

func ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Payment, error) {
	list := []Payment{}
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}

// ResolveGatewayPayment finds the payment a provider event refers to: by the
// provider's id first, then by our own id echoed back as a reference.
func ResolveGatewayPayment(ctx context.Context, db *gorm.DB, gateway, ref, ownID string) (*Payment, error) {
	if ref != "" {
		p, err := FindByGatewayRef(ctx, db, gateway, ref)
		if err == nil || !errors.Is(err, ErrPaymentNotFound) {
			return p, err
		}
	}
	if ownID == "" {
		return nil, ErrPaymentNotFound
	}
	p, err := FindByID(ctx, db, ownID)
	if err != nil {
		return nil, err
	}
	if p.PaymentGateway != gateway {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}
