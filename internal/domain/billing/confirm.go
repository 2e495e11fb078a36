package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"econfere-api/internal/domain/users"

	"gorm.io/gorm"
)

// ReceiptSender delivers the payment receipt to the payer.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, p Payment, u users.User) error
}

// Confirmer owns payment status transitions. The explicit confirm call and the
// provider webhooks both go through Complete.
type Confirmer struct {
	db       *gorm.DB
	receipts ReceiptSender
	log      *slog.Logger
}

func NewConfirmer(db *gorm.DB, receipts ReceiptSender, logger *slog.Logger) *Confirmer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Confirmer{db: db, receipts: receipts, log: logger}
}

// Complete marks the payment completed and sends its receipt at most once.
// Calling it again for a completed payment changes nothing. receiptSent is true
// only for the call that delivered the receipt.
func (c *Confirmer) Complete(ctx context.Context, paymentID string) (p *Payment, receiptSent bool, err error) {
	db := c.db.WithContext(ctx)

	res := db.Model(&Payment{}).
		Where("id = ? AND status IN ?", paymentID, []string{string(StatusPending), string(StatusFailed)}).
		Update("status", StatusCompleted)
	if res.Error != nil {
		return nil, false, fmt.Errorf("complete payment: %w", res.Error)
	}

	p, err = FindByID(ctx, c.db, paymentID)
	if err != nil {
		return nil, false, err
	}
	if p.Status != StatusCompleted {
		return p, false, ErrNotCompletable
	}

	return p, c.sendReceiptOnce(ctx, p), nil
}

func (c *Confirmer) sendReceiptOnce(ctx context.Context, p *Payment) bool {
	db := c.db.WithContext(ctx)

	claim := db.Model(&Payment{}).
		Where("id = ? AND receipt_sent = ?", p.ID, false).
		Update("receipt_sent", true)
	if claim.Error != nil {
		c.log.Warn("receipt claim failed", "payment_id", p.ID, "error", claim.Error)
		return false
	}
	if claim.RowsAffected == 0 {
		return false
	}

	var u users.User
	if err := db.First(&u, "id = ?", p.UserID).Error; err != nil {
		c.log.Warn("receipt recipient lookup failed", "payment_id", p.ID, "error", err)
		c.releaseReceipt(ctx, p.ID)
		return false
	}

	if c.receipts == nil {
		c.releaseReceipt(ctx, p.ID)
		return false
	}
	if err := c.receipts.SendReceipt(ctx, *p, u); err != nil {
		c.log.Warn("receipt delivery failed", "payment_id", p.ID, "user_id", u.ID, "error", err)
		c.releaseReceipt(ctx, p.ID)
		return false
	}

	p.ReceiptSent = true
	return true
}

func (c *Confirmer) releaseReceipt(ctx context.Context, paymentID string) {
	err := c.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", paymentID).
		Update("receipt_sent", false).Error
	if err != nil {
		c.log.Error("receipt claim release failed", "payment_id", paymentID, "error", err)
	}
}

// MarkFailed moves a pending payment to failed. Other statuses are left alone.
func (c *Confirmer) MarkFailed(ctx context.Context, paymentID string) (bool, error) {
	return c.transition(ctx, paymentID, StatusPending, StatusFailed)
}

// MarkRefunded moves a completed payment to refunded.
func (c *Confirmer) MarkRefunded(ctx context.Context, paymentID string) (bool, error) {
	return c.transition(ctx, paymentID, StatusCompleted, StatusRefunded)
}

func (c *Confirmer) transition(ctx context.Context, paymentID string, from, to Status) (bool, error) {
	res := c.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", paymentID, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("set payment %s: %w", to, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := FindByID(ctx, c.db, paymentID); errors.Is(err, ErrPaymentNotFound) {
			return false, err
		}
	}
	return res.RowsAffected > 0, nil
}
