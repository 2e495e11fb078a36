package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"econfere-api/internal/domain/billing"
	"econfere-api/internal/domain/users"
	"econfere-api/internal/testutil"

	"gorm.io/gorm"
)

type mockReceipts struct {
	mu     sync.Mutex
	sendFn func(p billing.Payment, u users.User) error
	sent   []string
}

func (m *mockReceipts) SendReceipt(ctx context.Context, p billing.Payment, u users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendFn != nil {
		if err := m.sendFn(p, u); err != nil {
			return err
		}
	}
	m.sent = append(m.sent, p.ID)
	return nil
}

func seedPayment(t *testing.T, db *gorm.DB, userID string, status billing.Status) billing.Payment {
	t.Helper()
	ref := "pi_" + userID[:8]
	p := billing.Payment{
		UserID:           userID,
		Tipo:             "matricula-urbana",
		Amount:           14.99,
		PaymentMethod:    "card",
		PaymentGateway:   "stripe",
		GatewayPaymentID: &ref,
		Status:           status,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func TestComplete_SendsReceiptOnce(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusPending)
	receipts := &mockReceipts{}
	c := billing.NewConfirmer(db, receipts, nil)
	ctx := context.Background()

	got, sent, err := c.Complete(ctx, p.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !sent || got.Status != billing.StatusCompleted || !got.ReceiptSent {
		t.Errorf("first Complete: sent=%v payment=%+v", sent, got)
	}

	// Webhook replay of the same confirmation.
	got, sent, err = c.Complete(ctx, p.ID)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if sent {
		t.Error("second Complete must not send another receipt")
	}
	if got.Status != billing.StatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if len(receipts.sent) != 1 {
		t.Errorf("receipts sent = %d, want 1", len(receipts.sent))
	}
}

func TestComplete_ConcurrentPathsSendOneReceipt(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusPending)
	receipts := &mockReceipts{}
	c := billing.NewConfirmer(db, receipts, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.Complete(context.Background(), p.ID); err != nil {
				t.Errorf("Complete: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(receipts.sent) != 1 {
		t.Errorf("receipts sent = %d, want 1", len(receipts.sent))
	}
}

func TestComplete_FailedDeliveryIsSwallowedAndRetried(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusPending)
	receipts := &mockReceipts{sendFn: func(billing.Payment, users.User) error {
		return errors.New("smtp down")
	}}
	c := billing.NewConfirmer(db, receipts, nil)
	ctx := context.Background()

	got, sent, err := c.Complete(ctx, p.ID)
	if err != nil {
		t.Fatalf("delivery failure must not fail Complete: %v", err)
	}
	if sent || got.Status != billing.StatusCompleted {
		t.Errorf("sent=%v status=%s", sent, got.Status)
	}

	stored, _ := billing.FindByID(ctx, db, p.ID)
	if stored.ReceiptSent {
		t.Fatal("receipt flag must be released after a failed delivery")
	}

	receipts.sendFn = nil
	if _, sent, _ := c.Complete(ctx, p.ID); !sent {
		t.Error("a later confirmation should deliver the receipt")
	}
}

func TestComplete_RefundedIsNotCompletable(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusRefunded)
	c := billing.NewConfirmer(db, &mockReceipts{}, nil)

	_, _, err := c.Complete(context.Background(), p.ID)
	if !errors.Is(err, billing.ErrNotCompletable) {
		t.Errorf("err = %v, want ErrNotCompletable", err)
	}
}

func TestComplete_UnknownPayment(t *testing.T) {
	db := testutil.NewDB(t)
	c := billing.NewConfirmer(db, &mockReceipts{}, nil)

	_, _, err := c.Complete(context.Background(), "missing")
	if !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("err = %v, want ErrPaymentNotFound", err)
	}
}

func TestMarkFailedAndRefunded(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	pending := seedPayment(t, db, u.ID, billing.StatusPending)
	c := billing.NewConfirmer(db, &mockReceipts{}, nil)
	ctx := context.Background()

	changed, err := c.MarkFailed(ctx, pending.ID)
	if err != nil || !changed {
		t.Fatalf("MarkFailed: changed=%v err=%v", changed, err)
	}
	if changed, _ := c.MarkRefunded(ctx, pending.ID); changed {
		t.Error("a failed payment cannot be refunded")
	}

	if _, _, err := c.Complete(ctx, pending.ID); err != nil {
		t.Fatalf("failed payments can still complete: %v", err)
	}
	if changed, _ := c.MarkRefunded(ctx, pending.ID); !changed {
		t.Error("completed payment should refund")
	}
	if _, err := c.MarkFailed(ctx, "missing"); !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("MarkFailed(missing) err = %v", err)
	}
}

func TestFindByGatewayRef(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusPending)

	got, err := billing.FindByGatewayRef(context.Background(), db, "stripe", *p.GatewayPaymentID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("FindByGatewayRef = %v, %v", got, err)
	}
	if _, err := billing.FindByGatewayRef(context.Background(), db, "asaas", *p.GatewayPaymentID); !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("wrong gateway err = %v", err)
	}
	if !got.MatchesGatewayRef("stripe", *p.GatewayPaymentID) || got.MatchesGatewayRef("stripe", "other") {
		t.Error("MatchesGatewayRef mismatch")
	}
}

func TestResolveGatewayPayment(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Ana", "ana@example.com", users.RoleUser)
	p := seedPayment(t, db, u.ID, billing.StatusPending)
	ctx := context.Background()

	if got, err := billing.ResolveGatewayPayment(ctx, db, "stripe", *p.GatewayPaymentID, ""); err != nil || got.ID != p.ID {
		t.Errorf("by ref = %v, %v", got, err)
	}
	if got, err := billing.ResolveGatewayPayment(ctx, db, "stripe", "pi_unknown", p.ID); err != nil || got.ID != p.ID {
		t.Errorf("by own id = %v, %v", got, err)
	}
	if _, err := billing.ResolveGatewayPayment(ctx, db, "asaas", "", p.ID); !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("other gateway err = %v", err)
	}
	if _, err := billing.ResolveGatewayPayment(ctx, db, "stripe", "pi_unknown", ""); !errors.Is(err, billing.ErrPaymentNotFound) {
		t.Errorf("unknown err = %v", err)
	}
}
