// Package payment validates affordability and executes funds transfers
// through the account ledger.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// LedgerClient is the remote account ledger as seen by the payment
// engine. Production implementations call the ledger service over the
// wire; tests use in-memory stand-ins.
type LedgerClient interface {
	GetAccount(ctx context.Context, userID int64) (*models.Account, error)
	Transfer(ctx context.Context, fromUserID, toUserID int64, amount float64) error
}

// Store is the persistence needed by the payment engine
type Store interface {
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string) error
}

// Engine validates and executes funds transfers for orders
type Engine struct {
	store  Store
	ledger LedgerClient
	log    *zap.Logger
}

// NewEngine creates a new payment engine
func NewEngine(store Store, ledger LedgerClient, log *zap.Logger) *Engine {
	return &Engine{store: store, ledger: ledger, log: log}
}

// CheckTransfer verifies the payer can afford the transfer and records
// a pending payment for the order. It must run before Transfer for the
// same order.
func (e *Engine) CheckTransfer(ctx context.Context, req models.PaymentRequest) error {
	account, err := e.ledger.GetAccount(ctx, req.FromUserID)
	if err != nil {
		return err
	}

	if account.Balance < req.Amount {
		return errs.NotEnoughAmount("user %d: balance %.2f, required %.2f", req.FromUserID, account.Balance, req.Amount)
	}

	payment := &models.Payment{
		OrderID:    req.OrderID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Amount:     req.Amount,
		Kind:       req.Kind,
		Status:     models.PaymentPending,
		CreatedAt:  time.Now(),
	}
	if err := e.store.CreatePayment(ctx, payment); err != nil {
		return fmt.Errorf("failed to record pending payment: %w", err)
	}

	e.log.Info("payment check passed",
		zap.String("order_id", req.OrderID.String()),
		zap.Int64("from_user_id", req.FromUserID),
		zap.Float64("amount", req.Amount))
	return nil
}

// Transfer executes the funds transfer for an order whose pending
// payment was recorded by CheckTransfer. On success the payment is
// marked Approved; on failure it is marked Failed and the error is
// returned to the caller. Failure is never swallowed.
func (e *Engine) Transfer(ctx context.Context, req models.PaymentRequest) error {
	payment, err := e.store.GetPayment(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentPending {
		return fmt.Errorf("payment for order %s is %s, not %s", req.OrderID, payment.Status, models.PaymentPending)
	}

	if err := e.ledger.Transfer(ctx, payment.FromUserID, payment.ToUserID, payment.Amount); err != nil {
		// The pending row is closed out before the error surfaces so it
		// cannot linger as in-flight forever.
		if markErr := e.store.UpdatePaymentStatus(ctx, req.OrderID, models.PaymentFailed); markErr != nil {
			e.log.Error("failed to mark payment failed",
				zap.String("order_id", req.OrderID.String()),
				zap.Error(markErr))
		}
		return err
	}

	if err := e.store.UpdatePaymentStatus(ctx, req.OrderID, models.PaymentApproved); err != nil {
		return fmt.Errorf("failed to approve payment: %w", err)
	}

	e.log.Info("payment approved",
		zap.String("order_id", req.OrderID.String()),
		zap.Float64("amount", payment.Amount))
	return nil
}
