// Package order coordinates the fulfillment of an order across the
// inventory, payment and ledger domains. There is no global
// transaction: each step either succeeds or is undone by the single
// compensating action defined for it.
package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// PaymentKindDebit is the transfer kind used for order payments.
const PaymentKindDebit = "DEBIT"

// InventoryClient is the remote reservation manager as seen by the
// orchestrator.
type InventoryClient interface {
	Reserve(ctx context.Context, req models.ReservationRequest) error
	Unblock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error)
	Approve(ctx context.Context, orderID uuid.UUID) error
}

// PaymentClient is the remote payment engine as seen by the
// orchestrator. Transfer covers the affordability check and the funds
// movement as one remote step.
type PaymentClient interface {
	Transfer(ctx context.Context, req models.PaymentRequest) error
}

// Store is the order persistence
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error)
}

// Publisher receives order status transitions. Implementations must
// not block the saga; publishing is best-effort.
type Publisher interface {
	OrderStatusChanged(ctx context.Context, order *models.Order)
}

// NopPublisher discards status transitions
type NopPublisher struct{}

func (NopPublisher) OrderStatusChanged(context.Context, *models.Order) {}

// Orchestrator drives one order end-to-end: reserve stock, transfer
// funds, approve the reservation. One logical thread of control per
// order; concurrent orders only contend inside the stores.
type Orchestrator struct {
	store     Store
	inventory InventoryClient
	payments  PaymentClient
	publisher Publisher
	log       *zap.Logger
}

// NewOrchestrator creates a new order orchestrator
func NewOrchestrator(store Store, inventory InventoryClient, payments PaymentClient, publisher Publisher, log *zap.Logger) *Orchestrator {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Orchestrator{
		store:     store,
		inventory: inventory,
		payments:  payments,
		publisher: publisher,
		log:       log,
	}
}

// CreateOrder persists a new order and runs the fulfillment sequence.
// Payment is only attempted after a successful reservation, so a
// payment failure leaves exactly one reservation to compensate.
// Compensation order is always unblock-then-cancel: an observer seeing
// a Cancelled order can assume no stock remains held for it.
func (o *Orchestrator) CreateOrder(ctx context.Context, buyerID, sellerID, productID int64, quantity int, unitPrice float64) (uuid.UUID, error) {
	order, err := o.store.CreateOrder(ctx, &models.Order{
		BuyerID:   buyerID,
		SellerID:  sellerID,
		ProductID: productID,
		Quantity:  quantity,
		UnitPrice: unitPrice,
		Status:    models.OrderCreated,
	})
	if err != nil {
		return uuid.Nil, errs.BadOrder("order persistence failed: %v", err)
	}
	if order.ID == uuid.Nil {
		// No remote call has happened yet, nothing to compensate.
		return uuid.Nil, errs.BadOrder("order persistence yielded no identifier")
	}

	if err := o.inventory.Reserve(ctx, models.ReservationRequest{
		OrderID:   order.ID,
		ProductID: productID,
		Quantity:  quantity,
	}); err != nil {
		// Nothing was reserved, so cancelling the order is the only
		// write needed.
		return uuid.Nil, o.fail(ctx, order, errs.StageReservation, err)
	}

	if err := o.payments.Transfer(ctx, models.PaymentRequest{
		OrderID:    order.ID,
		FromUserID: buyerID,
		ToUserID:   sellerID,
		Amount:     order.Amount(),
		Kind:       PaymentKindDebit,
	}); err != nil {
		return uuid.Nil, o.fail(ctx, order, errs.StagePayment, o.unblock(ctx, order, err))
	}

	if err := o.inventory.Approve(ctx, order.ID); err != nil {
		// The payment already went through and there is no refund
		// operation on the payment interface. The stranded transfer
		// needs manual follow-up.
		o.log.Error("approval failed after successful payment, funds not reversed",
			zap.String("order_id", order.ID.String()),
			zap.Int64("buyer_id", buyerID),
			zap.Int64("seller_id", sellerID),
			zap.Float64("amount", order.Amount()),
			zap.Error(err))
		return uuid.Nil, o.fail(ctx, order, errs.StageApproval, o.unblock(ctx, order, err))
	}

	if err := o.setStatus(ctx, order, models.OrderApproved); err != nil {
		return uuid.Nil, err
	}

	o.log.Info("order approved",
		zap.String("order_id", order.ID.String()),
		zap.Int64("buyer_id", buyerID),
		zap.Float64("amount", order.Amount()))
	return order.ID, nil
}

// GetOrder retrieves an order by id
func (o *Orchestrator) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return o.store.GetOrder(ctx, orderID)
}

// GetBuyerOrders retrieves all orders placed by a buyer
func (o *Orchestrator) GetBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	return o.store.GetBuyerOrders(ctx, buyerID)
}

// unblock runs the reservation compensation and joins any compensation
// failure into cause. Compensation failures are surfaced, never
// swallowed.
func (o *Orchestrator) unblock(ctx context.Context, order *models.Order, cause error) error {
	if _, err := o.inventory.Unblock(ctx, order.ID); err != nil {
		o.log.Error("unblock compensation failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return errors.Join(cause, fmt.Errorf("unblock compensation failed: %w", err))
	}
	return cause
}

// fail marks the order Cancelled and wraps cause into the saga-level
// failure returned to the caller.
func (o *Orchestrator) fail(ctx context.Context, order *models.Order, stage string, cause error) error {
	if err := o.setStatus(ctx, order, models.OrderCancelled); err != nil {
		cause = errors.Join(cause, err)
	}

	o.log.Warn("order cancelled",
		zap.String("order_id", order.ID.String()),
		zap.String("stage", stage),
		zap.Error(cause))
	return &errs.OrderFailed{Stage: stage, Cause: cause}
}

func (o *Orchestrator) setStatus(ctx context.Context, order *models.Order, status string) error {
	if err := o.store.UpdateOrderStatus(ctx, order.ID, status); err != nil {
		return fmt.Errorf("failed to persist order status %s: %w", status, err)
	}
	order.Status = status
	o.publisher.OrderStatusChanged(ctx, order)
	return nil
}
