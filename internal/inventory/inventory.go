// Package inventory holds or releases product stock against in-flight
// orders. Reserve is not idempotent: a second reserve for the same
// order double-decrements, so callers must not retry blindly.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/models"
)

// Store is the persistence needed by the reservation manager. The
// implementation must serialize conflicting updates to the same
// product row.
type Store interface {
	ReserveStock(ctx context.Context, orderID uuid.UUID, productID int64, quantity int) error
	ReleaseStock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error)
	DeleteReservation(ctx context.Context, orderID uuid.UUID) error
}

// ReservationManager manages the stock held for in-flight orders
type ReservationManager struct {
	store Store
	log   *zap.Logger
}

// NewReservationManager creates a new reservation manager
func NewReservationManager(store Store, log *zap.Logger) *ReservationManager {
	return &ReservationManager{store: store, log: log}
}

// Reserve holds quantity units of a product for an order. It fails
// with a not-found error if the product is absent and a not-available
// error if stock is insufficient; stock is untouched on failure.
func (m *ReservationManager) Reserve(ctx context.Context, req models.ReservationRequest) error {
	if req.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", req.Quantity)
	}

	if err := m.store.ReserveStock(ctx, req.OrderID, req.ProductID, req.Quantity); err != nil {
		return err
	}

	m.log.Info("stock reserved",
		zap.String("order_id", req.OrderID.String()),
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity))
	return nil
}

// Unblock releases the stock held for an order and returns what was
// released. A missing reservation is a success no-op: the stock was
// never held, or was already released, so there is nothing to restore.
func (m *ReservationManager) Unblock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error) {
	info, err := m.store.ReleaseStock(ctx, orderID)
	if err != nil {
		return info, err
	}

	if !info.Found {
		m.log.Warn("unblock without reservation", zap.String("order_id", orderID.String()))
		return info, nil
	}

	m.log.Info("stock released",
		zap.String("order_id", orderID.String()),
		zap.Int64("product_id", info.ProductID),
		zap.Int("quantity", info.Quantity))
	return info, nil
}

// Approve finalizes a reservation: the record is deleted and the stock
// stays decremented.
func (m *ReservationManager) Approve(ctx context.Context, orderID uuid.UUID) error {
	if err := m.store.DeleteReservation(ctx, orderID); err != nil {
		return err
	}

	m.log.Info("reservation approved", zap.String("order_id", orderID.String()))
	return nil
}
