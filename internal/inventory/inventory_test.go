package inventory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/db/memdb"
	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

func newTestManager(t *testing.T) (*ReservationManager, *memdb.Store) {
	t.Helper()
	store := memdb.NewStore()
	return NewReservationManager(store, zap.NewNop()), store
}

func seedProduct(t *testing.T, store *memdb.Store, stock int) int64 {
	t.Helper()
	product, err := store.CreateProduct(context.Background(), &models.Product{
		Name:  "widget",
		Stock: stock,
		Price: 10,
	})
	if err != nil {
		t.Fatalf("failed to seed product: %v", err)
	}
	return product.ID
}

func TestReservationManager_Reserve(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 10)

	orderID := uuid.New()
	err := manager.Reserve(ctx, models.ReservationRequest{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  5,
	})
	if err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 5 {
		t.Errorf("expected stock 5 after reserve, got %d", product.Stock)
	}

	res, err := store.GetReservation(ctx, orderID)
	if err != nil {
		t.Fatalf("expected reservation to exist: %v", err)
	}
	if res.ProductID != productID || res.Quantity != 5 {
		t.Errorf("unexpected reservation %+v", res)
	}
}

func TestReservationManager_ReserveInsufficientStock(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 4)

	err := manager.Reserve(ctx, models.ReservationRequest{
		OrderID:   uuid.New(),
		ProductID: productID,
		Quantity:  5,
	})
	if !errs.IsKind(err, errs.KindNotAvailable) {
		t.Fatalf("expected not_available error, got %v", err)
	}

	// Stock must be untouched on failure
	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 4 {
		t.Errorf("expected stock unchanged at 4, got %d", product.Stock)
	}
}

func TestReservationManager_ReserveUnknownProduct(t *testing.T) {
	manager, _ := newTestManager(t)

	err := manager.Reserve(context.Background(), models.ReservationRequest{
		OrderID:   uuid.New(),
		ProductID: 999,
		Quantity:  1,
	})
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestReservationManager_UnblockRestoresStock(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 10)
	orderID := uuid.New()

	if err := manager.Reserve(ctx, models.ReservationRequest{OrderID: orderID, ProductID: productID, Quantity: 7}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	info, err := manager.Unblock(ctx, orderID)
	if err != nil {
		t.Fatalf("unblock failed: %v", err)
	}
	if !info.Found || info.ProductID != productID || info.Quantity != 7 {
		t.Errorf("unexpected reservation info %+v", info)
	}

	// Round trip: stock back at its pre-reserve value
	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 10 {
		t.Errorf("expected stock restored to 10, got %d", product.Stock)
	}

	if _, err := store.GetReservation(ctx, orderID); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected reservation deleted, got %v", err)
	}
}

func TestReservationManager_UnblockWithoutReservation(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 10)

	info, err := manager.Unblock(ctx, uuid.New())
	if err != nil {
		t.Fatalf("expected no-op success, got %v", err)
	}
	if info.Found {
		t.Error("expected Found=false for missing reservation")
	}

	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 10 {
		t.Errorf("expected stock unchanged at 10, got %d", product.Stock)
	}
}

func TestReservationManager_Approve(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 10)
	orderID := uuid.New()

	if err := manager.Reserve(ctx, models.ReservationRequest{OrderID: orderID, ProductID: productID, Quantity: 3}); err != nil {
		t.Fatalf("reserve failed: %v", err)
	}

	if err := manager.Approve(ctx, orderID); err != nil {
		t.Fatalf("approve failed: %v", err)
	}

	// Approve deletes the reservation but keeps the stock decremented
	if _, err := store.GetReservation(ctx, orderID); !errs.IsKind(err, errs.KindNotFound) {
		t.Errorf("expected reservation deleted, got %v", err)
	}
	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 7 {
		t.Errorf("expected stock to stay at 7, got %d", product.Stock)
	}
}

func TestReservationManager_ApproveUnknownOrder(t *testing.T) {
	manager, _ := newTestManager(t)

	err := manager.Approve(context.Background(), uuid.New())
	if !errs.IsKind(err, errs.KindNotFound) {
		t.Fatalf("expected not_found error, got %v", err)
	}
}

func TestReservationManager_ConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	manager, store := newTestManager(t)
	productID := seedProduct(t, store, 10)

	var wg sync.WaitGroup
	reserved := make(chan uuid.UUID, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			orderID := uuid.New()
			err := manager.Reserve(ctx, models.ReservationRequest{OrderID: orderID, ProductID: productID, Quantity: 1})
			if err == nil {
				reserved <- orderID
			} else if !errs.IsKind(err, errs.KindNotAvailable) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	close(reserved)

	var count int
	for range reserved {
		count++
	}
	if count != 10 {
		t.Errorf("expected exactly 10 successful reserves, got %d", count)
	}
	product, _ := store.GetProduct(ctx, productID)
	if product.Stock != 0 {
		t.Errorf("expected stock 0, got %d", product.Stock)
	}
}
