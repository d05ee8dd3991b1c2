package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	newProduct := &models.Product{}
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO products (name, stock, price) VALUES ($1, $2, $3) RETURNING id, name, stock, price",
		product.Name, product.Stock, product.Price).Scan(
		&newProduct.ID, &newProduct.Name, &newProduct.Stock, &newProduct.Price)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return newProduct, nil
}

// GetProduct retrieves a product by id
func (s *Store) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	product := &models.Product{}
	err := s.Pool.QueryRow(ctx,
		"SELECT id, name, stock, price FROM products WHERE id = $1",
		productID).Scan(&product.ID, &product.Name, &product.Stock, &product.Price)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("product %d", productID)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// ReserveStock decrements a product's stock and records a reservation
// keyed by order id, as one transaction. The product row is locked for
// the duration so concurrent orders on the same product serialize and
// stock can never go negative.
func (s *Store) ReserveStock(ctx context.Context, orderID uuid.UUID, productID int64, quantity int) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stock int
	err = tx.QueryRow(ctx,
		"SELECT stock FROM products WHERE id = $1 FOR UPDATE",
		productID).Scan(&stock)
	if err != nil {
		if err == pgx.ErrNoRows {
			return errs.NotFound("product %d", productID)
		}
		return fmt.Errorf("failed to get product: %w", err)
	}

	if stock < quantity {
		return errs.NotAvailable("product %d: requested %d, available %d", productID, quantity, stock)
	}

	_, err = tx.Exec(ctx,
		"UPDATE products SET stock = stock - $1 WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}

	_, err = tx.Exec(ctx,
		"INSERT INTO reservations (order_id, product_id, quantity) VALUES ($1, $2, $3)",
		orderID, productID, quantity)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReleaseStock restores the stock held by an order's reservation and
// deletes the reservation, as one transaction. A missing reservation is
// not an error: the returned info has Found=false and no stock moves.
func (s *Store) ReleaseStock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error) {
	info := models.ReservationInfo{OrderID: orderID}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		"SELECT product_id, quantity FROM reservations WHERE order_id = $1 FOR UPDATE",
		orderID).Scan(&info.ProductID, &info.Quantity)
	if err != nil {
		if err == pgx.ErrNoRows {
			return info, nil
		}
		return info, fmt.Errorf("failed to get reservation: %w", err)
	}
	info.Found = true

	_, err = tx.Exec(ctx,
		"UPDATE products SET stock = stock + $1 WHERE id = $2",
		info.Quantity, info.ProductID)
	if err != nil {
		return info, fmt.Errorf("failed to restore stock: %w", err)
	}

	_, err = tx.Exec(ctx, "DELETE FROM reservations WHERE order_id = $1", orderID)
	if err != nil {
		return info, fmt.Errorf("failed to delete reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return info, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return info, nil
}

// DeleteReservation removes a reservation without touching stock. This
// is the commit point of the held inventory.
func (s *Store) DeleteReservation(ctx context.Context, orderID uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, "DELETE FROM reservations WHERE order_id = $1", orderID)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("reservation for order %s", orderID)
	}
	return nil
}

// GetReservation retrieves a reservation by order id
func (s *Store) GetReservation(ctx context.Context, orderID uuid.UUID) (*models.Reservation, error) {
	res := &models.Reservation{}
	err := s.Pool.QueryRow(ctx,
		"SELECT order_id, product_id, quantity, created_at FROM reservations WHERE order_id = $1",
		orderID).Scan(&res.OrderID, &res.ProductID, &res.Quantity, &res.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("reservation for order %s", orderID)
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return res, nil
}
