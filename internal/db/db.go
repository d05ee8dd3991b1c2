package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// Store wraps a PostgreSQL connection pool
type Store struct {
	Pool *pgxpool.Pool
}

// NewStore initializes a new database connection pool
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Store{Pool: pool}, nil
}

// Close closes the database connection pool
func (s *Store) Close() {
	s.Pool.Close()
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	user := &models.User{}
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id, username, password_hash, created_at",
		username, passwordHash).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	err := s.Pool.QueryRow(ctx,
		"SELECT id, username, password_hash, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("user %q", username)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateOrder inserts a new order and returns it with its assigned id
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}
	if order.UnitPrice <= 0 {
		return nil, fmt.Errorf("unit price must be positive")
	}

	newOrder := &models.Order{}
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO orders (buyer_id, seller_id, product_id, quantity, unit_price, status) VALUES ($1, $2, $3, $4, $5, $6) "+
			"RETURNING id, buyer_id, seller_id, product_id, quantity, unit_price, status, created_at",
		order.BuyerID, order.SellerID, order.ProductID, order.Quantity, order.UnitPrice, order.Status).Scan(
		&newOrder.ID, &newOrder.BuyerID, &newOrder.SellerID, &newOrder.ProductID,
		&newOrder.Quantity, &newOrder.UnitPrice, &newOrder.Status, &newOrder.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	return newOrder, nil
}

// UpdateOrderStatus updates an order's status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := s.Pool.Exec(ctx, "UPDATE orders SET status = $1 WHERE id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("order %s", orderID)
	}
	return nil
}

// GetOrder retrieves an order by id
func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order := &models.Order{}
	err := s.Pool.QueryRow(ctx,
		"SELECT id, buyer_id, seller_id, product_id, quantity, unit_price, status, created_at FROM orders WHERE id = $1",
		orderID).Scan(&order.ID, &order.BuyerID, &order.SellerID, &order.ProductID,
		&order.Quantity, &order.UnitPrice, &order.Status, &order.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("order %s", orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

// GetBuyerOrders retrieves all orders placed by a buyer
func (s *Store) GetBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	rows, err := s.Pool.Query(ctx,
		"SELECT id, buyer_id, seller_id, product_id, quantity, unit_price, status, created_at "+
			"FROM orders WHERE buyer_id = $1 ORDER BY created_at ASC",
		buyerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get buyer orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.SellerID, &order.ProductID,
			&order.Quantity, &order.UnitPrice, &order.Status, &order.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}
