package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// CreateAccount inserts a new account for a user
func (s *Store) CreateAccount(ctx context.Context, ownerUserID int64, balance float64) (*models.Account, error) {
	account := &models.Account{}
	err := s.Pool.QueryRow(ctx,
		"INSERT INTO accounts (owner_user_id, balance) VALUES ($1, $2) RETURNING id, owner_user_id, balance, created_at",
		ownerUserID, balance).Scan(&account.ID, &account.OwnerUserID, &account.Balance, &account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetAccountByOwner retrieves a user's payment account
func (s *Store) GetAccountByOwner(ctx context.Context, ownerUserID int64) (*models.Account, error) {
	account := &models.Account{}
	err := s.Pool.QueryRow(ctx,
		"SELECT id, owner_user_id, balance, created_at FROM accounts WHERE owner_user_id = $1",
		ownerUserID).Scan(&account.ID, &account.OwnerUserID, &account.Balance, &account.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("account for user %d", ownerUserID)
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// TransferFunds debits the sender's account and credits the recipient's
// as one transaction. Both rows are locked in ascending account-id
// order so concurrent transfers on the same pair cannot deadlock.
// A transfer from a user to itself is rejected as a bad account.
func (s *Store) TransferFunds(ctx context.Context, fromUserID, toUserID int64, amount float64) error {
	if fromUserID == toUserID {
		return errs.BadAccount("user %d cannot transfer to itself", fromUserID)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		"SELECT id, owner_user_id, balance FROM accounts WHERE owner_user_id = ANY($1) ORDER BY id FOR UPDATE",
		[]int64{fromUserID, toUserID})
	if err != nil {
		return fmt.Errorf("failed to lock accounts: %w", err)
	}

	var from, to *models.Account
	for rows.Next() {
		account := &models.Account{}
		if err := rows.Scan(&account.ID, &account.OwnerUserID, &account.Balance); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan account: %w", err)
		}
		switch account.OwnerUserID {
		case fromUserID:
			from = account
		case toUserID:
			to = account
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}

	if from == nil {
		return errs.BadAccount("user %d has no payment account", fromUserID)
	}
	if to == nil {
		return errs.BadAccount("user %d has no payment account", toUserID)
	}
	if from.Balance < amount {
		return errs.NotEnoughAmount("account %d: balance %.2f, required %.2f", from.ID, from.Balance, amount)
	}

	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1 WHERE id = $2", amount, from.ID)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}
	_, err = tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1 WHERE id = $2", amount, to.ID)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// CreatePayment inserts a payment row keyed by order id
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := s.Pool.Exec(ctx,
		"INSERT INTO payments (order_id, from_user_id, to_user_id, amount, kind, status) VALUES ($1, $2, $3, $4, $5, $6)",
		payment.OrderID, payment.FromUserID, payment.ToUserID, payment.Amount, payment.Kind, payment.Status)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by order id
func (s *Store) GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	payment := &models.Payment{}
	err := s.Pool.QueryRow(ctx,
		"SELECT order_id, from_user_id, to_user_id, amount, kind, status, created_at FROM payments WHERE order_id = $1",
		orderID).Scan(&payment.OrderID, &payment.FromUserID, &payment.ToUserID,
		&payment.Amount, &payment.Kind, &payment.Status, &payment.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, errs.NotFound("payment for order %s", orderID)
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return payment, nil
}

// UpdatePaymentStatus advances a payment's status
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	tag, err := s.Pool.Exec(ctx, "UPDATE payments SET status = $1 WHERE order_id = $2", status, orderID)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NotFound("payment for order %s", orderID)
	}
	return nil
}
