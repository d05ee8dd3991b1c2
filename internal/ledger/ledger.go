// Package ledger moves funds between user accounts. The transfer is
// the only truly atomic step of the fulfillment flow; everything above
// it is compensated rather than transactional.
package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/models"
)

// Store is the persistence needed by the ledger. TransferFunds must
// apply the debit and credit as a single atomic unit and serialize
// conflicting updates to the same account row.
type Store interface {
	GetAccountByOwner(ctx context.Context, ownerUserID int64) (*models.Account, error)
	TransferFunds(ctx context.Context, fromUserID, toUserID int64, amount float64) error
}

// AccountLedger exposes account reads and atomic transfers
type AccountLedger struct {
	store Store
	log   *zap.Logger
}

// NewAccountLedger creates a new account ledger
func NewAccountLedger(store Store, log *zap.Logger) *AccountLedger {
	return &AccountLedger{store: store, log: log}
}

// GetAccount resolves the payment account of a user
func (l *AccountLedger) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	return l.store.GetAccountByOwner(ctx, userID)
}

// Transfer debits the sender and credits the recipient. It fails with
// a bad-account error if either user has no account and a
// not-enough-amount error if the sender's balance is short; no balance
// changes on failure. The balance sum across the two accounts is the
// same before and after a successful transfer.
func (l *AccountLedger) Transfer(ctx context.Context, fromUserID, toUserID int64, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %.2f", amount)
	}

	if err := l.store.TransferFunds(ctx, fromUserID, toUserID, amount); err != nil {
		return err
	}

	l.log.Info("funds transferred",
		zap.Int64("from_user_id", fromUserID),
		zap.Int64("to_user_id", toUserID),
		zap.Float64("amount", amount))
	return nil
}
