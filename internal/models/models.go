package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Order statuses. An order reaches exactly one terminal status:
// Approved or Cancelled.
const (
	OrderCreated   = "Created"
	OrderApproved  = "Approved"
	OrderCancelled = "Cancelled"
)

// Order represents a buyer's order for a quantity of one product
type Order struct {
	ID        uuid.UUID
	BuyerID   int64
	SellerID  int64
	ProductID int64
	Quantity  int
	UnitPrice float64
	Status    string // "Created", "Approved", "Cancelled"
	CreatedAt time.Time
}

// Amount is the total payable for the order
func (o *Order) Amount() float64 {
	return float64(o.Quantity) * o.UnitPrice
}

// Product is a catalog item with a stock counter. Stock never goes
// negative: reserve decrements it, unblock restores it.
type Product struct {
	ID    int64
	Name  string
	Stock int
	Price float64
}

// Reservation is stock held against an in-flight order. It exists only
// between reserve and approve/unblock and is keyed by order id.
type Reservation struct {
	OrderID   uuid.UUID
	ProductID int64
	Quantity  int
	CreatedAt time.Time
}

// Payment statuses. Pending only ever advances to Approved or Failed.
const (
	PaymentPending  = "Pending"
	PaymentApproved = "Approved"
	PaymentFailed   = "Failed"
)

// Payment records one funds transfer attempt for an order
type Payment struct {
	OrderID    uuid.UUID
	FromUserID int64
	ToUserID   int64
	Amount     float64
	Kind       string // e.g. "DEBIT"
	Status     string // "Pending", "Approved", "Failed"
	CreatedAt  time.Time
}

// Account holds a user's balance. Balance never goes negative; the two
// rows touched by a transfer are updated as one atomic unit.
type Account struct {
	ID          int64
	OwnerUserID int64
	Balance     float64
	CreatedAt   time.Time
}

// PaymentRequest is the payload for checkTransfer/transfer
type PaymentRequest struct {
	OrderID    uuid.UUID `json:"order_id"`
	FromUserID int64     `json:"from_user_id"`
	ToUserID   int64     `json:"to_user_id"`
	Amount     float64   `json:"amount"`
	Kind       string    `json:"kind"`
}

// ReservationRequest is the payload for reserve
type ReservationRequest struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// ReservationInfo is returned by unblock so callers can see what was
// released. Found is false when no reservation was held.
type ReservationInfo struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Found     bool      `json:"found"`
}
