// Package memdb is an in-memory implementation of the persistence
// operations backing the fulfillment services. It exists for tests and
// local runs without Postgres; mutations are serialized by one mutex so
// the stock and balance invariants hold under concurrent use.
package memdb

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
)

// Store keeps all tables in maps guarded by a single mutex.
type Store struct {
	mu           sync.Mutex
	users        map[int64]*models.User
	usersByName  map[string]int64
	orders       map[uuid.UUID]*models.Order
	products     map[int64]*models.Product
	reservations map[uuid.UUID]*models.Reservation
	payments     map[uuid.UUID]*models.Payment
	accounts     map[int64]*models.Account // keyed by account id
	nextID       int64
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		users:        make(map[int64]*models.User),
		usersByName:  make(map[string]int64),
		orders:       make(map[uuid.UUID]*models.Order),
		products:     make(map[int64]*models.Product),
		reservations: make(map[uuid.UUID]*models.Reservation),
		payments:     make(map[uuid.UUID]*models.Payment),
		accounts:     make(map[int64]*models.Account),
	}
}

func (s *Store) nextSerial() int64 {
	s.nextID++
	return s.nextID
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := &models.User{
		ID:           s.nextSerial(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.users[user.ID] = user
	s.usersByName[username] = user.ID
	copied := *user
	return &copied, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByName[username]
	if !ok {
		return nil, errs.NotFound("user %q", username)
	}
	copied := *s.users[id]
	return &copied, nil
}

// CreateOrder inserts a new order with a fresh id
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *order
	copied.ID = uuid.New()
	copied.CreatedAt = time.Now()
	s.orders[copied.ID] = &copied
	result := copied
	return &result, nil
}

// UpdateOrderStatus updates an order's status
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return errs.NotFound("order %s", orderID)
	}
	order.Status = status
	return nil
}

// GetOrder retrieves an order by id
func (s *Store) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, errs.NotFound("order %s", orderID)
	}
	copied := *order
	return &copied, nil
}

// GetBuyerOrders retrieves all orders placed by a buyer, oldest first
func (s *Store) GetBuyerOrders(ctx context.Context, buyerID int64) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []models.Order
	for _, order := range s.orders {
		if order.BuyerID == buyerID {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *product
	copied.ID = s.nextSerial()
	s.products[copied.ID] = &copied
	result := copied
	return &result, nil
}

// GetProduct retrieves a product by id
func (s *Store) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, errs.NotFound("product %d", productID)
	}
	copied := *product
	return &copied, nil
}

// ReserveStock decrements stock and records a reservation atomically
func (s *Store) ReserveStock(ctx context.Context, orderID uuid.UUID, productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return errs.NotFound("product %d", productID)
	}
	if product.Stock < quantity {
		return errs.NotAvailable("product %d: requested %d, available %d", productID, quantity, product.Stock)
	}

	product.Stock -= quantity
	s.reservations[orderID] = &models.Reservation{
		OrderID:   orderID,
		ProductID: productID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
	return nil
}

// ReleaseStock restores held stock and deletes the reservation. A
// missing reservation is a no-op with Found=false.
func (s *Store) ReleaseStock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := models.ReservationInfo{OrderID: orderID}
	res, ok := s.reservations[orderID]
	if !ok {
		return info, nil
	}

	if product, ok := s.products[res.ProductID]; ok {
		product.Stock += res.Quantity
	}
	delete(s.reservations, orderID)

	info.ProductID = res.ProductID
	info.Quantity = res.Quantity
	info.Found = true
	return info, nil
}

// DeleteReservation removes a reservation without touching stock
func (s *Store) DeleteReservation(ctx context.Context, orderID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reservations[orderID]; !ok {
		return errs.NotFound("reservation for order %s", orderID)
	}
	delete(s.reservations, orderID)
	return nil
}

// GetReservation retrieves a reservation by order id
func (s *Store) GetReservation(ctx context.Context, orderID uuid.UUID) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.reservations[orderID]
	if !ok {
		return nil, errs.NotFound("reservation for order %s", orderID)
	}
	copied := *res
	return &copied, nil
}

// CreateAccount inserts a new account for a user
func (s *Store) CreateAccount(ctx context.Context, ownerUserID int64, balance float64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := &models.Account{
		ID:          s.nextSerial(),
		OwnerUserID: ownerUserID,
		Balance:     balance,
		CreatedAt:   time.Now(),
	}
	s.accounts[account.ID] = account
	copied := *account
	return &copied, nil
}

func (s *Store) accountByOwner(ownerUserID int64) *models.Account {
	for _, account := range s.accounts {
		if account.OwnerUserID == ownerUserID {
			return account
		}
	}
	return nil
}

// GetAccountByOwner retrieves a user's payment account
func (s *Store) GetAccountByOwner(ctx context.Context, ownerUserID int64) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account := s.accountByOwner(ownerUserID)
	if account == nil {
		return nil, errs.NotFound("account for user %d", ownerUserID)
	}
	copied := *account
	return &copied, nil
}

// TransferFunds debits the sender and credits the recipient atomically
func (s *Store) TransferFunds(ctx context.Context, fromUserID, toUserID int64, amount float64) error {
	if fromUserID == toUserID {
		return errs.BadAccount("user %d cannot transfer to itself", fromUserID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.accountByOwner(fromUserID)
	if from == nil {
		return errs.BadAccount("user %d has no payment account", fromUserID)
	}
	to := s.accountByOwner(toUserID)
	if to == nil {
		return errs.BadAccount("user %d has no payment account", toUserID)
	}
	if from.Balance < amount {
		return errs.NotEnoughAmount("account %d: balance %.2f, required %.2f", from.ID, from.Balance, amount)
	}

	from.Balance -= amount
	to.Balance += amount
	return nil
}

// CreatePayment inserts a payment row keyed by order id
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *payment
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now()
	}
	s.payments[copied.OrderID] = &copied
	return nil
}

// GetPayment retrieves a payment by order id
func (s *Store) GetPayment(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[orderID]
	if !ok {
		return nil, errs.NotFound("payment for order %s", orderID)
	}
	copied := *payment
	return &copied, nil
}

// UpdatePaymentStatus advances a payment's status
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[orderID]
	if !ok {
		return errs.NotFound("payment for order %s", orderID)
	}
	payment.Status = status
	return nil
}
