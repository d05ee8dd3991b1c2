package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/auth"
	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/inventory"
	"github.com/vkropotko/fulfillment/internal/ledger"
	"github.com/vkropotko/fulfillment/internal/models"
	"github.com/vkropotko/fulfillment/internal/order"
	"github.com/vkropotko/fulfillment/internal/payment"
)

type ctxKey int

const userIDKey ctxKey = iota

// ProductStore is the catalog read used by the product endpoint
type ProductStore interface {
	GetProduct(ctx context.Context, productID int64) (*models.Product, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Orchestrator *order.Orchestrator
	Inventory    *inventory.ReservationManager
	Payments     *payment.Engine
	Ledger       *ledger.AccountLedger
	Auth         *auth.Service
	Products     ProductStore
	Log          *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(orch *order.Orchestrator, inv *inventory.ReservationManager, pay *payment.Engine,
	led *ledger.AccountLedger, authService *auth.Service, products ProductStore, log *zap.Logger) *Handler {
	return &Handler{
		Orchestrator: orch,
		Inventory:    inv,
		Payments:     pay,
		Ledger:       led,
		Auth:         authService,
		Products:     products,
		Log:          log,
	}
}

// Routes builds the full router: public auth endpoints, the
// JWT-protected order endpoints, and the service-to-service endpoints
// for catalog, payments and accounts.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Post("/orders", h.PlaceOrder)
		r.Get("/orders", h.GetUserOrders)
		r.Get("/orders/{id}", h.GetOrder)
	})

	r.Post("/catalog/reserve", h.Reserve)
	r.Post("/catalog/unblock/{orderID}", h.Unblock)
	r.Post("/catalog/approve/{orderID}", h.Approve)
	r.Get("/catalog/products/{id}", h.GetProduct)

	r.Post("/payments/transfer", h.TransferPayment)

	r.Get("/accounts/{userID}", h.GetAccount)
	r.Post("/accounts/transaction", h.AccountTransaction)

	return r
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// writeError maps the business error kind to a status code and encodes
// the kind into the body so clients can rebuild the typed error.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindNotAvailable, errs.KindOrderFailed:
		status = http.StatusConflict
	case errs.KindNotEnoughAmount:
		status = http.StatusPaymentRequired
	case errs.KindBadAccount, errs.KindBadOrder:
		status = http.StatusBadRequest
	case errs.KindRemoteCall:
		status = http.StatusBadGateway
	}

	resp := errorResponse{Error: err.Error(), Kind: string(kind)}
	var failed *errs.OrderFailed
	if errors.As(err, &failed) {
		resp.Stage = failed.Stage
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, `{"error": "Username and password required"}`, http.StatusBadRequest)
		return
	}

	user, err := h.Auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Failed to register user"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := h.Auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		http.Error(w, `{"error": "Invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			http.Error(w, `{"error": "Authorization header required"}`, http.StatusUnauthorized)
			return
		}

		if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
			tokenString = tokenString[7:]
		}

		userID, err := h.Auth.GetUserFromToken(tokenString)
		if err != nil {
			http.Error(w, `{"error": "Invalid or expired token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PlaceOrder creates an order and drives it through reservation,
// payment and approval. The buyer is taken from the token.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := r.Context().Value(userIDKey).(int64)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req struct {
		SellerID  int64   `json:"seller_id"`
		ProductID int64   `json:"product_id"`
		Quantity  int     `json:"quantity"`
		UnitPrice float64 `json:"unit_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if req.Quantity <= 0 || req.UnitPrice <= 0 {
		http.Error(w, `{"error": "Quantity and unit price must be positive"}`, http.StatusBadRequest)
		return
	}

	orderID, err := h.Orchestrator.CreateOrder(r.Context(), buyerID, req.SellerID, req.ProductID, req.Quantity, req.UnitPrice)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Order approved",
		"order_id": orderID,
	})
}

// GetUserOrders retrieves the authenticated buyer's orders
func (h *Handler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := r.Context().Value(userIDKey).(int64)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orders, err := h.Orchestrator.GetBuyerOrders(r.Context(), buyerID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ordersResponse(orders))
}

// GetOrder retrieves one of the authenticated buyer's orders
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := r.Context().Value(userIDKey).(int64)
	if !ok {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	ord, err := h.Orchestrator.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ord.BuyerID != buyerID {
		writeError(w, errs.NotFound("order %s", orderID))
		return
	}

	writeJSON(w, http.StatusOK, orderResponse(*ord))
}

// Reserve holds stock for an order
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req models.ReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.Inventory.Reserve(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Stock reserved"})
}

// Unblock releases the stock held for an order
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	info, err := h.Inventory.Unblock(r.Context(), orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// Approve finalizes the reservation held for an order
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		http.Error(w, `{"error": "Invalid order ID"}`, http.StatusBadRequest)
		return
	}

	if err := h.Inventory.Approve(r.Context(), orderID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Reservation approved"})
}

// GetProduct retrieves a catalog product
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid product ID"}`, http.StatusBadRequest)
		return
	}

	product, err := h.Products.GetProduct(r.Context(), productID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    product.ID,
		"name":  product.Name,
		"stock": product.Stock,
		"price": product.Price,
	})
}

// TransferPayment checks affordability and executes the funds transfer
// for an order as one logical step, so the pending-payment precondition
// for the transfer always holds.
func (h *Handler) TransferPayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.Payments.CheckTransfer(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.Payments.Transfer(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transfer approved"})
}

// GetAccount resolves a user's payment account
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid user ID"}`, http.StatusBadRequest)
		return
	}

	account, err := h.Ledger.GetAccount(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accountResponse{
		ID:          account.ID,
		OwnerUserID: account.OwnerUserID,
		Balance:     account.Balance,
	})
}

// AccountTransaction moves funds between two user accounts
func (h *Handler) AccountTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := h.Ledger.Transfer(r.Context(), req.FromUserID, req.ToUserID, req.Amount); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Transaction completed"})
}

type accountResponse struct {
	ID          int64   `json:"id"`
	OwnerUserID int64   `json:"owner_user_id"`
	Balance     float64 `json:"balance"`
}

type transactionRequest struct {
	FromUserID int64   `json:"from_user_id"`
	ToUserID   int64   `json:"to_user_id"`
	Amount     float64 `json:"amount"`
}

type orderView struct {
	ID        uuid.UUID `json:"id"`
	BuyerID   int64     `json:"buyer_id"`
	SellerID  int64     `json:"seller_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
	Status    string    `json:"status"`
}

func orderResponse(o models.Order) orderView {
	return orderView{
		ID:        o.ID,
		BuyerID:   o.BuyerID,
		SellerID:  o.SellerID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		UnitPrice: o.UnitPrice,
		Status:    o.Status,
	}
}

func ordersResponse(orders []models.Order) []orderView {
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderResponse(o))
	}
	return views
}
