package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/auth"
	"github.com/vkropotko/fulfillment/internal/db/memdb"
	"github.com/vkropotko/fulfillment/internal/inventory"
	"github.com/vkropotko/fulfillment/internal/ledger"
	"github.com/vkropotko/fulfillment/internal/models"
	"github.com/vkropotko/fulfillment/internal/order"
	"github.com/vkropotko/fulfillment/internal/payment"
)

// newTestServer wires the full stack over an in-memory store. The
// orchestrator and the payment engine talk to the server through real
// HTTP clients, so the tests cross the same wire production does.
func newTestServer(t *testing.T) (*httptest.Server, *memdb.Store) {
	t.Helper()
	store := memdb.NewStore()
	log := zap.NewNop()

	reservations := inventory.NewReservationManager(store, log)
	accounts := ledger.NewAccountLedger(store, log)
	authService := auth.NewService(store, "test-secret")

	handler := NewHandler(nil, reservations, nil, accounts, authService, store, log)
	router := chi.NewRouter()
	router.Mount("/", handler.Routes())

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	handler.Payments = payment.NewEngine(store, NewLedgerClient(ts.URL), log)
	handler.Orchestrator = order.NewOrchestrator(store,
		NewInventoryClient(ts.URL), NewPaymentClient(ts.URL), nil, log)

	return ts, store
}

func registerAndLogin(t *testing.T, ts *httptest.Server, username string) (int64, string) {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"username": username, "password": "secret"})
	resp, err := http.Post(ts.URL+"/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var registered struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))

	resp, err = http.Post(ts.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	return registered.ID, login.Token
}

func placeOrder(t *testing.T, ts *httptest.Server, token string, sellerID, productID int64, quantity int, unitPrice float64) *http.Response {
	t.Helper()

	body, _ := json.Marshal(map[string]any{
		"seller_id":  sellerID,
		"product_id": productID,
		"quantity":   quantity,
		"unit_price": unitPrice,
	})
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/orders", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestPlaceOrder_Success(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	buyerID, token := registerAndLogin(t, ts, "buyer")
	sellerID, _ := registerAndLogin(t, ts, "seller")

	_, err := store.CreateAccount(ctx, buyerID, 500)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, sellerID, 50)
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, &models.Product{Name: "widget", Stock: 10, Price: 100})
	require.NoError(t, err)

	resp := placeOrder(t, ts, token, sellerID, product.ID, 2, 100)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var placed struct {
		OrderID string `json:"order_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&placed))
	require.NotEmpty(t, placed.OrderID)

	// Order is in its Approved terminal status
	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/orders/"+placed.OrderID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	getResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var view struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&view))
	assert.Equal(t, models.OrderApproved, view.Status)

	got, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 8, got.Stock)
	buyer, _ := store.GetAccountByOwner(ctx, buyerID)
	seller, _ := store.GetAccountByOwner(ctx, sellerID)
	assert.Equal(t, 300.0, buyer.Balance)
	assert.Equal(t, 250.0, seller.Balance)
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	buyerID, token := registerAndLogin(t, ts, "buyer")
	sellerID, _ := registerAndLogin(t, ts, "seller")
	_, err := store.CreateAccount(ctx, buyerID, 500)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, sellerID, 0)
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, &models.Product{Name: "widget", Stock: 4, Price: 100})
	require.NoError(t, err)

	resp := placeOrder(t, ts, token, sellerID, product.ID, 5, 100)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "order_failed", er.Kind)
	assert.Equal(t, "reservation", er.Stage)

	got, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 4, got.Stock)
}

func TestPlaceOrder_InsufficientFundsRestoresStock(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	buyerID, token := registerAndLogin(t, ts, "buyer")
	sellerID, _ := registerAndLogin(t, ts, "seller")
	_, err := store.CreateAccount(ctx, buyerID, 50)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, sellerID, 0)
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, &models.Product{Name: "widget", Stock: 10, Price: 100})
	require.NoError(t, err)

	resp := placeOrder(t, ts, token, sellerID, product.ID, 1, 100)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "payment", er.Stage)

	// Compensation released the held stock
	got, _ := store.GetProduct(ctx, product.ID)
	assert.Equal(t, 10, got.Stock)

	orders, _ := store.GetBuyerOrders(ctx, buyerID)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderCancelled, orders[0].Status)
}

func TestPlaceOrder_RequiresToken(t *testing.T) {
	ts, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"seller_id": 2, "product_id": 1, "quantity": 1, "unit_price": 10})
	resp, err := http.Post(ts.URL+"/orders", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestGetAccount_NotFoundKindSurvivesWire(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/accounts/99")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "not_found", er.Kind)
}

func TestUnblockEndpoint_MissingReservation(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/catalog/unblock/00000000-0000-0000-0000-000000000001", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info models.ReservationInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.False(t, info.Found)
}

func TestAccountTransactionEndpoint(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	_, err := store.CreateAccount(ctx, 1, 100)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, 2, 50)
	require.NoError(t, err)

	body, _ := json.Marshal(transactionRequest{FromUserID: 1, ToUserID: 2, Amount: 20})
	resp, err := http.Post(ts.URL+"/accounts/transaction", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	from, _ := store.GetAccountByOwner(ctx, 1)
	to, _ := store.GetAccountByOwner(ctx, 2)
	assert.Equal(t, 80.0, from.Balance)
	assert.Equal(t, 70.0, to.Balance)
}

func TestAccountTransactionEndpoint_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	_, err := store.CreateAccount(ctx, 1, 10)
	require.NoError(t, err)
	_, err = store.CreateAccount(ctx, 2, 0)
	require.NoError(t, err)

	body, _ := json.Marshal(transactionRequest{FromUserID: 1, ToUserID: 2, Amount: 20})
	resp, err := http.Post(ts.URL+"/accounts/transaction", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var er errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	assert.Equal(t, "not_enough_amount", er.Kind)
}

func TestGetProductEndpoint(t *testing.T) {
	ctx := context.Background()
	ts, store := newTestServer(t)

	product, err := store.CreateProduct(ctx, &models.Product{Name: "widget", Stock: 3, Price: 15})
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/catalog/products/%d", ts.URL, product.ID))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got struct {
		Name  string  `json:"name"`
		Stock int     `json:"stock"`
		Price float64 `json:"price"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "widget", got.Name)
	assert.Equal(t, 3, got.Stock)
}
