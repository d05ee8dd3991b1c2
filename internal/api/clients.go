package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vkropotko/fulfillment/internal/errs"
	"github.com/vkropotko/fulfillment/internal/models"
	"github.com/vkropotko/fulfillment/internal/order"
	"github.com/vkropotko/fulfillment/internal/payment"
)

// Client is a thin JSON client for the fulfillment endpoints. Error
// kinds encoded by the server are rebuilt into the same typed errors;
// transport failures come back as remote-call errors.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a client for the service at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return errs.RemoteCall(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
			return errs.RemoteCall(fmt.Errorf("status %d", resp.StatusCode), "%s %s", method, path)
		}
		return errs.FromKind(errs.Kind(er.Kind), er.Error)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errs.RemoteCall(err, "decode response of %s %s", method, path)
		}
	}
	return nil
}

// InventoryClient calls the reservation endpoints. It satisfies
// order.InventoryClient.
type InventoryClient struct {
	c *Client
}

// NewInventoryClient creates an inventory client for baseURL
func NewInventoryClient(baseURL string) *InventoryClient {
	return &InventoryClient{c: NewClient(baseURL)}
}

// Reserve holds stock for an order
func (ic *InventoryClient) Reserve(ctx context.Context, req models.ReservationRequest) error {
	return ic.c.do(ctx, http.MethodPost, "/catalog/reserve", req, nil)
}

// Unblock releases the stock held for an order
func (ic *InventoryClient) Unblock(ctx context.Context, orderID uuid.UUID) (models.ReservationInfo, error) {
	var info models.ReservationInfo
	err := ic.c.do(ctx, http.MethodPost, "/catalog/unblock/"+orderID.String(), nil, &info)
	return info, err
}

// Approve finalizes the reservation held for an order
func (ic *InventoryClient) Approve(ctx context.Context, orderID uuid.UUID) error {
	return ic.c.do(ctx, http.MethodPost, "/catalog/approve/"+orderID.String(), nil, nil)
}

// PaymentClient calls the payment transfer endpoint. It satisfies
// order.PaymentClient.
type PaymentClient struct {
	c *Client
}

// NewPaymentClient creates a payment client for baseURL
func NewPaymentClient(baseURL string) *PaymentClient {
	return &PaymentClient{c: NewClient(baseURL)}
}

// Transfer checks affordability and moves the funds for an order
func (pc *PaymentClient) Transfer(ctx context.Context, req models.PaymentRequest) error {
	return pc.c.do(ctx, http.MethodPost, "/payments/transfer", req, nil)
}

// LedgerClient calls the account endpoints. It satisfies
// payment.LedgerClient.
type LedgerClient struct {
	c *Client
}

// NewLedgerClient creates a ledger client for baseURL
func NewLedgerClient(baseURL string) *LedgerClient {
	return &LedgerClient{c: NewClient(baseURL)}
}

// GetAccount resolves a user's payment account
func (lc *LedgerClient) GetAccount(ctx context.Context, userID int64) (*models.Account, error) {
	var resp accountResponse
	if err := lc.c.do(ctx, http.MethodGet, fmt.Sprintf("/accounts/%d", userID), nil, &resp); err != nil {
		return nil, err
	}
	return &models.Account{ID: resp.ID, OwnerUserID: resp.OwnerUserID, Balance: resp.Balance}, nil
}

// Transfer moves funds between two user accounts
func (lc *LedgerClient) Transfer(ctx context.Context, fromUserID, toUserID int64, amount float64) error {
	return lc.c.do(ctx, http.MethodPost, "/accounts/transaction", transactionRequest{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Amount:     amount,
	}, nil)
}

// Interface checks
var (
	_ order.InventoryClient = (*InventoryClient)(nil)
	_ order.PaymentClient   = (*PaymentClient)(nil)
	_ payment.LedgerClient  = (*LedgerClient)(nil)
)
