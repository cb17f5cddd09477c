package payments

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GatewayOrderRequest is what the gateway needs to open an order
type GatewayOrderRequest struct {
	Amount   int64 // minor units
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder is the gateway's view of an order
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Gateway opens orders with an external payment provider. Confirmations
// arrive later through the webhook.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error)
}

// Razorpay is a Gateway backed by the Razorpay Orders API
type Razorpay struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	HTTPClient *http.Client
}

func NewRazorpay(baseURL, keyID, keySecret string, timeout time.Duration) *Razorpay {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Razorpay{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		KeyID:      keyID,
		KeySecret:  keySecret,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (r *Razorpay) Name() string { return "razorpay" }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder calls POST {BaseURL}/orders
func (r *Razorpay) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("failed to marshal order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("failed to create order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(r.KeyID, r.KeySecret)

	resp, err := r.HTTPClient.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("failed to read razorpay response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr razorpayError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("razorpay returned status %d: %s: %s", resp.StatusCode, apiErr.Error.Code, apiErr.Error.Description)
		}
		return GatewayOrder{}, fmt.Errorf("razorpay returned status %d", resp.StatusCode)
	}

	var order GatewayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return GatewayOrder{}, fmt.Errorf("failed to decode razorpay order: %w", err)
	}
	if order.ID == "" {
		return GatewayOrder{}, fmt.Errorf("razorpay order response has no id")
	}
	return order, nil
}

// Sandbox opens orders locally; confirmations are posted to the webhook by hand
type Sandbox struct{}

func (Sandbox) Name() string { return "sandbox" }

func (Sandbox) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	if err := ctx.Err(); err != nil {
		return GatewayOrder{}, err
	}
	return GatewayOrder{
		ID:       "order_" + rand.Text()[:14],
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
		Status:   "created",
	}, nil
}
