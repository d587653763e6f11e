package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

type Config struct {
	BaseURL   string
	KeyID     string
	KeySecret string
}

type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
	logger     *slog.Logger
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("razorpay api status %d: %s", e.StatusCode, e.Body)
}

// CreateOrderRequest amounts are in the smallest currency unit.
type CreateOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type Order struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type RefundRequest struct {
	Amount int64             `json:"amount,omitempty"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type Refund struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.razorpay.com/v1"
	}
	return &Client{
		baseURL:    baseURL,
		keyID:      strings.TrimSpace(cfg.KeyID),
		keySecret:  strings.TrimSpace(cfg.KeySecret),
		httpClient: httpClient,
		logger:     logger,
	}
}

// KeyID is the public key the checkout widget needs.
func (c *Client) KeyID() string {
	return c.keyID
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (Order, error) {
	var out Order
	if in.Amount <= 0 {
		return out, fmt.Errorf("order amount must be positive")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	body, err := c.do(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode order response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return out, fmt.Errorf("order response missing id")
	}
	return out, nil
}

// Refund refunds a captured payment. A zero amount refunds it in full.
func (c *Client) Refund(ctx context.Context, paymentID string, in RefundRequest) (Refund, error) {
	var out Refund
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return out, fmt.Errorf("payment id is required")
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	body, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/payments/%s/refund", url.PathEscape(paymentID)), payload)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode refund response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return out, fmt.Errorf("refund response missing id")
	}
	return out, nil
}

// VerifySignature checks the checkout callback signature, a hex HMAC-SHA256
// of "orderID|paymentID" keyed with the account secret.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(c.keySecret, orderID, paymentID, signature)
}

func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, pathPart string, payload []byte) ([]byte, error) {
	if c.keyID == "" || c.keySecret == "" {
		return nil, fmt.Errorf("razorpay credentials are required")
	}
	target := c.baseURL + path.Clean("/"+strings.TrimSpace(pathPart))

	var bodyReader io.Reader
	if len(payload) > 0 {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Accept", "application/json")
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if c.logger != nil {
		c.logger.Debug("razorpay_api_response", "method", method, "path", pathPart, "status", resp.StatusCode)
	}
	return body, nil
}
