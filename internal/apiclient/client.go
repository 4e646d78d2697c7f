// Package apiclient talks to the storefront JSON API on behalf of the cart
// mirror, the checkout orchestrator and the CLI.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

// Client is a small HTTP client for the storefront API. It authenticates
// with a bearer token once Login succeeds or SetToken is called.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.RWMutex
	token string
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// HasSession reports whether a token is set. It does not check the token
// against the server; Session does.
func (c *Client) HasSession() bool { return c.Token() != "" }

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (%d %s): %s", e.StatusCode, e.Code, e.Message)
}

// Session is what login returns.
type Session struct {
	User      domain.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// CartView mirrors the server cart.
type CartView struct {
	Items []domain.CartItem `json:"items"`
	Total decimal.Decimal   `json:"total"`
	Found bool              `json:"found"`
}

type Preference struct {
	OrderID      string `json:"order_id"`
	PreferenceID string `json:"preference_id"`
	InitPoint    string `json:"init_point"`
}

func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.doRequest(ctx, http.MethodPost, "/api/auth/login", body, &s); err != nil {
		return Session{}, err
	}
	c.SetToken(s.Token)
	return s, nil
}

// Session re-validates the current token and returns its user.
func (c *Client) Session(ctx context.Context) (*domain.User, error) {
	var out struct {
		User *domain.User `json:"user"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/api/auth/session", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Products(ctx context.Context, q string, page, limit int) ([]domain.Product, error) {
	v := url.Values{}
	if q != "" {
		v.Set("q", q)
	}
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	endpoint := "/api/products"
	if len(v) > 0 {
		endpoint += "?" + v.Encode()
	}
	var items []domain.Product
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) Product(ctx context.Context, id string) (domain.Product, error) {
	var p domain.Product
	err := c.doRequest(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *Client) Cart(ctx context.Context) (CartView, error) {
	var cv CartView
	err := c.doRequest(ctx, http.MethodGet, "/api/cart", nil, &cv)
	return cv, err
}

// ReplaceCart overwrites the server cart with items.
func (c *Client) ReplaceCart(ctx context.Context, items []domain.CartItem) (CartView, error) {
	if items == nil {
		items = []domain.CartItem{}
	}
	var cv CartView
	err := c.doRequest(ctx, http.MethodPut, "/api/cart", map[string]any{"items": items}, &cv)
	return cv, err
}

// CreateOrder posts the cart total and lines. Every call creates a new order.
func (c *Client) CreateOrder(ctx context.Context, total decimal.Decimal, lines []domain.OrderLine) (domain.Order, error) {
	var o domain.Order
	err := c.doRequest(ctx, http.MethodPost, "/api/orders", map[string]any{"total": total, "items": lines}, &o)
	return o, err
}

func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	var out []domain.Order
	err := c.doRequest(ctx, http.MethodGet, "/api/orders", nil, &out)
	return out, err
}

func (c *Client) CreatePreference(ctx context.Context, orderID string) (Preference, error) {
	var p Preference
	err := c.doRequest(ctx, http.MethodPost, "/api/payments/preference", map[string]string{"order_id": orderID}, &p)
	return p, err
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", resp.StatusCode).
		Msg("[STOREFRONT] response")

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		e := &APIError{StatusCode: resp.StatusCode, Message: env.Message}
		if env.Error != nil {
			e.Code = env.Error.Code
			e.Message = env.Error.Message
		}
		return e
	}
	if result == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, result); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
