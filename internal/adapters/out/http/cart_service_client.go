// internal/adapters/out/http/cart_service_client.go
package httpout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront/internal/client/cartstate"
)

var (
	// ErrNetworkFailure covers transport errors, timeouts and 5xx replies.
	ErrNetworkFailure = errors.New("cart service: network failure")
	// ErrMergeConflict is a rejected merge payload (e.g. unknown product).
	ErrMergeConflict = errors.New("cart service: merge conflict")

	ErrUnauthorized    = errors.New("cart service: unauthorized")
	ErrRequestRejected = errors.New("cart service: request rejected")
)

// GuestSessionHeader carries the guest session id on every request.
const GuestSessionHeader = "X-Guest-Session-Id"

// CartServiceClient talks to the mall cart endpoints.
// DefaultTimeout bounds each request when no *http.Client is supplied.
const DefaultTimeout = 10 * time.Second

type CartServiceClient struct {
	baseURL string
	client  *http.Client
}

// baseURL example:
// - Cloud Run: https://xxxxx.asia-northeast1.run.app
// - local: http://localhost:8080
func NewCartServiceClient(baseURL string, client *http.Client) *CartServiceClient {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &CartServiceClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// Timeout is the per-request limit of the underlying client (0 = none).
func (c *CartServiceClient) Timeout() time.Duration {
	if c == nil || c.client == nil {
		return 0
	}
	return c.client.Timeout
}

// ------------------------------------------------------------
// wire types
// ------------------------------------------------------------

type cartItemDTO struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartDTO struct {
	CartID     string        `json:"cartId"`
	Items      []cartItemDTO `json:"items"`
	TotalItems int           `json:"totalItems"`
	UpdatedAt  *time.Time    `json:"updatedAt,omitempty"`
	ExpiresAt  *time.Time    `json:"expiresAt,omitempty"`
}

type mergeRequest struct {
	GuestCartItems []cartItemDTO `json:"guestCartItems"`
	SessionID      string        `json:"sessionId"`
}

type itemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ------------------------------------------------------------
// cartstate.CartService
// ------------------------------------------------------------

func (c *CartServiceClient) GetCart(ctx context.Context, actor cartstate.Actor) (*cartstate.RemoteCart, error) {
	return c.do(ctx, actor, http.MethodGet, "/mall/cart", nil, false)
}

func (c *CartServiceClient) MergeCart(ctx context.Context, actor cartstate.Actor, items []cartstate.Item, sessionID string) (*cartstate.RemoteCart, error) {
	body := mergeRequest{
		GuestCartItems: make([]cartItemDTO, 0, len(items)),
		SessionID:      strings.TrimSpace(sessionID),
	}
	for _, it := range items {
		body.GuestCartItems = append(body.GuestCartItems, cartItemDTO{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return c.do(ctx, actor, http.MethodPost, "/mall/cart/merge", body, true)
}

func (c *CartServiceClient) AddItem(ctx context.Context, actor cartstate.Actor, productID string, qty int) (*cartstate.RemoteCart, error) {
	return c.do(ctx, actor, http.MethodPost, "/mall/cart/items", itemRequest{ProductID: productID, Quantity: qty}, false)
}

func (c *CartServiceClient) SetItemQty(ctx context.Context, actor cartstate.Actor, productID string, qty int) (*cartstate.RemoteCart, error) {
	return c.do(ctx, actor, http.MethodPut, "/mall/cart/items", itemRequest{ProductID: productID, Quantity: qty}, false)
}

func (c *CartServiceClient) RemoveItem(ctx context.Context, actor cartstate.Actor, productID string) (*cartstate.RemoteCart, error) {
	path := "/mall/cart/items?productId=" + url.QueryEscape(strings.TrimSpace(productID))
	return c.do(ctx, actor, http.MethodDelete, path, nil, false)
}

// ------------------------------------------------------------
// transport
// ------------------------------------------------------------

func (c *CartServiceClient) do(ctx context.Context, actor cartstate.Actor, method, path string, payload any, isMerge bool) (*cartstate.RemoteCart, error) {
	if c == nil {
		return nil, fmt.Errorf("cart service client is nil")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("cart service client baseURL is empty")
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("cart service: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := strings.TrimSpace(actor.IDToken); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if sid := strings.TrimSpace(actor.GuestSessionID); sid != "" {
		req.Header.Set(GuestSessionHeader, sid)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetworkFailure, method, path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetworkFailure, err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, statusError(res.StatusCode, raw, isMerge)
	}

	var dto cartDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, fmt.Errorf("%w: decode cart: %v", ErrNetworkFailure, err)
	}
	return dto.toRemote(), nil
}

func statusError(code int, raw []byte, isMerge bool) error {
	msg := strings.TrimSpace(string(raw))
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && strings.TrimSpace(eb.Error) != "" {
		msg = strings.TrimSpace(eb.Error)
	}
	if msg == "" {
		msg = http.StatusText(code)
	}

	switch {
	case code >= 500:
		return fmt.Errorf("%w: status=%d %s", ErrNetworkFailure, code, msg)
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case isMerge:
		return fmt.Errorf("%w: %s", ErrMergeConflict, msg)
	default:
		return fmt.Errorf("%w: status=%d %s", ErrRequestRejected, code, msg)
	}
}

func (d cartDTO) toRemote() *cartstate.RemoteCart {
	out := &cartstate.RemoteCart{
		ID:         d.CartID,
		Items:      make([]cartstate.Item, 0, len(d.Items)),
		TotalItems: d.TotalItems,
	}
	for _, it := range d.Items {
		out.Items = append(out.Items, cartstate.Item{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if d.UpdatedAt != nil {
		out.UpdatedAt = *d.UpdatedAt
	}
	if d.ExpiresAt != nil {
		out.ExpiresAt = *d.ExpiresAt
	}
	return out
}
