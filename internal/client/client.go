package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"storefront/internal/apperror"
	"storefront/internal/cart"
	"storefront/pkg/response"

	"go.uber.org/zap"
)

// Client talks to the storefront API. It serves as the engine's remote cart
// store and product lookup; cart calls need a token set by Login or SetToken.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Login exchanges credentials for an access token and keeps it for later calls
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", body, &out); err != nil {
		return "", err
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

func (c *Client) GetProductByID(ctx context.Context, id string) (cart.Product, error) {
	var p cart.Product
	err := c.do(ctx, http.MethodGet, "/api/products/"+url.PathEscape(id), nil, &p)
	return p, err
}

func (c *Client) GetCart(ctx context.Context) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodGet, "/api/cart", nil)
}

func (c *Client) AddItem(ctx context.Context, productID string, quantity int, variation *cart.Variation) (cart.Cart, error) {
	body := struct {
		ProductID string          `json:"productId"`
		Quantity  int             `json:"quantity"`
		Variation *cart.Variation `json:"variation,omitempty"`
	}{productID, quantity, variation}
	return c.cartCall(ctx, http.MethodPost, "/api/cart/items", body)
}

func (c *Client) UpdateItem(ctx context.Context, itemID string, quantity int) (cart.Cart, error) {
	body := map[string]int{"quantity": quantity}
	return c.cartCall(ctx, http.MethodPut, "/api/cart/items/"+url.PathEscape(itemID), body)
}

func (c *Client) RemoveItem(ctx context.Context, itemID string) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/cart/items/"+url.PathEscape(itemID), nil)
}

func (c *Client) Clear(ctx context.Context) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/cart", nil)
}

// Sync hands the guest cart to the server, which merges it into the user's cart
func (c *Client) Sync(ctx context.Context, local cart.Cart) (cart.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/cart/sync", local)
}

func (c *Client) cartCall(ctx context.Context, method, path string, body interface{}) (cart.Cart, error) {
	out := cart.Empty()
	if err := c.do(ctx, method, path, body, &out); err != nil {
		return cart.Cart{}, err
	}
	if out.Items == nil {
		out.Items = []cart.Item{}
	}
	return out, nil
}

// do sends one request and unwraps the response envelope into out. Failed
// envelopes become apperror kinds by status code; anything that never
// produced an envelope is a transport error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Transport(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	var env response.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		c.log.Warn("undecodable api response", zap.String("path", path), zap.Int("status", resp.StatusCode), zap.Error(err))
		return apperror.Transport(err, "%s %s: unreadable response (status %d)", method, path, resp.StatusCode)
	}

	if !env.OK() || resp.StatusCode >= http.StatusBadRequest {
		status := env.StatusCode
		if status == 0 {
			status = resp.StatusCode
		}
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(status)
		}
		return apperror.FromStatus(status, msg)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperror.Transport(err, "%s %s: unexpected payload", method, path)
	}
	return nil
}

var (
	_ cart.RemoteStore   = (*Client)(nil)
	_ cart.ProductLookup = (*Client)(nil)
)
