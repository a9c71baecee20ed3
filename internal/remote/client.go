package remote

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

	"github.com/fjod/shop_client/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// Client is the stateless HTTP client for the cart and product endpoints.
// Requests go out through whatever transport the supplied http.Client
// carries, which in production is the authorizing one. Failures are
// classified into the closed Kind taxonomy; policy stays with the caller.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	st := gobreaker.Settings{
		Name: "remote-cart",
		// Only network and server failures count against the breaker;
		// validation and auth failures are the caller's problem, not the
		// backend's health.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *Error
			if errors.As(err, &apiErr) {
				return apiErr.Kind == KindValidation || apiErr.Kind == KindUnauthorized
			}
			return false
		},
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		cb:      gobreaker.NewCircuitBreaker[[]byte](st),
	}
}

type itemsResponse struct {
	Items []domain.CartLine `json:"items"`
}

type productsResponse struct {
	Items []domain.Product `json:"items"`
}

type addToCartRequest struct {
	ProductID string  `json:"productId"`
	VariantID *string `json:"variantId,omitempty"`
	Quantity  int     `json:"quantity"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type syncCartRequest struct {
	Items []domain.CartLine `json:"items"`
}

func (c *Client) GetCart(ctx context.Context) ([]domain.CartLine, error) {
	body, err := c.do(ctx, http.MethodGet, "/cart", nil)
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode cart response: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) GetProducts(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{"ids": {strings.Join(ids, ",")}}
	body, err := c.do(ctx, http.MethodGet, "/products?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp productsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode products response: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) AddToCart(ctx context.Context, productID string, variantID *string, quantity int) (*domain.CartLine, error) {
	body, err := c.do(ctx, http.MethodPost, "/cart", addToCartRequest{
		ProductID: productID,
		VariantID: variantID,
		Quantity:  quantity,
	})
	if err != nil {
		return nil, err
	}

	var line domain.CartLine
	if err := json.Unmarshal(body, &line); err != nil {
		return nil, fmt.Errorf("failed to decode cart line response: %w", err)
	}
	return &line, nil
}

func (c *Client) UpdateQuantity(ctx context.Context, lineID string, quantity int) (*domain.CartLine, error) {
	body, err := c.do(ctx, http.MethodPatch, "/cart/items/"+url.PathEscape(lineID), updateQuantityRequest{
		Quantity: quantity,
	})
	if err != nil {
		return nil, err
	}

	var line domain.CartLine
	if err := json.Unmarshal(body, &line); err != nil {
		return nil, fmt.Errorf("failed to decode cart line response: %w", err)
	}
	return &line, nil
}

func (c *Client) RemoveItem(ctx context.Context, lineID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(lineID), nil)
	return err
}

func (c *Client) SyncCart(ctx context.Context, lines []domain.CartLine) ([]domain.CartLine, error) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	body, err := c.do(ctx, http.MethodPost, "/cart/sync", syncCartRequest{Items: lines})
	if err != nil {
		return nil, err
	}

	var resp itemsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sync response: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	body, err := c.cb.Execute(func() ([]byte, error) {
		var reqBody io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, classifyTransport(err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, classifyTransport(err)
		}

		if resp.StatusCode >= 400 {
			return nil, classifyStatus(resp.StatusCode, respBody)
		}
		return respBody, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, classifyTransport(err)
	}
	return body, err
}
