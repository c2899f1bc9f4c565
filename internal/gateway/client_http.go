package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the gateway's REST API using key-id/key-secret basic
// auth, the scheme Razorpay and similar gateways use.
type HTTPClient struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewHTTPClient(baseURL, keyID, keySecret string) *HTTPClient {
	return &HTTPClient{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HTTPClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	var out Order
	if err := g.do(ctx, http.MethodPost, "/v1/orders", req, &out); err != nil {
		return Order{}, err
	}
	return out, nil
}

func (g *HTTPClient) CreatePaymentLink(ctx context.Context, req CreateLinkRequest) (PaymentLink, error) {
	var out PaymentLink
	if err := g.do(ctx, http.MethodPost, "/v1/payment_links", req, &out); err != nil {
		return PaymentLink{}, err
	}
	return out, nil
}

func (g *HTTPClient) FetchPaymentLink(ctx context.Context, linkID string) (PaymentLink, error) {
	var out PaymentLink
	if err := g.do(ctx, http.MethodGet, "/v1/payment_links/"+linkID, nil, &out); err != nil {
		return PaymentLink{}, err
	}
	return out, nil
}

func (g *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
