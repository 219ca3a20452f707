package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
	"character-chat-billing/internal/infra/metrics"
)

// Compile-time check
var _ adapter.CheckoutGateway = (*HostedCheckoutGateway)(nil)

// HostedCheckoutGateway talks to the external payment processor's hosted
// checkout API using direct HTTP calls.
type HostedCheckoutGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

func NewHostedCheckoutGateway(baseURL, secretKey string) *HostedCheckoutGateway {
	return &HostedCheckoutGateway{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *HostedCheckoutGateway) Name() string { return "hosted-checkout" }

// sessionResponse is the gateway's wire shape for a checkout session with the
// payment intent expanded.
type sessionResponse struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Customer      string            `json:"customer"`
	CustomerEmail string            `json:"customer_email"`
	Subscription  string            `json:"subscription"`
	Metadata      map[string]string `json:"metadata"`
	PaymentIntent struct {
		PaymentMethodTypes []string `json:"payment_method_types"`
	} `json:"payment_intent"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *HostedCheckoutGateway) CreateSession(ctx context.Context, params adapter.CreateSessionParams) (*model.CheckoutSession, error) {
	requestData := map[string]interface{}{
		"amount_total": params.AmountMinor,
		"currency":     params.Currency,
		"description":  params.Description,
		"success_url":  params.SuccessURL,
		"cancel_url":   params.CancelURL,
	}
	if params.CustomerRef != "" {
		requestData["customer_email"] = params.CustomerRef
	}
	if params.Metadata != nil {
		requestData["metadata"] = params.Metadata
	}

	var resp sessionResponse
	if err := g.do(ctx, http.MethodPost, "/v1/checkout/sessions", requestData, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.URL == "" {
		return nil, fmt.Errorf("gateway returned incomplete session: id=%q", resp.ID)
	}
	return &model.CheckoutSession{ID: resp.ID, URL: resp.URL}, nil
}

func (g *HostedCheckoutGateway) GetSession(ctx context.Context, sessionID string) (*model.GatewaySession, error) {
	start := time.Now()
	var resp sessionResponse
	err := g.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+sessionID+"?expand=payment_intent", nil, &resp)
	if err != nil {
		metrics.ObserveGatewayFetch(time.Since(start).Seconds(), "error")
		return nil, err
	}
	metrics.ObserveGatewayFetch(time.Since(start).Seconds(), "ok")

	sess := &model.GatewaySession{
		ID:             resp.ID,
		PaymentStatus:  mapPaymentStatus(resp.PaymentStatus),
		AmountTotal:    resp.AmountTotal,
		Currency:       resp.Currency,
		CustomerID:     resp.Customer,
		CustomerEmail:  resp.CustomerEmail,
		SubscriptionID: resp.Subscription,
		Metadata:       resp.Metadata,
	}
	if len(resp.PaymentIntent.PaymentMethodTypes) > 0 {
		sess.PaymentMethod = resp.PaymentIntent.PaymentMethodTypes[0]
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]string{}
	}
	return sess, nil
}

func (g *HostedCheckoutGateway) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request data: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(raw))
	}

	if sr, ok := out.(*sessionResponse); ok && sr.Error != nil {
		return fmt.Errorf("gateway error: code %s, message: %s", sr.Error.Code, sr.Error.Message)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("gateway HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return nil
}

// mapPaymentStatus normalizes the gateway's payment_status values onto the
// local status set.
func mapPaymentStatus(s string) model.PaymentStatus {
	switch s {
	case "paid":
		return model.PaymentStatusPaid
	case "unpaid", "no_payment_required", "pending":
		return model.PaymentStatusPending
	case "failed", "expired":
		return model.PaymentStatusFailed
	case "refunded":
		return model.PaymentStatusRefunded
	default:
		return model.PaymentStatusUnknown
	}
}
