//go:build !integration

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
)

func TestHostedCheckoutGateway_CreateSession(t *testing.T) {
	t.Run("should post the session and return its handle", func(t *testing.T) {
		var gotAuth string
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
				t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			gotAuth = r.Header.Get("Authorization")
			json.NewDecoder(r.Body).Decode(&gotBody)
			json.NewEncoder(w).Encode(map[string]string{"id": "cs_123", "url": "https://pay.example/cs_123"})
		}))
		defer srv.Close()

		g := NewHostedCheckoutGateway(srv.URL, "sk_test")
		sess, err := g.CreateSession(context.Background(), adapter.CreateSessionParams{
			AmountMinor: 1299,
			Currency:    "usd",
			Description: "500 token pack",
			SuccessURL:  "https://app.example/ok",
			CancelURL:   "https://app.example/cancel",
			Metadata:    map[string]string{"userId": "user-1"},
		})
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if sess.ID != "cs_123" || sess.URL != "https://pay.example/cs_123" {
			t.Errorf("unexpected session: %+v", sess)
		}
		if gotAuth != "Bearer sk_test" {
			t.Errorf("unexpected auth header %q", gotAuth)
		}
		if gotBody["amount_total"].(float64) != 1299 {
			t.Errorf("unexpected amount in request: %v", gotBody["amount_total"])
		}
		md := gotBody["metadata"].(map[string]interface{})
		if md["userId"] != "user-1" {
			t.Errorf("metadata not forwarded: %v", md)
		}
	})

	t.Run("should surface gateway errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]string{"code": "card_declined", "message": "declined"},
			})
		}))
		defer srv.Close()

		g := NewHostedCheckoutGateway(srv.URL, "sk_test")
		if _, err := g.CreateSession(context.Background(), adapter.CreateSessionParams{AmountMinor: 100, Currency: "usd"}); err == nil {
			t.Error("expected an error from the gateway response")
		}
	})
}

func TestHostedCheckoutGateway_GetSession(t *testing.T) {
	t.Run("should fetch and normalize the expanded session", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/checkout/sessions/cs_123" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("expand") != "payment_intent" {
				t.Errorf("expected payment_intent expansion, query: %s", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"id":             "cs_123",
				"payment_status": "paid",
				"amount_total":   1299,
				"currency":       "usd",
				"customer":       "cus_9",
				"customer_email": "user@example.com",
				"subscription":   "sub_5",
				"metadata":       map[string]string{"tokenAmount": "500"},
				"payment_intent": map[string]interface{}{"payment_method_types": []string{"card"}},
			})
		}))
		defer srv.Close()

		g := NewHostedCheckoutGateway(srv.URL, "sk_test")
		sess, err := g.GetSession(context.Background(), "cs_123")
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if sess.PaymentStatus != model.PaymentStatusPaid {
			t.Errorf("expected paid, got %s", sess.PaymentStatus)
		}
		if sess.Amount() != 12.99 {
			t.Errorf("expected 12.99, got %v", sess.Amount())
		}
		if sess.PaymentMethod != "card" {
			t.Errorf("expected card, got %q", sess.PaymentMethod)
		}
		if sess.CustomerEmail != "user@example.com" || sess.SubscriptionID != "sub_5" {
			t.Errorf("customer fields lost: %+v", sess)
		}
		if sess.Metadata["tokenAmount"] != "500" {
			t.Errorf("metadata lost: %v", sess.Metadata)
		}
	})

	t.Run("should fail when the gateway is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // refuse connections

		g := NewHostedCheckoutGateway(srv.URL, "sk_test")
		if _, err := g.GetSession(context.Background(), "cs_123"); err == nil {
			t.Error("expected a transport error")
		}
	})
}
