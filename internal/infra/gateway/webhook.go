package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
)

// Webhook signatures follow the timestamped scheme
//
//	X-Gateway-Signature: t=<unix>,v1=<hex HMAC-SHA256 of "<unix>.<raw body>">
//
// The timestamp bounds replay of captured deliveries; the gateway itself may
// legitimately redeliver the same event, which the reconciler absorbs.

const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks header against the shared secret.
func VerifyWebhookSignature(secret string, body []byte, header string, now time.Time) error {
	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts, _ = strconv.ParseInt(v, 10, 64)
		case "v1":
			sig = v
		}
	}
	if ts == 0 || sig == "" {
		return domain.ErrSignatureMismatch
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return domain.ErrSignatureMismatch
	}

	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(body)
	expected := hex.EncodeToString(h.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(sig))) {
		return domain.ErrSignatureMismatch
	}
	return nil
}

// SignWebhookPayload produces a signature header for body; used by tests and
// by the sandbox relay tool.
func SignWebhookPayload(secret string, body []byte, now time.Time) string {
	ts := now.Unix()
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%d.", ts)
	h.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(h.Sum(nil)))
}

// WebhookEvent is the envelope the gateway posts to the ingress endpoint.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentStatus string            `json:"payment_status"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal webhook event: %w", err)
	}
	return &ev, nil
}

// MapPaymentStatus translates a gateway payment_status string into the
// domain status used by the reconciler.
func MapPaymentStatus(s string) model.PaymentStatus {
	return mapPaymentStatus(s)
}
