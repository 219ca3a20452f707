package adapter

import (
	"context"

	"character-chat-billing/internal/domain/model"
)

// CreateSessionParams carries everything the gateway needs to host a checkout.
type CreateSessionParams struct {
	AmountMinor int64
	Currency    string
	Description string
	SuccessURL  string
	CancelURL   string
	CustomerRef string
	Metadata    map[string]string
}

// CheckoutGateway is the port for the external payment processor.
type CheckoutGateway interface {
	Name() string

	// CreateSession registers a hosted checkout session and returns its
	// opaque handle plus the redirect URL.
	CreateSession(ctx context.Context, params CreateSessionParams) (*model.CheckoutSession, error)

	// GetSession fetches the gateway's current view of a session with the
	// payment intent and customer expanded. Read-only.
	GetSession(ctx context.Context, sessionID string) (*model.GatewaySession, error)
}
