package model

import (
	"math"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"  // session created or observed, not yet paid
	PaymentStatusPaid     PaymentStatus = "paid"     // gateway confirmed payment
	PaymentStatusFailed   PaymentStatus = "failed"   // gateway reported failure/expiry
	PaymentStatusRefunded PaymentStatus = "refunded" // paid then refunded
	PaymentStatusUnknown  PaymentStatus = "unknown"  // recorded without a successful gateway fetch
)

// statusRank orders statuses so a later observation can never move a
// transaction backwards. Refunded outranks paid; unknown ranks lowest.
var statusRank = map[PaymentStatus]int{
	PaymentStatusUnknown:  0,
	PaymentStatusPending:  1,
	PaymentStatusFailed:   2,
	PaymentStatusPaid:     3,
	PaymentStatusRefunded: 4,
}

// CanTransition reports whether moving from to next is a forward progression.
// Equal status is not a transition (duplicate observation).
func (s PaymentStatus) CanTransition(next PaymentStatus) bool {
	return statusRank[next] > statusRank[s]
}

type PurchaseKind string

const (
	PurchaseKindSubscription PurchaseKind = "subscription"
	PurchaseKindTokenPack    PurchaseKind = "token_pack"
)

// PurchaseIntent is the transient input to checkout session creation.
// It is never persisted; state lives in the gateway until reconciliation.
type PurchaseIntent struct {
	Kind        PurchaseKind
	PlanID      string // subscription purchases
	TokenAmount int64  // token-pack purchases
	UnitPrice   float64
	Currency    string
	UserID      string
	Email       string
	Metadata    map[string]string // caller-supplied; system fields always win on merge
}

// PaymentTransaction is the durable, append-mostly record of one checkout
// session as observed through any channel (webhook, sync, manual verify).
type PaymentTransaction struct {
	ID                string // UUID
	ExternalSessionID string // gateway session id; globally unique
	UserID            *string
	Amount            float64
	Currency          string
	Status            PaymentStatus
	PaymentMethod     *string
	GatewayCustomerID *string
	SubscriptionID    *string
	PlanID            *string
	PlanName          *string
	PlanDuration      *int
	Incomplete        bool // true when recorded without a successful gateway fetch
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CheckoutSession is the opaque handle returned by the gateway on creation.
type CheckoutSession struct {
	ID  string
	URL string
}

// GatewaySession is the gateway's current view of a checkout session,
// with payment intent and customer details expanded.
type GatewaySession struct {
	ID             string
	PaymentStatus  PaymentStatus
	AmountTotal    int64 // minor units
	Currency       string
	CustomerID     string
	CustomerEmail  string
	PaymentMethod  string
	SubscriptionID string
	Metadata       map[string]string
}

// Amount converts the gateway's minor units into the major unit stored on
// PaymentTransaction (e.g. 1299 -> 12.99).
func (s *GatewaySession) Amount() float64 {
	return math.Round(float64(s.AmountTotal)) / 100
}

// ValidPrice reports whether p is a finite positive number.
func ValidPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}
