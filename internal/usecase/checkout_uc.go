package usecase

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"

	"character-chat-billing/internal/domain"
	"character-chat-billing/internal/domain/model"
	"character-chat-billing/internal/domain/ports/adapter"
	"character-chat-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ CheckoutUseCase = (*checkoutUC)(nil)

type CheckoutUseCase interface {
	// BuildSession resolves the price for a purchase intent and creates a
	// hosted checkout session on the gateway. Nothing is persisted locally;
	// state lives in the gateway until reconciliation.
	BuildSession(ctx context.Context, intent model.PurchaseIntent) (*model.CheckoutSession, error)
}

type checkoutUC struct {
	plans      repository.PlanRepository
	gateway    adapter.CheckoutGateway
	successURL string
	cancelURL  string
	log        *zerolog.Logger
}

func NewCheckoutUseCase(plans repository.PlanRepository, gateway adapter.CheckoutGateway, successURL, cancelURL string, logger *zerolog.Logger) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{plans: plans, gateway: gateway, successURL: successURL, cancelURL: cancelURL, log: &l}
}

func (u *checkoutUC) BuildSession(ctx context.Context, intent model.PurchaseIntent) (*model.CheckoutSession, error) {
	var (
		price       float64
		currency    = intent.Currency
		description string
		system      = map[string]string{
			"type":   string(intent.Kind),
			"userId": intent.UserID,
		}
	)

	switch intent.Kind {
	case model.PurchaseKindSubscription:
		plan, err := u.plans.FindByID(ctx, nil, intent.PlanID)
		if err != nil {
			return nil, err
		}
		price = plan.Price
		if currency == "" {
			currency = plan.Currency
		}
		description = fmt.Sprintf("%s subscription (%d days)", plan.Name, plan.DurationDays)
		system["planId"] = plan.ID
		system["planName"] = plan.Name
		system["planDuration"] = strconv.Itoa(plan.DurationDays)
	case model.PurchaseKindTokenPack:
		if intent.TokenAmount <= 0 {
			return nil, domain.ErrInvalidAmount
		}
		price = intent.UnitPrice
		description = fmt.Sprintf("%d token pack", intent.TokenAmount)
		system["tokenAmount"] = strconv.FormatInt(intent.TokenAmount, 10)
	default:
		return nil, domain.ErrInvalidArgument
	}

	if !model.ValidPrice(price) {
		return nil, domain.ErrInvalidPrice
	}
	system["price"] = strconv.FormatFloat(price, 'f', 2, 64)

	// Caller metadata first, system fields second: callers must never be able
	// to overwrite userId or type.
	md := make(map[string]string, len(intent.Metadata)+len(system))
	for k, v := range intent.Metadata {
		md[k] = v
	}
	for k, v := range system {
		md[k] = v
	}

	sess, err := u.gateway.CreateSession(ctx, adapter.CreateSessionParams{
		AmountMinor: int64(math.Round(price * 100)),
		Currency:    currency,
		Description: description,
		SuccessURL:  u.successURL,
		CancelURL:   u.cancelURL,
		CustomerRef: intent.Email,
		Metadata:    md,
	})
	if err != nil {
		return nil, err
	}

	u.log.Info().Str("session_id", sess.ID).Str("kind", string(intent.Kind)).Msg("checkout session created")
	return sess, nil
}
