package repository

import (
	"context"

	"character-chat-billing/internal/domain/model"
)

// UserRepository is the read-side port into the account directory.
type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	// ListPremium pages through users eligible for the monthly grant.
	ListPremium(ctx context.Context, tx Tx, offset, limit int) ([]*model.User, error)
}
