package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidPrice        = errors.New("resolved price is not a positive finite number")
	ErrInvalidAmount       = errors.New("token amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrUserNotFound        = errors.New("no user matches the gateway email")
	ErrDuplicateCredit     = errors.New("credit already applied for this payment")
	ErrSessionNotPaid      = errors.New("checkout session is not paid")
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrSignatureMismatch   = errors.New("webhook signature mismatch")

	// Infra execution errors
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
