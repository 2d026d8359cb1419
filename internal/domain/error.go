package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid db execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Payment session errors
	ErrSessionNotFound     = errors.New("payment session not found or expired")
	ErrSessionClosed       = errors.New("payment session already closed")
	ErrUnknownPlan         = errors.New("unknown subscription plan")
	ErrGatewayUnavailable  = errors.New("card payment gateway unavailable")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by provider yet")
	ErrStoreWriteFailed    = errors.New("subscription store write failed")
	ErrPaymentMismatch     = errors.New("payment does not match session")

	// Infra signals
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrProcedureUnavailable = errors.New("stored procedure unavailable")
	ErrNotInGroup           = errors.New("user is not a group member")
	ErrLocked               = errors.New("resource is locked")
)
