package service

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrExpired        = errors.New("order expired")
	ErrWindowExpired  = errors.New("refund window expired")
	ErrInvalidAmount  = errors.New("invalid refund amount")
	ErrSignature      = errors.New("invalid webhook signature")
	ErrNotRunning     = errors.New("plugin is not running")
	ErrCapacity       = errors.New("plugin execution capacity exceeded")
	ErrTimeout        = errors.New("execution timed out")
	ErrConflict       = errors.New("concurrent modification")
	ErrPaymentFailed  = errors.New("payment failed")
	ErrAlreadyExists  = errors.New("already exists")
	ErrGatewayMissing = errors.New("no gateway serves the payment method")
)
