package domain

import "errors"

var (
	ErrTransactionNotFound   = errors.New("payment transaction not found")
	ErrTransactionConflict   = errors.New("payment transaction modified concurrently")
	ErrPaymentMethodRequired = errors.New("payment method is required")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrCurrencyRequired      = errors.New("currency is required")
	ErrMethodNotRegistered   = errors.New("payment method not registered")
	ErrActionNotSupported    = errors.New("action not supported by payment method")
)
