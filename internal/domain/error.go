package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid exec context")
	ErrInvalidTransition  = errors.New("invalid purchase status transition")
	ErrTransactionClash   = errors.New("purchase already completed with a different transaction")
	ErrAmountMismatch     = errors.New("purchase amount does not match plan price")
	ErrGatewayTimeout     = errors.New("payment gateway timed out")
	ErrLockBusy           = errors.New("lock is held by another worker")
)

// ValidationError reports malformed or missing buyer input. It is recovered
// locally by the caller (inline message, blocked submission).
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Msg: msg, Err: ErrInvalidArgument}
}

// ConfigurationError is returned before any external session is created when
// the gateway settings are incomplete or unusable.
type ConfigurationError struct {
	Missing []string
	Invalid []string // "key: reason"
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "payment gateway not configured: " + strings.Join(parts, "; ")
}

// PersistenceError carries the backing store's message verbatim.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return e.Op + " failed"
	}
	return e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PaymentGatewayError is a non-success answer (or no answer) from the gateway.
// Message is the vendor's text, surfaced as-is.
type PaymentGatewayError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *PaymentGatewayError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("payment gateway returned status %d", e.StatusCode)
}

func (e *PaymentGatewayError) Unwrap() error { return e.Err }

// ReconciliationError means local bookkeeping failed after the gateway may
// already have captured the money. Never present it as a failed payment.
type ReconciliationError struct {
	PurchaseID    string
	TransactionID string
	Err           error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile transaction %s (purchase %s): %v", e.TransactionID, e.PurchaseID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }
