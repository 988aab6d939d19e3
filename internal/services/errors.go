package services

import "errors"

var (
	// ErrMalformedRequest means the submission body could not be decoded or is incomplete
	ErrMalformedRequest = errors.New("malformed request")
	// ErrConfiguration means a required secret or setting is missing
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound means the referenced transaction does not exist
	ErrNotFound = errors.New("not found")
	// ErrPersistence means a store write was not confirmed
	ErrPersistence = errors.New("persistence error")
	// ErrExternalService covers notification, email, storage and render failures
	ErrExternalService = errors.New("external service error")
	// ErrLedger means the wallet credit failed; reconciliation must abort
	ErrLedger = errors.New("ledger error")
	// ErrInvalidRate means the exchange rate cannot be used for conversion
	ErrInvalidRate = errors.New("invalid exchange rate")
	// ErrInsufficientBalance means a debit would take the wallet below zero
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrStatusConflict means the transaction left the settleable states concurrently
	ErrStatusConflict = errors.New("transaction status changed concurrently")
)
