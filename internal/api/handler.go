package api

import (
	"errors"
	"net/http"
	"topup-api/internal/config"
	"topup-api/internal/services"
)

// Handler carries the services the HTTP endpoints call
type Handler struct {
	Config     *config.Config
	Intake     *services.PaymentIntake
	Reconciler *services.Reconciler
	SiteConfig *services.SiteConfigService
	Store      *services.TransactionStore
	Ledger     *services.WalletLedger
	Purchase   *services.WalletPurchase
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	}
	return http.StatusInternalServerError
}

// publicMessage is what the caller sees for err; internals stay in the logs
func publicMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrMalformedRequest):
		return err.Error()
	case errors.Is(err, services.ErrNotFound):
		return "Not found"
	case errors.Is(err, services.ErrInsufficientBalance):
		return "Saldo insuficiente"
	case errors.Is(err, services.ErrConfiguration):
		return "Server configuration error"
	case errors.Is(err, services.ErrPersistence):
		return "No se pudo registrar la transacción"
	}
	return "Internal server error"
}
