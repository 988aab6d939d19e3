package api

import (
	"errors"
	"net/http"
	"topup-api/internal/middleware"
	"topup-api/internal/models"
	"topup-api/internal/response"
	"topup-api/internal/services"
	"topup-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// GetWalletBalance returns the caller's balance, creating the wallet on first use
func (h *Handler) GetWalletBalance(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	wallet, err := h.Ledger.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		logging.Errorf("Failed to load wallet for %s: %v", accountID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load balance")
		return
	}

	response.SuccessJSON(c, "", gin.H{
		"account_id": wallet.AccountID,
		"balance":    wallet.Balance.StringFixed(2),
		"currency":   services.BaseCurrency,
	})
}

// PurchaseWithBalance buys a product using the caller's wallet balance
func (h *Handler) PurchaseWithBalance(c *gin.Context) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		response.ErrorJSON(c, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req services.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "Invalid request format: "+err.Error())
		return
	}

	account, err := h.Store.FindAccount(c.Request.Context(), accountID)
	if err != nil {
		if !errors.Is(err, services.ErrNotFound) {
			logging.Errorf("Failed to load account %s: %v", accountID, err)
			response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load account")
			return
		}
		account = &models.Account{ID: accountID, Email: c.GetString(middleware.ContextAccountEmail)}
	}

	result, err := h.Purchase.Purchase(c.Request.Context(), account, req)
	if err != nil {
		response.ErrorJSON(c, statusFor(err), publicMessage(err))
		return
	}

	response.SuccessJSON(c, "Compra registrada", gin.H{
		"transaction_id": result.Transaction.TxID,
		"balance":        result.Balance.StringFixed(2),
		"currency":       services.BaseCurrency,
	})
}
