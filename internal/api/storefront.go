package api

import (
	"errors"
	"net/http"
	"strings"
	"topup-api/internal/response"
	"topup-api/internal/services"
	"topup-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

// GetSiteConfig returns the public storefront settings as a flat object
func (h *Handler) GetSiteConfig(c *gin.Context) {
	cfg, err := h.SiteConfig.Public(c.Request.Context())
	if err != nil {
		logging.Errorf("Failed to load site config: %v", err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load site config")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// GetInvoice returns the stored plain-text invoice of a transaction
func (h *Handler) GetInvoice(c *gin.Context) {
	txID := strings.TrimSpace(c.Query("id"))
	if txID == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "id is required")
		return
	}

	text, err := h.Store.InvoiceText(c.Request.Context(), txID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.String(http.StatusNotFound, "Factura no encontrada")
			return
		}
		logging.Errorf("Failed to load invoice %s: %v", txID, err)
		response.ErrorJSON(c, http.StatusInternalServerError, "Failed to load invoice")
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(text))
}
