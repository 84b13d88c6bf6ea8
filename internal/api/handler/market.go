package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/marlow/finreporter/internal/service"
)

// MarketHandler handles company financial data endpoints.
type MarketHandler struct {
	market *service.MarketService
}

// NewMarketHandler creates a new market data handler.
func NewMarketHandler(market *service.MarketService) *MarketHandler {
	return &MarketHandler{market: market}
}

// List handles GET /api/v1/financial-data, optionally filtered by company
// name substring or exact ticker. A rate-limited upstream shows up as a
// single payload carrying the rate-limit error, not an HTTP error.
func (h *MarketHandler) List(c *gin.Context) {
	results, err := h.market.List(c.Request.Context(), c.Query("company"), c.Query("ticker"))
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetByID handles GET /api/v1/financial-data/:id, where the ID is the
// ticker symbol.
func (h *MarketHandler) GetByID(c *gin.Context) {
	data, err := h.market.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, service.ErrTickerNotFound) {
		respondError(c, http.StatusNotFound, "Not found", "Financial data not found")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
