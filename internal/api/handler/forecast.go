package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marlow/finreporter/internal/service"
)

// ForecastHandler handles revenue forecast endpoints.
type ForecastHandler struct {
	forecasts *service.ForecastService
}

// NewForecastHandler creates a new forecast handler.
func NewForecastHandler(forecasts *service.ForecastService) *ForecastHandler {
	return &ForecastHandler{forecasts: forecasts}
}

// Get handles GET /api/v1/forecast/:ticker. An optional quarters query
// parameter switches the projection to that many quarterly periods.
func (h *ForecastHandler) Get(c *gin.Context) {
	quarters := 0
	if q := c.Query("quarters"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > service.MaxForecastQuarters {
			respondError(c, http.StatusBadRequest, "Invalid request",
				fmt.Sprintf("quarters must be an integer between 1 and %d", service.MaxForecastQuarters))
			return
		}
		quarters = n
	}

	forecast, err := h.forecasts.Forecast(c.Request.Context(), c.Param("ticker"), quarters)
	if errors.Is(err, service.ErrTickerNotFound) {
		respondError(c, http.StatusNotFound, "Not found", "No financial data for ticker")
		return
	}
	if err != nil {
		respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, forecast)
}
