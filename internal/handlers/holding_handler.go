package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "cryptofolio/internal/errors"
	"cryptofolio/internal/pagination"
	"cryptofolio/internal/services"
)

// HoldingHandler handles holding-related requests.
type HoldingHandler struct {
	portfolioService services.PortfolioServicer
}

// NewHoldingHandler creates a new HoldingHandler.
func NewHoldingHandler(portfolioService services.PortfolioServicer) *HoldingHandler {
	return &HoldingHandler{portfolioService: portfolioService}
}

// AddCoinRequest represents the request payload for adding a coin.
// Amount is a pointer so that an explicit 0 ("tracked but empty") is
// distinguishable from a missing field.
type AddCoinRequest struct {
	Name   string   `json:"name" binding:"required,coin_id"`
	Amount *float64 `json:"amount" binding:"required,gte=0"`
}

// CreateHolding handles adding a coin to the caller's portfolio.
// @Summary     Add coin
// @Description Add a coin position; adding an already-tracked coin merges into the existing holding using weighted-average cost
// @Tags        coins
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body AddCoinRequest true "Coin name and amount"
// @Success     201 {object} models.Holding "Created or merged holding"
// @Failure     400 {object} ErrorResponse "Invalid amount, unknown coin, or missing field"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Market data source unavailable"
// @Router      /coins [post]
func (h *HoldingHandler) CreateHolding(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddCoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	holding, err := h.portfolioService.AddCoin(c.Request.Context(), userID, req.Name, decimal.NewFromFloat(*req.Amount))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"holding": holding})
}

// GetHoldings handles listing the caller's holdings.
// @Summary     List holdings
// @Description Get a paginated list of the caller's holdings
// @Tags        coins
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Holding] "Paginated holdings"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /coins [get]
func (h *HoldingHandler) GetHoldings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.portfolioService.GetHoldings(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// DeleteHoldings handles removing one or more coins from the caller's portfolio.
// @Summary     Delete holdings
// @Description Remove one or more coins (comma-separated names) from the caller's portfolio
// @Tags        coins
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       names path string true "Comma-separated coin names"
// @Success     204 "Holdings removed"
// @Failure     400 {object} ErrorResponse "No matching holding"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Market data source unavailable"
// @Router      /coins/{names} [delete]
func (h *HoldingHandler) DeleteHoldings(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	names := strings.Split(c.Param("names"), ",")
	if err := h.portfolioService.RemoveCoins(c.Request.Context(), userID, names); err != nil {
		respondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetAvailableCoins handles listing the upstream coin catalog.
// @Summary     List available coins
// @Description Get the names of all coins known to the upstream price source
// @Tags        coins
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]string "Available coin names"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     502 {object} ErrorResponse "Market data source unavailable"
// @Router      /coins/available [get]
func (h *HoldingHandler) GetAvailableCoins(c *gin.Context) {
	if _, err := getUserID(c); err != nil {
		respondWithError(c, err)
		return
	}

	names, err := h.portfolioService.ListAvailableCoins(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available_coins": names})
}
