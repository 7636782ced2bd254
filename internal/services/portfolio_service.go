package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cryptofolio/internal/coingecko"
	apperrors "cryptofolio/internal/errors"
	"cryptofolio/internal/models"
	"cryptofolio/internal/pagination"
)

var oneHundred = decimal.NewFromInt(100)

// portfolioService implements the portfolio accounting logic: weighted-average
// cost merging, participation percentages, and live-repriced profit/loss.
type portfolioService struct {
	db     *gorm.DB
	prices PriceGateway
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB, prices PriceGateway) PortfolioServicer {
	return &portfolioService{db: db, prices: prices}
}

// AddCoin creates or merges a holding and replaces the user's portfolio
// summary, all in one transaction. The amount is validated before any
// upstream call is made.
func (s *portfolioService) AddCoin(ctx context.Context, userID, name string, amount decimal.Decimal) (*models.Holding, error) {
	if amount.IsNegative() {
		return nil, apperrors.ErrInvalidAmount
	}

	displayName := strings.TrimSpace(name)
	coinID := coingecko.NormalizeID(name)
	if coinID == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Coin name is required")
	}

	info, err := s.prices.GetPrice(ctx, coinID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var holding models.Holding

	err = s.db.Transaction(func(tx *gorm.DB) error {
		// Row lock serializes concurrent adds of the same (user, coin).
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND name = ?", userID, coinID).
			First(&holding).Error

		switch {
		case err == nil:
			mergeHolding(&holding, amount, info, now)
			if txErr := tx.Save(&holding).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			holding = models.Holding{
				UserID:               userID,
				Name:                 coinID,
				DisplayName:          displayName,
				Price:                info.PriceUSD,
				Amount:               amount,
				Worth:                info.PriceUSD.Mul(amount),
				ProfitLossPercent24h: info.Change24hPercent,
				LastUpdate:           now,
			}
			if txErr := tx.Create(&holding).Error; txErr != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
			}
		default:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		if _, txErr := s.recomputeAggregates(ctx, tx, userID, now); txErr != nil {
			return txErr
		}

		// Reload so the response carries the recomputed participation.
		if txErr := tx.Where("user_id = ? AND name = ?", userID, coinID).First(&holding).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &holding, nil
}

// mergeHolding applies the weighted-average cost rule to an existing holding:
//
//	new_price = round(amount_before*price_before + to_add*fetched, 2) / (amount_before + to_add)
//
// When both amounts are zero the prior average price is kept; amount zero is a
// legal "tracked but empty" state, not an error.
func mergeHolding(h *models.Holding, toAdd decimal.Decimal, info coingecko.PriceInfo, now time.Time) {
	total := h.Amount.Add(toAdd)
	if !total.IsZero() {
		numerator := h.Amount.Mul(h.Price).Add(toAdd.Mul(info.PriceUSD))
		h.Price = numerator.Round(2).Div(total)
	}
	h.Amount = total
	h.Worth = h.Worth.Add(info.PriceUSD.Mul(toAdd))
	h.ProfitLossPercent24h = info.Change24hPercent
	h.LastUpdate = now
}

// GetHoldings returns a paginated list of the user's holdings.
func (s *portfolioService) GetHoldings(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Holding{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var holdings []models.Holding
	if err := s.db.Where("user_id = ?", userID).Order("name ASC").
		Scopes(pagination.Paginate(page)).Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(holdings, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// RemoveCoins deletes the user's holdings matching the given names and
// replaces the portfolio summary. Fails with HOLDING_NOT_FOUND, leaving the
// portfolio untouched, when no name resolves to an owned holding.
func (s *portfolioService) RemoveCoins(ctx context.Context, userID string, names []string) error {
	ids := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		id := coingecko.NormalizeID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "No coin names given")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND name IN ?", userID, ids).Delete(&models.Holding{})
		if res.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrHoldingNotFound
		}

		_, err := s.recomputeAggregates(ctx, tx, userID, time.Now())
		return err
	})
}

// GetSummary returns the user's current portfolio summary. A user with no
// recorded writes gets a zero-valued summary; an empty portfolio is a valid
// state of the aggregate, not a missing resource.
func (s *portfolioService) GetSummary(userID string) (*models.PortfolioSummary, error) {
	var summary models.PortfolioSummary
	err := s.db.Where("user_id = ?", userID).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PortfolioSummary{UserID: userID, RecordedAt: time.Now()}, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &summary, nil
}

// RecomputeSummary recomputes the user's aggregates from the current holdings
// set and replaces the summary row.
func (s *portfolioService) RecomputeSummary(ctx context.Context, userID string) (*models.PortfolioSummary, error) {
	var summary *models.PortfolioSummary
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		summary, txErr = s.recomputeAggregates(ctx, tx, userID, time.Now())
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ListAvailableCoins returns the names of all coins in the upstream catalog.
func (s *portfolioService) ListAvailableCoins(ctx context.Context) ([]string, error) {
	coins, err := s.prices.ListCoins(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(coins))
	for i, coin := range coins {
		names[i] = coin.Name
	}
	return names, nil
}

// recomputeAggregates recalculates participation percentages for every holding
// and replaces the user's summary row, all within the caller's transaction.
//
// total_value sums each holding's worth rounded to 2 decimals. Profit/loss
// compares a live repricing of the whole set (one batched gateway call)
// against total_value. The 24h summary fields are reserved and stay zero.
func (s *portfolioService) recomputeAggregates(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (*models.PortfolioSummary, error) {
	var holdings []models.Holding
	if err := tx.Where("user_id = ?", userID).Order("name ASC").Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	totalValue := decimal.Zero
	for i := range holdings {
		totalValue = totalValue.Add(holdings[i].Worth.Round(2))
	}

	// Single pass keyed by row identity.
	for i := range holdings {
		participation := decimal.Zero
		if !totalValue.IsZero() {
			participation = holdings[i].Worth.Mul(oneHundred).Div(totalValue).Round(2)
		}
		if err := tx.Model(&holdings[i]).
			Update("participation_in_portfolio", participation).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	totalProfitLoss := decimal.Zero
	totalProfitLossPercent := decimal.Zero
	if len(holdings) > 0 {
		ids := make([]string, len(holdings))
		for i := range holdings {
			ids[i] = holdings[i].Name
		}
		current, err := s.prices.GetPrices(ctx, ids)
		if err != nil {
			return nil, err
		}

		repriced := decimal.Zero
		for i := range holdings {
			repriced = repriced.Add(current[holdings[i].Name].PriceUSD.Mul(holdings[i].Amount))
		}
		totalProfitLoss = repriced.Sub(totalValue)
		if !totalValue.IsZero() {
			totalProfitLossPercent = totalProfitLoss.Mul(oneHundred).Div(totalValue).Round(2)
		}
	}

	// Replace, never patch: at most one summary row per user at any time.
	if err := tx.Where("user_id = ?", userID).Delete(&models.PortfolioSummary{}).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	summary := &models.PortfolioSummary{
		UserID:                 userID,
		TotalValue:             totalValue,
		TotalProfitLoss:        totalProfitLoss,
		TotalProfitLossPercent: totalProfitLossPercent,
		RecordedAt:             now,
	}
	if err := tx.Create(summary).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return summary, nil
}
