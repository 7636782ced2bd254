package services

import (
	"context"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/coingecko"
	"cryptofolio/internal/models"
	"cryptofolio/internal/pagination"
)

// PriceGateway is the market data capability injected into the portfolio
// service. It is implemented by coingecko.Client and by fakes in tests.
type PriceGateway interface {
	// GetPrice returns current price info for one coin id (normalized before lookup).
	GetPrice(ctx context.Context, id string) (coingecko.PriceInfo, error)

	// GetPrices returns price info for a set of coin ids in one upstream request.
	GetPrices(ctx context.Context, ids []string) (map[string]coingecko.PriceInfo, error)

	// ListCoins returns the upstream's full coin catalog.
	ListCoins(ctx context.Context) ([]coingecko.Coin, error)
}

// PortfolioServicer defines the contract for portfolio business logic.
type PortfolioServicer interface {
	// AddCoin creates a holding for the coin, or merges into the existing one
	// using weighted-average cost, then recomputes the portfolio summary.
	AddCoin(ctx context.Context, userID, name string, amount decimal.Decimal) (*models.Holding, error)

	// GetHoldings returns a paginated list of the user's holdings.
	GetHoldings(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Holding], error)

	// RemoveCoins deletes the user's holdings matching the given coin names
	// and recomputes the portfolio summary.
	RemoveCoins(ctx context.Context, userID string, names []string) error

	// GetSummary returns the user's portfolio summary; a zero-valued summary
	// when the user has no holdings yet.
	GetSummary(userID string) (*models.PortfolioSummary, error)

	// RecomputeSummary recomputes and replaces the user's portfolio summary
	// from the current holdings set.
	RecomputeSummary(ctx context.Context, userID string) (*models.PortfolioSummary, error)

	// ListAvailableCoins returns the names of all coins known to the upstream
	// price source.
	ListAvailableCoins(ctx context.Context) ([]string, error)
}
