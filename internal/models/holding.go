package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding represents a user's tracked position in one cryptocurrency.
// There is exactly one row per (user, normalized coin name); adding the same
// coin again merges into the existing row instead of duplicating it.
type Holding struct {
	Base
	UserID string `gorm:"type:uuid;not null;uniqueIndex:uq_holdings_user_name" json:"user_id"`

	// Name is the coin identifier, stored lower-cased and trimmed.
	// DisplayName preserves the casing the user first supplied.
	Name        string `gorm:"not null;uniqueIndex:uq_holdings_user_name" json:"name"`
	DisplayName string `gorm:"not null" json:"display_name"`

	// Price is the weighted-average acquisition price in USD.
	Price  decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"price"`
	Amount decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"amount"`

	// Worth accumulates fetched_price x amount at each add; it is the
	// holding's cost reference, not a live market value.
	Worth decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"worth"`

	// ProfitLossPercent24h is the most recent 24h change percent reported by
	// the market data source, not derived from Worth.
	ProfitLossPercent24h decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"profit_loss_percent_24h"`

	// ParticipationInPortfolio is this holding's share of the user's total
	// portfolio worth, as a percentage, at the last recompute.
	ParticipationInPortfolio decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"participation_in_portfolio"`

	LastUpdate time.Time `gorm:"not null" json:"last_update"`
}
