package models

import (
	"time"

	"cryptofolio/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PortfolioSummary is the single aggregate record per user. It is replaced
// (deleted and re-inserted) on every holding mutation, never patched — no
// Base embed, no soft deletes.
type PortfolioSummary struct {
	ID     string `gorm:"type:uuid;primaryKey" json:"id"`
	UserID string `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	TotalValue             decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_value"`
	TotalProfitLoss        decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_profit_loss"`
	TotalProfitLossPercent decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_profit_loss_percent"`

	// Reserved: never computed, always zero.
	TotalProfitLoss24h        decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_profit_loss_24h"`
	TotalProfitLossPercent24h decimal.Decimal `gorm:"type:numeric(24,8);not null" json:"total_profit_loss_percent_24h"`

	RecordedAt time.Time `gorm:"not null" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PortfolioSummary) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
