package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"cryptofolio/internal/coingecko"
	apperrors "cryptofolio/internal/errors"
	"cryptofolio/internal/models"
	"cryptofolio/internal/pagination"
	"cryptofolio/internal/testutil"
)

// --- stub price gateway ---

type stubGateway struct {
	prices map[string]coingecko.PriceInfo
	coins  []coingecko.Coin
	err    error

	getPriceCalls  int
	getPricesCalls int
}

func price(usd, change float64) coingecko.PriceInfo {
	return coingecko.PriceInfo{
		PriceUSD:         decimal.NewFromFloat(usd),
		Change24hPercent: decimal.NewFromFloat(change),
	}
}

func (g *stubGateway) GetPrice(ctx context.Context, id string) (coingecko.PriceInfo, error) {
	g.getPriceCalls++
	if g.err != nil {
		return coingecko.PriceInfo{}, g.err
	}
	info, ok := g.prices[coingecko.NormalizeID(id)]
	if !ok {
		return coingecko.PriceInfo{}, apperrors.ErrCoinNotFound
	}
	return info, nil
}

func (g *stubGateway) GetPrices(ctx context.Context, ids []string) (map[string]coingecko.PriceInfo, error) {
	g.getPricesCalls++
	if g.err != nil {
		return nil, g.err
	}
	result := make(map[string]coingecko.PriceInfo, len(ids))
	for _, id := range ids {
		id = coingecko.NormalizeID(id)
		info, ok := g.prices[id]
		if !ok {
			return nil, apperrors.ErrCoinNotFound
		}
		result[id] = info
	}
	return result, nil
}

func (g *stubGateway) ListCoins(ctx context.Context) ([]coingecko.Coin, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.coins, nil
}

func amt(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestAddCoin(t *testing.T) {
	t.Run("creates_holding", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, -1.5)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		holding, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(3))
		testutil.AssertNoError(t, err)

		if holding.Name != "bitcoin" {
			t.Errorf("expected name bitcoin, got %s", holding.Name)
		}
		testutil.AssertDecimalEqual(t, "price", holding.Price, "20000")
		testutil.AssertDecimalEqual(t, "amount", holding.Amount, "3")
		testutil.AssertDecimalEqual(t, "worth", holding.Worth, "60000")
		testutil.AssertDecimalEqual(t, "24h change", holding.ProfitLossPercent24h, "-1.5")
		testutil.AssertDecimalEqual(t, "participation", holding.ParticipationInPortfolio, "100")
		if holding.LastUpdate.IsZero() {
			t.Error("expected last_update to be set")
		}

		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "60000")
	})

	t.Run("merges_with_weighted_average", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(3))
		testutil.AssertNoError(t, err)

		// Price moves before the second add.
		gw.prices["bitcoin"] = price(22000, 2.1)

		holding, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)

		// round(3*20000 + 2*22000, 2) / 5 = 20800
		testutil.AssertDecimalEqual(t, "amount", holding.Amount, "5")
		testutil.AssertDecimalEqual(t, "price", holding.Price, "20800")
		// 60000 + 22000*2
		testutil.AssertDecimalEqual(t, "worth", holding.Worth, "104000")
		testutil.AssertDecimalEqual(t, "24h change", holding.ProfitLossPercent24h, "2.1")

		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userID).Count(&count)
		if count != 1 {
			t.Errorf("expected 1 holding row after merge, got %d", count)
		}

		// Live repricing: 22000*5 - 104000 = 6000
		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "104000")
		testutil.AssertDecimalEqual(t, "total profit loss", summary.TotalProfitLoss, "6000")
		testutil.AssertDecimalEqual(t, "total profit loss percent", summary.TotalProfitLossPercent, "5.77")
	})

	t.Run("merges_any_casing_and_whitespace", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		for _, variant := range []string{"bitcoin", "BITCOIN", "BiTcOiN", " bitcoin", "BITCOIN "} {
			_, err := svc.AddCoin(context.Background(), userID, variant, amt(1))
			testutil.AssertNoError(t, err)
		}

		var holdings []models.Holding
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).Find(&holdings).Error)
		if len(holdings) != 1 {
			t.Fatalf("expected 1 holding row, got %d", len(holdings))
		}
		testutil.AssertDecimalEqual(t, "amount", holdings[0].Amount, "5")
	})

	t.Run("rejects_negative_amount_before_fetching", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(-1))
		testutil.AssertAppError(t, err, "INVALID_AMOUNT")

		if gw.getPriceCalls != 0 || gw.getPricesCalls != 0 {
			t.Errorf("expected no gateway calls, got %d/%d", gw.getPriceCalls, gw.getPricesCalls)
		}
		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userID).Count(&count)
		if count != 0 {
			t.Errorf("expected no holding rows, got %d", count)
		}
	})

	t.Run("amount_zero_is_tracked_but_empty", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		holding, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(0))
		testutil.AssertNoError(t, err)

		testutil.AssertDecimalEqual(t, "amount", holding.Amount, "0")
		testutil.AssertDecimalEqual(t, "worth", holding.Worth, "0")
		testutil.AssertDecimalEqual(t, "participation", holding.ParticipationInPortfolio, "0")

		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "0")
		testutil.AssertDecimalEqual(t, "total profit loss percent", summary.TotalProfitLossPercent, "0")
	})

	t.Run("zero_total_merge_keeps_prior_price", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(0))
		testutil.AssertNoError(t, err)

		// Price moves, another zero add: 0/0 must not divide.
		gw.prices["bitcoin"] = price(25000, 0)
		holding, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(0))
		testutil.AssertNoError(t, err)

		testutil.AssertDecimalEqual(t, "price", holding.Price, "20000")
		testutil.AssertDecimalEqual(t, "amount", holding.Amount, "0")
	})

	t.Run("unknown_coin", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "dogelon-mars-inu", amt(1))
		testutil.AssertAppError(t, err, "COIN_NOT_FOUND")

		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userID).Count(&count)
		if count != 0 {
			t.Errorf("expected no holding rows, got %d", count)
		}
	})

	t.Run("upstream_unavailable", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{err: apperrors.ErrUpstreamUnavailable}
		svc := NewPortfolioService(db, gw)

		_, err := svc.AddCoin(context.Background(), testutil.NewTestUserID(), "bitcoin", amt(1))
		testutil.AssertAppError(t, err, "UPSTREAM_UNAVAILABLE")
	})

	t.Run("blank_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, &stubGateway{})

		_, err := svc.AddCoin(context.Background(), testutil.NewTestUserID(), "   ", amt(1))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestParticipationPercentages(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	gw := &stubGateway{prices: map[string]coingecko.PriceInfo{
		"bitcoin":  price(1000, 0),
		"ethereum": price(3000, 0),
	}}
	svc := NewPortfolioService(db, gw)
	userID := testutil.NewTestUserID()

	_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(1))
	testutil.AssertNoError(t, err)
	_, err = svc.AddCoin(context.Background(), userID, "ethereum", amt(1))
	testutil.AssertNoError(t, err)

	var holdings []models.Holding
	testutil.AssertNoError(t, db.Where("user_id = ?", userID).Order("name ASC").Find(&holdings).Error)
	if len(holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(holdings))
	}
	testutil.AssertDecimalEqual(t, "bitcoin participation", holdings[0].ParticipationInPortfolio, "25")
	testutil.AssertDecimalEqual(t, "ethereum participation", holdings[1].ParticipationInPortfolio, "75")

	sum := holdings[0].ParticipationInPortfolio.Add(holdings[1].ParticipationInPortfolio)
	testutil.AssertDecimalEqual(t, "participation sum", sum, "100")

	var summary models.PortfolioSummary
	testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
	testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "4000")
}

func TestUserIsolation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(20000, 0)}}
	svc := NewPortfolioService(db, gw)
	userA := testutil.NewTestUserID()
	userB := testutil.NewTestUserID()

	_, err := svc.AddCoin(context.Background(), userA, "bitcoin", amt(3))
	testutil.AssertNoError(t, err)

	listB, err := svc.GetHoldings(userB, pagination.PageRequest{})
	testutil.AssertNoError(t, err)
	if len(listB.Data) != 0 {
		t.Errorf("expected user B to see no holdings, got %d", len(listB.Data))
	}

	summaryB, err := svc.GetSummary(userB)
	testutil.AssertNoError(t, err)
	testutil.AssertDecimalEqual(t, "user B total value", summaryB.TotalValue, "0")

	listA, err := svc.GetHoldings(userA, pagination.PageRequest{})
	testutil.AssertNoError(t, err)
	if len(listA.Data) != 1 {
		t.Errorf("expected user A to see 1 holding, got %d", len(listA.Data))
	}
}

func TestRemoveCoins(t *testing.T) {
	t.Run("removes_and_recomputes", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{
			"bitcoin":  price(1000, 0),
			"ethereum": price(3000, 0),
		}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(1))
		testutil.AssertNoError(t, err)
		_, err = svc.AddCoin(context.Background(), userID, "ethereum", amt(1))
		testutil.AssertNoError(t, err)

		testutil.AssertNoError(t, svc.RemoveCoins(context.Background(), userID, []string{"bitcoin"}))

		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userID).Count(&count)
		if count != 1 {
			t.Errorf("expected 1 holding after delete, got %d", count)
		}

		// Summary is recomputed from the remaining set.
		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "3000")

		var remaining models.Holding
		testutil.AssertNoError(t, db.Where("user_id = ? AND name = ?", userID, "ethereum").First(&remaining).Error)
		testutil.AssertDecimalEqual(t, "participation", remaining.ParticipationInPortfolio, "100")
	})

	t.Run("removing_last_coin_zeroes_summary", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(1000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)
		testutil.AssertNoError(t, svc.RemoveCoins(context.Background(), userID, []string{"bitcoin"}))

		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "0")
		testutil.AssertDecimalEqual(t, "total profit loss", summary.TotalProfitLoss, "0")
	})

	t.Run("unknown_name_leaves_portfolio_unchanged", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(1000, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)

		err = svc.RemoveCoins(context.Background(), userID, []string{"cardano"})
		testutil.AssertAppError(t, err, "HOLDING_NOT_FOUND")

		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userID).Count(&count)
		if count != 1 {
			t.Errorf("expected holding to survive failed delete, got %d rows", count)
		}
		var summary models.PortfolioSummary
		testutil.AssertNoError(t, db.Where("user_id = ?", userID).First(&summary).Error)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "2000")
	})

	t.Run("cannot_remove_other_users_holding", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(1000, 0)}}
		svc := NewPortfolioService(db, gw)
		userA := testutil.NewTestUserID()
		userB := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userA, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)

		err = svc.RemoveCoins(context.Background(), userB, []string{"bitcoin"})
		testutil.AssertAppError(t, err, "HOLDING_NOT_FOUND")

		var count int64
		db.Model(&models.Holding{}).Where("user_id = ?", userA).Count(&count)
		if count != 1 {
			t.Errorf("expected user A's holding untouched, got %d rows", count)
		}
	})

	t.Run("empty_selector", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, &stubGateway{})

		err := svc.RemoveCoins(context.Background(), testutil.NewTestUserID(), []string{"  ", ""})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestSummaryLifecycle(t *testing.T) {
	t.Run("replace_keeps_singleton", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{
			"bitcoin":  price(1000, 0),
			"ethereum": price(3000, 0),
			"cardano":  price(2, 0),
		}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		for _, name := range []string{"bitcoin", "ethereum", "cardano", "bitcoin"} {
			_, err := svc.AddCoin(context.Background(), userID, name, amt(1))
			testutil.AssertNoError(t, err)
		}

		var count int64
		db.Model(&models.PortfolioSummary{}).Where("user_id = ?", userID).Count(&count)
		if count != 1 {
			t.Errorf("expected exactly 1 summary row, got %d", count)
		}
	})

	t.Run("recompute_is_idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(1500, 0)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)

		first, err := svc.RecomputeSummary(context.Background(), userID)
		testutil.AssertNoError(t, err)
		second, err := svc.RecomputeSummary(context.Background(), userID)
		testutil.AssertNoError(t, err)

		if !first.TotalValue.Equal(second.TotalValue) ||
			!first.TotalProfitLoss.Equal(second.TotalProfitLoss) ||
			!first.TotalProfitLossPercent.Equal(second.TotalProfitLossPercent) {
			t.Errorf("expected idempotent recompute, got %+v then %+v", first, second)
		}
	})

	t.Run("summary_before_any_write_is_zero_valued", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewPortfolioService(db, &stubGateway{})

		summary, err := svc.GetSummary(testutil.NewTestUserID())
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, "total value", summary.TotalValue, "0")
		testutil.AssertDecimalEqual(t, "total profit loss", summary.TotalProfitLoss, "0")
	})

	t.Run("reserved_24h_fields_stay_zero", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		gw := &stubGateway{prices: map[string]coingecko.PriceInfo{"bitcoin": price(1500, 4.2)}}
		svc := NewPortfolioService(db, gw)
		userID := testutil.NewTestUserID()

		_, err := svc.AddCoin(context.Background(), userID, "bitcoin", amt(2))
		testutil.AssertNoError(t, err)

		summary, err := svc.GetSummary(userID)
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, "24h profit loss", summary.TotalProfitLoss24h, "0")
		testutil.AssertDecimalEqual(t, "24h profit loss percent", summary.TotalProfitLossPercent24h, "0")
	})
}

func TestGetHoldingsPagination(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	gw := &stubGateway{prices: map[string]coingecko.PriceInfo{
		"bitcoin":  price(1000, 0),
		"cardano":  price(2, 0),
		"ethereum": price(3000, 0),
	}}
	svc := NewPortfolioService(db, gw)
	userID := testutil.NewTestUserID()

	for _, name := range []string{"bitcoin", "cardano", "ethereum"} {
		_, err := svc.AddCoin(context.Background(), userID, name, amt(1))
		testutil.AssertNoError(t, err)
	}

	result, err := svc.GetHoldings(userID, pagination.PageRequest{Page: 1, PageSize: 2})
	testutil.AssertNoError(t, err)
	if len(result.Data) != 2 {
		t.Errorf("expected 2 holdings on first page, got %d", len(result.Data))
	}
	if result.TotalItems != 3 {
		t.Errorf("expected 3 total items, got %d", result.TotalItems)
	}
	if result.TotalPages != 2 {
		t.Errorf("expected 2 total pages, got %d", result.TotalPages)
	}
}

func TestListAvailableCoins(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	gw := &stubGateway{coins: []coingecko.Coin{
		{ID: "bitcoin", Symbol: "btc", Name: "Bitcoin"},
		{ID: "ethereum", Symbol: "eth", Name: "Ethereum"},
	}}
	svc := NewPortfolioService(db, gw)

	names, err := svc.ListAvailableCoins(context.Background())
	testutil.AssertNoError(t, err)
	if len(names) != 2 || names[0] != "Bitcoin" || names[1] != "Ethereum" {
		t.Errorf("unexpected coin names: %v", names)
	}
}
