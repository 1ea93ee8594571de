package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s, err := NewSeeded(nil)
	require.NoError(t, err)
	return s
}

func TestNextOrderNumberIsUniqueUnderConcurrency(t *testing.T) {
	s := New()
	ctx := context.Background()

	const workers = 50
	seen := make(chan int64, workers)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.NextOrderNumber(ctx)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]struct{}{}
	for n := range seen {
		unique[n] = struct{}{}
	}
	require.Len(t, unique, workers)
}

func TestCreateOrderReservesAllOrNothing(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateOrder(ctx, domain.Order{
		OrderNumber: "ORD-000001",
		RequestType: domain.RequestTypeInvoice,
		Items: []domain.OrderLine{
			{ProductID: "prd_pine_board", Quantity: 5},
			{ProductID: "prd_oak_pillar", Quantity: 6},
		},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	board, err := s.GetProduct(ctx, "prd_pine_board")
	require.NoError(t, err)
	require.Equal(t, 200, board.Stock)
}

func TestCreateQuoteDoesNotReserveStock(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	_, err := s.CreateOrder(ctx, domain.Order{
		OrderNumber: "ORD-000001",
		RequestType: domain.RequestTypeQuote,
		Items:       []domain.OrderLine{{ProductID: "prd_oak_pillar", Quantity: 500}},
	})
	require.NoError(t, err)

	pillar, err := s.GetProduct(ctx, "prd_oak_pillar")
	require.NoError(t, err)
	require.Equal(t, 5, pillar.Stock)
}

func TestUpdateOrderStatusRejectsStaleExpectation(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	order, err := s.CreateOrder(ctx, domain.Order{
		OrderNumber: "ORD-000001",
		Status:      domain.OrderStatusPending,
		RequestType: domain.RequestTypeQuote,
		Items:       []domain.OrderLine{{ProductID: "prd_pine_board", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = s.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusConfirmed, domain.StatusUpdate{Status: domain.OrderStatusProcessing})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestSaveOrderFinancialsRejectsDiscountAppliedMeanwhile(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	now := time.Now().UTC()

	order, err := s.CreateOrder(ctx, domain.Order{
		OrderNumber: "ORD-000001",
		Status:      domain.OrderStatusPending,
		RequestType: domain.RequestTypeQuote,
		Subtotal:    decimal.NewFromInt(100),
		Total:       decimal.NewFromInt(100),
		Items:       []domain.OrderLine{{ProductID: "prd_pine_board", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
	})
	require.NoError(t, err)
	read := domain.FinancialsExpectation{DiscountCode: order.DiscountCode, Subtotal: order.Subtotal, Discount: order.Discount}

	promo, err := s.CreatePromotion(ctx, domain.Promotion{
		Code:          "LATE",
		DiscountType:  domain.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(10),
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		Active:        true,
	})
	require.NoError(t, err)
	_, _, err = s.RedeemPromotion(ctx, domain.RedemptionRequest{
		PromotionID:      promo.ID,
		Code:             promo.Code,
		OrderID:          order.ID,
		UserID:           "usr_customer",
		Discount:         decimal.NewFromInt(10),
		ExpectedSubtotal: decimal.NewFromInt(100),
		At:               now,
	})
	require.NoError(t, err)

	edited := *order
	edited.Tax = decimal.NewFromInt(15)
	edited.Total = decimal.NewFromInt(115)
	_, err = s.SaveOrderFinancials(ctx, edited, read)
	require.ErrorIs(t, err, store.ErrConflict)

	stored, err := s.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "LATE", stored.DiscountCode)
	require.True(t, stored.Discount.Equal(decimal.NewFromInt(10)))
	require.True(t, stored.Total.Equal(decimal.NewFromInt(90)))
}

func TestRedeemPromotionNeverExceedsUsageLimit(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	now := time.Now().UTC()

	limit := 3
	promo, err := s.CreatePromotion(ctx, domain.Promotion{
		Code:          "RUSH",
		DiscountType:  domain.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(10),
		UsageLimit:    &limit,
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		Active:        true,
	})
	require.NoError(t, err)

	const buyers = 10
	orderIDs := make([]string, buyers)
	for i := range buyers {
		order, err := s.CreateOrder(ctx, domain.Order{
			OrderNumber: "ORD-" + string(rune('A'+i)),
			UserID:      "usr_" + string(rune('a'+i)),
			RequestType: domain.RequestTypeQuote,
			Status:      domain.OrderStatusPending,
			Subtotal:    decimal.NewFromInt(100),
			Total:       decimal.NewFromInt(100),
			Items:       []domain.OrderLine{{ProductID: "prd_pine_board", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
		})
		require.NoError(t, err)
		orderIDs[i] = order.ID
	}

	var wg sync.WaitGroup
	for i := range buyers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.RedeemPromotion(ctx, domain.RedemptionRequest{
				PromotionID:      promo.ID,
				Code:             promo.Code,
				OrderID:          orderIDs[i],
				UserID:           "usr_" + string(rune('a'+i)),
				Discount:         decimal.NewFromInt(10),
				ExpectedSubtotal: decimal.NewFromInt(100),
				At:               now,
			})
		}()
	}
	wg.Wait()

	got, err := s.GetPromotion(ctx, promo.ID)
	require.NoError(t, err)
	require.Equal(t, limit, got.UsageCount)
	require.Len(t, got.UsedBy, limit)
}

func TestRedeemPromotionCapsEachCustomerAtOneWhenUnset(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	now := time.Now().UTC()

	promo, err := s.CreatePromotion(ctx, domain.Promotion{
		Code:          "ONCE",
		DiscountType:  domain.DiscountFixedAmount,
		DiscountValue: decimal.NewFromInt(10),
		ValidFrom:     now.Add(-time.Hour),
		ValidUntil:    now.Add(time.Hour),
		Active:        true,
	})
	require.NoError(t, err)

	redeem := func(number string) error {
		order, err := s.CreateOrder(ctx, domain.Order{
			OrderNumber: number,
			UserID:      "usr_repeat",
			RequestType: domain.RequestTypeQuote,
			Status:      domain.OrderStatusPending,
			Subtotal:    decimal.NewFromInt(100),
			Total:       decimal.NewFromInt(100),
			Items:       []domain.OrderLine{{ProductID: "prd_pine_board", Quantity: 1, UnitPrice: decimal.NewFromInt(100)}},
		})
		require.NoError(t, err)
		_, _, err = s.RedeemPromotion(ctx, domain.RedemptionRequest{
			PromotionID:      promo.ID,
			Code:             promo.Code,
			OrderID:          order.ID,
			UserID:           "usr_repeat",
			Discount:         decimal.NewFromInt(10),
			ExpectedSubtotal: decimal.NewFromInt(100),
			At:               now,
		})
		return err
	}

	require.NoError(t, redeem("ORD-R1"))
	require.ErrorIs(t, redeem("ORD-R2"), store.ErrPerCustomerLimitExceeded)
	require.ErrorIs(t, redeem("ORD-R3"), store.ErrPerCustomerLimitExceeded)

	got, err := s.GetPromotion(ctx, promo.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.UsageCount)
}

func TestAnalyticsRangeIsInclusive(t *testing.T) {
	s := New()
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }

	for d := 1; d <= 4; d++ {
		_, err := s.UpsertDailyAnalytics(ctx, domain.DailyAnalytics{
			ID:   day(d).Format(time.DateOnly),
			Date: day(d),
			ProductMetrics: []domain.ProductMetric{
				{ProductID: "p1", Name: "Beam", UnitsSold: d, Revenue: decimal.NewFromInt(int64(100 * d))},
			},
		})
		require.NoError(t, err)
	}

	records, err := s.ListDailyAnalytics(ctx, domain.AnalyticsRange{From: day(2), To: day(3)})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2026-03-03", records[0].ID)

	top, err := s.TopProducts(ctx, domain.AnalyticsRange{From: day(2), To: day(3)}, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, 5, top[0].UnitsSold)
	require.True(t, top[0].Revenue.Equal(decimal.NewFromInt(500)))
}

func TestWishlistRejectsDuplicateItem(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.AddWishlistItem(ctx, "usr_1", domain.WishlistItem{ProductID: "p1", AddedAt: now}, now)
	require.NoError(t, err)
	_, err = s.AddWishlistItem(ctx, "usr_1", domain.WishlistItem{ProductID: "p1", AddedAt: now}, now)
	require.ErrorIs(t, err, store.ErrConflict)
}
