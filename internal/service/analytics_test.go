package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func seedAnalyticsOrders(t *testing.T, svc *Service) {
	t.Helper()
	customer := as(customerActor)
	admin := as(adminActor)

	paidDelivery, err := svc.CreateOrder(customer, orderRequest(item("prd_pine_beam", 2), item("prd_pine_board", 1)))
	require.NoError(t, err)

	pickup := orderRequest(item("prd_meranti_door", 1))
	pickup.DeliveryMethod = domain.DeliveryPickup
	pickup.PaymentMethod = "cash"
	paidPickup, err := svc.CreateOrder(as(otherActor), pickup)
	require.NoError(t, err)

	_, err = svc.CreateOrder(customer, orderRequest(item("prd_pine_board", 5)))
	require.NoError(t, err)

	for _, id := range []string{paidDelivery.ID, paidPickup.ID} {
		_, err = svc.UpdatePaymentStatus(admin, id, domain.UpdatePaymentStatusRequest{PaymentStatus: domain.PaymentStatusCompleted})
		require.NoError(t, err)
	}
	_, err = svc.UpdateOrderStatus(admin, paidPickup.ID, domain.UpdateOrderStatusRequest{Status: domain.OrderStatusConfirmed})
	require.NoError(t, err)
}

func TestGenerateDailyAnalytics(t *testing.T) {
	svc, _ := newTestService(t)
	seedAnalyticsOrders(t, svc)

	record, err := svc.GenerateDailyAnalytics(as(adminActor), "2026-03-10")
	require.NoError(t, err)

	require.Equal(t, "2026-03-10", record.ID)
	require.True(t, record.Date.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, 2, record.Metrics.TotalOrders)
	require.True(t, record.Metrics.TotalRevenue.Equal(dec("3530")), "revenue %s", record.Metrics.TotalRevenue)
	require.True(t, record.Metrics.AverageOrderValue.Equal(dec("1765")))
	require.Equal(t, 2, record.Metrics.UniqueCustomers)
	require.Equal(t, 2, record.Metrics.NewCustomers)
	require.Zero(t, record.Metrics.RepeatCustomers)

	require.Len(t, record.ProductMetrics, 3)
	require.Equal(t, "prd_meranti_door", record.ProductMetrics[0].ProductID)
	require.Equal(t, 1, record.ProductMetrics[0].Rank)
	require.Equal(t, "prd_pine_beam", record.ProductMetrics[1].ProductID)
	require.True(t, record.ProductMetrics[1].Revenue.Equal(dec("900")))
	require.Equal(t, 3, record.ProductMetrics[2].Rank)

	require.Equal(t, "Doors", record.CategoryMetrics[0].Category)
	require.Len(t, record.PaymentMetrics, 2)
	require.Equal(t, "cash", record.PaymentMetrics[0].Method)
	require.Equal(t, 1, record.DeliveryMetrics.Pickup.Count)
	require.True(t, record.DeliveryMetrics.Delivery.Revenue.Equal(dec("1080")))

	require.Equal(t, 2, record.StatusBreakdown.Pending)
	require.Equal(t, 1, record.StatusBreakdown.Confirmed)
}

func TestGenerateDailyAnalyticsIsIdempotent(t *testing.T) {
	svc, repo := newTestService(t)
	seedAnalyticsOrders(t, svc)
	admin := as(adminActor)

	first, err := svc.GenerateDailyAnalytics(admin, "2026-03-10")
	require.NoError(t, err)
	second, err := svc.GenerateDailyAnalytics(admin, "2026-03-10")
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Metrics, second.Metrics)

	records, err := repo.ListDailyAnalytics(context.Background(), domain.AnalyticsRange{})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestGetDailyAnalyticsGeneratesOnRead(t *testing.T) {
	svc, repo := newTestService(t)
	admin := as(adminActor)

	record, err := svc.GetDailyAnalytics(admin, "")
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", record.ID)
	require.Zero(t, record.Metrics.TotalOrders)
	require.True(t, record.Metrics.AverageOrderValue.IsZero())

	_, err = repo.GetDailyAnalytics(context.Background(), "2026-03-10")
	require.NoError(t, err)

	_, err = svc.GetDailyAnalytics(admin, "10/03/2026")
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = svc.GetDailyAnalytics(as(customerActor), "")
	require.ErrorIs(t, err, store.ErrForbidden)
}

func TestAnalyticsDayFollowsConfiguredZone(t *testing.T) {
	joburg := time.FixedZone("SAST", 2*60*60)
	svc, _ := newTestService(t, WithLocation(joburg))

	day, err := svc.ParseDay("")
	require.NoError(t, err)
	require.Equal(t, "2026-03-10", day.Format(time.DateOnly))
	require.True(t, day.Equal(time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)))
}

func TestAnalyticsRangeQueries(t *testing.T) {
	svc, repo := newTestService(t)
	admin := as(adminActor)
	ctx := context.Background()

	for d, revenue := range map[int]string{8: "100", 9: "300", 10: "200"} {
		_, err := repo.UpsertDailyAnalytics(ctx, domain.DailyAnalytics{
			ID:      time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC).Format(time.DateOnly),
			Date:    time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC),
			Metrics: domain.DailyMetrics{TotalOrders: d, TotalRevenue: dec(revenue), TotalDiscounts: dec("1")},
			ProductMetrics: []domain.ProductMetric{
				{ProductID: "prd_pine_beam", Name: "Pine Beam", UnitsSold: 1, Revenue: dec(revenue)},
				{ProductID: "prd_pine_board", Name: "Pine Board", UnitsSold: 2, Revenue: dec("50")},
			},
			PaymentMetrics: []domain.PaymentMetric{{Method: "cash", Count: 1, TotalAmount: dec(revenue)}},
		})
		require.NoError(t, err)
	}

	list, err := svc.GetAnalytics(admin, "2026-03-09", "2026-03-10")
	require.NoError(t, err)
	require.Len(t, list.Analytics, 2)
	require.Equal(t, "2026-03-10", list.Analytics[0].ID)
	require.Equal(t, 19, list.Totals.TotalOrders)
	require.True(t, list.Totals.TotalRevenue.Equal(dec("500")))
	require.True(t, list.Totals.TotalDiscounts.Equal(dec("2")))

	all, err := svc.GetAnalytics(admin, "2026-03-09", "")
	require.NoError(t, err)
	require.Len(t, all.Analytics, 3)

	top, err := svc.TopProducts(admin, "", "", 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "prd_pine_beam", top[0].ProductID)
	require.Equal(t, 1, top[0].Rank)
	require.True(t, top[0].Revenue.Equal(dec("600")))
	require.Equal(t, 2, top[1].Rank)

	methods, err := svc.PaymentMethodBreakdown(admin, "2026-03-08", "2026-03-08")
	require.NoError(t, err)
	require.Len(t, methods, 1)
	require.True(t, methods[0].TotalAmount.Equal(dec("100")))

	chart, err := svc.RevenueChart(admin, "", "")
	require.NoError(t, err)
	require.Equal(t, []string{"2026-03-08", "2026-03-09", "2026-03-10"}, []string{chart[0].Date, chart[1].Date, chart[2].Date})

	_, err = svc.GetAnalytics(admin, "2026-03-10", "2026-03-01")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}
