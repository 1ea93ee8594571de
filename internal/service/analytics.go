package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

// ParseDay returns the start of the named YYYY-MM-DD day in the analytics
// zone. An empty value means today.
func (s *Service) ParseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := s.now().In(s.loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, value, s.loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(store.ErrInvalidInput, "date %q must be YYYY-MM-DD", value)
	}
	return day, nil
}

// parseRange applies only when both ends are given.
func (s *Service) parseRange(start, end string) (domain.AnalyticsRange, error) {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return domain.AnalyticsRange{}, nil
	}
	from, err := s.ParseDay(start)
	if err != nil {
		return domain.AnalyticsRange{}, err
	}
	to, err := s.ParseDay(end)
	if err != nil {
		return domain.AnalyticsRange{}, err
	}
	if to.Before(from) {
		return domain.AnalyticsRange{}, errors.Wrap(store.ErrInvalidInput, "startDate must not be after endDate")
	}
	return domain.AnalyticsRange{From: from, To: to}, nil
}

func (s *Service) GenerateDailyAnalytics(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailyAnalytics{}, err
	}
	day, err := s.ParseDay(date)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}
	return s.generateDailyAnalytics(ctx, day)
}

// GetDailyAnalytics returns the stored rollup, building it on first read.
func (s *Service) GetDailyAnalytics(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.DailyAnalytics{}, err
	}
	day, err := s.ParseDay(date)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}

	record, err := s.repo.GetDailyAnalytics(ctx, day.Format(time.DateOnly))
	switch {
	case err == nil:
		return *record, nil
	case errors.Is(err, store.ErrNotFound):
		return s.generateDailyAnalytics(ctx, day)
	default:
		return domain.DailyAnalytics{}, err
	}
}

func (s *Service) GetAnalytics(ctx context.Context, start, end string) (domain.AnalyticsListResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.AnalyticsListResponse{}, err
	}
	r, err := s.parseRange(start, end)
	if err != nil {
		return domain.AnalyticsListResponse{}, err
	}

	records, err := s.repo.ListDailyAnalytics(ctx, r)
	if err != nil {
		return domain.AnalyticsListResponse{}, errors.Wrap(err, "list analytics")
	}
	totals := domain.AnalyticsTotals{TotalRevenue: decimal.Zero, TotalDiscounts: decimal.Zero}
	for _, record := range records {
		totals.TotalOrders += record.Metrics.TotalOrders
		totals.TotalRevenue = totals.TotalRevenue.Add(record.Metrics.TotalRevenue)
		totals.TotalDiscounts = totals.TotalDiscounts.Add(record.Metrics.TotalDiscounts)
	}
	return domain.AnalyticsListResponse{Analytics: records, Totals: totals}, nil
}

func (s *Service) TopProducts(ctx context.Context, start, end string, limit int) ([]domain.ProductMetric, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	products, err := s.repo.TopProducts(ctx, r, limit)
	if err != nil {
		return nil, errors.Wrap(err, "top products")
	}
	for i := range products {
		products[i].Rank = i + 1
	}
	return products, nil
}

func (s *Service) CategoryPerformance(ctx context.Context, start, end string) ([]domain.CategoryMetric, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.repo.CategoryTotals(ctx, r)
}

func (s *Service) PaymentMethodBreakdown(ctx context.Context, start, end string) ([]domain.PaymentMetric, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	return s.repo.PaymentMethodTotals(ctx, r)
}

// RevenueChart lists one point per stored day, oldest first.
func (s *Service) RevenueChart(ctx context.Context, start, end string) ([]domain.RevenuePoint, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	r, err := s.parseRange(start, end)
	if err != nil {
		return nil, err
	}

	records, err := s.repo.ListDailyAnalytics(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "list analytics")
	}
	points := make([]domain.RevenuePoint, 0, len(records))
	for _, record := range records {
		points = append(points, domain.RevenuePoint{
			Date:         record.ID,
			TotalRevenue: record.Metrics.TotalRevenue,
			TotalOrders:  record.Metrics.TotalOrders,
		})
	}
	slices.SortFunc(points, func(a, b domain.RevenuePoint) int { return cmp.Compare(a.Date, b.Date) })
	return points, nil
}

func (s *Service) generateDailyAnalytics(ctx context.Context, day time.Time) (domain.DailyAnalytics, error) {
	next := day.AddDate(0, 0, 1)
	orders, err := s.repo.ListOrdersCreatedBetween(ctx, day, next)
	if err != nil {
		return domain.DailyAnalytics{}, errors.Wrap(err, "load orders for analytics")
	}

	record := domain.DailyAnalytics{
		ID:   day.Format(time.DateOnly),
		Date: day,
		DeliveryMetrics: domain.DeliveryMetrics{
			Pickup:   domain.DeliveryBucket{Revenue: decimal.Zero},
			Delivery: domain.DeliveryBucket{Revenue: decimal.Zero},
		},
		GeneratedAt: s.now(),
	}

	paid := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		record.StatusBreakdown.Add(order.Status)
		if order.PaymentStatus == domain.PaymentStatusCompleted {
			paid = append(paid, order)
		}
	}

	categories, err := s.lineCategories(ctx, paid)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}

	record.Metrics = dailyMetrics(paid)
	record.ProductMetrics = productMetrics(paid)
	record.CategoryMetrics = categoryMetrics(paid, categories)
	record.PaymentMetrics = paymentMetrics(paid)
	for _, order := range paid {
		bucket := &record.DeliveryMetrics.Delivery
		if order.DeliveryMethod == domain.DeliveryPickup {
			bucket = &record.DeliveryMetrics.Pickup
		}
		bucket.Count++
		bucket.Revenue = bucket.Revenue.Add(order.Total)
	}

	saved, err := s.repo.UpsertDailyAnalytics(ctx, record)
	if err != nil {
		return domain.DailyAnalytics{}, errors.Wrap(err, "save analytics")
	}
	s.lg.Info("Daily analytics generated",
		zap.String("day", saved.ID),
		zap.Int("orders", saved.Metrics.TotalOrders),
		zap.String("revenue", saved.Metrics.TotalRevenue.StringFixed(2)),
	)
	return *saved, nil
}

// lineCategories resolves the category of every product sold, preferring the
// category captured on the order line.
func (s *Service) lineCategories(ctx context.Context, orders []domain.Order) (map[string]string, error) {
	categories := map[string]string{}
	var missing []string
	for _, order := range orders {
		for _, line := range order.Items {
			if _, ok := categories[line.ProductID]; ok {
				continue
			}
			categories[line.ProductID] = line.Category
			if line.Category == "" {
				missing = append(missing, line.ProductID)
			}
		}
	}
	if len(missing) == 0 {
		return categories, nil
	}

	products, err := s.repo.GetProductsByIDs(ctx, missing)
	if err != nil {
		return nil, errors.Wrap(err, "load product categories")
	}
	for _, id := range missing {
		category := "Other"
		if product, ok := products[id]; ok && product.Category != "" {
			category = product.Category
		}
		categories[id] = category
	}
	return categories, nil
}

func dailyMetrics(orders []domain.Order) domain.DailyMetrics {
	metrics := domain.DailyMetrics{
		TotalOrders:       len(orders),
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		TotalDiscounts:    decimal.Zero,
	}
	customers := map[string]struct{}{}
	for _, order := range orders {
		metrics.TotalRevenue = metrics.TotalRevenue.Add(order.Total)
		metrics.TotalDiscounts = metrics.TotalDiscounts.Add(order.Discount)
		customers[order.UserID] = struct{}{}
	}
	if len(orders) > 0 {
		metrics.AverageOrderValue = metrics.TotalRevenue.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}
	metrics.UniqueCustomers = len(customers)
	// Every customer of the day counts as new; repeat and conversion are not tracked.
	metrics.NewCustomers = len(customers)
	return metrics
}

func productMetrics(orders []domain.Order) []domain.ProductMetric {
	byID := map[string]*domain.ProductMetric{}
	for _, order := range orders {
		for _, line := range order.Items {
			metric, ok := byID[line.ProductID]
			if !ok {
				metric = &domain.ProductMetric{ProductID: line.ProductID, Name: line.ProductName, Revenue: decimal.Zero}
				byID[line.ProductID] = metric
			}
			metric.UnitsSold += line.Quantity
			metric.Revenue = metric.Revenue.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}

	metrics := make([]domain.ProductMetric, 0, len(byID))
	for _, metric := range byID {
		metrics = append(metrics, *metric)
	}
	slices.SortFunc(metrics, func(a, b domain.ProductMetric) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	for i := range metrics {
		metrics[i].Rank = i + 1
	}
	return metrics
}

func categoryMetrics(orders []domain.Order, categories map[string]string) []domain.CategoryMetric {
	byName := map[string]*domain.CategoryMetric{}
	for _, order := range orders {
		for _, line := range order.Items {
			name := categories[line.ProductID]
			metric, ok := byName[name]
			if !ok {
				metric = &domain.CategoryMetric{Category: name, Revenue: decimal.Zero}
				byName[name] = metric
			}
			metric.UnitsSold += line.Quantity
			metric.Revenue = metric.Revenue.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
		}
	}

	metrics := make([]domain.CategoryMetric, 0, len(byName))
	for _, metric := range byName {
		metrics = append(metrics, *metric)
	}
	slices.SortFunc(metrics, func(a, b domain.CategoryMetric) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return metrics
}

func paymentMetrics(orders []domain.Order) []domain.PaymentMetric {
	byMethod := map[string]*domain.PaymentMetric{}
	for _, order := range orders {
		metric, ok := byMethod[order.PaymentMethod]
		if !ok {
			metric = &domain.PaymentMetric{Method: order.PaymentMethod, TotalAmount: decimal.Zero}
			byMethod[order.PaymentMethod] = metric
		}
		metric.Count++
		metric.TotalAmount = metric.TotalAmount.Add(order.Total)
	}

	metrics := make([]domain.PaymentMetric, 0, len(byMethod))
	for _, metric := range byMethod {
		metrics = append(metrics, *metric)
	}
	slices.SortFunc(metrics, func(a, b domain.PaymentMetric) int {
		if c := b.TotalAmount.Cmp(a.TotalAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	return metrics
}
