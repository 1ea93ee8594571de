package memory

import (
	"cmp"
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func (s *Store) UpsertDailyAnalytics(_ context.Context, record domain.DailyAnalytics) (*domain.DailyAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		return nil, errors.Wrap(store.ErrInvalidInput, "analytics day is required")
	}
	s.analytics[record.ID] = cloneAnalytics(record)
	return &record, nil
}

func (s *Store) GetDailyAnalytics(_ context.Context, day string) (*domain.DailyAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.analytics[day]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "analytics for %s", day)
	}
	dup := cloneAnalytics(record)
	return &dup, nil
}

func (s *Store) ListDailyAnalytics(_ context.Context, r domain.AnalyticsRange) ([]domain.DailyAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.analyticsIn(r), nil
}

func (s *Store) TopProducts(_ context.Context, r domain.AnalyticsRange, limit int) ([]domain.ProductMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]*domain.ProductMetric{}
	for _, record := range s.analyticsIn(r) {
		for _, metric := range record.ProductMetrics {
			total, ok := totals[metric.ProductID]
			if !ok {
				total = &domain.ProductMetric{ProductID: metric.ProductID, Name: metric.Name, Revenue: decimal.Zero}
				totals[metric.ProductID] = total
			}
			total.UnitsSold += metric.UnitsSold
			total.Revenue = total.Revenue.Add(metric.Revenue)
		}
	}

	products := make([]domain.ProductMetric, 0, len(totals))
	for _, total := range totals {
		products = append(products, *total)
	}
	slices.SortFunc(products, func(a, b domain.ProductMetric) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return page(products, 0, limit), nil
}

func (s *Store) CategoryTotals(_ context.Context, r domain.AnalyticsRange) ([]domain.CategoryMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]*domain.CategoryMetric{}
	for _, record := range s.analyticsIn(r) {
		for _, metric := range record.CategoryMetrics {
			total, ok := totals[metric.Category]
			if !ok {
				total = &domain.CategoryMetric{Category: metric.Category, Revenue: decimal.Zero}
				totals[metric.Category] = total
			}
			total.UnitsSold += metric.UnitsSold
			total.Revenue = total.Revenue.Add(metric.Revenue)
		}
	}

	categories := make([]domain.CategoryMetric, 0, len(totals))
	for _, total := range totals {
		categories = append(categories, *total)
	}
	slices.SortFunc(categories, func(a, b domain.CategoryMetric) int {
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.Category, b.Category)
	})
	return categories, nil
}

func (s *Store) PaymentMethodTotals(_ context.Context, r domain.AnalyticsRange) ([]domain.PaymentMetric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := map[string]*domain.PaymentMetric{}
	for _, record := range s.analyticsIn(r) {
		for _, metric := range record.PaymentMetrics {
			total, ok := totals[metric.Method]
			if !ok {
				total = &domain.PaymentMetric{Method: metric.Method, TotalAmount: decimal.Zero}
				totals[metric.Method] = total
			}
			total.Count += metric.Count
			total.TotalAmount = total.TotalAmount.Add(metric.TotalAmount)
		}
	}

	methods := make([]domain.PaymentMetric, 0, len(totals))
	for _, total := range totals {
		methods = append(methods, *total)
	}
	slices.SortFunc(methods, func(a, b domain.PaymentMetric) int {
		if c := b.TotalAmount.Cmp(a.TotalAmount); c != 0 {
			return c
		}
		return cmp.Compare(a.Method, b.Method)
	})
	return methods, nil
}

// analyticsIn returns the records inside r, newest day first. Callers hold
// the read lock.
func (s *Store) analyticsIn(r domain.AnalyticsRange) []domain.DailyAnalytics {
	records := make([]domain.DailyAnalytics, 0, len(s.analytics))
	for _, record := range s.analytics {
		if !r.IsZero() && (record.Date.Before(r.From) || record.Date.After(r.To)) {
			continue
		}
		records = append(records, cloneAnalytics(record))
	}
	slices.SortFunc(records, func(a, b domain.DailyAnalytics) int {
		return b.Date.Compare(a.Date)
	})
	return records
}

func cloneAnalytics(src domain.DailyAnalytics) domain.DailyAnalytics {
	dup := src
	dup.ProductMetrics = slices.Clone(src.ProductMetrics)
	dup.CategoryMetrics = slices.Clone(src.CategoryMetrics)
	dup.PaymentMetrics = slices.Clone(src.PaymentMetrics)
	return dup
}
