package memory

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.promotions {
		if existing.Code == promo.Code {
			return nil, errors.Wrapf(store.ErrConflict, "promotion code %s already exists", promo.Code)
		}
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	if promo.UpdatedAt.IsZero() {
		promo.UpdatedAt = promo.CreatedAt
	}
	stored := clonePromotion(promo)
	s.promotions[promo.ID] = &stored
	return &promo, nil
}

func (s *Store) GetPromotion(_ context.Context, id string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promo, ok := s.promotions[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "promotion %s", id)
	}
	dup := clonePromotion(*promo)
	return &dup, nil
}

func (s *Store) FindPromotionByCode(_ context.Context, code string) (*domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, promo := range s.promotions {
		if promo.Code == code {
			dup := clonePromotion(*promo)
			return &dup, nil
		}
	}
	return nil, errors.Wrapf(store.ErrNotFound, "promotion %s", code)
}

func (s *Store) ListPromotions(_ context.Context, query domain.PromotionListQuery) ([]domain.Promotion, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.Promotion, 0, len(s.promotions))
	for _, promo := range s.promotions {
		if query.ActiveAt != nil && !promotionLive(*promo, *query.ActiveAt) {
			continue
		}
		promos = append(promos, clonePromotion(*promo))
	}
	slices.SortFunc(promos, func(a, b domain.Promotion) int {
		return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return page(promos, query.Offset, query.Limit), int64(len(promos)), nil
}

func (s *Store) UpdatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.promotions[promo.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "promotion %s", promo.ID)
	}
	// Redemption state is owned by RedeemPromotion.
	promo.UsageCount = existing.UsageCount
	promo.UsedBy = slices.Clone(existing.UsedBy)
	stored := clonePromotion(promo)
	s.promotions[promo.ID] = &stored
	return &promo, nil
}

func (s *Store) DeletePromotion(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.promotions[id]; !ok {
		return errors.Wrapf(store.ErrNotFound, "promotion %s", id)
	}
	delete(s.promotions, id)
	return nil
}

func (s *Store) RedeemPromotion(_ context.Context, req domain.RedemptionRequest) (*domain.Promotion, *domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promo, ok := s.promotions[req.PromotionID]
	if !ok || !promotionLive(*promo, req.At) {
		return nil, nil, store.ErrInvalidPromotion
	}
	if promo.LimitReached() {
		return nil, nil, store.ErrUsageLimitExceeded
	}
	if redemptionsBy(*promo, req.UserID) >= promo.PerCustomerLimit() {
		return nil, nil, errors.Wrapf(store.ErrPerCustomerLimitExceeded,
			"you have already used this promotion %d time(s)", redemptionsBy(*promo, req.UserID))
	}

	order, ok := s.orders[req.OrderID]
	if !ok {
		return nil, nil, errors.Wrapf(store.ErrNotFound, "order %s", req.OrderID)
	}
	if slices.Contains(domain.CancelBlockedStatuses, order.Status) {
		return nil, nil, errors.Wrapf(store.ErrInvalidState, "order is %s", order.Status)
	}
	if order.DiscountCode != "" {
		return nil, nil, errors.Wrapf(store.ErrConflict, "order already uses promotion %s", order.DiscountCode)
	}
	if !order.Subtotal.Equal(req.ExpectedSubtotal) {
		return nil, nil, errors.Wrap(store.ErrConflict, "order changed while applying promotion")
	}

	promo.UsageCount++
	promo.UsedBy = append(promo.UsedBy, domain.Redemption{UserID: req.UserID, OrderID: req.OrderID, UsedAt: req.At})
	promo.UpdatedAt = req.At

	order.DiscountCode = req.Code
	order.Discount = req.Discount
	order.Total = order.Subtotal.Add(order.Tax).Add(order.ShippingCost).Sub(order.Discount)
	order.UpdatedAt = req.At

	promoCopy := clonePromotion(*promo)
	orderCopy := cloneOrder(*order)
	return &promoCopy, &orderCopy, nil
}

func (s *Store) PromotionStats(_ context.Context, at time.Time) (domain.PromotionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.PromotionStats{TotalDiscountGiven: decimal.Zero}
	for _, promo := range s.promotions {
		stats.TotalPromotions++
		if promotionLive(*promo, at) {
			stats.ActivePromotions++
		}
		stats.TotalUsage += int64(promo.UsageCount)
		if promo.DiscountType == domain.DiscountFixedAmount {
			stats.TotalDiscountGiven = stats.TotalDiscountGiven.Add(promo.DiscountValue.Mul(decimal.NewFromInt(int64(promo.UsageCount))))
		}
	}
	return stats, nil
}

func promotionLive(promo domain.Promotion, at time.Time) bool {
	return promo.Active && !at.Before(promo.ValidFrom) && !at.After(promo.ValidUntil)
}

func redemptionsBy(promo domain.Promotion, userID string) int {
	count := 0
	for _, r := range promo.UsedBy {
		if r.UserID == userID {
			count++
		}
	}
	return count
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dup := src
	dup.ApplicableProducts = slices.Clone(src.ApplicableProducts)
	dup.ApplicableCategories = slices.Clone(src.ApplicableCategories)
	dup.UsedBy = slices.Clone(src.UsedBy)
	if src.UsageLimit != nil {
		limit := *src.UsageLimit
		dup.UsageLimit = &limit
	}
	if src.MaxDiscount != nil {
		capped := *src.MaxDiscount
		dup.MaxDiscount = &capped
	}
	return dup
}
