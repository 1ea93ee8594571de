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

func (s *Store) NextOrderNumber(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orderSeq++
	return s.orderSeq, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "order has no items")
	}
	for _, existing := range s.orders {
		if existing.OrderNumber == order.OrderNumber {
			return nil, errors.Wrapf(store.ErrConflict, "order number %s already used", order.OrderNumber)
		}
	}

	reserve := order.RequestType != domain.RequestTypeQuote
	if reserve {
		for _, item := range order.Items {
			product, ok := s.products[item.ProductID]
			if !ok {
				return nil, errors.Wrapf(store.ErrNotFound, "product %s", item.ProductID)
			}
			if product.Stock < item.Quantity {
				return nil, errors.Wrapf(store.ErrInsufficientStock, "%s has %d in stock", product.Name, product.Stock)
			}
		}
		for _, item := range order.Items {
			product := s.products[item.ProductID]
			product.Stock -= item.Quantity
			s.products[item.ProductID] = product
		}
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	stored := cloneOrder(order)
	s.orders[order.ID] = &stored
	return &order, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	dup := cloneOrder(*order)
	return &dup, nil
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, order := range s.orders {
		if order.OrderNumber == number {
			dup := cloneOrder(*order)
			return &dup, nil
		}
	}
	return nil, errors.Wrapf(store.ErrNotFound, "order %s", number)
}

func (s *Store) ListOrders(_ context.Context, query domain.OrderListQuery) ([]domain.Order, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range s.orders {
		if query.UserID != "" && order.UserID != query.UserID {
			continue
		}
		if query.Status != "" && order.Status != query.Status {
			continue
		}
		if query.From != nil && order.CreatedAt.Before(*query.From) {
			continue
		}
		if query.To != nil && order.CreatedAt.After(*query.To) {
			continue
		}
		orders = append(orders, cloneOrder(*order))
	}
	sortOrdersNewest(orders)
	return page(orders, query.Offset, query.Limit), int64(len(orders)), nil
}

func (s *Store) ListOrdersCreatedBetween(_ context.Context, from, to time.Time) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.Order, 0)
	for _, order := range s.orders {
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		orders = append(orders, cloneOrder(*order))
	}
	sortOrdersNewest(orders)
	return orders, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, expected string, update domain.StatusUpdate) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	if order.Status != expected {
		return nil, errors.Wrapf(store.ErrConflict, "order %s changed status to %s", id, order.Status)
	}

	order.Status = update.Status
	if update.Entry != nil {
		order.StatusHistory = append(order.StatusHistory, *update.Entry)
	}
	if update.TrackingNumber != "" {
		order.TrackingNumber = update.TrackingNumber
	}
	if update.EstimatedDelivery != nil {
		eta := *update.EstimatedDelivery
		order.EstimatedDelivery = &eta
	}
	if update.ActualDelivery != nil {
		delivered := *update.ActualDelivery
		order.ActualDelivery = &delivered
	}
	order.UpdatedAt = update.At

	dup := cloneOrder(*order)
	return &dup, nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id string, status string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	order.PaymentStatus = status
	order.UpdatedAt = at

	dup := cloneOrder(*order)
	return &dup, nil
}

func (s *Store) SaveOrderFinancials(_ context.Context, updated domain.Order, expected domain.FinancialsExpectation) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[updated.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", updated.ID)
	}
	if order.DiscountCode != expected.DiscountCode ||
		!order.Subtotal.Equal(expected.Subtotal) ||
		!order.Discount.Equal(expected.Discount) {
		return nil, errors.Wrap(store.ErrConflict, "order changed while editing financials")
	}
	order.Items = slices.Clone(updated.Items)
	order.Subtotal = updated.Subtotal
	order.Tax = updated.Tax
	order.ShippingCost = updated.ShippingCost
	order.Discount = updated.Discount
	order.Total = updated.Total
	order.AdminNotes = updated.AdminNotes
	order.UpdatedAt = updated.UpdatedAt

	dup := cloneOrder(*order)
	return &dup, nil
}

func (s *Store) CloseOrder(_ context.Context, id string, closure domain.OrderClosure) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	if slices.Contains(closure.BlockedFrom, order.Status) {
		return nil, errors.Wrapf(store.ErrInvalidState, "order is %s", order.Status)
	}

	if order.RequestType != domain.RequestTypeQuote {
		for _, item := range order.Items {
			product, ok := s.products[item.ProductID]
			if !ok {
				continue
			}
			product.Stock += item.Quantity
			s.products[item.ProductID] = product
		}
	}

	order.Status = closure.Status
	if closure.PaymentStatus != "" {
		order.PaymentStatus = closure.PaymentStatus
	}
	order.StatusHistory = append(order.StatusHistory, closure.Entry)
	order.UpdatedAt = closure.Entry.Timestamp

	dup := cloneOrder(*order)
	return &dup, nil
}

func (s *Store) OrderStats(_ context.Context) (domain.OrderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.OrderStats{
		TotalRevenue:    decimal.Zero,
		StatusBreakdown: make(map[string]int64, len(domain.OrderStatuses)),
	}
	byStatus := map[string]*domain.OrderStatusStat{}
	for _, order := range s.orders {
		stats.TotalOrders++
		stats.TotalRevenue = stats.TotalRevenue.Add(order.Total)
		if order.PaymentStatus == domain.PaymentStatusPending {
			stats.PaymentPending++
		}
		stat, ok := byStatus[order.Status]
		if !ok {
			stat = &domain.OrderStatusStat{Status: order.Status, TotalRevenue: decimal.Zero}
			byStatus[order.Status] = stat
		}
		stat.Count++
		stat.TotalRevenue = stat.TotalRevenue.Add(order.Total)
	}

	for _, status := range domain.OrderStatuses {
		stats.StatusBreakdown[status] = 0
		if stat, ok := byStatus[status]; ok {
			stats.StatusBreakdown[status] = stat.Count
			stats.ByStatus = append(stats.ByStatus, *stat)
		}
	}
	if stats.ByStatus == nil {
		stats.ByStatus = []domain.OrderStatusStat{}
	}
	return stats, nil
}

func sortOrdersNewest(orders []domain.Order) {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
}

func cloneOrder(src domain.Order) domain.Order {
	dup := src
	dup.Items = slices.Clone(src.Items)
	dup.StatusHistory = slices.Clone(src.StatusHistory)
	if src.ShippingAddress != nil {
		addr := *src.ShippingAddress
		dup.ShippingAddress = &addr
	}
	if src.EstimatedDelivery != nil {
		eta := *src.EstimatedDelivery
		dup.EstimatedDelivery = &eta
	}
	if src.ActualDelivery != nil {
		delivered := *src.ActualDelivery
		dup.ActualDelivery = &delivered
	}
	return dup
}
