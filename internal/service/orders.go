package service

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Order{}, err
	}

	lines, err := mergeOrderItems(req.Items)
	if err != nil {
		return domain.Order{}, err
	}
	if req.DeliveryMethod != domain.DeliveryPickup && req.DeliveryMethod != domain.DeliveryDelivery {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "delivery_method must be pickup or delivery")
	}
	name := strings.TrimSpace(req.CustomerName)
	email := strings.TrimSpace(req.CustomerEmail)
	phone := strings.TrimSpace(req.CustomerPhone)
	if name == "" || email == "" || phone == "" {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "customer name, email and phone are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "customer email is invalid")
	}
	paymentMethod := req.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = domain.DefaultPaymentMethod
	}
	if !domain.IsPaymentMethod(paymentMethod) {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidInput, "unknown payment_method %q", paymentMethod)
	}
	requestType := req.RequestType
	if requestType == "" {
		requestType = domain.RequestTypeInvoice
	}
	if requestType != domain.RequestTypeInvoice && requestType != domain.RequestTypeQuote {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "request_type must be invoice or quote")
	}
	isQuote := requestType == domain.RequestTypeQuote

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "load products")
	}

	subtotal := decimal.Zero
	for i, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return domain.Order{}, errors.Wrapf(store.ErrNotFound, "product %s", line.ProductID)
		}
		if !product.IsAvailable {
			return domain.Order{}, errors.Wrapf(store.ErrInvalidInput, "%s is not available", product.Name)
		}
		if moq := max(product.MinimumOrderQuantity, 1); line.Quantity < moq {
			return domain.Order{}, errors.Wrapf(store.ErrInvalidInput, "%s has a minimum order quantity of %d", product.Name, moq)
		}
		if !isQuote && product.Stock < line.Quantity {
			return domain.Order{}, errors.Wrapf(store.ErrInsufficientStock, "%s has %d in stock", product.Name, product.Stock)
		}

		lines[i].ProductName = product.Name
		lines[i].Category = product.Category
		lines[i].UnitPrice = product.Price
		subtotal = subtotal.Add(lines[i].UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	seq, err := s.repo.NextOrderNumber(ctx)
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "allocate order number")
	}

	now := s.now()
	note := "Invoice requested"
	if isQuote {
		note = "Quote requested"
	}
	order := domain.Order{
		ID:           xid.New("ord"),
		OrderNumber:  fmt.Sprintf("ORD-%06d", seq),
		UserID:       actor.UserID,
		Items:        lines,
		Subtotal:     subtotal,
		Discount:     decimal.Zero,
		Tax:          decimal.Zero,
		ShippingCost: decimal.Zero,
		Status:       domain.OrderStatusPending,
		StatusHistory: []domain.StatusEntry{{
			Status:    domain.OrderStatusPending,
			Timestamp: now,
			Notes:     note,
			UpdatedBy: actor.Email,
		}},
		DeliveryMethod:    req.DeliveryMethod,
		EstimatedDelivery: req.EstimatedDelivery,
		ShippingAddress:   req.ShippingAddress,
		CustomerName:      name,
		CustomerEmail:     email,
		CustomerPhone:     phone,
		PaymentMethod:     paymentMethod,
		PaymentStatus:     domain.PaymentStatusPending,
		Notes:             strings.TrimSpace(req.Notes),
		RequestType:       requestType,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	order.Total = orderTotal(order)

	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return domain.Order{}, err
	}

	if !isQuote {
		s.raiseStockAlerts(ctx, ids)
	}
	s.lg.Info("Order created",
		zap.String("order_id", created.ID),
		zap.String("order_number", created.OrderNumber),
		zap.String("request_type", created.RequestType),
		zap.String("total", created.Total.StringFixed(2)),
	)
	return *created, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := requireOwner(ctx, order.UserID); err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

// GetOrderByNumber serves public order tracking.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (domain.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "order number is required")
	}
	order, err := s.repo.GetOrderByNumber(ctx, number)
	if err != nil {
		return domain.Order{}, err
	}
	return *order, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID string, status string, p Paging) (domain.OrderListResponse, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.OrderListResponse{}, err
	}
	return s.listOrders(ctx, domain.OrderListQuery{UserID: userID, Status: status}, p)
}

func (s *Service) ListOrders(ctx context.Context, status string, from, to *time.Time, p Paging) (domain.OrderListResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.OrderListResponse{}, err
	}
	return s.listOrders(ctx, domain.OrderListQuery{Status: status, From: from, To: to}, p)
}

func (s *Service) listOrders(ctx context.Context, query domain.OrderListQuery, p Paging) (domain.OrderListResponse, error) {
	if query.Status != "" && !domain.IsOrderStatus(query.Status) {
		return domain.OrderListResponse{}, errors.Wrapf(store.ErrInvalidInput, "unknown status %q", query.Status)
	}
	p = p.normalize(20)
	query.Offset = p.offset()
	query.Limit = p.Limit

	orders, total, err := s.repo.ListOrders(ctx, query)
	if err != nil {
		return domain.OrderListResponse{}, errors.Wrap(err, "list orders")
	}
	return domain.OrderListResponse{Orders: orders, Pagination: pagination(total, p)}, nil
}

func (s *Service) UpdateOrderStatus(ctx context.Context, id string, req domain.UpdateOrderStatusRequest) (domain.Order, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.IsOrderStatus(req.Status) {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidInput, "unknown status %q", req.Status)
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	if req.Status == domain.OrderStatusCancelled || req.Status == domain.OrderStatusRefunded {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidState, "orders become %s only through cancel or refund", req.Status)
	}

	now := s.now()
	update := domain.StatusUpdate{
		Status:            req.Status,
		TrackingNumber:    strings.TrimSpace(req.TrackingNumber),
		EstimatedDelivery: req.EstimatedDelivery,
		At:                now,
	}
	if req.Status != order.Status {
		if !domain.CanTransition(order.Status, req.Status) {
			return domain.Order{}, errors.Wrapf(store.ErrInvalidState, "cannot move order from %s to %s", order.Status, req.Status)
		}
		notes := strings.TrimSpace(req.Notes)
		if notes == "" {
			notes = fmt.Sprintf("Status changed from %s to %s", order.Status, req.Status)
		}
		update.Entry = &domain.StatusEntry{
			Status:    req.Status,
			Timestamp: now,
			Notes:     notes,
			UpdatedBy: actor.Email,
		}
		if req.Status == domain.OrderStatusDelivered {
			update.ActualDelivery = &now
		}
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, id, order.Status, update)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "update_order_status", "order", id, fmt.Sprintf("from=%s,to=%s", order.Status, req.Status))
	return *updated, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, id string, req domain.UpdatePaymentStatusRequest) (domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}
	if !domain.IsPaymentStatus(req.PaymentStatus) {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidInput, "unknown payment_status %q", req.PaymentStatus)
	}

	updated, err := s.repo.UpdatePaymentStatus(ctx, id, req.PaymentStatus, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "update_payment_status", "order", id, "payment_status="+req.PaymentStatus)
	return *updated, nil
}

// UpdateOrderFinancials edits prices and charges on existing lines only.
// Invalid or unknown lines and negative charges are ignored.
func (s *Service) UpdateOrderFinancials(ctx context.Context, id string, req domain.UpdateFinancialsRequest) (domain.Order, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	expected := domain.FinancialsExpectation{
		DiscountCode: order.DiscountCode,
		Subtotal:     order.Subtotal,
		Discount:     order.Discount,
	}

	for _, in := range req.Items {
		productID := in.ProductID
		if productID == "" {
			productID = in.ID
		}
		if in.Quantity == nil || in.UnitPrice == nil {
			continue
		}
		qty := *in.Quantity
		if math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 1 || qty != math.Trunc(qty) || qty > math.MaxInt32 {
			continue
		}
		if in.UnitPrice.IsNegative() {
			continue
		}
		idx := slices.IndexFunc(order.Items, func(line domain.OrderLine) bool { return line.ProductID == productID })
		if idx < 0 {
			continue
		}
		order.Items[idx].Quantity = int(qty)
		order.Items[idx].UnitPrice = *in.UnitPrice
	}
	if req.ShippingCost != nil && !req.ShippingCost.IsNegative() {
		order.ShippingCost = *req.ShippingCost
	}
	if req.Tax != nil && !req.Tax.IsNegative() {
		order.Tax = *req.Tax
	}
	if req.Discount != nil && !req.Discount.IsNegative() {
		order.Discount = *req.Discount
	}
	if req.AdminNotes != nil {
		order.AdminNotes = strings.TrimSpace(*req.AdminNotes)
	}

	order.Subtotal = lineSubtotal(order.Items)
	order.Total = orderTotal(*order)
	if order.Total.IsNegative() {
		return domain.Order{}, errors.Wrap(store.ErrInvalidInput, "discount exceeds the order value")
	}
	order.UpdatedAt = s.now()

	updated, err := s.repo.SaveOrderFinancials(ctx, *order, expected)
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "update_order_financials", "order", id, "total="+updated.Total.StringFixed(2))
	return *updated, nil
}

func (s *Service) CancelOrder(ctx context.Context, id string, reason string) (domain.Order, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	actor, err := requireOwner(ctx, order.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if slices.Contains(domain.CancelBlockedStatuses, order.Status) {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidState, "cannot cancel an order that is %s", order.Status)
	}

	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = "Order cancelled by user"
	}
	now := s.now()
	closed, err := s.repo.CloseOrder(ctx, id, domain.OrderClosure{
		Status:      domain.OrderStatusCancelled,
		Entry:       domain.StatusEntry{Status: domain.OrderStatusCancelled, Timestamp: now, Notes: notes, UpdatedBy: actor.Email},
		BlockedFrom: domain.CancelBlockedStatuses,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "cancel_order", "order", id, "reason="+notes)
	return *closed, nil
}

func (s *Service) RefundOrder(ctx context.Context, id string, reason string) (domain.Order, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if slices.Contains(domain.RefundBlockedStatuses, order.Status) {
		return domain.Order{}, errors.Wrapf(store.ErrInvalidState, "cannot refund an order that is %s", order.Status)
	}

	notes := strings.TrimSpace(reason)
	if notes == "" {
		notes = "Order refunded"
	}
	closed, err := s.repo.CloseOrder(ctx, id, domain.OrderClosure{
		Status:        domain.OrderStatusRefunded,
		PaymentStatus: domain.PaymentStatusRefunded,
		Entry:         domain.StatusEntry{Status: domain.OrderStatusRefunded, Timestamp: s.now(), Notes: notes, UpdatedBy: actor.Email},
		BlockedFrom:   domain.RefundBlockedStatuses,
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logAudit(ctx, "refund_order", "order", id, "reason="+notes)
	return *closed, nil
}

func (s *Service) GetOrderStats(ctx context.Context) (domain.OrderStats, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.OrderStats{}, err
	}
	return s.repo.OrderStats(ctx)
}

// mergeOrderItems validates the requested lines and folds repeated products
// into one line, keeping first-seen order.
func mergeOrderItems(items []domain.OrderItemInput) ([]domain.OrderLine, error) {
	if len(items) == 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "order must contain at least one item")
	}
	lines := make([]domain.OrderLine, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			productID = strings.TrimSpace(item.ID)
		}
		if productID == "" {
			return nil, errors.Wrap(store.ErrInvalidInput, "every item needs a product_id")
		}
		if item.Quantity < 1 {
			return nil, errors.Wrapf(store.ErrInvalidInput, "quantity for %s must be at least 1", productID)
		}
		if i, ok := index[productID]; ok {
			lines[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(lines)
		lines = append(lines, domain.OrderLine{ProductID: productID, Quantity: item.Quantity})
	}
	return lines, nil
}

func lineSubtotal(lines []domain.OrderLine) decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal
}

func orderTotal(order domain.Order) decimal.Decimal {
	return order.Subtotal.Add(order.Tax).Add(order.ShippingCost).Sub(order.Discount)
}

// raiseStockAlerts opens an inventory alert for each product at or below the
// low-stock threshold. Failures are logged only.
func (s *Service) raiseStockAlerts(ctx context.Context, productIDs []string) {
	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		s.lg.Warn("Load products for stock alerts", zap.Error(err))
		return
	}
	for _, id := range productIDs {
		product, ok := products[id]
		if !ok || product.Stock > s.lowStockThreshold {
			continue
		}
		alertType, severity := domain.AlertLowStock, domain.SeverityWarning
		if product.Stock <= 0 {
			alertType, severity = domain.AlertOutOfStock, domain.SeverityCritical
		}
		open, err := s.repo.HasOpenInventoryAlert(ctx, id, alertType)
		if err != nil {
			s.lg.Warn("Check open inventory alert", zap.String("product_id", id), zap.Error(err))
			continue
		}
		if open {
			continue
		}
		if _, err := s.repo.CreateInventoryAlert(ctx, domain.InventoryAlert{
			ID:           xid.New("alert"),
			ProductID:    id,
			ProductName:  product.Name,
			AlertType:    alertType,
			Threshold:    s.lowStockThreshold,
			CurrentStock: product.Stock,
			Severity:     severity,
			CreatedAt:    s.now(),
		}); err != nil {
			s.lg.Warn("Create inventory alert", zap.String("product_id", id), zap.Error(err))
		}
	}
}
