package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) NextOrderNumber(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "order_number"},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, errors.Wrap(err, "next order number")
	}
	return counter.Seq, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, errors.Wrap(store.ErrInvalidInput, "order has no items")
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

	err := s.withTx(ctx, func(ctx context.Context) error {
		var reserved []domain.OrderLine
		if order.RequestType != domain.RequestTypeQuote {
			var err error
			if reserved, err = s.reserveStock(ctx, order.Items, order.CreatedAt); err != nil {
				return err
			}
		}
		if _, err := s.col(colOrders).InsertOne(ctx, order); err != nil {
			s.releaseStock(ctx, reserved, order.CreatedAt)
			if mongo.IsDuplicateKeyError(err) {
				return errors.Wrapf(store.ErrConflict, "order number %s already used", order.OrderNumber)
			}
			return errors.Wrap(err, "insert order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// reserveStock decrements each line's product only while enough stock
// remains. On failure the lines already taken are put back unless a
// transaction will roll them back.
func (s *Store) reserveStock(ctx context.Context, items []domain.OrderLine, at time.Time) ([]domain.OrderLine, error) {
	products := s.col(colProducts)
	reserved := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		res, err := products.UpdateOne(ctx,
			bson.M{"_id": item.ProductID, "stock": bson.M{"$gte": item.Quantity}},
			bson.M{"$inc": bson.M{"stock": -item.Quantity}, "$set": bson.M{"updated_at": at}},
		)
		if err == nil && res.MatchedCount == 1 {
			reserved = append(reserved, item)
			continue
		}
		s.releaseStock(ctx, reserved, at)
		if err != nil {
			return nil, errors.Wrapf(err, "reserve %s", item.ProductID)
		}

		var product domain.Product
		if err := findOne(ctx, products, bson.M{"_id": item.ProductID}, &product, "product "+item.ProductID); err != nil {
			return nil, err
		}
		return nil, errors.Wrapf(store.ErrInsufficientStock, "%s has %d in stock", product.Name, product.Stock)
	}
	return reserved, nil
}

func (s *Store) releaseStock(ctx context.Context, items []domain.OrderLine, at time.Time) {
	if s.transactions {
		return
	}
	s.restock(ctx, items, at)
}

func (s *Store) restock(ctx context.Context, items []domain.OrderLine, at time.Time) {
	for _, item := range items {
		_, err := s.col(colProducts).UpdateOne(ctx,
			bson.M{"_id": item.ProductID},
			bson.M{"$inc": bson.M{"stock": item.Quantity}, "$set": bson.M{"updated_at": at}},
		)
		if err != nil {
			s.lg.Error("Restock failed",
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := findOne(ctx, s.col(colOrders), bson.M{"_id": id}, &order, "order "+id); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	var order domain.Order
	if err := findOne(ctx, s.col(colOrders), bson.M{"order_number": number}, &order, "order "+number); err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) ListOrders(ctx context.Context, query domain.OrderListQuery) ([]domain.Order, int64, error) {
	filter := bson.M{}
	if query.UserID != "" {
		filter["user_id"] = query.UserID
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}
	created := bson.M{}
	if query.From != nil {
		created["$gte"] = *query.From
	}
	if query.To != nil {
		created["$lte"] = *query.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return findList[domain.Order](ctx, s.col(colOrders), filter, newestFirst, query.Offset, query.Limit)
}

func (s *Store) ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	filter := bson.M{"created_at": bson.M{"$gte": from, "$lt": to}}
	return findAll[domain.Order](ctx, s.col(colOrders), filter, options.Find().SetSort(newestFirst))
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, expected string, update domain.StatusUpdate) (*domain.Order, error) {
	set := bson.M{"status": update.Status, "updated_at": update.At}
	if update.TrackingNumber != "" {
		set["tracking_number"] = update.TrackingNumber
	}
	if update.EstimatedDelivery != nil {
		set["estimated_delivery"] = *update.EstimatedDelivery
	}
	if update.ActualDelivery != nil {
		set["actual_delivery"] = *update.ActualDelivery
	}
	change := bson.M{"$set": set}
	if update.Entry != nil {
		change["$push"] = bson.M{"status_history": *update.Entry}
	}

	var order domain.Order
	err := findAndUpdate(ctx, s.col(colOrders), bson.M{"_id": id, "status": expected}, change, &order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, getErr := s.GetOrder(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, errors.Wrapf(store.ErrConflict, "order %s changed status to %s", id, current.Status)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	return &order, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Order, error) {
	var order domain.Order
	err := findAndUpdate(ctx, s.col(colOrders),
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"payment_status": status, "updated_at": at}},
		&order,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(store.ErrNotFound, "order %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update payment status")
	}
	return &order, nil
}

func (s *Store) SaveOrderFinancials(ctx context.Context, updated domain.Order, expected domain.FinancialsExpectation) (*domain.Order, error) {
	var order domain.Order
	err := findAndUpdate(ctx, s.col(colOrders),
		bson.M{
			"_id":           updated.ID,
			"discount_code": expected.DiscountCode,
			"subtotal":      expected.Subtotal,
			"discount":      expected.Discount,
		},
		bson.M{"$set": bson.M{
			"items":         updated.Items,
			"subtotal":      updated.Subtotal,
			"tax":           updated.Tax,
			"shipping_cost": updated.ShippingCost,
			"discount":      updated.Discount,
			"total":         updated.Total,
			"admin_notes":   updated.AdminNotes,
			"updated_at":    updated.UpdatedAt,
		}},
		&order,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.GetOrder(ctx, updated.ID); getErr != nil {
			return nil, getErr
		}
		return nil, errors.Wrap(store.ErrConflict, "order changed while editing financials")
	}
	if err != nil {
		return nil, errors.Wrap(err, "save order financials")
	}
	return &order, nil
}

// CloseOrder flips the status and records the lines still owed to stock in
// pending_restock with one write. Only the writer that wins the flip
// restocks, so a retried cancel never returns stock twice. Without
// transactions a restock that keeps failing stays pending on the order and
// ResumeRestocks settles it later.
func (s *Store) CloseOrder(ctx context.Context, id string, closure domain.OrderClosure) (*domain.Order, error) {
	set := bson.M{
		"status":     closure.Status,
		"updated_at": closure.Entry.Timestamp,
		"status_history": bson.M{"$concatArrays": bson.A{
			bson.M{"$ifNull": bson.A{"$status_history", bson.A{}}},
			bson.A{bson.M{"$literal": closure.Entry}},
		}},
		"pending_restock": bson.M{"$cond": bson.A{
			bson.M{"$eq": bson.A{"$request_type", domain.RequestTypeQuote}},
			bson.A{},
			"$items",
		}},
	}
	if closure.PaymentStatus != "" {
		set["payment_status"] = closure.PaymentStatus
	}
	filter := bson.M{"_id": id}
	if len(closure.BlockedFrom) > 0 {
		filter["status"] = bson.M{"$nin": closure.BlockedFrom}
	}

	var order closedOrder
	err := s.withTx(ctx, func(ctx context.Context) error {
		err := findAndUpdate(ctx, s.col(colOrders), filter, mongo.Pipeline{{{Key: "$set", Value: set}}}, &order)
		if errors.Is(err, mongo.ErrNoDocuments) {
			current, getErr := s.GetOrder(ctx, id)
			if getErr != nil {
				return getErr
			}
			return errors.Wrapf(store.ErrInvalidState, "order is %s", current.Status)
		}
		if err != nil {
			return errors.Wrap(err, "close order")
		}
		err = s.settleRestock(ctx, id, order.PendingRestock, closure.Entry.Timestamp)
		if err != nil && !s.transactions {
			s.lg.Warn("Order closed with restock pending", zap.String("order_id", id), zap.Error(err))
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &order.Order, nil
}

// closedOrder is an order together with the lines whose stock has not been
// returned yet.
type closedOrder struct {
	domain.Order   `bson:",inline"`
	PendingRestock []domain.OrderLine `bson:"pending_restock"`
}

const restockAttempts = 3

// settleRestock returns each pending line to stock and drops it from the
// order's pending_restock. A product increment is guarded by a per-order
// mark, so settling the same order again never counts a line twice.
func (s *Store) settleRestock(ctx context.Context, orderID string, items []domain.OrderLine, at time.Time) error {
	attempts := restockAttempts
	if s.transactions {
		attempts = 1
	}
	for _, item := range items {
		var err error
		for i := range attempts {
			if err = s.restockLine(ctx, orderID, item, at); err == nil {
				break
			}
			if i == attempts-1 {
				break
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
		if err != nil {
			s.lg.Error("Restock failed",
				zap.String("order_id", orderID),
				zap.String("product_id", item.ProductID),
				zap.Int("quantity", item.Quantity),
				zap.Error(err),
			)
			return errors.Wrapf(err, "restock %s", item.ProductID)
		}
	}
	return nil
}

func restockMark(orderID, productID string) string {
	return orderID + ":" + productID
}

func (s *Store) restockLine(ctx context.Context, orderID string, item domain.OrderLine, at time.Time) error {
	products := s.col(colProducts)
	mark := restockMark(orderID, item.ProductID)
	_, err := products.UpdateOne(ctx,
		bson.M{"_id": item.ProductID, "restock_marks": bson.M{"$ne": mark}},
		bson.M{
			"$inc":  bson.M{"stock": item.Quantity},
			"$push": bson.M{"restock_marks": mark},
			"$set":  bson.M{"updated_at": at},
		},
	)
	if err != nil {
		return err
	}
	_, err = s.col(colOrders).UpdateOne(ctx,
		bson.M{"_id": orderID},
		bson.M{"$pull": bson.M{"pending_restock": bson.M{"product_id": item.ProductID}}},
	)
	if err != nil {
		return err
	}
	_, err = products.UpdateOne(ctx, bson.M{"_id": item.ProductID}, bson.M{"$pull": bson.M{"restock_marks": mark}})
	return err
}

// ResumeRestocks settles orders that were closed while a restock kept
// failing.
func (s *Store) ResumeRestocks(ctx context.Context) error {
	cursor, err := s.col(colOrders).Find(ctx,
		bson.M{"pending_restock.0": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"pending_restock": 1}),
	)
	if err != nil {
		return errors.Wrap(err, "find pending restocks")
	}
	var pending []closedOrder
	if err := cursor.All(ctx, &pending); err != nil {
		return errors.Wrap(err, "decode pending restocks")
	}

	now := time.Now().UTC()
	for _, order := range pending {
		if err := s.settleRestock(ctx, order.ID, order.PendingRestock, now); err != nil {
			return err
		}
	}
	if len(pending) > 0 {
		s.lg.Info("Pending restocks settled", zap.Int("orders", len(pending)))
	}
	return nil
}

func (s *Store) OrderStats(ctx context.Context) (domain.OrderStats, error) {
	orders := s.col(colOrders)
	byStatus, err := aggregate[domain.OrderStatusStat](ctx, orders, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":           "$status",
			"count":         bson.M{"$sum": 1},
			"total_revenue": bson.M{"$sum": "$total"},
		}}},
	})
	if err != nil {
		return domain.OrderStats{}, err
	}
	pending, err := orders.CountDocuments(ctx, bson.M{"payment_status": domain.PaymentStatusPending})
	if err != nil {
		return domain.OrderStats{}, errors.Wrap(err, "count pending payments")
	}

	stats := domain.OrderStats{
		TotalRevenue:    decimal.Zero,
		ByStatus:        []domain.OrderStatusStat{},
		StatusBreakdown: make(map[string]int64, len(domain.OrderStatuses)),
		PaymentPending:  pending,
	}
	found := make(map[string]domain.OrderStatusStat, len(byStatus))
	for _, stat := range byStatus {
		found[stat.Status] = stat
		stats.TotalOrders += stat.Count
		stats.TotalRevenue = stats.TotalRevenue.Add(stat.TotalRevenue)
	}
	for _, status := range domain.OrderStatuses {
		stat, ok := found[status]
		stats.StatusBreakdown[status] = stat.Count
		if ok {
			stats.ByStatus = append(stats.ByStatus, stat)
		}
	}
	return stats, nil
}
