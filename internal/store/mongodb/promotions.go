package mongodb

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}
	if promo.UpdatedAt.IsZero() {
		promo.UpdatedAt = promo.CreatedAt
	}
	if _, err := s.col(colPromotions).InsertOne(ctx, promo); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Wrapf(store.ErrConflict, "promotion code %s already exists", promo.Code)
		}
		return nil, errors.Wrap(err, "insert promotion")
	}
	return &promo, nil
}

func (s *Store) GetPromotion(ctx context.Context, id string) (*domain.Promotion, error) {
	var promo domain.Promotion
	if err := findOne(ctx, s.col(colPromotions), bson.M{"_id": id}, &promo, "promotion "+id); err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *Store) FindPromotionByCode(ctx context.Context, code string) (*domain.Promotion, error) {
	var promo domain.Promotion
	if err := findOne(ctx, s.col(colPromotions), bson.M{"code": code}, &promo, "promotion "+code); err != nil {
		return nil, err
	}
	return &promo, nil
}

func (s *Store) ListPromotions(ctx context.Context, query domain.PromotionListQuery) ([]domain.Promotion, int64, error) {
	filter := bson.M{}
	if query.ActiveAt != nil {
		filter = liveAt(*query.ActiveAt)
	}
	return findList[domain.Promotion](ctx, s.col(colPromotions), filter, newestFirst, query.Offset, query.Limit)
}

// UpdatePromotion replaces the editable fields. Usage counters belong to
// RedeemPromotion and are left alone.
func (s *Store) UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	var updated domain.Promotion
	err := findAndUpdate(ctx, s.col(colPromotions),
		bson.M{"_id": promo.ID},
		bson.M{"$set": bson.M{
			"description":           promo.Description,
			"discount_type":         promo.DiscountType,
			"discount_value":        promo.DiscountValue,
			"max_discount":          promo.MaxDiscount,
			"minimum_order_value":   promo.MinimumOrderValue,
			"applicable_products":   promo.ApplicableProducts,
			"applicable_categories": promo.ApplicableCategories,
			"usage_limit":           promo.UsageLimit,
			"usage_per_customer":    promo.UsagePerCustomer,
			"valid_from":            promo.ValidFrom,
			"valid_until":           promo.ValidUntil,
			"active":                promo.Active,
			"updated_at":            promo.UpdatedAt,
		}},
		&updated,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(store.ErrNotFound, "promotion %s", promo.ID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update promotion")
	}
	return &updated, nil
}

func (s *Store) DeletePromotion(ctx context.Context, id string) error {
	res, err := s.col(colPromotions).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "delete promotion")
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(store.ErrNotFound, "promotion %s", id)
	}
	return nil
}

// RedeemPromotion claims a use of the promotion and stamps the discount on
// the order. Both writes are conditional, so limits hold under concurrent
// redemptions even without a transaction; in that mode a failed order write
// hands the claimed use back.
func (s *Store) RedeemPromotion(ctx context.Context, req domain.RedemptionRequest) (*domain.Promotion, *domain.Order, error) {
	var (
		promo domain.Promotion
		order domain.Order
	)
	redemption := domain.Redemption{UserID: req.UserID, OrderID: req.OrderID, UsedAt: req.At}

	err := s.withTx(ctx, func(ctx context.Context) error {
		claim := liveAt(req.At)
		claim["_id"] = req.PromotionID
		claim["$expr"] = bson.M{"$and": bson.A{underUsageLimit(), underCustomerLimit(req.UserID)}}
		err := findAndUpdate(ctx, s.col(colPromotions), claim, bson.M{
			"$inc":  bson.M{"usage_count": 1},
			"$push": bson.M{"used_by": redemption},
			"$set":  bson.M{"updated_at": req.At},
		}, &promo)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return s.redeemRefusal(ctx, req)
		}
		if err != nil {
			return errors.Wrap(err, "claim promotion")
		}

		err = findAndUpdate(ctx, s.col(colOrders),
			bson.M{
				"_id":           req.OrderID,
				"status":        bson.M{"$nin": domain.CancelBlockedStatuses},
				"discount_code": bson.M{"$in": bson.A{"", nil}},
				"subtotal":      req.ExpectedSubtotal,
			},
			mongo.Pipeline{{{Key: "$set", Value: bson.M{
				"discount_code": req.Code,
				"discount":      req.Discount,
				"updated_at":    req.At,
				"total": bson.M{"$subtract": bson.A{
					bson.M{"$add": bson.A{"$subtotal", "$tax", "$shipping_cost"}},
					req.Discount,
				}},
			}}}},
			&order,
		)
		if err == nil {
			return nil
		}
		s.releaseRedemption(ctx, req.PromotionID, redemption)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return s.orderRefusal(ctx, req)
		}
		return errors.Wrap(err, "discount order")
	})
	if err != nil {
		return nil, nil, err
	}
	return &promo, &order, nil
}

// redeemRefusal explains why the promotion claim matched nothing.
func (s *Store) redeemRefusal(ctx context.Context, req domain.RedemptionRequest) error {
	current, err := s.GetPromotion(ctx, req.PromotionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.ErrInvalidPromotion
	}
	if err != nil {
		return err
	}
	if !current.Active || req.At.Before(current.ValidFrom) || req.At.After(current.ValidUntil) {
		return store.ErrInvalidPromotion
	}
	if current.LimitReached() {
		return store.ErrUsageLimitExceeded
	}
	used := 0
	for _, r := range current.UsedBy {
		if r.UserID == req.UserID {
			used++
		}
	}
	return errors.Wrapf(store.ErrPerCustomerLimitExceeded, "you have already used this promotion %d time(s)", used)
}

// orderRefusal explains why the order update matched nothing.
func (s *Store) orderRefusal(ctx context.Context, req domain.RedemptionRequest) error {
	current, err := s.GetOrder(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if slices.Contains(domain.CancelBlockedStatuses, current.Status) {
		return errors.Wrapf(store.ErrInvalidState, "order is %s", current.Status)
	}
	if current.DiscountCode != "" {
		return errors.Wrapf(store.ErrConflict, "order already uses promotion %s", current.DiscountCode)
	}
	return errors.Wrap(store.ErrConflict, "order changed while applying promotion")
}

func (s *Store) releaseRedemption(ctx context.Context, promotionID string, redemption domain.Redemption) {
	if s.transactions {
		return
	}
	_, err := s.col(colPromotions).UpdateOne(ctx,
		bson.M{"_id": promotionID},
		bson.M{
			"$inc":  bson.M{"usage_count": -1},
			"$pull": bson.M{"used_by": bson.M{"order_id": redemption.OrderID, "user_id": redemption.UserID, "used_at": redemption.UsedAt}},
		},
	)
	if err != nil {
		s.lg.Error("Release promotion use failed",
			zap.String("promotion_id", promotionID),
			zap.String("order_id", redemption.OrderID),
			zap.Error(err),
		)
	}
}

func (s *Store) PromotionStats(ctx context.Context, at time.Time) (domain.PromotionStats, error) {
	live := bson.M{"$and": bson.A{
		bson.M{"$eq": bson.A{"$active", true}},
		bson.M{"$lte": bson.A{"$valid_from", at}},
		bson.M{"$gte": bson.A{"$valid_until", at}},
	}}
	stats, err := aggregate[domain.PromotionStats](ctx, s.col(colPromotions), mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":               nil,
			"total_promotions":  bson.M{"$sum": 1},
			"active_promotions": bson.M{"$sum": bson.M{"$cond": bson.A{live, 1, 0}}},
			"total_usage":       bson.M{"$sum": "$usage_count"},
			"total_discount_given": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$discount_type", domain.DiscountFixedAmount}},
				bson.M{"$multiply": bson.A{"$discount_value", "$usage_count"}},
				0,
			}}},
		}}},
	})
	if err != nil {
		return domain.PromotionStats{}, err
	}
	if len(stats) == 0 {
		return domain.PromotionStats{TotalDiscountGiven: decimal.Zero}, nil
	}
	return stats[0], nil
}

func liveAt(at time.Time) bson.M {
	return bson.M{
		"active":      true,
		"valid_from":  bson.M{"$lte": at},
		"valid_until": bson.M{"$gte": at},
	}
}

// underUsageLimit is true when usage_limit is unset or not yet reached.
func underUsageLimit() bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"$in": bson.A{bson.M{"$type": "$usage_limit"}, bson.A{"missing", "null"}}},
		bson.M{"$lt": bson.A{"$usage_count", "$usage_limit"}},
	}}
}

func underCustomerLimit(userID string) bson.M {
	used := bson.M{"$size": bson.M{"$filter": bson.M{
		"input": bson.M{"$ifNull": bson.A{"$used_by", bson.A{}}},
		"cond":  bson.M{"$eq": bson.A{"$$this.user_id", userID}},
	}}}
	limit := bson.M{"$max": bson.A{bson.M{"$ifNull": bson.A{"$usage_per_customer", 1}}, 1}}
	return bson.M{"$lt": bson.A{used, limit}}
}
