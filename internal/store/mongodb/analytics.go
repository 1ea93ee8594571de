package mongodb

import (
	"context"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
)

func (s *Store) UpsertDailyAnalytics(ctx context.Context, record domain.DailyAnalytics) (*domain.DailyAnalytics, error) {
	if record.ID == "" {
		return nil, errors.Wrap(store.ErrInvalidInput, "analytics day is required")
	}
	_, err := s.col(colAnalytics).ReplaceOne(ctx,
		bson.M{"_id": record.ID},
		record,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "upsert analytics %s", record.ID)
	}
	return &record, nil
}

func (s *Store) GetDailyAnalytics(ctx context.Context, day string) (*domain.DailyAnalytics, error) {
	var record domain.DailyAnalytics
	if err := findOne(ctx, s.col(colAnalytics), bson.M{"_id": day}, &record, "analytics for "+day); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) ListDailyAnalytics(ctx context.Context, r domain.AnalyticsRange) ([]domain.DailyAnalytics, error) {
	return findAll[domain.DailyAnalytics](ctx, s.col(colAnalytics), rangeFilter(r),
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

func (s *Store) TopProducts(ctx context.Context, r domain.AnalyticsRange, limit int) ([]domain.ProductMetric, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: rangeFilter(r)}},
		{{Key: "$unwind", Value: "$product_metrics"}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$product_metrics.product_id",
			"name":       bson.M{"$first": "$product_metrics.name"},
			"units_sold": bson.M{"$sum": "$product_metrics.units_sold"},
			"revenue":    bson.M{"$sum": "$product_metrics.revenue"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.M{
		"_id":        0,
		"product_id": "$_id",
		"name":       1,
		"units_sold": 1,
		"revenue":    1,
	}}})
	return aggregate[domain.ProductMetric](ctx, s.col(colAnalytics), pipeline)
}

func (s *Store) CategoryTotals(ctx context.Context, r domain.AnalyticsRange) ([]domain.CategoryMetric, error) {
	return aggregate[domain.CategoryMetric](ctx, s.col(colAnalytics), mongo.Pipeline{
		{{Key: "$match", Value: rangeFilter(r)}},
		{{Key: "$unwind", Value: "$category_metrics"}},
		{{Key: "$group", Value: bson.M{
			"_id":        "$category_metrics.category",
			"units_sold": bson.M{"$sum": "$category_metrics.units_sold"},
			"revenue":    bson.M{"$sum": "$category_metrics.revenue"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "revenue", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.M{"_id": 0, "category": "$_id", "units_sold": 1, "revenue": 1}}},
	})
}

func (s *Store) PaymentMethodTotals(ctx context.Context, r domain.AnalyticsRange) ([]domain.PaymentMetric, error) {
	return aggregate[domain.PaymentMetric](ctx, s.col(colAnalytics), mongo.Pipeline{
		{{Key: "$match", Value: rangeFilter(r)}},
		{{Key: "$unwind", Value: "$payment_metrics"}},
		{{Key: "$group", Value: bson.M{
			"_id":          "$payment_metrics.method",
			"count":        bson.M{"$sum": "$payment_metrics.count"},
			"total_amount": bson.M{"$sum": "$payment_metrics.total_amount"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "total_amount", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$project", Value: bson.M{"_id": 0, "method": "$_id", "count": 1, "total_amount": 1}}},
	})
}

func rangeFilter(r domain.AnalyticsRange) bson.M {
	if r.IsZero() {
		return bson.M{}
	}
	return bson.M{"date": bson.M{"$gte": r.From, "$lte": r.To}}
}
