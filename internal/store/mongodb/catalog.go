package mongodb

import (
	"context"
	"regexp"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := findOne(ctx, s.col(colProducts), bson.M{"_id": id}, &product, "product "+id); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	products, err := findAll[domain.Product](ctx, s.col(colProducts), bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	result := make(map[string]domain.Product, len(products))
	for _, product := range products {
		result[product.ID] = product
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = product.CreatedAt

	if _, err := s.col(colProducts).InsertOne(ctx, product); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Wrapf(store.ErrConflict, "product %s already exists", product.ID)
		}
		return nil, errors.Wrap(err, "insert product")
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	var existing domain.Product
	if err := findOne(ctx, s.col(colProducts), bson.M{"_id": product.ID}, &existing, "product "+product.ID); err != nil {
		return nil, err
	}
	product.CreatedAt = existing.CreatedAt

	res, err := s.col(colProducts).ReplaceOne(ctx, bson.M{"_id": product.ID}, product)
	if err != nil {
		return nil, errors.Wrap(err, "replace product")
	}
	if res.MatchedCount == 0 {
		return nil, errors.Wrapf(store.ErrNotFound, "product %s", product.ID)
	}
	return &product, nil
}

func (s *Store) SearchProducts(ctx context.Context, query domain.ProductQuery, offset, limit int) ([]domain.Product, int64, error) {
	return findList[domain.Product](ctx, s.col(colProducts), productFilter(query), productSort(query.Sort), offset, limit)
}

func (s *Store) ListSimilarCandidates(ctx context.Context, product domain.Product, limit int) ([]domain.Product, error) {
	filter := bson.M{
		"_id":          bson.M{"$ne": product.ID},
		"is_available": true,
		"category":     product.Category,
	}
	// Same wood type first, then the rest of the category.
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$addFields", Value: bson.M{"same_wood": bson.M{"$eq": bson.A{"$wood_type", product.WoodType}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "same_wood", Value: -1}, {Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
	}
	if limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: limit}})
	}
	pipeline = append(pipeline, bson.D{{Key: "$project", Value: bson.M{"same_wood": 0}}})
	return aggregate[domain.Product](ctx, s.col(colProducts), pipeline)
}

func (s *Store) ProductFacets(ctx context.Context) (domain.FilterOptions, error) {
	available := bson.M{"is_available": true}
	var (
		opts domain.FilterOptions
		err  error
	)
	for field, dst := range map[string]*[]string{
		"category":  &opts.Categories,
		"wood_type": &opts.WoodTypes,
		"color":     &opts.Colors,
		"tags":      &opts.Tags,
	} {
		if *dst, err = s.distinctStrings(ctx, field, available); err != nil {
			return domain.FilterOptions{}, err
		}
	}

	type priceStats struct {
		Min     decimal.Decimal `bson:"min"`
		Max     decimal.Decimal `bson:"max"`
		Average decimal.Decimal `bson:"average"`
	}
	stats, err := aggregate[priceStats](ctx, s.col(colProducts), mongo.Pipeline{
		{{Key: "$match", Value: available}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"min":     bson.M{"$min": "$price"},
			"max":     bson.M{"$max": "$price"},
			"average": bson.M{"$avg": "$price"},
		}}},
	})
	if err != nil {
		return domain.FilterOptions{}, err
	}
	if len(stats) > 0 {
		opts.PriceRange = domain.PriceRange{Min: stats[0].Min, Max: stats[0].Max, Average: stats[0].Average}
	}
	return opts, nil
}

func (s *Store) distinctStrings(ctx context.Context, field string, filter any) ([]string, error) {
	values, err := s.col(colProducts).Distinct(ctx, field, filter)
	if err != nil {
		return nil, errors.Wrapf(err, "distinct %s", field)
	}
	result := make([]string, 0, len(values))
	for _, v := range values {
		if str, ok := v.(string); ok && str != "" {
			result = append(result, str)
		}
	}
	slices.Sort(result)
	return result, nil
}

func (s *Store) SuggestProductNames(ctx context.Context, q string, limit int) ([]string, error) {
	pattern := containsPattern(q)
	filter := bson.M{
		"is_available": true,
		"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"tags": pattern},
		},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "name", Value: 1}}).
		SetProjection(bson.M{"name": 1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	products, err := findAll[domain.Product](ctx, s.col(colProducts), filter, opts)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(products))
	for _, product := range products {
		if !slices.Contains(names, product.Name) {
			names = append(names, product.Name)
		}
	}
	return names, nil
}

func productFilter(q domain.ProductQuery) bson.M {
	filter := bson.M{"is_available": true}
	if q.Search != "" {
		pattern := containsPattern(q.Search)
		filter["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"description": pattern},
			bson.M{"product_type": pattern},
			bson.M{"tags": pattern},
		}
	}
	if len(q.Categories) > 0 {
		filter["category"] = bson.M{"$in": q.Categories}
	}
	if len(q.WoodTypes) > 0 {
		filter["wood_type"] = bson.M{"$in": q.WoodTypes}
	}
	if len(q.Colors) > 0 {
		filter["color"] = bson.M{"$in": q.Colors}
	}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$in": q.Tags}
	}
	price := bson.M{}
	if q.PriceMin != nil {
		price["$gte"] = *q.PriceMin
	}
	if q.PriceMax != nil {
		price["$lte"] = *q.PriceMax
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if q.Featured {
		filter["featured"] = true
	}
	if q.InStock {
		filter["stock"] = bson.M{"$gt": 0}
	}
	return filter
}

func productSort(sortBy string) bson.D {
	switch sortBy {
	case domain.SortPriceAsc:
		return append(bson.D{{Key: "price", Value: 1}}, newestFirst...)
	case domain.SortPriceDesc:
		return append(bson.D{{Key: "price", Value: -1}}, newestFirst...)
	case domain.SortName:
		return bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}
	case domain.SortBestselling:
		return append(bson.D{{Key: "featured", Value: -1}}, newestFirst...)
	default:
		return newestFirst
	}
}

// containsPattern matches q literally anywhere in a field, ignoring case.
func containsPattern(q string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
}
