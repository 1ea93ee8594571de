// Package mongodb implements store.Repository on MongoDB.
package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"sawmill/backend/internal/store"
)

const (
	colProducts   = "products"
	colOrders     = "orders"
	colCounters   = "counters"
	colPromotions = "promotions"
	colAnalytics  = "analytics"
	colReviews    = "reviews"
	colWishlists  = "wishlists"
	colSettings   = "site_settings"
	colAlerts     = "inventory_alerts"
	colUsers      = "users"
	colAuditLogs  = "audit_logs"
)

type Config struct {
	URI      string
	Database string
	// Transactions wraps multi-document writes in a session transaction,
	// which needs a replica set. Without it those writes fall back to
	// conditional updates with compensation.
	Transactions bool
}

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	lg           *zap.Logger
}

var _ store.Repository = (*Store)(nil)

func Open(ctx context.Context, cfg Config, lg *zap.Logger) (*Store, error) {
	if lg == nil {
		lg = zap.NewNop()
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetRegistry(Registry()).
		SetBSONOptions(&options.BSONOptions{NilSliceAsEmpty: true, NilMapAsEmpty: true})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping")
	}

	s := &Store{
		client:       client,
		db:           client.Database(cfg.Database),
		transactions: cfg.Transactions,
		lg:           lg,
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := s.ResumeRestocks(ctx); err != nil {
		lg.Warn("Pending restocks not settled", zap.Error(err))
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		colProducts: {
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "tags", Value: 1}}},
			{Keys: bson.D{{Key: "is_available", Value: 1}, {Key: "featured", Value: 1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		colPromotions: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAnalytics: {
			{Keys: bson.D{{Key: "date", Value: -1}}, Options: options.Index().SetUnique(true)},
		},
		colReviews: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		colWishlists: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAlerts: {
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "alert_type", Value: 1}, {Key: "acknowledged", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colAuditLogs: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return errors.Wrapf(err, "create %s indexes", name)
		}
	}
	return nil
}

func (s *Store) col(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// withTx runs fn inside a transaction when they are enabled and directly
// otherwise. fn must use the context it is given.
func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return errors.Wrap(err, "start session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}

// findOne decodes the first match into out, mapping a miss to
// store.ErrNotFound.
func findOne(ctx context.Context, c *mongo.Collection, filter any, out any, what string) error {
	err := c.FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return errors.Wrap(store.ErrNotFound, what)
	}
	if err != nil {
		return errors.Wrapf(err, "find %s", what)
	}
	return nil
}

// findList runs a paged query and the matching count.
func findList[T any](ctx context.Context, c *mongo.Collection, filter any, sort bson.D, offset, limit int) ([]T, int64, error) {
	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "count %s", c.Name())
	}
	opts := options.Find().SetSort(sort)
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	items, err := findAll[T](ctx, c, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func findAll[T any](ctx context.Context, c *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := c.Find(ctx, filter, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "find %s", c.Name())
	}
	items := make([]T, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, errors.Wrapf(err, "decode %s", c.Name())
	}
	return items, nil
}

func aggregate[T any](ctx context.Context, c *mongo.Collection, pipeline mongo.Pipeline) ([]T, error) {
	cursor, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate %s", c.Name())
	}
	items := make([]T, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, errors.Wrapf(err, "decode %s aggregate", c.Name())
	}
	return items, nil
}

// findAndUpdate applies update to the first match and decodes the result
// after the write. A miss returns mongo.ErrNoDocuments unwrapped so callers
// can tell why nothing matched.
func findAndUpdate(ctx context.Context, c *mongo.Collection, filter, update any, out any) error {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	return c.FindOneAndUpdate(ctx, filter, update, opts).Decode(out)
}

func exists(ctx context.Context, c *mongo.Collection, filter any) (bool, error) {
	n, err := c.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrapf(err, "count %s", c.Name())
	}
	return n > 0, nil
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
