package mongodb

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) CreateReview(ctx context.Context, review domain.Review) (*domain.Review, error) {
	if review.ID == "" {
		review.ID = xid.New("rev")
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = review.CreatedAt
	}
	if _, err := s.col(colReviews).InsertOne(ctx, review); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errors.Wrap(store.ErrConflict, "you have already reviewed this product")
		}
		return nil, errors.Wrap(err, "insert review")
	}
	return &review, nil
}

func (s *Store) GetReview(ctx context.Context, id string) (*domain.Review, error) {
	var review domain.Review
	if err := findOne(ctx, s.col(colReviews), bson.M{"_id": id}, &review, "review "+id); err != nil {
		return nil, err
	}
	return &review, nil
}

func (s *Store) ListReviews(ctx context.Context, query domain.ReviewListQuery) ([]domain.Review, int64, error) {
	filter := bson.M{}
	if query.ProductID != "" {
		filter["product_id"] = query.ProductID
	}
	if query.UserID != "" {
		filter["user_id"] = query.UserID
	}
	if query.Status != "" {
		filter["status"] = query.Status
	}
	return findList[domain.Review](ctx, s.col(colReviews), filter, newestFirst, query.Offset, query.Limit)
}

// UpdateReview rewrites the author-editable fields and the moderation
// status. Vote counters are untouched.
func (s *Store) UpdateReview(ctx context.Context, review domain.Review) (*domain.Review, error) {
	var updated domain.Review
	err := findAndUpdate(ctx, s.col(colReviews),
		bson.M{"_id": review.ID},
		bson.M{"$set": bson.M{
			"rating":     review.Rating,
			"title":      review.Title,
			"comment":    review.Comment,
			"images":     review.Images,
			"status":     review.Status,
			"verified":   review.Verified,
			"updated_at": review.UpdatedAt,
		}},
		&updated,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(store.ErrNotFound, "review %s", review.ID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "update review")
	}
	return &updated, nil
}

func (s *Store) DeleteReview(ctx context.Context, id string) error {
	res, err := s.col(colReviews).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "delete review")
	}
	if res.DeletedCount == 0 {
		return errors.Wrapf(store.ErrNotFound, "review %s", id)
	}
	return nil
}

func (s *Store) IncrementReviewVote(ctx context.Context, id string, helpful bool) (*domain.Review, error) {
	field := "unhelpful"
	if helpful {
		field = "helpful"
	}
	var review domain.Review
	err := findAndUpdate(ctx, s.col(colReviews), bson.M{"_id": id}, bson.M{"$inc": bson.M{field: 1}}, &review)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(store.ErrNotFound, "review %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "vote review")
	}
	return &review, nil
}

func (s *Store) RatingDistribution(ctx context.Context, productID string) ([]domain.RatingCount, error) {
	match := bson.M{"status": domain.ReviewStatusApproved}
	if productID != "" {
		match["product_id"] = productID
	}
	return aggregate[domain.RatingCount](ctx, s.col(colReviews), mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.M{"_id": "$rating", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: -1}}}},
	})
}

func (s *Store) ProductRatings(ctx context.Context, productIDs []string) (map[string]domain.RatingSummary, error) {
	type productRating struct {
		ProductID string  `bson:"_id"`
		Count     int64   `bson:"count"`
		Average   float64 `bson:"average"`
	}
	rows, err := aggregate[productRating](ctx, s.col(colReviews), mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"status":     domain.ReviewStatusApproved,
			"product_id": bson.M{"$in": productIDs},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id":     "$product_id",
			"count":   bson.M{"$sum": 1},
			"average": bson.M{"$avg": "$rating"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	result := make(map[string]domain.RatingSummary, len(rows))
	for _, row := range rows {
		result[row.ProductID] = domain.RatingSummary{Count: row.Count, Average: row.Average}
	}
	return result, nil
}

func (s *Store) GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error) {
	var wishlist domain.Wishlist
	if err := findOne(ctx, s.col(colWishlists), bson.M{"user_id": userID}, &wishlist, "wishlist"); err != nil {
		return nil, err
	}
	return &wishlist, nil
}

func (s *Store) AddWishlistItem(ctx context.Context, userID string, item domain.WishlistItem, at time.Time) (*domain.Wishlist, error) {
	if err := s.ensureWishlist(ctx, userID, at); err != nil {
		return nil, err
	}
	var wishlist domain.Wishlist
	err := findAndUpdate(ctx, s.col(colWishlists),
		bson.M{"user_id": userID, "items.product_id": bson.M{"$ne": item.ProductID}},
		bson.M{"$push": bson.M{"items": item}, "$set": bson.M{"updated_at": at}},
		&wishlist,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(store.ErrConflict, "product already in wishlist")
	}
	if err != nil {
		return nil, errors.Wrap(err, "add wishlist item")
	}
	return &wishlist, nil
}

func (s *Store) RemoveWishlistItem(ctx context.Context, userID, productID string, at time.Time) (*domain.Wishlist, error) {
	return s.updateWishlist(ctx, bson.M{"user_id": userID}, bson.M{
		"$pull": bson.M{"items": bson.M{"product_id": productID}},
		"$set":  bson.M{"updated_at": at},
	}, "wishlist")
}

func (s *Store) UpdateWishlistItemNotes(ctx context.Context, userID, productID, notes string, at time.Time) (*domain.Wishlist, error) {
	return s.updateWishlist(ctx,
		bson.M{"user_id": userID, "items.product_id": productID},
		bson.M{"$set": bson.M{"items.$.notes": notes, "updated_at": at}},
		"wishlist item "+productID,
	)
}

func (s *Store) ClearWishlist(ctx context.Context, userID string, at time.Time) (*domain.Wishlist, error) {
	if err := s.ensureWishlist(ctx, userID, at); err != nil {
		return nil, err
	}
	return s.updateWishlist(ctx, bson.M{"user_id": userID}, bson.M{
		"$set": bson.M{"items": bson.A{}, "updated_at": at},
	}, "wishlist")
}

func (s *Store) SetWishlistPublic(ctx context.Context, userID string, public bool, at time.Time) (*domain.Wishlist, error) {
	if err := s.ensureWishlist(ctx, userID, at); err != nil {
		return nil, err
	}
	return s.updateWishlist(ctx, bson.M{"user_id": userID}, bson.M{
		"$set": bson.M{"is_public": public, "updated_at": at},
	}, "wishlist")
}

// ensureWishlist creates an empty wishlist for the user if none exists.
func (s *Store) ensureWishlist(ctx context.Context, userID string, at time.Time) error {
	_, err := s.col(colWishlists).UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$setOnInsert": bson.M{
			"_id":        xid.New("wish"),
			"items":      bson.A{},
			"is_public":  false,
			"created_at": at,
			"updated_at": at,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return errors.Wrap(err, "ensure wishlist")
	}
	return nil
}

func (s *Store) updateWishlist(ctx context.Context, filter, update bson.M, what string) (*domain.Wishlist, error) {
	var wishlist domain.Wishlist
	err := findAndUpdate(ctx, s.col(colWishlists), filter, update, &wishlist)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(store.ErrNotFound, what)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "update %s", what)
	}
	return &wishlist, nil
}

const settingsID = "main"

func (s *Store) GetSiteSettings(ctx context.Context) (*domain.SiteSettings, error) {
	var settings domain.SiteSettings
	if err := findOne(ctx, s.col(colSettings), bson.M{"_id": settingsID}, &settings, "site settings"); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Store) SaveSiteSettings(ctx context.Context, settings domain.SiteSettings) (*domain.SiteSettings, error) {
	_, err := s.col(colSettings).ReplaceOne(ctx,
		bson.M{"_id": settingsID},
		settings,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "save site settings")
	}
	return &settings, nil
}

func (s *Store) CreateInventoryAlert(ctx context.Context, alert domain.InventoryAlert) (*domain.InventoryAlert, error) {
	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.UpdatedAt = alert.CreatedAt
	if _, err := s.col(colAlerts).InsertOne(ctx, alert); err != nil {
		return nil, errors.Wrap(err, "insert inventory alert")
	}
	return &alert, nil
}

func (s *Store) HasOpenInventoryAlert(ctx context.Context, productID, alertType string) (bool, error) {
	return exists(ctx, s.col(colAlerts), bson.M{
		"product_id":   productID,
		"alert_type":   alertType,
		"acknowledged": false,
	})
}

func (s *Store) ListInventoryAlerts(ctx context.Context, acknowledged *bool, limit int) ([]domain.InventoryAlert, error) {
	filter := bson.M{}
	if acknowledged != nil {
		filter["acknowledged"] = *acknowledged
	}
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return findAll[domain.InventoryAlert](ctx, s.col(colAlerts), filter, opts)
}

func (s *Store) AcknowledgeInventoryAlert(ctx context.Context, id, by, action string, at time.Time) (*domain.InventoryAlert, error) {
	var alert domain.InventoryAlert
	err := findAndUpdate(ctx, s.col(colAlerts),
		bson.M{"_id": id, "acknowledged": false},
		bson.M{"$set": bson.M{
			"acknowledged":    true,
			"acknowledged_by": by,
			"acknowledged_at": at,
			"action_taken":    action,
			"updated_at":      at,
		}},
		&alert,
	)
	if errors.Is(err, mongo.ErrNoDocuments) {
		found, existsErr := exists(ctx, s.col(colAlerts), bson.M{"_id": id})
		if existsErr != nil {
			return nil, existsErr
		}
		if found {
			return nil, errors.Wrap(store.ErrInvalidState, "alert already acknowledged")
		}
		return nil, errors.Wrapf(store.ErrNotFound, "inventory alert %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "acknowledge inventory alert")
	}
	return &alert, nil
}
