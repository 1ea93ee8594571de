package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Store) CreateReview(_ context.Context, review domain.Review) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.reviews {
		if existing.UserID == review.UserID && existing.ProductID == review.ProductID {
			return nil, errors.Wrap(store.ErrConflict, "you have already reviewed this product")
		}
	}
	if review.ID == "" {
		review.ID = xid.New("rev")
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	if review.UpdatedAt.IsZero() {
		review.UpdatedAt = review.CreatedAt
	}
	s.reviews[review.ID] = cloneReview(review)
	return &review, nil
}

func (s *Store) GetReview(_ context.Context, id string) (*domain.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	review, ok := s.reviews[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "review %s", id)
	}
	dup := cloneReview(review)
	return &dup, nil
}

func (s *Store) ListReviews(_ context.Context, query domain.ReviewListQuery) ([]domain.Review, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reviews := make([]domain.Review, 0)
	for _, review := range s.reviews {
		if query.ProductID != "" && review.ProductID != query.ProductID {
			continue
		}
		if query.UserID != "" && review.UserID != query.UserID {
			continue
		}
		if query.Status != "" && review.Status != query.Status {
			continue
		}
		reviews = append(reviews, cloneReview(review))
	}
	slices.SortFunc(reviews, func(a, b domain.Review) int {
		return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return page(reviews, query.Offset, query.Limit), int64(len(reviews)), nil
}

func (s *Store) UpdateReview(_ context.Context, review domain.Review) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reviews[review.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "review %s", review.ID)
	}
	review.Helpful = existing.Helpful
	review.Unhelpful = existing.Unhelpful
	review.CreatedAt = existing.CreatedAt
	s.reviews[review.ID] = cloneReview(review)
	return &review, nil
}

func (s *Store) DeleteReview(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reviews[id]; !ok {
		return errors.Wrapf(store.ErrNotFound, "review %s", id)
	}
	delete(s.reviews, id)
	return nil
}

func (s *Store) IncrementReviewVote(_ context.Context, id string, helpful bool) (*domain.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	review, ok := s.reviews[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "review %s", id)
	}
	if helpful {
		review.Helpful++
	} else {
		review.Unhelpful++
	}
	s.reviews[id] = review
	dup := cloneReview(review)
	return &dup, nil
}

func (s *Store) RatingDistribution(_ context.Context, productID string) ([]domain.RatingCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[int]int64{}
	for _, review := range s.reviews {
		if review.Status != domain.ReviewStatusApproved {
			continue
		}
		if productID != "" && review.ProductID != productID {
			continue
		}
		counts[review.Rating]++
	}
	distribution := make([]domain.RatingCount, 0, len(counts))
	for rating, count := range counts {
		distribution = append(distribution, domain.RatingCount{Rating: rating, Count: count})
	}
	slices.SortFunc(distribution, func(a, b domain.RatingCount) int { return cmp.Compare(b.Rating, a.Rating) })
	return distribution, nil
}

func (s *Store) ProductRatings(_ context.Context, productIDs []string) (map[string]domain.RatingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := map[string]int64{}
	result := make(map[string]domain.RatingSummary, len(productIDs))
	for _, review := range s.reviews {
		if review.Status != domain.ReviewStatusApproved || !slices.Contains(productIDs, review.ProductID) {
			continue
		}
		summary := result[review.ProductID]
		summary.Count++
		sums[review.ProductID] += int64(review.Rating)
		result[review.ProductID] = summary
	}
	for id, summary := range result {
		summary.Average = float64(sums[id]) / float64(summary.Count)
		result[id] = summary
	}
	return result, nil
}

func (s *Store) GetWishlist(_ context.Context, userID string) (*domain.Wishlist, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wishlist, ok := s.wishlists[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "wishlist")
	}
	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

func (s *Store) AddWishlistItem(_ context.Context, userID string, item domain.WishlistItem, at time.Time) (*domain.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishlist := s.wishlistFor(userID, at)
	if slices.ContainsFunc(wishlist.Items, func(existing domain.WishlistItem) bool { return existing.ProductID == item.ProductID }) {
		return nil, errors.Wrap(store.ErrConflict, "product already in wishlist")
	}
	wishlist.Items = append(wishlist.Items, item)
	wishlist.UpdatedAt = at

	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

func (s *Store) RemoveWishlistItem(_ context.Context, userID, productID string, at time.Time) (*domain.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishlist, ok := s.wishlists[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "wishlist")
	}
	wishlist.Items = slices.DeleteFunc(wishlist.Items, func(item domain.WishlistItem) bool { return item.ProductID == productID })
	wishlist.UpdatedAt = at

	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

func (s *Store) UpdateWishlistItemNotes(_ context.Context, userID, productID, notes string, at time.Time) (*domain.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishlist, ok := s.wishlists[userID]
	if !ok {
		return nil, errors.Wrap(store.ErrNotFound, "wishlist")
	}
	idx := slices.IndexFunc(wishlist.Items, func(item domain.WishlistItem) bool { return item.ProductID == productID })
	if idx < 0 {
		return nil, errors.Wrapf(store.ErrNotFound, "wishlist item %s", productID)
	}
	wishlist.Items[idx].Notes = notes
	wishlist.UpdatedAt = at

	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

func (s *Store) ClearWishlist(_ context.Context, userID string, at time.Time) (*domain.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishlist := s.wishlistFor(userID, at)
	wishlist.Items = []domain.WishlistItem{}
	wishlist.UpdatedAt = at

	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

func (s *Store) SetWishlistPublic(_ context.Context, userID string, public bool, at time.Time) (*domain.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wishlist := s.wishlistFor(userID, at)
	wishlist.IsPublic = public
	wishlist.UpdatedAt = at

	dup := cloneWishlist(*wishlist)
	return &dup, nil
}

// wishlistFor returns the user's wishlist, creating an empty one first.
// Callers hold the write lock.
func (s *Store) wishlistFor(userID string, at time.Time) *domain.Wishlist {
	if wishlist, ok := s.wishlists[userID]; ok {
		return wishlist
	}
	wishlist := &domain.Wishlist{
		ID:        xid.New("wish"),
		UserID:    userID,
		Items:     []domain.WishlistItem{},
		CreatedAt: at,
		UpdatedAt: at,
	}
	s.wishlists[userID] = wishlist
	return wishlist
}

func (s *Store) GetSiteSettings(_ context.Context) (*domain.SiteSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, errors.Wrap(store.ErrNotFound, "site settings")
	}
	dup := *s.settings
	dup.HeroFeatures = slices.Clone(s.settings.HeroFeatures)
	return &dup, nil
}

func (s *Store) SaveSiteSettings(_ context.Context, settings domain.SiteSettings) (*domain.SiteSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := settings
	stored.HeroFeatures = slices.Clone(settings.HeroFeatures)
	s.settings = &stored
	return &settings, nil
}

func (s *Store) CreateInventoryAlert(_ context.Context, alert domain.InventoryAlert) (*domain.InventoryAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.ID == "" {
		alert.ID = xid.New("alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	alert.UpdatedAt = alert.CreatedAt
	s.alerts[alert.ID] = alert
	return &alert, nil
}

func (s *Store) HasOpenInventoryAlert(_ context.Context, productID, alertType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, alert := range s.alerts {
		if alert.ProductID == productID && alert.AlertType == alertType && !alert.Acknowledged {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListInventoryAlerts(_ context.Context, acknowledged *bool, limit int) ([]domain.InventoryAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := make([]domain.InventoryAlert, 0)
	for _, alert := range s.alerts {
		if acknowledged != nil && alert.Acknowledged != *acknowledged {
			continue
		}
		alerts = append(alerts, alert)
	}
	slices.SortFunc(alerts, func(a, b domain.InventoryAlert) int {
		return byNewest(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	return page(alerts, 0, limit), nil
}

func (s *Store) AcknowledgeInventoryAlert(_ context.Context, id, by, action string, at time.Time) (*domain.InventoryAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "inventory alert %s", id)
	}
	if alert.Acknowledged {
		return nil, errors.Wrap(store.ErrInvalidState, "alert already acknowledged")
	}
	alert.Acknowledged = true
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &at
	alert.ActionTaken = action
	alert.UpdatedAt = at
	s.alerts[id] = alert
	return &alert, nil
}

func cloneReview(src domain.Review) domain.Review {
	dup := src
	dup.Images = slices.Clone(src.Images)
	return dup
}

func cloneWishlist(src domain.Wishlist) domain.Wishlist {
	dup := src
	dup.Items = slices.Clone(src.Items)
	if dup.Items == nil {
		dup.Items = []domain.WishlistItem{}
	}
	return dup
}
