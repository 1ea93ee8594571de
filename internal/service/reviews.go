package service

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/xid"
)

func (s *Service) CreateReview(ctx context.Context, req domain.CreateReviewRequest) (domain.Review, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Review{}, err
	}
	title := strings.TrimSpace(req.Title)
	comment := strings.TrimSpace(req.Comment)
	if err := validateReview(req.Rating, title, comment); err != nil {
		return domain.Review{}, err
	}
	if _, err := s.repo.GetProduct(ctx, req.ProductID); err != nil {
		return domain.Review{}, err
	}

	verified := false
	if req.OrderID != "" {
		order, err := s.repo.GetOrder(ctx, req.OrderID)
		switch {
		case err == nil:
			verified = order.UserID == actor.UserID && order.Status == domain.OrderStatusDelivered
		case errors.Is(err, store.ErrNotFound):
		default:
			return domain.Review{}, err
		}
	}

	now := s.now()
	created, err := s.repo.CreateReview(ctx, domain.Review{
		ID:        xid.New("rev"),
		ProductID: req.ProductID,
		UserID:    actor.UserID,
		OrderID:   req.OrderID,
		Rating:    req.Rating,
		Title:     title,
		Comment:   comment,
		Verified:  verified,
		Images:    nonNil(req.Images),
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.Review{}, err
	}
	return *created, nil
}

// ListProductReviews returns approved reviews with rating statistics over
// every approved review of the product.
func (s *Service) ListProductReviews(ctx context.Context, productID string, p Paging) (domain.ReviewListResponse, error) {
	p = p.normalize(10)
	reviews, total, err := s.repo.ListReviews(ctx, domain.ReviewListQuery{
		ProductID: productID,
		Status:    domain.ReviewStatusApproved,
		Offset:    p.offset(),
		Limit:     p.Limit,
	})
	if err != nil {
		return domain.ReviewListResponse{}, errors.Wrap(err, "list reviews")
	}

	distribution, err := s.repo.RatingDistribution(ctx, productID)
	if err != nil {
		return domain.ReviewListResponse{}, errors.Wrap(err, "rating distribution")
	}
	stats := domain.ReviewStats{RatingDistribution: distribution}
	var sum int64
	for _, bucket := range distribution {
		stats.TotalReviews += bucket.Count
		sum += int64(bucket.Rating) * bucket.Count
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = math.Round(float64(sum)/float64(stats.TotalReviews)*10) / 10
	}

	return domain.ReviewListResponse{Reviews: reviews, Stats: &stats, Pagination: pagination(total, p)}, nil
}

func (s *Service) ListUserReviews(ctx context.Context, userID string, p Paging) (domain.ReviewListResponse, error) {
	if _, err := requireOwner(ctx, userID); err != nil {
		return domain.ReviewListResponse{}, err
	}
	return s.listReviews(ctx, domain.ReviewListQuery{UserID: userID}, p)
}

func (s *Service) ListPendingReviews(ctx context.Context, p Paging) (domain.ReviewListResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.ReviewListResponse{}, err
	}
	return s.listReviews(ctx, domain.ReviewListQuery{Status: domain.ReviewStatusPending}, p)
}

func (s *Service) listReviews(ctx context.Context, query domain.ReviewListQuery, p Paging) (domain.ReviewListResponse, error) {
	p = p.normalize(10)
	query.Offset, query.Limit = p.offset(), p.Limit
	reviews, total, err := s.repo.ListReviews(ctx, query)
	if err != nil {
		return domain.ReviewListResponse{}, errors.Wrap(err, "list reviews")
	}
	return domain.ReviewListResponse{Reviews: reviews, Pagination: pagination(total, p)}, nil
}

// UpdateReview lets the author edit a review. Edits go back to moderation.
func (s *Service) UpdateReview(ctx context.Context, id string, req domain.UpdateReviewRequest) (domain.Review, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Review{}, err
	}
	review, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}
	if review.UserID != actor.UserID {
		return domain.Review{}, errors.Wrap(store.ErrForbidden, "only the author can edit a review")
	}

	if req.Rating != nil {
		review.Rating = *req.Rating
	}
	if req.Title != nil {
		review.Title = strings.TrimSpace(*req.Title)
	}
	if req.Comment != nil {
		review.Comment = strings.TrimSpace(*req.Comment)
	}
	if req.Images != nil {
		review.Images = nonNil(*req.Images)
	}
	if err := validateReview(review.Rating, review.Title, review.Comment); err != nil {
		return domain.Review{}, err
	}
	review.Status = domain.ReviewStatusPending
	review.UpdatedAt = s.now()

	updated, err := s.repo.UpdateReview(ctx, *review)
	if err != nil {
		return domain.Review{}, err
	}
	return *updated, nil
}

func (s *Service) DeleteReview(ctx context.Context, id string) error {
	review, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return err
	}
	actor, err := requireOwner(ctx, review.UserID)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteReview(ctx, id); err != nil {
		return err
	}
	if actor.IsAdmin() {
		s.logAudit(ctx, "delete_review", "review", id, "product="+review.ProductID)
	}
	return nil
}

func (s *Service) ModerateReview(ctx context.Context, id string, approve bool) (domain.Review, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Review{}, err
	}
	review, err := s.repo.GetReview(ctx, id)
	if err != nil {
		return domain.Review{}, err
	}

	review.Status = domain.ReviewStatusRejected
	if approve {
		review.Status = domain.ReviewStatusApproved
	}
	review.UpdatedAt = s.now()
	updated, err := s.repo.UpdateReview(ctx, *review)
	if err != nil {
		return domain.Review{}, err
	}

	s.logAudit(ctx, "moderate_review", "review", id, "status="+updated.Status)
	return *updated, nil
}

func (s *Service) VoteReview(ctx context.Context, id string, helpful bool) (domain.Review, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.Review{}, err
	}
	review, err := s.repo.IncrementReviewVote(ctx, id, helpful)
	if err != nil {
		return domain.Review{}, err
	}
	return *review, nil
}

func validateReview(rating int, title, comment string) error {
	if rating < 1 || rating > 5 {
		return errors.Wrap(store.ErrInvalidInput, "rating must be between 1 and 5")
	}
	if title == "" || utf8.RuneCountInString(title) > 100 {
		return errors.Wrap(store.ErrInvalidInput, "title is required and must be at most 100 characters")
	}
	if comment == "" || utf8.RuneCountInString(comment) > 1000 {
		return errors.Wrap(store.ErrInvalidInput, "comment is required and must be at most 1000 characters")
	}
	return nil
}
