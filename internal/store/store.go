package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"sawmill/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidState      = errors.New("invalid state")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")

	ErrInvalidPromotion         = errors.New("invalid or expired promotion code")
	ErrUsageLimitExceeded       = errors.New("promotion has reached usage limit")
	ErrPerCustomerLimitExceeded = errors.New("per-customer limit reached")
	ErrBelowMinimum             = errors.New("below minimum order value")
	ErrNotApplicable            = errors.New("this promotion is not applicable to your items")
)

// Repository is the persistence boundary. Implementations must make
// CreateOrder, CloseOrder and RedeemPromotion atomic across every document
// they touch.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	SearchProducts(ctx context.Context, query domain.ProductQuery, offset, limit int) ([]domain.Product, int64, error)
	ListSimilarCandidates(ctx context.Context, product domain.Product, limit int) ([]domain.Product, error)
	ProductFacets(ctx context.Context) (domain.FilterOptions, error)
	SuggestProductNames(ctx context.Context, prefix string, limit int) ([]string, error)

	NextOrderNumber(ctx context.Context) (int64, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ListOrders(ctx context.Context, query domain.OrderListQuery) ([]domain.Order, int64, error)
	ListOrdersCreatedBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, expected string, update domain.StatusUpdate) (*domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, id string, status string, at time.Time) (*domain.Order, error)
	SaveOrderFinancials(ctx context.Context, order domain.Order, expected domain.FinancialsExpectation) (*domain.Order, error)
	CloseOrder(ctx context.Context, id string, closure domain.OrderClosure) (*domain.Order, error)
	OrderStats(ctx context.Context) (domain.OrderStats, error)

	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	GetPromotion(ctx context.Context, id string) (*domain.Promotion, error)
	FindPromotionByCode(ctx context.Context, code string) (*domain.Promotion, error)
	ListPromotions(ctx context.Context, query domain.PromotionListQuery) ([]domain.Promotion, int64, error)
	UpdatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
	DeletePromotion(ctx context.Context, id string) error
	RedeemPromotion(ctx context.Context, req domain.RedemptionRequest) (*domain.Promotion, *domain.Order, error)
	PromotionStats(ctx context.Context, at time.Time) (domain.PromotionStats, error)

	UpsertDailyAnalytics(ctx context.Context, record domain.DailyAnalytics) (*domain.DailyAnalytics, error)
	GetDailyAnalytics(ctx context.Context, day string) (*domain.DailyAnalytics, error)
	ListDailyAnalytics(ctx context.Context, r domain.AnalyticsRange) ([]domain.DailyAnalytics, error)
	TopProducts(ctx context.Context, r domain.AnalyticsRange, limit int) ([]domain.ProductMetric, error)
	CategoryTotals(ctx context.Context, r domain.AnalyticsRange) ([]domain.CategoryMetric, error)
	PaymentMethodTotals(ctx context.Context, r domain.AnalyticsRange) ([]domain.PaymentMetric, error)

	CreateReview(ctx context.Context, review domain.Review) (*domain.Review, error)
	GetReview(ctx context.Context, id string) (*domain.Review, error)
	ListReviews(ctx context.Context, query domain.ReviewListQuery) ([]domain.Review, int64, error)
	UpdateReview(ctx context.Context, review domain.Review) (*domain.Review, error)
	DeleteReview(ctx context.Context, id string) error
	IncrementReviewVote(ctx context.Context, id string, helpful bool) (*domain.Review, error)
	RatingDistribution(ctx context.Context, productID string) ([]domain.RatingCount, error)
	ProductRatings(ctx context.Context, productIDs []string) (map[string]domain.RatingSummary, error)

	GetWishlist(ctx context.Context, userID string) (*domain.Wishlist, error)
	AddWishlistItem(ctx context.Context, userID string, item domain.WishlistItem, at time.Time) (*domain.Wishlist, error)
	RemoveWishlistItem(ctx context.Context, userID, productID string, at time.Time) (*domain.Wishlist, error)
	UpdateWishlistItemNotes(ctx context.Context, userID, productID, notes string, at time.Time) (*domain.Wishlist, error)
	ClearWishlist(ctx context.Context, userID string, at time.Time) (*domain.Wishlist, error)
	SetWishlistPublic(ctx context.Context, userID string, public bool, at time.Time) (*domain.Wishlist, error)

	GetSiteSettings(ctx context.Context) (*domain.SiteSettings, error)
	SaveSiteSettings(ctx context.Context, settings domain.SiteSettings) (*domain.SiteSettings, error)

	CreateInventoryAlert(ctx context.Context, alert domain.InventoryAlert) (*domain.InventoryAlert, error)
	HasOpenInventoryAlert(ctx context.Context, productID, alertType string) (bool, error)
	ListInventoryAlerts(ctx context.Context, acknowledged *bool, limit int) ([]domain.InventoryAlert, error)
	AcknowledgeInventoryAlert(ctx context.Context, id, by, action string, at time.Time) (*domain.InventoryAlert, error)

	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByID(ctx context.Context, id string) (*domain.UserAccount, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)
}

// AuditSink receives the audit trail. The repository satisfies it; a
// dedicated ledger may replace it.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from, to time.Time, limit int) ([]domain.AuditLog, error)
}
