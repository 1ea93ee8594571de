package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ReviewStatusPending  = "pending"
	ReviewStatusApproved = "approved"
	ReviewStatusRejected = "rejected"
)

type Review struct {
	ID        string    `json:"id" bson:"_id"`
	ProductID string    `json:"product_id" bson:"product_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	OrderID   string    `json:"order_id,omitempty" bson:"order_id,omitempty"`
	Rating    int       `json:"rating" bson:"rating"`
	Title     string    `json:"title" bson:"title"`
	Comment   string    `json:"comment" bson:"comment"`
	Verified  bool      `json:"verified" bson:"verified"`
	Helpful   int       `json:"helpful" bson:"helpful"`
	Unhelpful int       `json:"unhelpful" bson:"unhelpful"`
	Images    []string  `json:"images" bson:"images"`
	Status    string    `json:"status" bson:"status"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

type CreateReviewRequest struct {
	ProductID string   `json:"product_id"`
	OrderID   string   `json:"order_id,omitempty"`
	Rating    int      `json:"rating"`
	Title     string   `json:"title"`
	Comment   string   `json:"comment"`
	Images    []string `json:"images,omitempty"`
}

type UpdateReviewRequest struct {
	Rating  *int      `json:"rating,omitempty"`
	Title   *string   `json:"title,omitempty"`
	Comment *string   `json:"comment,omitempty"`
	Images  *[]string `json:"images,omitempty"`
}

type ReviewVoteRequest struct {
	Helpful bool `json:"helpful"`
}

type ReviewListQuery struct {
	ProductID string
	UserID    string
	Status    string
	Offset    int
	Limit     int
}

type RatingCount struct {
	Rating int   `json:"rating" bson:"_id"`
	Count  int64 `json:"count" bson:"count"`
}

type RatingSummary struct {
	Count   int64   `json:"count" bson:"count"`
	Average float64 `json:"average" bson:"average"`
}

type ReviewStats struct {
	AverageRating      float64       `json:"average_rating"`
	TotalReviews       int64         `json:"total_reviews"`
	RatingDistribution []RatingCount `json:"rating_distribution"`
}

type ReviewListResponse struct {
	Reviews    []Review     `json:"reviews"`
	Stats      *ReviewStats `json:"stats,omitempty"`
	Pagination Pagination   `json:"pagination"`
}

type WishlistItem struct {
	ProductID string    `json:"product_id" bson:"product_id"`
	AddedAt   time.Time `json:"added_at" bson:"added_at"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
}

type Wishlist struct {
	ID        string         `json:"id" bson:"_id"`
	UserID    string         `json:"user_id" bson:"user_id"`
	Items     []WishlistItem `json:"items" bson:"items"`
	IsPublic  bool           `json:"is_public" bson:"is_public"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" bson:"updated_at"`
}

type WishlistItemRequest struct {
	ProductID string `json:"product_id"`
	Notes     string `json:"notes,omitempty"`
}

type WishlistNotesRequest struct {
	Notes string `json:"notes"`
}

type WishlistView struct {
	Wishlist
	ItemCount int       `json:"item_count"`
	Products  []Product `json:"products"`
}

type HeroFeature struct {
	Text string `json:"text" bson:"text"`
	Icon string `json:"icon" bson:"icon"`
}

type SiteSettings struct {
	HeroTitle        string        `json:"hero_title" bson:"hero_title"`
	HeroSubtitle     string        `json:"hero_subtitle" bson:"hero_subtitle"`
	HeroDescription  string        `json:"hero_description" bson:"hero_description"`
	HeroBadgeText    string        `json:"hero_badge_text" bson:"hero_badge_text"`
	HeroFeatures     []HeroFeature `json:"hero_features" bson:"hero_features"`
	AboutTitle       string        `json:"about_title" bson:"about_title"`
	AboutSubtitle    string        `json:"about_subtitle" bson:"about_subtitle"`
	AboutDescription string        `json:"about_description" bson:"about_description"`
	AboutMission     string        `json:"about_mission" bson:"about_mission"`
	AboutVision      string        `json:"about_vision" bson:"about_vision"`
	ContactPhone     string        `json:"contact_phone" bson:"contact_phone"`
	ContactEmail     string        `json:"contact_email" bson:"contact_email"`
	ContactAddress   string        `json:"contact_address" bson:"contact_address"`
	WhatsappNumber   string        `json:"whatsapp_number" bson:"whatsapp_number"`
	BusinessHours    string        `json:"business_hours" bson:"business_hours"`
	FacebookURL      string        `json:"facebook_url,omitempty" bson:"facebook_url,omitempty"`
	InstagramURL     string        `json:"instagram_url,omitempty" bson:"instagram_url,omitempty"`
	LinkedinURL      string        `json:"linkedin_url,omitempty" bson:"linkedin_url,omitempty"`
	MetaTitle        string        `json:"meta_title" bson:"meta_title"`
	MetaDescription  string        `json:"meta_description" bson:"meta_description"`
	UpdatedAt        time.Time     `json:"updated_at" bson:"updated_at"`
	UpdatedBy        string        `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
}

func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		HeroTitle:        "3D'S SAWMILL",
		HeroSubtitle:     "Premium Structural & Industrial Timber",
		HeroDescription:  "Delivering superior timber solutions with sustainable practices and cutting-edge technology.",
		HeroBadgeText:    "Nationwide Delivery Available",
		HeroFeatures:     []HeroFeature{},
		AboutTitle:       "About 3D'S SAWMILL",
		AboutSubtitle:    "For all structural and industrial timber",
		AboutDescription: "We're here to help you find the perfect timber solution for your project.",
		AboutMission:     "Provide high-quality timber products while maintaining sustainable practices and exceptional customer service.",
		AboutVision:      "To be South Africa's leading timber supplier, known for quality, reliability, and innovation.",
		ContactPhone:     "072 504 9184",
		ContactEmail:     "sales@sawmill.example",
		ContactAddress:   "Bergvliet, Cape Town, South Africa",
		WhatsappNumber:   "27725049184",
		BusinessHours:    "Monday - Friday: 7:00 AM - 5:00 PM\nSaturday: 8:00 AM - 1:00 PM\nSunday: Closed",
		MetaTitle:        "3D'S SAWMILL - Premium Timber Solutions",
		MetaDescription:  "South Africa's trusted timber supplier for structural and industrial wood products.",
	}
}

const (
	AlertLowStock   = "low_stock"
	AlertOutOfStock = "out_of_stock"

	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

type InventoryAlert struct {
	ID             string     `json:"id" bson:"_id"`
	ProductID      string     `json:"product_id" bson:"product_id"`
	ProductName    string     `json:"product_name" bson:"product_name"`
	AlertType      string     `json:"alert_type" bson:"alert_type"`
	Threshold      int        `json:"threshold" bson:"threshold"`
	CurrentStock   int        `json:"current_stock" bson:"current_stock"`
	Severity       string     `json:"severity" bson:"severity"`
	Acknowledged   bool       `json:"acknowledged" bson:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty" bson:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
	ActionTaken    string     `json:"action_taken,omitempty" bson:"action_taken,omitempty"`
	CreatedAt      time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" bson:"updated_at"`
}

type AcknowledgeAlertRequest struct {
	ActionTaken string `json:"action_taken,omitempty"`
}

const (
	SortPriceAsc    = "price-asc"
	SortPriceDesc   = "price-desc"
	SortName        = "name"
	SortNewest      = "newest"
	SortBestselling = "bestselling"
)

// ProductQuery filters available products. Empty fields do not filter.
type ProductQuery struct {
	Search     string           `json:"search,omitempty"`
	Categories []string         `json:"category,omitempty"`
	WoodTypes  []string         `json:"wood_type,omitempty"`
	Colors     []string         `json:"color,omitempty"`
	Tags       []string         `json:"tags,omitempty"`
	PriceMin   *decimal.Decimal `json:"price_min,omitempty"`
	PriceMax   *decimal.Decimal `json:"price_max,omitempty"`
	Featured   bool             `json:"featured,omitempty"`
	InStock    bool             `json:"in_stock,omitempty"`
	MinRating  float64          `json:"min_rating,omitempty"`
	Sort       string           `json:"sort,omitempty"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
}

type ProductSearchHit struct {
	Product
	ReviewCount   int64   `json:"review_count"`
	AverageRating float64 `json:"average_rating"`
}

type SearchResponse struct {
	Products       []ProductSearchHit `json:"products"`
	Pagination     Pagination         `json:"pagination"`
	AppliedFilters ProductQuery       `json:"applied_filters"`
}

type PriceRange struct {
	Min     decimal.Decimal `json:"min"`
	Max     decimal.Decimal `json:"max"`
	Average decimal.Decimal `json:"average"`
}

type FilterOptions struct {
	Categories         []string      `json:"categories"`
	WoodTypes          []string      `json:"wood_types"`
	Colors             []string      `json:"colors"`
	Tags               []string      `json:"tags"`
	PriceRange         PriceRange    `json:"price_range"`
	RatingOptions      []int         `json:"rating_options"`
	RatingDistribution []RatingCount `json:"rating_distribution"`
}

type SimilarProduct struct {
	Product
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

type SimilarProductsResponse struct {
	ProductID string           `json:"product_id"`
	Products  []SimilarProduct `json:"products"`
}
