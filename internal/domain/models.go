package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

type Actor struct {
	UserID string
	Email  string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

var ProductCategories = []string{
	"Plywood", "4x4 Timber", "Boards", "Doors", "Window Frames", "Pillars", "Custom Cuts", "Other",
}

var WoodTypes = []string{
	"Pine", "Meranti", "Kiaat", "Yellowwood", "Stinkwood", "Teak", "Mahogany", "Oak",
	"Softwood", "Hardwood", "Engineered Wood", "MDF", "Plywood", "Composite", "Laminate", "Other",
}

type Dimensions struct {
	Length float64 `json:"length" bson:"length"`
	Width  float64 `json:"width,omitempty" bson:"width,omitempty"`
	Height float64 `json:"height,omitempty" bson:"height,omitempty"`
	Unit   string  `json:"unit" bson:"unit"`
}

type Weight struct {
	Value float64 `json:"value" bson:"value"`
	Unit  string  `json:"unit" bson:"unit"`
}

type ProductImage struct {
	URL       string `json:"url" bson:"url"`
	Alt       string `json:"alt,omitempty" bson:"alt,omitempty"`
	IsPrimary bool   `json:"is_primary" bson:"is_primary"`
}

// BulkPricingTier replaces the unit price for quantities in
// [MinQuantity, MaxQuantity]. A zero MaxQuantity is open-ended.
type BulkPricingTier struct {
	MinQuantity   int             `json:"min_quantity" bson:"min_quantity"`
	MaxQuantity   int             `json:"max_quantity,omitempty" bson:"max_quantity,omitempty"`
	DiscountPrice decimal.Decimal `json:"discount_price" bson:"discount_price"`
}

type Specifications struct {
	Material        string `json:"material,omitempty" bson:"material,omitempty"`
	Finish          string `json:"finish,omitempty" bson:"finish,omitempty"`
	Moisture        string `json:"moisture,omitempty" bson:"moisture,omitempty"`
	GradeOrQuality  string `json:"grade_or_quality,omitempty" bson:"grade_or_quality,omitempty"`
	AdditionalSpecs string `json:"additional_specs,omitempty" bson:"additional_specs,omitempty"`
}

type LeadTime struct {
	Value int    `json:"value" bson:"value"`
	Unit  string `json:"unit" bson:"unit"`
}

type Product struct {
	ID                   string            `json:"id" bson:"_id"`
	Name                 string            `json:"name" bson:"name"`
	Description          string            `json:"description" bson:"description"`
	Category             string            `json:"category" bson:"category"`
	ProductType          string            `json:"product_type" bson:"product_type"`
	WoodType             string            `json:"wood_type" bson:"wood_type"`
	Color                string            `json:"color" bson:"color"`
	Price                decimal.Decimal   `json:"price" bson:"price"`
	Stock                int               `json:"stock" bson:"stock"`
	Dimensions           Dimensions        `json:"dimensions" bson:"dimensions"`
	Weight               Weight            `json:"weight" bson:"weight"`
	Images               []ProductImage    `json:"images" bson:"images"`
	IsAvailable          bool              `json:"is_available" bson:"is_available"`
	Featured             bool              `json:"featured" bson:"featured"`
	BulkPricing          []BulkPricingTier `json:"bulk_pricing" bson:"bulk_pricing"`
	Specifications       Specifications    `json:"specifications" bson:"specifications"`
	Tags                 []string          `json:"tags" bson:"tags"`
	MinimumOrderQuantity int               `json:"minimum_order_quantity" bson:"minimum_order_quantity"`
	LeadTime             LeadTime          `json:"lead_time" bson:"lead_time"`
	CreatedAt            time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at" bson:"updated_at"`
}

type ProductCreateRequest struct {
	Name                 string            `json:"name"`
	Description          string            `json:"description"`
	Category             string            `json:"category"`
	ProductType          string            `json:"product_type"`
	WoodType             string            `json:"wood_type"`
	Color                string            `json:"color"`
	Price                decimal.Decimal   `json:"price"`
	Stock                int               `json:"stock"`
	Dimensions           Dimensions        `json:"dimensions"`
	Weight               Weight            `json:"weight"`
	Images               []ProductImage    `json:"images,omitempty"`
	IsAvailable          *bool             `json:"is_available,omitempty"`
	Featured             bool              `json:"featured"`
	BulkPricing          []BulkPricingTier `json:"bulk_pricing,omitempty"`
	Specifications       Specifications    `json:"specifications"`
	Tags                 []string          `json:"tags,omitempty"`
	MinimumOrderQuantity int               `json:"minimum_order_quantity"`
	LeadTime             *LeadTime         `json:"lead_time,omitempty"`
}

type ProductUpdateRequest struct {
	Name                 *string            `json:"name,omitempty"`
	Description          *string            `json:"description,omitempty"`
	Category             *string            `json:"category,omitempty"`
	WoodType             *string            `json:"wood_type,omitempty"`
	Color                *string            `json:"color,omitempty"`
	Price                *decimal.Decimal   `json:"price,omitempty"`
	Stock                *int               `json:"stock,omitempty"`
	IsAvailable          *bool              `json:"is_available,omitempty"`
	Featured             *bool              `json:"featured,omitempty"`
	BulkPricing          *[]BulkPricingTier `json:"bulk_pricing,omitempty"`
	Tags                 *[]string          `json:"tags,omitempty"`
	MinimumOrderQuantity *int               `json:"minimum_order_quantity,omitempty"`
}

const (
	OrderStatusPending        = "pending"
	OrderStatusConfirmed      = "confirmed"
	OrderStatusProcessing     = "processing"
	OrderStatusPacked         = "packed"
	OrderStatusShipped        = "shipped"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
	OrderStatusRefunded       = "refunded"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

const (
	DeliveryPickup   = "pickup"
	DeliveryDelivery = "delivery"
)

const (
	RequestTypeInvoice = "invoice"
	RequestTypeQuote   = "quote"
)

var PaymentMethods = []string{"credit_card", "debit_card", "bank_transfer", "cash", "payfast"}

const DefaultPaymentMethod = "bank_transfer"

type OrderLine struct {
	ProductID   string          `json:"product_id" bson:"product_id"`
	ProductName string          `json:"product_name" bson:"product_name"`
	Category    string          `json:"category,omitempty" bson:"category,omitempty"`
	Quantity    int             `json:"quantity" bson:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" bson:"unit_price"`
}

type StatusEntry struct {
	Status    string    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
}

type Address struct {
	Street     string `json:"street,omitempty" bson:"street,omitempty"`
	City       string `json:"city,omitempty" bson:"city,omitempty"`
	Province   string `json:"province,omitempty" bson:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty" bson:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" bson:"country,omitempty"`
}

type Order struct {
	ID                string          `json:"id" bson:"_id"`
	OrderNumber       string          `json:"order_number" bson:"order_number"`
	UserID            string          `json:"user_id" bson:"user_id"`
	Items             []OrderLine     `json:"items" bson:"items"`
	Subtotal          decimal.Decimal `json:"subtotal" bson:"subtotal"`
	Discount          decimal.Decimal `json:"discount" bson:"discount"`
	DiscountCode      string          `json:"discount_code,omitempty" bson:"discount_code"`
	Tax               decimal.Decimal `json:"tax" bson:"tax"`
	ShippingCost      decimal.Decimal `json:"shipping_cost" bson:"shipping_cost"`
	Total             decimal.Decimal `json:"total" bson:"total"`
	Status            string          `json:"status" bson:"status"`
	StatusHistory     []StatusEntry   `json:"status_history" bson:"status_history"`
	DeliveryMethod    string          `json:"delivery_method" bson:"delivery_method"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty" bson:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time      `json:"actual_delivery,omitempty" bson:"actual_delivery,omitempty"`
	TrackingNumber    string          `json:"tracking_number,omitempty" bson:"tracking_number,omitempty"`
	ShippingAddress   *Address        `json:"shipping_address,omitempty" bson:"shipping_address,omitempty"`
	CustomerName      string          `json:"customer_name" bson:"customer_name"`
	CustomerEmail     string          `json:"customer_email" bson:"customer_email"`
	CustomerPhone     string          `json:"customer_phone" bson:"customer_phone"`
	PaymentMethod     string          `json:"payment_method" bson:"payment_method"`
	PaymentStatus     string          `json:"payment_status" bson:"payment_status"`
	Notes             string          `json:"notes" bson:"notes"`
	AdminNotes        string          `json:"admin_notes" bson:"admin_notes"`
	RequestType       string          `json:"request_type" bson:"request_type"`
	CreatedAt         time.Time       `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" bson:"updated_at"`
}

type OrderItemInput struct {
	ProductID string `json:"product_id,omitempty"`
	ID        string `json:"id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	Items             []OrderItemInput `json:"items"`
	DeliveryMethod    string           `json:"delivery_method"`
	EstimatedDelivery *time.Time       `json:"estimated_delivery,omitempty"`
	ShippingAddress   *Address         `json:"shipping_address,omitempty"`
	CustomerName      string           `json:"customer_name"`
	CustomerEmail     string           `json:"customer_email"`
	CustomerPhone     string           `json:"customer_phone"`
	PaymentMethod     string           `json:"payment_method,omitempty"`
	Notes             string           `json:"notes,omitempty"`
	RequestType       string           `json:"request_type,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status            string     `json:"status"`
	Notes             string     `json:"notes,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// FinancialLineInput edits one existing order line. Lines with a missing,
// fractional or non-positive quantity, or a missing or negative price, are
// ignored.
type FinancialLineInput struct {
	ProductID string           `json:"product_id,omitempty"`
	ID        string           `json:"id,omitempty"`
	Quantity  *float64         `json:"quantity,omitempty"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type UpdateFinancialsRequest struct {
	Items        []FinancialLineInput `json:"items,omitempty"`
	ShippingCost *decimal.Decimal     `json:"shipping_cost,omitempty"`
	Tax          *decimal.Decimal     `json:"tax,omitempty"`
	Discount     *decimal.Decimal     `json:"discount,omitempty"`
	AdminNotes   *string              `json:"admin_notes,omitempty"`
}

type OrderReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// StatusUpdate is a status change applied only while the order is still in
// the status it was read in. Entry is nil when the status does not change.
type StatusUpdate struct {
	Status            string
	Entry             *StatusEntry
	TrackingNumber    string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
	At                time.Time
}

// OrderClosure moves an order into a terminal status and restocks invoice
// lines, unless the order currently sits in one of BlockedFrom.
// FinancialsExpectation is the order state a financials edit was computed
// from. The save is refused when the stored order no longer matches.
type FinancialsExpectation struct {
	DiscountCode string
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
}

type OrderClosure struct {
	Status        string
	PaymentStatus string
	Entry         StatusEntry
	BlockedFrom   []string
}

type OrderListQuery struct {
	UserID string
	Status string
	From   *time.Time
	To     *time.Time
	Offset int
	Limit  int
}

type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Pages int   `json:"pages"`
}

type OrderListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

type OrderStatusStat struct {
	Status       string          `json:"status" bson:"_id"`
	Count        int64           `json:"count" bson:"count"`
	TotalRevenue decimal.Decimal `json:"total_revenue" bson:"total_revenue"`
}

type OrderStats struct {
	TotalOrders     int64             `json:"total_orders"`
	TotalRevenue    decimal.Decimal   `json:"total_revenue"`
	ByStatus        []OrderStatusStat `json:"by_status"`
	StatusBreakdown map[string]int64  `json:"status_breakdown"`
	PaymentPending  int64             `json:"payment_pending"`
}

const (
	DiscountPercentage  = "percentage"
	DiscountFixedAmount = "fixed_amount"
)

type Redemption struct {
	UserID  string    `json:"user_id" bson:"user_id"`
	OrderID string    `json:"order_id" bson:"order_id"`
	UsedAt  time.Time `json:"used_at" bson:"used_at"`
}

// Promotion limits: a nil UsageLimit is unlimited, and every customer gets
// at least one redemption.
type Promotion struct {
	ID                   string           `json:"id" bson:"_id"`
	Code                 string           `json:"code" bson:"code"`
	Description          string           `json:"description" bson:"description"`
	DiscountType         string           `json:"discount_type" bson:"discount_type"`
	DiscountValue        decimal.Decimal  `json:"discount_value" bson:"discount_value"`
	MaxDiscount          *decimal.Decimal `json:"max_discount,omitempty" bson:"max_discount"`
	MinimumOrderValue    decimal.Decimal  `json:"minimum_order_value" bson:"minimum_order_value"`
	ApplicableProducts   []string         `json:"applicable_products" bson:"applicable_products"`
	ApplicableCategories []string         `json:"applicable_categories" bson:"applicable_categories"`
	UsageLimit           *int             `json:"usage_limit,omitempty" bson:"usage_limit"`
	UsagePerCustomer     int              `json:"usage_per_customer" bson:"usage_per_customer"`
	UsageCount           int              `json:"usage_count" bson:"usage_count"`
	ValidFrom            time.Time        `json:"valid_from" bson:"valid_from"`
	ValidUntil           time.Time        `json:"valid_until" bson:"valid_until"`
	Active               bool             `json:"active" bson:"active"`
	UsedBy               []Redemption     `json:"used_by" bson:"used_by"`
	CreatedAt            time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" bson:"updated_at"`
}

// LimitReached reports whether the global usage limit is used up.
func (p Promotion) LimitReached() bool {
	return p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit
}

// PerCustomerLimit is UsagePerCustomer, never below 1.
func (p Promotion) PerCustomerLimit() int {
	return max(p.UsagePerCustomer, 1)
}

type CreatePromotionRequest struct {
	Code                 string           `json:"code"`
	Description          string           `json:"description"`
	DiscountType         string           `json:"discount_type"`
	DiscountValue        decimal.Decimal  `json:"discount_value"`
	MaxDiscount          *decimal.Decimal `json:"max_discount,omitempty"`
	MinimumOrderValue    decimal.Decimal  `json:"minimum_order_value"`
	ApplicableProducts   []string         `json:"applicable_products,omitempty"`
	ApplicableCategories []string         `json:"applicable_categories,omitempty"`
	UsageLimit           *int             `json:"usage_limit,omitempty"`
	UsagePerCustomer     *int             `json:"usage_per_customer,omitempty"`
	ValidFrom            time.Time        `json:"valid_from"`
	ValidUntil           time.Time        `json:"valid_until"`
}

type UpdatePromotionRequest struct {
	Description *string    `json:"description,omitempty"`
	Active      *bool      `json:"active,omitempty"`
	UsageLimit  *int       `json:"usage_limit,omitempty"`
	ValidUntil  *time.Time `json:"valid_until,omitempty"`
}

type ValidatePromotionRequest struct {
	Code       string          `json:"code"`
	OrderTotal decimal.Decimal `json:"order_total"`
	UserID     string          `json:"user_id,omitempty"`
	ProductIDs []string        `json:"product_ids,omitempty"`
	Category   string          `json:"category,omitempty"`
}

type PromotionQuote struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	Description    string          `json:"description"`
	DiscountType   string          `json:"discount_type"`
	DiscountValue  decimal.Decimal `json:"discount_value"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalTotal     decimal.Decimal `json:"final_total"`
}

type ApplyPromotionRequest struct {
	Code    string `json:"code"`
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id,omitempty"`
}

// RedemptionRequest redeems a promotion against an order in one atomic unit.
// ExpectedSubtotal guards against the order being edited after the discount
// was computed.
type RedemptionRequest struct {
	PromotionID      string
	Code             string
	OrderID          string
	UserID           string
	Discount         decimal.Decimal
	ExpectedSubtotal decimal.Decimal
	At               time.Time
}

type ApplyPromotionResponse struct {
	Message   string    `json:"message"`
	Promotion Promotion `json:"promotion"`
	Order     Order     `json:"order"`
}

type PromotionListQuery struct {
	ActiveAt *time.Time
	Offset   int
	Limit    int
}

type PromotionListResponse struct {
	Promotions []Promotion `json:"promotions"`
	Pagination Pagination  `json:"pagination"`
}

type PromotionStats struct {
	TotalPromotions    int64           `json:"total_promotions" bson:"total_promotions"`
	ActivePromotions   int64           `json:"active_promotions" bson:"active_promotions"`
	TotalUsage         int64           `json:"total_usage" bson:"total_usage"`
	TotalDiscountGiven decimal.Decimal `json:"total_discount_given" bson:"total_discount_given"`
}

type UserAccount struct {
	ID           string    `json:"id" bson:"_id"`
	Name         string    `json:"name" bson:"name"`
	Email        string    `json:"email" bson:"email"`
	Phone        string    `json:"phone,omitempty" bson:"phone,omitempty"`
	PasswordHash string    `json:"-" bson:"password_hash"`
	Role         string    `json:"role" bson:"role"`
	Active       bool      `json:"active" bson:"active"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   string      `json:"expires_at"`
	User        UserAccount `json:"user"`
}

type AuditLog struct {
	ID         string    `json:"id" bson:"_id"`
	ActorID    string    `json:"actor_id" bson:"actor_id"`
	ActorEmail string    `json:"actor_email" bson:"actor_email"`
	ActorRole  string    `json:"actor_role" bson:"actor_role"`
	Action     string    `json:"action" bson:"action"`
	EntityType string    `json:"entity_type" bson:"entity_type"`
	EntityID   string    `json:"entity_id" bson:"entity_id"`
	Detail     string    `json:"detail" bson:"detail"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}
