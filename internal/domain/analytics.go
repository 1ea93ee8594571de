package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DailyMetrics struct {
	TotalOrders       int             `json:"total_orders" bson:"total_orders"`
	TotalRevenue      decimal.Decimal `json:"total_revenue" bson:"total_revenue"`
	AverageOrderValue decimal.Decimal `json:"average_order_value" bson:"average_order_value"`
	TotalDiscounts    decimal.Decimal `json:"total_discounts" bson:"total_discounts"`
	UniqueCustomers   int             `json:"unique_customers" bson:"unique_customers"`
	NewCustomers      int             `json:"new_customers" bson:"new_customers"`
	RepeatCustomers   int             `json:"repeat_customers" bson:"repeat_customers"`
	ConversionRate    float64         `json:"conversion_rate" bson:"conversion_rate"`
}

type ProductMetric struct {
	ProductID string          `json:"product_id" bson:"product_id"`
	Name      string          `json:"name" bson:"name"`
	UnitsSold int             `json:"units_sold" bson:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue" bson:"revenue"`
	Rank      int             `json:"rank,omitempty" bson:"rank,omitempty"`
}

type CategoryMetric struct {
	Category  string          `json:"category" bson:"category"`
	UnitsSold int             `json:"units_sold" bson:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue" bson:"revenue"`
}

type PaymentMetric struct {
	Method      string          `json:"method" bson:"method"`
	Count       int             `json:"count" bson:"count"`
	TotalAmount decimal.Decimal `json:"total_amount" bson:"total_amount"`
}

type DeliveryBucket struct {
	Count   int             `json:"count" bson:"count"`
	Revenue decimal.Decimal `json:"revenue" bson:"revenue"`
}

type DeliveryMetrics struct {
	Pickup   DeliveryBucket `json:"pickup" bson:"pickup"`
	Delivery DeliveryBucket `json:"delivery" bson:"delivery"`
}

type StatusBreakdown struct {
	Pending        int `json:"pending" bson:"pending"`
	Confirmed      int `json:"confirmed" bson:"confirmed"`
	Processing     int `json:"processing" bson:"processing"`
	Packed         int `json:"packed" bson:"packed"`
	Shipped        int `json:"shipped" bson:"shipped"`
	OutForDelivery int `json:"out_for_delivery" bson:"out_for_delivery"`
	Delivered      int `json:"delivered" bson:"delivered"`
	Cancelled      int `json:"cancelled" bson:"cancelled"`
	Refunded       int `json:"refunded" bson:"refunded"`
}

// Add counts one order in the given status. Unknown values are ignored.
func (b *StatusBreakdown) Add(status string) {
	switch status {
	case OrderStatusPending:
		b.Pending++
	case OrderStatusConfirmed:
		b.Confirmed++
	case OrderStatusProcessing:
		b.Processing++
	case OrderStatusPacked:
		b.Packed++
	case OrderStatusShipped:
		b.Shipped++
	case OrderStatusOutForDelivery:
		b.OutForDelivery++
	case OrderStatusDelivered:
		b.Delivered++
	case OrderStatusCancelled:
		b.Cancelled++
	case OrderStatusRefunded:
		b.Refunded++
	}
}

// DailyAnalytics is the rollup of one calendar day. ID is the day in
// YYYY-MM-DD form and Date is the start of that day in the analytics zone.
type DailyAnalytics struct {
	ID              string           `json:"id" bson:"_id"`
	Date            time.Time        `json:"date" bson:"date"`
	Metrics         DailyMetrics     `json:"metrics" bson:"metrics"`
	ProductMetrics  []ProductMetric  `json:"product_metrics" bson:"product_metrics"`
	CategoryMetrics []CategoryMetric `json:"category_metrics" bson:"category_metrics"`
	PaymentMetrics  []PaymentMetric  `json:"payment_metrics" bson:"payment_metrics"`
	DeliveryMetrics DeliveryMetrics  `json:"delivery_metrics" bson:"delivery_metrics"`
	StatusBreakdown StatusBreakdown  `json:"status_breakdown" bson:"status_breakdown"`
	GeneratedAt     time.Time        `json:"generated_at" bson:"generated_at"`
}

// AnalyticsRange bounds stored records by Date. Both ends are inclusive; a
// zero range matches every record.
type AnalyticsRange struct {
	From time.Time
	To   time.Time
}

func (r AnalyticsRange) IsZero() bool {
	return r.From.IsZero() || r.To.IsZero()
}

type AnalyticsTotals struct {
	TotalOrders    int             `json:"total_orders"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalDiscounts decimal.Decimal `json:"total_discounts"`
}

type AnalyticsListResponse struct {
	Analytics []DailyAnalytics `json:"analytics"`
	Totals    AnalyticsTotals  `json:"totals"`
}

type RevenuePoint struct {
	Date         string          `json:"date"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalOrders  int             `json:"total_orders"`
}
