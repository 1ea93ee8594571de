package domain

import "slices"

var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

var PaymentStatuses = []string{
	PaymentStatusPending,
	PaymentStatusCompleted,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// orderTransitions lists the forward moves reachable through a plain status
// update. Cancelled and refunded are entered only by cancel and refund.
var orderTransitions = map[string][]string{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusProcessing},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusPacked},
	OrderStatusProcessing:     {OrderStatusPacked, OrderStatusShipped},
	OrderStatusPacked:         {OrderStatusShipped, OrderStatusOutForDelivery, OrderStatusDelivered},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
}

// Statuses from which cancel and refund are refused.
var (
	CancelBlockedStatuses = []string{OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded}
	RefundBlockedStatuses = []string{OrderStatusCancelled, OrderStatusRefunded}
)

func IsOrderStatus(s string) bool {
	return slices.Contains(OrderStatuses, s)
}

func IsPaymentStatus(s string) bool {
	return slices.Contains(PaymentStatuses, s)
}

func IsPaymentMethod(s string) bool {
	return slices.Contains(PaymentMethods, s)
}

func CanTransition(from, to string) bool {
	return slices.Contains(orderTransitions[from], to)
}

func AllowedTransitions(from string) []string {
	return slices.Clone(orderTransitions[from])
}
