package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var upper = cases.Upper(language.Und)

func normaliseEnum(raw string) string {
	v := upper.String(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(v)
}

// ParseOrderStatus accepts any casing of a known order status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch s := OrderStatus(normaliseEnum(raw)); s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return s, true
	}
	return "", false
}

// ParsePaymentStatus accepts any casing of a known payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	switch s := PaymentStatus(normaliseEnum(raw)); s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return s, true
	}
	return "", false
}

// ParsePaymentMethod accepts any casing of a known payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch m := PaymentMethod(normaliseEnum(raw)); m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer, PaymentMethodPayPal:
		return m, true
	}
	return "", false
}

// ParseShipmentStatus accepts any casing of a known shipment status.
func ParseShipmentStatus(raw string) (ShipmentStatus, bool) {
	switch s := ShipmentStatus(normaliseEnum(raw)); s {
	case ShipmentStatusInPreparation, ShipmentStatusInTransit, ShipmentStatusDelivered:
		return s, true
	}
	return "", false
}

var orderRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusPaid:      1,
	OrderStatusShipped:   2,
	OrderStatusDelivered: 3,
}

// CanTransitionOrder reports whether an order may move from -> to. Forward moves may skip steps,
// CANCELLED is reachable from any non-terminal status, and staying put is always allowed.
func CanTransitionOrder(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	if from == OrderStatusDelivered || from == OrderStatusCancelled {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return orderRank[to] > orderRank[from]
}

// CanTransitionPayment reports whether a payment may move from -> to. COMPLETED is terminal and
// a FAILED payment may still complete.
func CanTransitionPayment(from, to PaymentStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case PaymentStatusPending:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed
	case PaymentStatusFailed:
		return to == PaymentStatusCompleted
	}
	return false
}

var shipmentRank = map[ShipmentStatus]int{
	ShipmentStatusInPreparation: 0,
	ShipmentStatusInTransit:     1,
	ShipmentStatusDelivered:     2,
}

// CanTransitionShipment reports whether a shipment may move from -> to. Shipments only move forward.
func CanTransitionShipment(from, to ShipmentStatus) bool {
	return shipmentRank[to] >= shipmentRank[from]
}
