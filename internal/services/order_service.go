package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const (
	eventOrderIntegrity      = "order.integrity_violation"
	eventOrderChanged        = "order.changed"
	eventOrderExpired        = "order.expired"
	eventOrderExpireSkipped  = "order.expire_skipped"
	eventOrderExpireFinished = "order.expire_finished"

	defaultPendingOrderTTL = 24 * time.Hour
	defaultExpireBatchSize = 100
	defaultOrderListLimit  = 50
	maxOrderListLimit      = 200
	maxTrackingCodeLength  = 120
	maxCancelReasonLength  = 500

	expiredCancelReason = "expired: payment not received"
)

// OrderServiceDeps wires dependencies for order queries and lifecycle updates.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Inventory  InventoryService
	UnitOfWork repositories.UnitOfWork
	Events     EventPublisher
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	inventory  InventoryService
	unitOfWork repositories.UnitOfWork
	events     EventPublisher
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Inventory == nil {
		return nil, errors.New("order service: inventory service is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		inventory:  deps.Inventory,
		unitOfWork: unit,
		events:     deps.Events,
		clock:      func() time.Time { return clock().UTC() },
		logger:     logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, query GetOrderQuery) (Order, error) {
	orderID := strings.TrimSpace(query.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, translateRepoError(err, "order "+orderID)
	}
	if uid := strings.TrimSpace(query.UserID); uid != "" && order.UserID != uid {
		return Order{}, fmt.Errorf("%w: order %s", ErrNotOwned, orderID)
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, query ListOrdersQuery) ([]Order, error) {
	repoQuery := repositories.OrderListQuery{
		UserID: strings.TrimSpace(query.UserID),
		Limit:  query.Limit,
	}
	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
		}
		repoQuery.Status = status
	}
	switch {
	case repoQuery.Limit <= 0:
		repoQuery.Limit = defaultOrderListLimit
	case repoQuery.Limit > maxOrderListLimit:
		repoQuery.Limit = maxOrderListLimit
	}

	orders, err := s.orders.ListOrders(ctx, repoQuery)
	if err != nil {
		return nil, translateRepoError(err, "list orders")
	}
	return orders, nil
}

// UpdateOrderStatus sets the order status. Moving to CANCELLED returns the stock of every line.
func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	status, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, cmd.Status)
	}
	reason := strings.TrimSpace(cmd.Reason)
	if len(reason) > maxCancelReasonLength {
		return Order{}, fmt.Errorf("%w: reason too long", ErrInvalidInput)
	}

	return s.mutate(ctx, cmd.OrderID, func(txCtx context.Context, order *Order, now time.Time) ([]DomainEvent, bool, error) {
		return s.applyOrderStatus(txCtx, order, status, reason, now)
	})
}

// CancelOrder cancels a non-terminal order and restocks its lines.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	return s.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{
		OrderID: cmd.OrderID,
		Status:  string(domain.OrderStatusCancelled),
		Reason:  cmd.Reason,
	})
}

// UpdatePaymentStatus moves the payment along its lifecycle. A completed payment promotes a
// PENDING order to PAID; the completion timestamp is only ever stamped once.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error) {
	status, ok := domain.ParsePaymentStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, cmd.Status)
	}
	reference := strings.TrimSpace(cmd.Reference)

	return s.mutate(ctx, cmd.OrderID, func(_ context.Context, order *Order, now time.Time) ([]DomainEvent, bool, error) {
		if order.Payment == nil {
			return nil, false, s.integrityError(ctx, order.ID, "payment")
		}
		if order.Status == domain.OrderStatusCancelled {
			return nil, false, fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, order.ID)
		}
		payment := order.Payment
		if !domain.CanTransitionPayment(payment.Status, status) {
			return nil, false, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, payment.Status, status)
		}
		if payment.Status == status {
			if reference == "" || reference == payment.Reference {
				return nil, false, nil
			}
			payment.Reference = reference
			payment.UpdatedAt = now
			order.UpdatedAt = now
			return nil, true, nil
		}

		previous := payment.Status
		payment.Status = status
		if reference != "" {
			payment.Reference = reference
		}
		payment.UpdatedAt = now
		events := []DomainEvent{newDomainEvent(domain.EventPaymentStatusChanged, order.ID, order.UserID, now, map[string]any{
			"paymentId": payment.ID,
			"from":      string(previous),
			"to":        string(status),
		})}

		if status == domain.PaymentStatusCompleted {
			if payment.CompletedAt == nil {
				stamp := now
				payment.CompletedAt = &stamp
			}
			if order.Status == domain.OrderStatusPending {
				events = append(events, s.promote(order, domain.OrderStatusPaid, now))
			}
		}
		order.UpdatedAt = now
		return events, true, nil
	})
}

// UpdateShipment applies the provided shipment fields. IN_TRANSIT stamps the ship date once and
// promotes PAID or SHIPPED orders to SHIPPED; DELIVERED promotes the order to DELIVERED.
func (s *orderService) UpdateShipment(ctx context.Context, cmd UpdateShipmentCommand) (Order, error) {
	if cmd.Status == nil && cmd.Address == nil && cmd.TrackingCode == nil && cmd.ShipDate == nil {
		return Order{}, fmt.Errorf("%w: no shipment fields provided", ErrInvalidInput)
	}

	var (
		status    domain.ShipmentStatus
		hasStatus bool
		address   string
		tracking  string
	)
	if cmd.Status != nil {
		parsed, ok := domain.ParseShipmentStatus(*cmd.Status)
		if !ok {
			return Order{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *cmd.Status)
		}
		status, hasStatus = parsed, true
	}
	if cmd.Address != nil {
		address = strings.TrimSpace(*cmd.Address)
		if address == "" || len(address) > maxAddressLength {
			return Order{}, ErrInvalidAddress
		}
	}
	if cmd.TrackingCode != nil {
		tracking = strings.TrimSpace(*cmd.TrackingCode)
		if len(tracking) > maxTrackingCodeLength {
			return Order{}, fmt.Errorf("%w: tracking code too long", ErrInvalidInput)
		}
	}

	return s.mutate(ctx, cmd.OrderID, func(_ context.Context, order *Order, now time.Time) ([]DomainEvent, bool, error) {
		if order.Shipment == nil {
			return nil, false, s.integrityError(ctx, order.ID, "shipment")
		}
		if order.Status == domain.OrderStatusCancelled {
			return nil, false, fmt.Errorf("%w: order %s is cancelled", ErrInvalidTransition, order.ID)
		}
		shipment := order.Shipment
		if hasStatus && !domain.CanTransitionShipment(shipment.Status, status) {
			return nil, false, fmt.Errorf("%w: shipment %s -> %s", ErrInvalidTransition, shipment.Status, status)
		}
		if cmd.Address != nil && shipment.Status == domain.ShipmentStatusDelivered {
			return nil, false, fmt.Errorf("%w: shipment already delivered", ErrInvalidTransition)
		}

		changed := false
		if cmd.Address != nil && address != shipment.Address {
			shipment.Address = address
			changed = true
		}
		if cmd.TrackingCode != nil && tracking != shipment.TrackingCode {
			shipment.TrackingCode = tracking
			changed = true
		}
		if cmd.ShipDate != nil {
			date := cmd.ShipDate.UTC()
			shipment.ShipDate = &date
			changed = true
		}

		var events []DomainEvent
		if hasStatus && status != shipment.Status {
			previous := shipment.Status
			shipment.Status = status
			changed = true
			events = append(events, newDomainEvent(domain.EventShipmentStatusChanged, order.ID, order.UserID, now, map[string]any{
				"shipmentId":   shipment.ID,
				"from":         string(previous),
				"to":           string(status),
				"trackingCode": shipment.TrackingCode,
			}))

			switch status {
			case domain.ShipmentStatusInTransit:
				if shipment.ShipDate == nil {
					stamp := now
					shipment.ShipDate = &stamp
				}
				if order.Status == domain.OrderStatusPaid {
					events = append(events, s.promote(order, domain.OrderStatusShipped, now))
				}
			case domain.ShipmentStatusDelivered:
				if shipment.DeliveredAt == nil {
					stamp := now
					shipment.DeliveredAt = &stamp
				}
				if order.Status != domain.OrderStatusDelivered {
					events = append(events, s.promote(order, domain.OrderStatusDelivered, now))
				}
			}
		}
		if !changed {
			return nil, false, nil
		}
		shipment.UpdatedAt = now
		order.UpdatedAt = now
		return events, true, nil
	})
}

// ExpirePendingOrders cancels PENDING orders created before now-OlderThan, one transaction per
// order. Orders that moved on in the meantime are skipped.
func (s *orderService) ExpirePendingOrders(ctx context.Context, cmd ExpirePendingOrdersCommand) (ExpirePendingOrdersResult, error) {
	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = defaultPendingOrderTTL
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultExpireBatchSize
	}
	cutoff := s.clock().Add(-olderThan)

	candidates, err := s.orders.ListOrders(ctx, repositories.OrderListQuery{
		Status:        domain.OrderStatusPending,
		CreatedBefore: &cutoff,
		Limit:         limit,
	})
	if err != nil {
		return ExpirePendingOrdersResult{}, translateRepoError(err, "list pending orders")
	}

	result := ExpirePendingOrdersResult{Expired: []string{}, Skipped: []string{}}
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		_, err := s.mutate(ctx, candidate.ID, func(txCtx context.Context, order *Order, now time.Time) ([]DomainEvent, bool, error) {
			if order.Status != domain.OrderStatusPending {
				return nil, false, fmt.Errorf("%w: order %s is %s", ErrInvalidTransition, order.ID, order.Status)
			}
			return s.applyOrderStatus(txCtx, order, domain.OrderStatusCancelled, expiredCancelReason, now)
		})
		if err != nil {
			if !isClientError(err) {
				return result, err
			}
			result.Skipped = append(result.Skipped, candidate.ID)
			s.logger(ctx, eventOrderExpireSkipped, map[string]any{"orderId": candidate.ID, "error": err.Error()})
			continue
		}
		result.Expired = append(result.Expired, candidate.ID)
		s.logger(ctx, eventOrderExpired, map[string]any{"orderId": candidate.ID, "createdAt": candidate.CreatedAt})
	}

	s.logger(ctx, eventOrderExpireFinished, map[string]any{
		"cutoff":  cutoff,
		"expired": len(result.Expired),
		"skipped": len(result.Skipped),
	})
	return result, nil
}

// mutate loads the order inside a transaction, applies fn and saves the result when fn reports
// it dirty. Events are published after commit.
func (s *orderService) mutate(ctx context.Context, orderID string, fn func(context.Context, *Order, time.Time) ([]DomainEvent, bool, error)) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}

	var (
		result Order
		events []DomainEvent
	)
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetOrder(txCtx, orderID)
		if err != nil {
			return translateRepoError(err, "order "+orderID)
		}
		evts, dirty, err := fn(txCtx, &order, s.clock())
		if err != nil {
			return err
		}
		if dirty {
			if err := s.orders.UpdateOrder(txCtx, order); err != nil {
				return translateRepoError(err, "update order "+orderID)
			}
		}
		result, events = order, evts
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	for _, event := range events {
		s.logger(ctx, eventOrderChanged, map[string]any{
			"orderId":   result.ID,
			"eventType": event.Type,
			"payload":   event.Payload,
		})
		publishEvent(ctx, s.events, s.logger, event)
	}
	return result, nil
}

func (s *orderService) applyOrderStatus(ctx context.Context, order *Order, status domain.OrderStatus, reason string, now time.Time) ([]DomainEvent, bool, error) {
	if order.Status == status {
		return nil, false, nil
	}
	if !domain.CanTransitionOrder(order.Status, status) {
		return nil, false, fmt.Errorf("%w: order %s -> %s", ErrInvalidTransition, order.Status, status)
	}

	if status != domain.OrderStatusCancelled {
		return []DomainEvent{s.promote(order, status, now)}, true, nil
	}

	lines := orderInventoryLines(*order)
	if len(lines) > 0 {
		if err := s.inventory.Restock(ctx, lines); err != nil {
			return nil, false, err
		}
	}
	event := s.promote(order, domain.OrderStatusCancelled, now)
	order.CancelReason = reason
	return []DomainEvent{event, inventoryLinesEvent(now, "cancellation", lines)}, true, nil
}

// promote moves the order to status and stamps the matching milestone once.
func (s *orderService) promote(order *Order, status domain.OrderStatus, now time.Time) DomainEvent {
	previous := order.Status
	order.Status = status
	order.UpdatedAt = now
	stamp := now
	switch status {
	case domain.OrderStatusPaid:
		if order.PaidAt == nil {
			order.PaidAt = &stamp
		}
	case domain.OrderStatusShipped:
		if order.ShippedAt == nil {
			order.ShippedAt = &stamp
		}
	case domain.OrderStatusDelivered:
		if order.DeliveredAt == nil {
			order.DeliveredAt = &stamp
		}
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &stamp
		}
	}
	return orderStatusEvent(*order, previous, now)
}

func (s *orderService) integrityError(ctx context.Context, orderID, record string) error {
	s.logger(ctx, eventOrderIntegrity, map[string]any{
		"orderId": orderID,
		"missing": record,
	})
	return fmt.Errorf("%w: order %s has no %s record", ErrIntegrity, orderID, record)
}
