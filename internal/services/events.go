package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/orderflow/api/internal/domain"
)

const eventPublishFailed = "events.publish_failed"

// publishEvent delivers the event and logs failures. The triggering transaction has already
// committed, so a failed publish never fails the operation.
func publishEvent(ctx context.Context, publisher EventPublisher, logger func(context.Context, string, map[string]any), event DomainEvent) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event); err != nil {
		logger(ctx, eventPublishFailed, map[string]any{
			"eventId":     event.ID,
			"eventType":   event.Type,
			"aggregateId": event.AggregateID,
			"error":       err.Error(),
		})
	}
}

func newDomainEvent(eventType, aggregateID, userID string, now time.Time, payload map[string]any) DomainEvent {
	return DomainEvent{
		ID:          ulid.Make().String(),
		Type:        eventType,
		AggregateID: aggregateID,
		UserID:      userID,
		OccurredAt:  now,
		Payload:     payload,
	}
}

func inventoryChangedEvent(now time.Time, reason string, stocks []InventoryStock) DomainEvent {
	items := make([]map[string]any, 0, len(stocks))
	for _, stock := range stocks {
		items = append(items, map[string]any{
			"productId": stock.ProductID,
			"onHand":    stock.OnHand,
			"reserved":  stock.Reserved,
			"available": stock.Available,
		})
	}
	aggregate := ""
	if len(stocks) == 1 {
		aggregate = stocks[0].ProductID
	}
	return newDomainEvent(domain.EventInventoryChanged, aggregate, "", now, map[string]any{
		"reason": reason,
		"items":  items,
	})
}

func inventoryLinesEvent(now time.Time, reason string, lines []InventoryLine) DomainEvent {
	items := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]any{"productId": line.ProductID, "quantity": line.Quantity})
	}
	return newDomainEvent(domain.EventInventoryChanged, "", "", now, map[string]any{
		"reason": reason,
		"items":  items,
	})
}

func orderStatusEvent(order Order, previous domain.OrderStatus, now time.Time) DomainEvent {
	return newDomainEvent(domain.EventOrderStatusChanged, order.ID, order.UserID, now, map[string]any{
		"from": string(previous),
		"to":   string(order.Status),
	})
}
