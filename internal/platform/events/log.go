package events

import (
	"context"

	"go.uber.org/zap"

	"github.com/orderflow/api/internal/domain"
)

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a publisher backed by logger. A nil logger discards events.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

// Publish logs the event at info level.
func (p *LogPublisher) Publish(_ context.Context, event domain.DomainEvent) error {
	p.logger.Info("domain event",
		zap.String("eventId", event.ID),
		zap.String("eventType", event.Type),
		zap.String("aggregateId", event.AggregateID),
		zap.String("userId", event.UserID),
		zap.Time("occurredAt", event.OccurredAt),
		zap.Any("payload", event.Payload),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
