package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/orderflow/api/internal/domain"
)

type stubProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (s *stubProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		s.records = append(s.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: s.err})
	}
	return results
}

func (s *stubProducer) Close() { s.closed = true }

func TestKafkaPublisherProducesKeyedRecord(t *testing.T) {
	stub := &stubProducer{}
	publisher := newKafkaPublisher(stub, "order-events")

	event := domain.DomainEvent{
		ID:          "evt_1",
		Type:        domain.EventOrderStatusChanged,
		AggregateID: "ord_9",
		UserID:      "user-1",
	}
	if err := publisher.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(stub.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(stub.records))
	}
	rec := stub.records[0]
	if string(rec.Key) != "ord_9" || rec.Topic != "order-events" {
		t.Fatalf("unexpected record key/topic %q/%q", rec.Key, rec.Topic)
	}
	var decoded domain.DomainEvent
	if err := json.Unmarshal(rec.Value, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != domain.EventOrderStatusChanged {
		t.Fatalf("unexpected type %q", decoded.Type)
	}
	if len(rec.Headers) != 4 || rec.Headers[1].Key != "eventType" {
		t.Fatalf("unexpected headers %#v", rec.Headers)
	}

	_ = publisher.Close()
	if !stub.closed {
		t.Fatalf("expected client to be closed")
	}
}

func TestKafkaPublisherReturnsProduceError(t *testing.T) {
	boom := errors.New("broker down")
	publisher := newKafkaPublisher(&stubProducer{err: boom}, "order-events")
	err := publisher.Publish(context.Background(), domain.DomainEvent{Type: domain.EventOrderPlaced, AggregateID: "ord_1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestNewKafkaPublisherValidatesConfig(t *testing.T) {
	if _, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}); err == nil {
		t.Fatalf("expected error without topic")
	}
}
