package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/orderflow/api/internal/domain"
)

// KafkaConfig configures the Kafka event producer.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces domain events to a Kafka topic keyed by aggregate id.
type KafkaPublisher struct {
	client  producer
	topic   string
	marshal func(any) ([]byte, error)
}

// NewKafkaPublisher dials the brokers and returns a publisher.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: at least one broker is required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if id := strings.TrimSpace(cfg.ClientID); id != "" {
		opts = append(opts, kgo.ClientID(id))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka event publisher: %w", err)
	}
	return newKafkaPublisher(client, topic), nil
}

func newKafkaPublisher(client producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{client: client, topic: topic, marshal: json.Marshal}
}

// Publish produces the event synchronously.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.DomainEvent) error {
	if p == nil || p.client == nil {
		return errors.New("kafka event publisher: not initialised")
	}
	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	attrs := eventAttributes(event)
	headers := make([]kgo.RecordHeader, 0, len(attrs))
	for _, key := range []string{"eventId", "eventType", "aggregateId", "userId"} {
		if v, ok := attrs[key]; ok {
			headers = append(headers, kgo.RecordHeader{Key: key, Value: []byte(v)})
		}
	}

	record := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(event.AggregateID),
		Value:   data,
		Headers: headers,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the client.
func (p *KafkaPublisher) Close() error {
	if p != nil && p.client != nil {
		p.client.Close()
	}
	return nil
}
