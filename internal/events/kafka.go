package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces events to a Kafka topic keyed by client id, so
// one client's events stay ordered within a partition. While the broker is
// failing, events go to the fallback publisher.
type KafkaPublisher struct {
	client   *kgo.Client
	topic    string
	timeout  time.Duration
	breaker  *breaker
	fallback Publisher
	logger   *slog.Logger
}

// KafkaOption configures a KafkaPublisher.
type KafkaOption func(*KafkaPublisher)

// WithFallback sets where events go while the broker is unavailable.
func WithFallback(p Publisher) KafkaOption {
	return func(k *KafkaPublisher) {
		k.fallback = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) KafkaOption {
	return func(k *KafkaPublisher) {
		k.logger = logger
	}
}

// WithProduceTimeout bounds each synchronous produce.
func WithProduceTimeout(d time.Duration) KafkaOption {
	return func(k *KafkaPublisher) {
		k.timeout = d
	}
}

// WithBreaker tunes the failure threshold and cooldown.
func WithBreaker(threshold int, cooldown time.Duration) KafkaOption {
	return func(k *KafkaPublisher) {
		k.breaker = newBreaker(threshold, cooldown)
	}
}

// NewKafkaPublisher connects a producer to brokers.
func NewKafkaPublisher(brokers []string, topic string, opts ...KafkaOption) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &KafkaPublisher{
		client:  client,
		topic:   topic,
		timeout: 5 * time.Second,
		breaker: newBreaker(5, 30*time.Second),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.fallback == nil {
		p.fallback = NewLogPublisher(p.logger)
	}
	return p, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopic(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", p.topic, resp.Err)
	}
	return nil
}

// Publish produces the event synchronously. A failed produce is handed to
// the fallback and counted against the breaker; it is not returned.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	event = stamp(event)
	if !p.breaker.allow() {
		return p.fallback.Publish(ctx, event)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.ClientID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.ProduceSync(pctx, record).FirstErr(); err != nil {
		p.breaker.failure()
		p.logger.WarnContext(ctx, "event produce failed, using fallback",
			"topic", p.topic, "type", event.Type, "error", err)
		return p.fallback.Publish(ctx, event)
	}
	p.breaker.success()
	return nil
}

// Close flushes buffered records and closes the client.
func (p *KafkaPublisher) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}
