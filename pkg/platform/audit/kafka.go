package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic for downstream compliance
// consumers. Production is fire-and-forget; a broker outage never blocks
// ingestion or verification.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafkaSink connects to the brokers and ensures the topic exists.
func NewKafkaSink(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	if _, err := admin.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Already-exists is the steady state; anything else we surface at
		// startup rather than discovering on the first emit.
		if existing, listErr := admin.ListTopics(ctx, topic); listErr != nil || !existing.Has(topic) {
			client.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
		}
	}

	return &KafkaSink{client: client, topic: topic, logger: logger}, nil
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	s.client.Produce(ctx, &kgo.Record{Topic: s.topic, Value: payload}, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Warn("audit event publish failed", "action", event.Action, "error", err)
		}
	})
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
