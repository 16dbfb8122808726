package repository

import (
	"context"
	"fmt"

	"TradeSync/internal/domain/models"
	drepo "TradeSync/internal/domain/repository"
	pkgkafka "TradeSync/pkg/kafka"
)

// BatchPublisher is the part of the Kafka producer the journal needs.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaJournal publishes accepted facts and terminal actions as JSON
// records. Market facts are keyed by symbol so per-symbol order holds with
// a hash balancer; actions are keyed by id.
type KafkaJournal struct {
	producer BatchPublisher
	topic    string
}

var _ drepo.FactSink = (*KafkaJournal)(nil)

// NewKafkaJournal creates the Kafka sink.
func NewKafkaJournal(producer BatchPublisher, topic string) *KafkaJournal {
	return &KafkaJournal{producer: producer, topic: topic}
}

type journalRecord struct {
	Kind   string                 `json:"kind"`
	Market *models.MarketSnapshot `json:"market,omitempty"`
	Action *models.PendingAction  `json:"action,omitempty"`
}

func (j *KafkaJournal) RecordMarket(ctx context.Context, snaps []models.MarketSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(snaps))
	for i := range snaps {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(snaps[i].Symbol),
			Value: journalRecord{Kind: "market", Market: &snaps[i]},
		}
	}
	if err := j.producer.PublishBatch(ctx, j.topic, msgs); err != nil {
		return fmt.Errorf("journal market: %w", err)
	}
	return nil
}

func (j *KafkaJournal) RecordActions(ctx context.Context, actions []models.PendingAction) error {
	if len(actions) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(actions))
	for i := range actions {
		msgs[i] = pkgkafka.Message{
			Key:   []byte(actions[i].ID),
			Value: journalRecord{Kind: "action", Action: &actions[i]},
		}
	}
	if err := j.producer.PublishBatch(ctx, j.topic, msgs); err != nil {
		return fmt.Errorf("journal actions: %w", err)
	}
	return nil
}

func (j *KafkaJournal) Close() error {
	if j.producer != nil {
		return j.producer.Close()
	}
	return nil
}
