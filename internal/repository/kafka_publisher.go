package repository

import (
	"context"
	"fmt"

	"FxSentry/internal/domain/models"
	domrepo "FxSentry/internal/domain/repository"
	applogger "FxSentry/pkg/logger"
)

// producer is the slice of pkg/kafka.Producer the publisher needs.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaPublisher implements EventPublisher over a kafka producer. Message
// keys carry the partition identity: signal events key on instrument:tf so
// per-key ordering survives partitioning, position events key on position id,
// summaries on owner id.
type KafkaPublisher struct {
	producer producer
	metrics  domrepo.Metrics
	l        *applogger.Logger
}

func NewKafkaPublisher(p producer, m domrepo.Metrics, l *applogger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: p, metrics: m, l: l}
}

func (k *KafkaPublisher) PublishSignalChange(ctx context.Context, e models.SignalChangeEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domrepo.ErrInvalidEvent, err)
	}
	return k.publish(ctx, models.TopicSignalChange, []byte(e.Key().String()), e)
}

func (k *KafkaPublisher) PublishPositionAlert(ctx context.Context, e models.PositionAlertEvent) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domrepo.ErrInvalidEvent, err)
	}
	return k.publish(ctx, models.TopicPositionAlert, []byte(e.PositionID), e)
}

func (k *KafkaPublisher) PublishPositionSummary(ctx context.Context, e models.PositionSummaryEvent) error {
	if e.OwnerID == "" {
		return fmt.Errorf("%w: summary owner required", domrepo.ErrInvalidEvent)
	}
	return k.publish(ctx, models.TopicPositionSummary, []byte(e.OwnerID), e)
}

func (k *KafkaPublisher) publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	err := k.producer.Publish(ctx, topic, key, value)
	k.metrics.RecordPublish(topic, err == nil)
	if err != nil {
		k.l.Error("event publish failed",
			applogger.String("topic", topic),
			applogger.String("key", string(key)),
			applogger.Error(err),
		)
		return fmt.Errorf("%w: %v", domrepo.ErrBrokerUnavailable, err)
	}
	return nil
}

func (k *KafkaPublisher) Health(_ context.Context) error { return nil }

func (k *KafkaPublisher) Close() error { return k.producer.Close() }
