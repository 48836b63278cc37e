package repository

import (
	"context"

	"WasteFlow/internal/domain/models"
	pkgkafka "WasteFlow/pkg/kafka"
)

// KafkaPublisher sends exchange events to a Kafka topic keyed by listing id,
// so all events for one listing stay ordered.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
}

func NewKafkaPublisher(p *pkgkafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (k *KafkaPublisher) Publish(ctx context.Context, ev models.ExchangeEvent) error {
	return k.producer.Publish(ctx, ev.Key(), ev)
}

func (k *KafkaPublisher) Close() error {
	return k.producer.Close()
}
