package publisher

import (
	"context"

	"analytics-service/internal/client"
)

// KafkaSink enqueues payloads onto a single Kafka topic.
type KafkaSink struct {
	producer *client.KafkaProducer
	topic    string
}

func NewKafkaSink(producer *client.KafkaProducer, topic string) *KafkaSink {
	return &KafkaSink{
		producer: producer,
		topic:    topic,
	}
}

func (s *KafkaSink) Enqueue(ctx context.Context, payload []byte) error {
	return s.producer.ProduceMessage(ctx, s.topic, nil, payload, nil)
}

func (s *KafkaSink) Name() string {
	return s.topic
}
