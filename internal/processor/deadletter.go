package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"analytics-service/internal/client"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

// DeadLetterSink receives messages the processor has determined can never
// succeed. The body is forwarded verbatim.
type DeadLetterSink interface {
	Send(ctx context.Context, msg kafka.Message, reason string) error
}

// PoisonSink forwards dead letters to the poison topic and indexes them in
// Elasticsearch for manual inspection. The topic write is authoritative; the
// index write is best effort.
type PoisonSink struct {
	producer    *client.KafkaProducer
	poisonTopic string
	es          *client.ESClient // optional
	esIndex     string
	logger      *zap.Logger
}

func NewPoisonSink(producer *client.KafkaProducer, poisonTopic string, es *client.ESClient, esIndex string, logger *zap.Logger) *PoisonSink {
	return &PoisonSink{
		producer:    producer,
		poisonTopic: poisonTopic,
		es:          es,
		esIndex:     esIndex,
		logger:      logger,
	}
}

func (s *PoisonSink) Send(ctx context.Context, msg kafka.Message, reason string) error {
	headers := map[string]string{
		"x-dead-letter-reason": reason,
		"x-origin-topic":       msg.Topic,
	}
	if err := s.producer.ProduceMessage(ctx, s.poisonTopic, msg.Key, msg.Value, headers); err != nil {
		return err
	}

	if s.es != nil {
		letter := &model.DeadLetter{
			ID:        uuid.New().String(),
			Topic:     msg.Topic,
			Body:      string(msg.Value),
			Reason:    reason,
			FailedAt:  time.Now().UTC(),
			Partition: msg.Partition,
			Offset:    msg.Offset,
		}
		if _, err := s.es.IndexDocument(ctx, s.esIndex, letter.ID, letter); err != nil {
			util.Warn("Failed to index dead letter for inspection",
				zap.String("dead_letter_id", letter.ID),
				zap.Error(err))
		}
	}

	s.logger.Warn("Message routed to dead-letter sink",
		zap.String("topic", msg.Topic),
		zap.Int64("offset", msg.Offset),
		zap.String("reason", reason))

	return nil
}
