package processor

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"analytics-service/internal/config"
	"analytics-service/internal/util"
)

// MessageSource is the consuming side of the queue: fetch one message, commit
// it once it reached a terminal outcome.
type MessageSource interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// MessageProcessor handles one raw message body.
type MessageProcessor interface {
	Process(ctx context.Context, rawMessage []byte) error
}

// Consumer hosts the batch processor: it fetches one message at a time,
// drives the bounded retry loop for transient failures, routes fatal and
// exhausted messages to the dead-letter sink, and commits only once a
// message reached a terminal outcome (at-least-once delivery).
type Consumer struct {
	source     MessageSource
	processor  MessageProcessor
	deadLetter DeadLetterSink
	maxRetries int
	backoff    time.Duration
	maxDelay   time.Duration
	logger     *zap.Logger
}

func NewConsumer(source MessageSource, proc MessageProcessor, deadLetter DeadLetterSink, cfg *config.PipelineConfig, logger *zap.Logger) *Consumer {
	return &Consumer{
		source:     source,
		processor:  proc,
		deadLetter: deadLetter,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		maxDelay:   cfg.MaxRetryDelay,
		logger:     logger,
	}
}

// Run consumes until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	util.Info("Event consumer started")

	for {
		msg, err := c.source.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				util.Info("Event consumer stopping")
				return nil
			}
			util.Error("Failed to fetch message", zap.Error(err))
			continue
		}

		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	err := c.processor.Process(ctx, msg.Value)

	// Transient failures get a bounded retry budget with exponential
	// backoff before the message is given up on.
	delay := c.backoff
	for attempt := 0; err != nil && !IsFatal(err) && attempt < c.maxRetries; attempt++ {
		c.logger.Warn("Transient processing failure, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			// Not committed: the message is redelivered after restart.
			return
		}
		if delay *= 2; delay > c.maxDelay {
			delay = c.maxDelay
		}

		err = c.processor.Process(ctx, msg.Value)
	}

	if err != nil {
		reason := "retry budget exhausted: " + err.Error()
		if IsFatal(err) {
			reason = err.Error()
		}
		if dlErr := c.deadLetter.Send(ctx, msg, reason); dlErr != nil {
			// Committing anyway: re-poisoning the same broken message
			// forever is worse than losing one dead-letter copy.
			util.Error("Failed to dead-letter message",
				zap.Int64("offset", msg.Offset),
				zap.Error(dlErr))
		}
	}

	if commitErr := c.source.CommitMessages(ctx, msg); commitErr != nil {
		util.Error("Failed to commit message offset",
			zap.Int64("offset", msg.Offset),
			zap.Error(commitErr))
	}
}
