package publisher

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"analytics-service/internal/event"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

// Sink is one enqueue destination for serialized events.
type Sink interface {
	Enqueue(ctx context.Context, payload []byte) error
	Name() string
}

// PublishResult reports the outcome per sink. Partial failure is an expected
// non-fatal outcome: the fan-out is best effort, not a transaction.
type PublishResult struct {
	Main   error
	Backup error
}

// Delivered reports whether at least one sink accepted the event.
func (r PublishResult) Delivered() bool {
	return r.Main == nil || r.Backup == nil
}

// Publisher serializes a validated event once and enqueues it onto the main
// and backup sinks concurrently. Both enqueues are always attempted.
type Publisher struct {
	main   Sink
	backup Sink
	logger *zap.Logger
}

func NewPublisher(main, backup Sink, logger *zap.Logger) *Publisher {
	return &Publisher{
		main:   main,
		backup: backup,
		logger: logger,
	}
}

// Publish fans the event out to both sinks. The returned error is non-nil
// only when the event could not be serialized at all; enqueue failures are
// reported through the result.
func (p *Publisher) Publish(ctx context.Context, evt *model.Event) (PublishResult, error) {
	payload, err := event.Encode(evt)
	if err != nil {
		return PublishResult{}, fmt.Errorf("failed to serialize event for publishing: %w", err)
	}

	var result PublishResult

	// Closures return nil so a failing sink never cancels the other one.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Main = p.main.Enqueue(gctx, payload)
		return nil
	})
	g.Go(func() error {
		result.Backup = p.backup.Enqueue(gctx, payload)
		return nil
	})
	_ = g.Wait()

	if result.Main != nil {
		util.Warn("Main sink enqueue failed",
			zap.String("sink", p.main.Name()),
			zap.Error(result.Main))
	}
	if result.Backup != nil {
		util.Warn("Backup sink enqueue failed",
			zap.String("sink", p.backup.Name()),
			zap.Error(result.Backup))
	}

	return result, nil
}
