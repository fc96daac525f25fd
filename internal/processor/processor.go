package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"analytics-service/internal/encryption"
	"analytics-service/internal/enrichment"
	"analytics-service/internal/event"
	"analytics-service/internal/model"
	"analytics-service/internal/repository/scylla"
	"analytics-service/internal/util"
)

// Mirror receives a best-effort copy of processed events (the ClickHouse
// warehouse). Mirror failures never fail processing.
type Mirror interface {
	Append(ctx context.Context, events []*model.Event) error
}

// Processor handles one dequeued message end to end: decode, re-validate,
// stamp processing metadata, enrich, persist. It performs no retries of its
// own; transient errors bubble up to the hosting consumer.
type Processor struct {
	enricher enrichment.Enricher
	repo     scylla.EventRepository
	mirror   Mirror              // optional
	pii      *encryption.Manager // optional
	logger   *zap.Logger
}

func NewProcessor(enricher enrichment.Enricher, repo scylla.EventRepository, mirror Mirror, pii *encryption.Manager, logger *zap.Logger) *Processor {
	return &Processor{
		enricher: enricher,
		repo:     repo,
		mirror:   mirror,
		pii:      pii,
		logger:   logger,
	}
}

// Process runs the pipeline for one raw queue message. A *FatalMessageError
// means the message must be dead-lettered; any other error is transient and
// the message may be redelivered, which is safe because the store writer's
// upsert is idempotent under its content-derived keys.
func (p *Processor) Process(ctx context.Context, rawMessage []byte) error {
	evt, err := event.Decode(rawMessage)
	if err != nil {
		return &FatalMessageError{Reason: "undecodable event payload", Err: err}
	}

	if !event.Validate(evt) {
		return &FatalMessageError{Reason: "event missing required fields", Err: event.ErrValidation}
	}

	batchID := uuid.New().String()
	now := time.Now().UTC()
	evt.BatchId = &batchID
	evt.ProcessedTimestamp = &now

	p.enricher.Enrich(ctx, evt)

	p.protectIP(ctx, evt)

	if err := p.repo.Save(ctx, evt); err != nil {
		return err
	}

	if p.mirror != nil {
		if err := p.mirror.Append(ctx, []*model.Event{evt}); err != nil {
			util.Warn("Warehouse mirror append failed",
				zap.String("row_key", evt.RowKey),
				zap.Error(err))
		}
	}

	p.logger.Info("Event processed",
		zap.String("event_type", evt.EventType),
		zap.String("user_id", evt.UserID),
		zap.String("batch_id", batchID),
		zap.String("partition_key", evt.PartitionKey))

	return nil
}

// protectIP replaces the plaintext client IP with its encrypted form. If
// encryption is enabled but failing, the IP is dropped rather than stored in
// the clear.
func (p *Processor) protectIP(ctx context.Context, evt *model.Event) {
	if p.pii == nil || evt.IpAddress == nil || *evt.IpAddress == "" {
		return
	}

	encrypted, err := p.pii.EncryptField(ctx, *evt.IpAddress)
	if err != nil {
		util.Warn("IP encryption failed, dropping ip_address", zap.Error(err))
		evt.IpAddress = nil
		return
	}
	evt.IpAddress = &encrypted
}
