package scylla

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"analytics-service/internal/keys"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

// ErrPersistence marks a transient store failure. Callers retry via the
// consumer's redelivery loop rather than in here.
var ErrPersistence = errors.New("event persistence failed")

// EventRepository is the partitioned store writer and scanner.
type EventRepository interface {
	Save(ctx context.Context, evt *model.Event) error
	ScanFrom(ctx context.Context, startPartition string) ([]*model.Event, error)
	ScanPartition(ctx context.Context, partition string, limit int) ([]*model.Event, error)
}

type eventRepository struct {
	client *ScyllaClient
	keys   *keys.KeyManager
}

func NewEventRepository(client *ScyllaClient, keyManager *keys.KeyManager, logger *zap.Logger) EventRepository {
	return &eventRepository{
		client: client,
		keys:   keyManager,
	}
}

// Save assigns partition and row keys and upserts the event. Row keys are
// content-derived, so saving a redelivered copy of the same message replaces
// the earlier row instead of duplicating it.
func (r *eventRepository) Save(ctx context.Context, evt *model.Event) error {
	r.keys.Assign(evt)

	query := r.client.Prepared.InsertEvent.Bind(
		evt.PartitionKey, evt.RowKey, evt.EventType, evt.UserID, evt.SessionID,
		evt.TimestampUtc, evt.ServerTimestamp, evt.Url, evt.Referrer, evt.Browser,
		evt.Device, evt.ScreenSize, evt.IpAddress, evt.Latitude, evt.Longitude,
		evt.City, evt.Country, evt.BatchId, evt.ProcessedTimestamp, evt.PropertiesJson,
	).WithContext(ctx)

	if err := query.Exec(); err != nil {
		util.Error("Failed to save event",
			zap.String("partition_key", evt.PartitionKey),
			zap.String("row_key", evt.RowKey),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	util.Debug("Event saved",
		zap.String("partition_key", evt.PartitionKey),
		zap.String("row_key", evt.RowKey),
		zap.String("event_type", evt.EventType))

	return nil
}

// ScanFrom returns every event whose partition key is >= startPartition.
// There is no upper bound: the window is open toward the present.
func (r *eventRepository) ScanFrom(ctx context.Context, startPartition string) ([]*model.Event, error) {
	iter := r.client.Prepared.ScanFrom.Bind(startPartition).WithContext(ctx).Iter()
	events, err := drain(iter)
	if err != nil {
		util.Error("Failed to scan events",
			zap.String("start_partition", startPartition),
			zap.Error(err))
		return nil, fmt.Errorf("failed to scan events from %s: %w", startPartition, err)
	}
	return events, nil
}

// ScanPartition returns up to limit events from a single date partition.
func (r *eventRepository) ScanPartition(ctx context.Context, partition string, limit int) ([]*model.Event, error) {
	iter := r.client.Prepared.ScanPartition.Bind(partition).WithContext(ctx).Iter()
	events, err := drain(iter)
	if err != nil {
		return nil, fmt.Errorf("failed to scan partition %s: %w", partition, err)
	}
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func drain(iter *gocql.Iter) ([]*model.Event, error) {
	var events []*model.Event
	for {
		evt := &model.Event{}
		if !iter.Scan(
			&evt.PartitionKey, &evt.RowKey, &evt.EventType, &evt.UserID, &evt.SessionID,
			&evt.TimestampUtc, &evt.ServerTimestamp, &evt.Url, &evt.Referrer, &evt.Browser,
			&evt.Device, &evt.ScreenSize, &evt.IpAddress, &evt.Latitude, &evt.Longitude,
			&evt.City, &evt.Country, &evt.BatchId, &evt.ProcessedTimestamp, &evt.PropertiesJson,
		) {
			break
		}
		events = append(events, evt)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return events, nil
}
