package clickhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"analytics-service/internal/client"
	"analytics-service/internal/model"
	"analytics-service/internal/util"
)

// Warehouse mirrors processed events into ClickHouse for offline analysis.
// A mirror failure is logged and the pipeline carries on; the Scylla row
// remains the source of truth.
type Warehouse struct {
	db *client.ClickHouseClient
}

func NewWarehouse(db *client.ClickHouseClient) *Warehouse {
	return &Warehouse{db: db}
}

const insertEventsQuery = `
    INSERT INTO analytics_events_mirror (
        partition_key, row_key, event_type, user_id, session_id,
        timestamp_utc, server_timestamp, url, referrer, browser, device,
        screen_size, city, country, batch_id, processed_timestamp
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Append batch-inserts processed events into the mirror table.
func (w *Warehouse) Append(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(events))
	for _, evt := range events {
		rows = append(rows, []interface{}{
			evt.PartitionKey,
			evt.RowKey,
			evt.EventType,
			evt.UserID,
			evt.SessionID,
			evt.TimestampUtc,
			evt.ServerTimestamp,
			deref(evt.Url),
			deref(evt.Referrer),
			deref(evt.Browser),
			deref(evt.Device),
			deref(evt.ScreenSize),
			deref(evt.City),
			deref(evt.Country),
			deref(evt.BatchId),
			evt.ProcessedTimestamp,
		})
	}

	if err := w.db.BatchInsert(ctx, insertEventsQuery, rows); err != nil {
		return fmt.Errorf("failed to mirror events to warehouse: %w", err)
	}

	util.Debug("Mirrored events to warehouse", zap.Int("count", len(rows)))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
