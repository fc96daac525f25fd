package model

import "time"

// -------------------- EVENT MODEL --------------------

// Event is the unit of record flowing through the pipeline. A producer
// submits it without keys or processing metadata; the store writer assigns
// partition_key/row_key and the batch processor stamps batch_id and
// processed_timestamp, so a persisted row is always fully processed.
type Event struct {
	PartitionKey string `json:"partitionKey,omitempty" db:"partition_key"` // date bucket YYYYMMDD, assigned at write time
	RowKey       string `json:"rowKey,omitempty" db:"row_key"`             // unique id within partition, assigned at write time

	EventType string `json:"eventType" db:"event_type"` // e.g. "page_view", "button_click"
	UserID    string `json:"userId" db:"user_id"`       // anonymous or auth id
	SessionID string `json:"sessionId" db:"session_id"` // groups events into a visit

	TimestampUtc    time.Time `json:"timestampUtc" db:"timestamp_utc"`       // client-asserted event time
	ServerTimestamp time.Time `json:"serverTimestamp" db:"server_timestamp"` // stamped at ingestion

	Url        *string  `json:"url" db:"url"`
	Referrer   *string  `json:"referrer" db:"referrer"`
	Browser    *string  `json:"browser" db:"browser"`
	Device     *string  `json:"device" db:"device"`
	ScreenSize *string  `json:"screenSize" db:"screen_size"`
	IpAddress  *string  `json:"ipAddress" db:"ip_address"`
	Latitude   *float64 `json:"latitude" db:"latitude"`
	Longitude  *float64 `json:"longitude" db:"longitude"`

	// Filled by reverse-geocode enrichment, best effort.
	City    *string `json:"city" db:"city"`
	Country *string `json:"country" db:"country"`

	// Processing metadata, set together by the batch processor.
	BatchId            *string    `json:"batchId" db:"batch_id"`
	ProcessedTimestamp *time.Time `json:"processedTimestamp" db:"processed_timestamp"`

	// Free-form event properties serialized by the producer.
	PropertiesJson *string `json:"propertiesJson" db:"properties_json"`
}

// HasCoordinates reports whether the event carries a geocodable position.
func (e *Event) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// IsProcessed reports whether processing metadata has been stamped.
func (e *Event) IsProcessed() bool {
	return e.BatchId != nil && e.ProcessedTimestamp != nil
}

// -------------------- DASHBOARD READ MODEL --------------------

// CountEntry is one ranked (dimension value, count) pair.
type CountEntry struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// HourBucket is the number of events observed in one HH:00 hour of day.
type HourBucket struct {
	Hour  string `json:"hour"` // "HH:00"
	Count int    `json:"count"`
}

// DashboardStats is the aggregate view over a rolling window. It is derived,
// recomputed per query and never persisted.
type DashboardStats struct {
	TotalEvents    int          `json:"totalEvents"`
	UniqueUsers    int          `json:"uniqueUsers"`
	UniqueSessions int          `json:"uniqueSessions"`
	TopPages       []CountEntry `json:"topPages"`
	TopBrowsers    []CountEntry `json:"topBrowsers"`
	TopCities      []CountEntry `json:"topCities"`
	EventsByHour   []HourBucket `json:"eventsByHour"`
}

// -------------------- DEAD-LETTER MODEL --------------------

// DeadLetter is the record indexed for manual inspection when a message is
// routed to the poison sink.
type DeadLetter struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Body      string    `json:"body"` // verbatim failed message payload
	Reason    string    `json:"reason"`
	FailedAt  time.Time `json:"failed_at"`
	Partition int       `json:"partition"`
	Offset    int64     `json:"offset"`
}
