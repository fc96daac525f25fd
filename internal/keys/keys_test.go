package keys

import (
	"testing"
	"time"

	"analytics-service/internal/model"
)

func TestPartitionKey(t *testing.T) {
	km := NewKeyManager()

	cases := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"plain utc", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC), "20240315"},
		{"midnight", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "20240101"},
		{"non-utc normalized", time.Date(2024, 3, 15, 23, 30, 0, 0, time.FixedZone("CET", 3600)), "20240315"},
		{"crosses date line", time.Date(2024, 3, 15, 0, 30, 0, 0, time.FixedZone("CET", 3600)), "20240314"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := km.PartitionKey(tc.ts); got != tc.want {
				t.Errorf("PartitionKey(%v) = %q, want %q", tc.ts, got, tc.want)
			}
		})
	}
}

func TestRowKeyDeterministic(t *testing.T) {
	km := NewKeyManager()
	url := "/home"
	evt := &model.Event{
		EventType:    "page_view",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 123456789, time.UTC),
		Url:          &url,
	}

	first := km.RowKey(evt)
	second := km.RowKey(evt)
	if first != second {
		t.Errorf("RowKey not stable: %q vs %q", first, second)
	}
	if len(first) != 32 {
		t.Errorf("RowKey length = %d, want 32 hex chars", len(first))
	}
}

func TestRowKeyVariesByIdentityFields(t *testing.T) {
	km := NewKeyManager()
	base := func() *model.Event {
		url := "/home"
		return &model.Event{
			EventType:    "page_view",
			UserID:       "u1",
			SessionID:    "s1",
			TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
			Url:          &url,
		}
	}
	baseKey := km.RowKey(base())

	mutations := map[string]func(*model.Event){
		"event type": func(e *model.Event) { e.EventType = "button_click" },
		"user id":    func(e *model.Event) { e.UserID = "u2" },
		"session id": func(e *model.Event) { e.SessionID = "s2" },
		"timestamp":  func(e *model.Event) { e.TimestampUtc = e.TimestampUtc.Add(time.Nanosecond) },
		"url":        func(e *model.Event) { other := "/other"; e.Url = &other },
		"nil url":    func(e *model.Event) { e.Url = nil },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			evt := base()
			mutate(evt)
			if km.RowKey(evt) == baseKey {
				t.Errorf("changing %s did not change the row key", name)
			}
		})
	}
}

func TestRowKeyIgnoresAdvisoryFields(t *testing.T) {
	km := NewKeyManager()
	city := "Berlin"
	batchID := "batch-1"
	evt := &model.Event{
		EventType:    "page_view",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	before := km.RowKey(evt)
	evt.City = &city
	evt.BatchId = &batchID
	after := km.RowKey(evt)

	if before != after {
		t.Error("advisory fields changed the row key; redelivered messages would duplicate")
	}
}

func TestAssign(t *testing.T) {
	km := NewKeyManager()
	evt := &model.Event{
		EventType:    "page_view",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	km.Assign(evt)
	if evt.PartitionKey != "20240315" {
		t.Errorf("PartitionKey = %q, want 20240315", evt.PartitionKey)
	}
	if evt.RowKey == "" {
		t.Error("RowKey not assigned")
	}

	rowKey := evt.RowKey
	km.Assign(evt)
	if evt.RowKey != rowKey {
		t.Error("Assign is not idempotent")
	}
}

func TestHourBucket(t *testing.T) {
	cases := []struct {
		ts   time.Time
		want string
	}{
		{time.Date(2024, 3, 15, 0, 59, 0, 0, time.UTC), "00:00"},
		{time.Date(2024, 3, 15, 5, 0, 0, 0, time.UTC), "05:00"},
		{time.Date(2024, 3, 15, 23, 1, 0, 0, time.UTC), "23:00"},
		{time.Date(2024, 3, 15, 13, 30, 0, 0, time.FixedZone("CET", 3600)), "12:00"},
	}

	for _, tc := range cases {
		if got := HourBucket(tc.ts); got != tc.want {
			t.Errorf("HourBucket(%v) = %q, want %q", tc.ts, got, tc.want)
		}
	}
}
