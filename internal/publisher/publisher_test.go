package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"analytics-service/internal/model"
)

type fakeSink struct {
	name     string
	err      error
	payloads [][]byte
}

func (f *fakeSink) Enqueue(ctx context.Context, payload []byte) error {
	f.payloads = append(f.payloads, payload)
	return f.err
}

func (f *fakeSink) Name() string { return f.name }

func testEvent() *model.Event {
	return &model.Event{
		EventType:    "page_view",
		UserID:       "u1",
		SessionID:    "s1",
		TimestampUtc: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func TestPublishBothSinksReceiveSamePayload(t *testing.T) {
	main := &fakeSink{name: "main"}
	backup := &fakeSink{name: "backup"}
	pub := NewPublisher(main, backup, zap.NewNop())

	result, err := pub.Publish(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if !result.Delivered() {
		t.Error("Delivered() = false, want true")
	}
	if len(main.payloads) != 1 || len(backup.payloads) != 1 {
		t.Fatalf("enqueue counts: main=%d backup=%d, want 1 and 1", len(main.payloads), len(backup.payloads))
	}
	if string(main.payloads[0]) != string(backup.payloads[0]) {
		t.Error("sinks received different payloads; event must be serialized once")
	}
}

func TestPublishMainFailureStillReachesBackup(t *testing.T) {
	main := &fakeSink{name: "main", err: errors.New("broker down")}
	backup := &fakeSink{name: "backup"}
	pub := NewPublisher(main, backup, zap.NewNop())

	result, err := pub.Publish(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if len(backup.payloads) != 1 {
		t.Error("backup sink was not attempted after main failed")
	}
	if result.Main == nil {
		t.Error("result.Main = nil, want the enqueue error")
	}
	if result.Backup != nil {
		t.Errorf("result.Backup = %v, want nil", result.Backup)
	}
	if !result.Delivered() {
		t.Error("Delivered() = false with one healthy sink, want true")
	}
}

func TestPublishBackupFailureStillDelivered(t *testing.T) {
	main := &fakeSink{name: "main"}
	backup := &fakeSink{name: "backup", err: errors.New("broker down")}
	pub := NewPublisher(main, backup, zap.NewNop())

	result, err := pub.Publish(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !result.Delivered() {
		t.Error("Delivered() = false with healthy main sink, want true")
	}
}

func TestPublishBothSinksFail(t *testing.T) {
	main := &fakeSink{name: "main", err: errors.New("down")}
	backup := &fakeSink{name: "backup", err: errors.New("down")}
	pub := NewPublisher(main, backup, zap.NewNop())

	result, err := pub.Publish(context.Background(), testEvent())
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	if result.Delivered() {
		t.Error("Delivered() = true with both sinks failing, want false")
	}
	if len(main.payloads) != 1 || len(backup.payloads) != 1 {
		t.Error("both sinks must be attempted even when both fail")
	}
}
