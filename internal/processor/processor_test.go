package processor

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"analytics-service/internal/enrichment"
	"analytics-service/internal/model"
	"analytics-service/internal/repository/scylla"
)

type fakeRepo struct {
	saveErr error
	saved   []*model.Event
}

func (f *fakeRepo) Save(ctx context.Context, evt *model.Event) error {
	f.saved = append(f.saved, evt)
	return f.saveErr
}

func (f *fakeRepo) ScanFrom(ctx context.Context, startPartition string) ([]*model.Event, error) {
	return nil, nil
}

func (f *fakeRepo) ScanPartition(ctx context.Context, partition string, limit int) ([]*model.Event, error) {
	return nil, nil
}

type fakeMirror struct {
	err      error
	appended [][]*model.Event
}

func (f *fakeMirror) Append(ctx context.Context, events []*model.Event) error {
	f.appended = append(f.appended, events)
	return f.err
}

var validPayload = []byte(`{
	"eventType": "page_view",
	"userId": "u1",
	"sessionId": "s1",
	"timestampUtc": "2024-03-15T10:30:00Z",
	"url": "/home"
}`)

func newTestProcessor(repo scylla.EventRepository, mirror Mirror) *Processor {
	return NewProcessor(enrichment.NoopEnricher{}, repo, mirror, nil, zap.NewNop())
}

func TestProcessMalformedPayloadIsFatal(t *testing.T) {
	repo := &fakeRepo{}
	proc := newTestProcessor(repo, nil)

	err := proc.Process(context.Background(), []byte(`{not json`))
	if err == nil {
		t.Fatal("Process returned nil for malformed payload")
	}
	if !IsFatal(err) {
		t.Errorf("error = %v, want fatal", err)
	}
	if len(repo.saved) != 0 {
		t.Error("malformed payload must not reach the store")
	}
}

func TestProcessInvalidEventIsFatal(t *testing.T) {
	repo := &fakeRepo{}
	proc := newTestProcessor(repo, nil)

	err := proc.Process(context.Background(), []byte(`{"eventType":"page_view","userId":"","sessionId":"s1"}`))
	if err == nil {
		t.Fatal("Process returned nil for invalid event")
	}
	if !IsFatal(err) {
		t.Errorf("error = %v, want fatal", err)
	}
	if len(repo.saved) != 0 {
		t.Error("invalid event must not reach the store")
	}
}

func TestProcessStampsMetadata(t *testing.T) {
	repo := &fakeRepo{}
	proc := newTestProcessor(repo, nil)

	if err := proc.Process(context.Background(), validPayload); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d events, want 1", len(repo.saved))
	}

	evt := repo.saved[0]
	if !evt.IsProcessed() {
		t.Error("event was persisted without processing metadata")
	}
	if evt.BatchId == nil || *evt.BatchId == "" {
		t.Error("batch id not stamped")
	}
	if evt.ProcessedTimestamp == nil || evt.ProcessedTimestamp.IsZero() {
		t.Error("processed timestamp not stamped")
	}
}

func TestProcessPersistenceFailureIsTransient(t *testing.T) {
	repo := &fakeRepo{saveErr: scylla.ErrPersistence}
	proc := newTestProcessor(repo, nil)

	err := proc.Process(context.Background(), validPayload)
	if err == nil {
		t.Fatal("Process returned nil despite persistence failure")
	}
	if IsFatal(err) {
		t.Error("persistence failure must stay transient so the message is retried")
	}
	if !errors.Is(err, scylla.ErrPersistence) {
		t.Errorf("error = %v, want ErrPersistence", err)
	}
}

func TestProcessMirrorFailureIsSwallowed(t *testing.T) {
	repo := &fakeRepo{}
	mirror := &fakeMirror{err: errors.New("warehouse unavailable")}
	proc := newTestProcessor(repo, mirror)

	if err := proc.Process(context.Background(), validPayload); err != nil {
		t.Fatalf("mirror failure leaked out of Process: %v", err)
	}
	if len(mirror.appended) != 1 {
		t.Error("mirror was not attempted")
	}
	if len(repo.saved) != 1 {
		t.Error("event was not persisted")
	}
}

func TestIsFatal(t *testing.T) {
	fatal := &FatalMessageError{Reason: "broken", Err: errors.New("x")}
	if !IsFatal(fatal) {
		t.Error("IsFatal(FatalMessageError) = false")
	}
	if IsFatal(errors.New("transient")) {
		t.Error("IsFatal(plain error) = true")
	}
	if IsFatal(nil) {
		t.Error("IsFatal(nil) = true")
	}
}
