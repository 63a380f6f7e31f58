package capture

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/ws"
)

type stubCaptureRepository struct {
	records    []domain.CapturedRequest
	failInsert error
}

func (s *stubCaptureRepository) InsertCapture(ctx context.Context, record *domain.CapturedRequest) error {
	if s.failInsert != nil {
		return s.failInsert
	}
	s.records = append(s.records, *record)
	return nil
}

func (s *stubCaptureRepository) ListCapturesByWebhook(ctx context.Context, webhookID string) ([]domain.CapturedRequest, error) {
	return append([]domain.CapturedRequest(nil), s.records...), nil
}

func (s *stubCaptureRepository) DeleteCapturesByWebhook(ctx context.Context, webhookID string) error {
	return nil
}

type chanSubscriber struct {
	payloads chan []byte
}

func newChanSubscriber() *chanSubscriber {
	return &chanSubscriber{payloads: make(chan []byte, 16)}
}

func (c *chanSubscriber) Send(payload []byte) error {
	c.payloads <- payload
	return nil
}

func (c *chanSubscriber) Close() {}

func (c *chanSubscriber) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case payload := <-c.payloads:
		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("invalid stream payload: %v", err)
		}
		return decoded
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for stream payload")
		return nil
	}
}

func (c *chanSubscriber) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case payload := <-c.payloads:
		t.Fatalf("unexpected stream payload: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestService(repo *stubCaptureRepository) (Service, *ws.Hub) {
	hub := ws.NewHub()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(repo, hub, log), hub
}

func TestRecordPersistsThenBroadcasts(t *testing.T) {
	repo := &stubCaptureRepository{}
	svc, hub := newTestService(repo)

	viewer := newChanSubscriber()
	hub.Register("hook-1", viewer)

	record, err := svc.Record(context.Background(), domain.CapturedRequest{
		WebhookID:   "hook-1",
		Method:      "post",
		Headers:     map[string][]string{"X-Test": {"a", "b"}},
		Body:        `{"a":1}`,
		QueryParams: map[string][]string{"token": {"t1"}},
	})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if record.ID == "" || record.ReceivedAt.IsZero() {
		t.Fatalf("record missing assigned identity: %+v", record)
	}
	if record.Method != "POST" {
		t.Fatalf("method not uppercased: %q", record.Method)
	}
	if len(repo.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(repo.records))
	}

	payload := viewer.next(t)
	if payload["id"] != record.ID || payload["method"] != "POST" || payload["body"] != `{"a":1}` {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestRecordInsertFailureDeliversNothing(t *testing.T) {
	repo := &stubCaptureRepository{failInsert: errors.New("webhook gone")}
	svc, hub := newTestService(repo)

	viewer := newChanSubscriber()
	hub.Register("hook-1", viewer)

	if _, err := svc.Record(context.Background(), domain.CapturedRequest{WebhookID: "hook-1", Method: "GET"}); err == nil {
		t.Fatal("expected Record to fail")
	}
	viewer.expectNothing(t)
}

func TestDeliveryPreservesArrivalOrder(t *testing.T) {
	repo := &stubCaptureRepository{}
	svc, hub := newTestService(repo)

	viewer := newChanSubscriber()
	hub.Register("hook-1", viewer)

	first, err := svc.Record(context.Background(), domain.CapturedRequest{WebhookID: "hook-1", Method: "GET"})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	second, err := svc.Record(context.Background(), domain.CapturedRequest{WebhookID: "hook-1", Method: "PUT"})
	if err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	if second.ReceivedAt.Before(first.ReceivedAt) {
		t.Fatalf("timestamps out of order: %v then %v", first.ReceivedAt, second.ReceivedAt)
	}

	if got := viewer.next(t); got["id"] != first.ID {
		t.Fatalf("expected %s first, got %v", first.ID, got["id"])
	}
	if got := viewer.next(t); got["id"] != second.ID {
		t.Fatalf("expected %s second, got %v", second.ID, got["id"])
	}
}

func TestNoDeliveryAcrossWebhooks(t *testing.T) {
	repo := &stubCaptureRepository{}
	svc, hub := newTestService(repo)

	viewer := newChanSubscriber()
	hub.Register("hook-x", viewer)

	if _, err := svc.Record(context.Background(), domain.CapturedRequest{WebhookID: "hook-y", Method: "POST"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	viewer.expectNothing(t)
}

func TestUnregisteredViewerStopsReceiving(t *testing.T) {
	repo := &stubCaptureRepository{}
	svc, hub := newTestService(repo)

	viewer := newChanSubscriber()
	hub.Register("hook-1", viewer)
	hub.Unregister("hook-1", viewer)

	if _, err := svc.Record(context.Background(), domain.CapturedRequest{WebhookID: "hook-1", Method: "POST"}); err != nil {
		t.Fatalf("Record returned error: %v", err)
	}
	viewer.expectNothing(t)
}
