// Package capture persists inbound requests and feeds them to live viewers.
package capture

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/repository"
	"github.com/splax/hookbin/internal/ws"
)

// Service handles capture persistence and streaming.
type Service struct {
	captures repository.CaptureRepository
	hub      *ws.Hub
	logger   *slog.Logger
}

// New constructs a capture service.
func New(captures repository.CaptureRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{captures: captures, hub: hub, logger: logger}
}

// Record assigns identity and timestamp to the capture, stores it, and only
// then broadcasts it to viewers of the webhook. A failed insert is returned
// to the caller and nothing is delivered.
func (s Service) Record(ctx context.Context, record domain.CapturedRequest) (*domain.CapturedRequest, error) {
	record.ID = uuid.NewString()
	record.Method = strings.ToUpper(record.Method)
	record.ReceivedAt = time.Now().UTC()
	if record.Headers == nil {
		record.Headers = map[string][]string{}
	}
	if record.QueryParams == nil {
		record.QueryParams = map[string][]string{}
	}
	if err := s.captures.InsertCapture(ctx, &record); err != nil {
		return nil, err
	}
	s.broadcast(record)
	return &record, nil
}

// List returns captured requests for a webhook, newest first.
func (s Service) List(ctx context.Context, webhookID string) ([]domain.CapturedRequest, error) {
	return s.captures.ListCapturesByWebhook(ctx, webhookID)
}

// Hub returns the streaming hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) broadcast(record domain.CapturedRequest) {
	data, err := MarshalCapture(record)
	if err != nil {
		s.logger.Warn("failed to marshal capture payload", "error", err)
		return
	}
	s.hub.Broadcast(record.WebhookID, data)
}

// Payload formats a captured request for API and streaming responses.
func Payload(record domain.CapturedRequest) map[string]any {
	return map[string]any{
		"id":           record.ID,
		"webhook_id":   record.WebhookID,
		"method":       record.Method,
		"headers":      record.Headers,
		"body":         record.Body,
		"query_params": record.QueryParams,
		"received_at":  record.ReceivedAt.Format(time.RFC3339Nano),
	}
}

// MarshalCapture renders a captured request as a streaming payload.
func MarshalCapture(record domain.CapturedRequest) ([]byte, error) {
	return json.Marshal(Payload(record))
}
