package repository

import (
	"context"

	"github.com/splax/hookbin/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// WebhookRepository persists webhook identities. CreateWebhook and
// UpdateWebhook return ErrDuplicate when the slug is already taken; the
// unique index is the only arbiter, there is no check-then-insert.
type WebhookRepository interface {
	CreateWebhook(ctx context.Context, hook *domain.Webhook) error
	GetWebhookByID(ctx context.Context, id string) (*domain.Webhook, error)
	GetWebhookBySlug(ctx context.Context, slug string) (*domain.Webhook, error)
	UpdateWebhook(ctx context.Context, hook *domain.Webhook) error
	DeleteWebhook(ctx context.Context, id string) error
	ListWebhooksByUser(ctx context.Context, userID string) ([]domain.Webhook, error)
}

// CaptureRepository persists captured requests. InsertCapture returns
// ErrNotFound when the parent webhook no longer exists.
type CaptureRepository interface {
	InsertCapture(ctx context.Context, record *domain.CapturedRequest) error
	ListCapturesByWebhook(ctx context.Context, webhookID string) ([]domain.CapturedRequest, error)
	DeleteCapturesByWebhook(ctx context.Context, webhookID string) error
}
