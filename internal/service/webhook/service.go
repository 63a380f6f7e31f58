// Package webhook owns webhook identities: creation, rename, deletion and
// resolution of inbound path segments to a registered webhook.
package webhook

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/repository"
	"github.com/splax/hookbin/internal/slug"
)

var (
	// ErrNotFound indicates no webhook matches the identifier.
	ErrNotFound = errors.New("webhook: not found")
	// ErrSlugTaken indicates the normalized custom path is already in use.
	ErrSlugTaken = errors.New("webhook: custom path already taken")
	// ErrNotOwner indicates the caller does not own the webhook.
	ErrNotOwner = errors.New("webhook: not owned by caller")
)

// Service implements the webhook registry.
type Service struct {
	hooks    repository.WebhookRepository
	captures repository.CaptureRepository
	logger   *slog.Logger
}

// New constructs a Service.
func New(hooks repository.WebhookRepository, captures repository.CaptureRepository, logger *slog.Logger) Service {
	return Service{hooks: hooks, captures: captures, logger: logger}
}

// Create registers a new webhook for the user. The custom path input is
// normalized first; an empty normalization result means no custom path.
// Uniqueness is enforced by the storage layer, never by a pre-check, so two
// concurrent creators racing for the same path cannot both win.
func (s Service) Create(ctx context.Context, userID, name, slugInput string) (*domain.Webhook, error) {
	hook := &domain.Webhook{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Slug:      normalizedSlug(slugInput),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.hooks.CreateWebhook(ctx, hook); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrSlugTaken
		}
		return nil, err
	}
	s.logger.Info("webhook created", "webhook_id", hook.ID, "user_id", userID)
	return hook, nil
}

// Rename updates name and custom path of an owned webhook. When the
// normalized custom path differs from the stored one (null to non-null
// transitions included), the webhook's capture history is deleted before
// the path changes: history recorded under an address that no longer
// resolves the same way is discarded, not migrated.
func (s Service) Rename(ctx context.Context, id, userID, name, slugInput string) (*domain.Webhook, error) {
	hook, err := s.ownedWebhook(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	newSlug := normalizedSlug(slugInput)
	if !slugsEqual(hook.Slug, newSlug) {
		s.logger.Info("custom path changed, wiping capture history",
			"webhook_id", hook.ID, "old", slugValue(hook.Slug), "new", slugValue(newSlug))
		if err := s.captures.DeleteCapturesByWebhook(ctx, hook.ID); err != nil {
			return nil, err
		}
	}

	hook.Name = strings.TrimSpace(name)
	hook.Slug = newSlug
	if err := s.hooks.UpdateWebhook(ctx, hook); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrSlugTaken
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return hook, nil
}

// Delete removes an owned webhook; captures are removed by cascade.
func (s Service) Delete(ctx context.Context, id, userID string) error {
	hook, err := s.ownedWebhook(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.hooks.DeleteWebhook(ctx, hook.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.logger.Info("webhook deleted", "webhook_id", hook.ID, "user_id", userID)
	return nil
}

// List returns the user's webhooks, newest first.
func (s Service) List(ctx context.Context, userID string) ([]domain.Webhook, error) {
	return s.hooks.ListWebhooksByUser(ctx, userID)
}

// Get returns an owned webhook by id.
func (s Service) Get(ctx context.Context, id, userID string) (*domain.Webhook, error) {
	return s.ownedWebhook(ctx, id, userID)
}

// Resolve maps an inbound path segment to a webhook: first an exact match on
// the primary id (only attempted when the segment is a UUID), then a match on
// the custom path with the segment lowercased. Two sequential point lookups
// keep the two address spaces from colliding. Read-only; a miss has no side
// effects.
func (s Service) Resolve(ctx context.Context, segment string) (*domain.Webhook, error) {
	if segment == "" {
		return nil, ErrNotFound
	}
	if _, err := uuid.Parse(segment); err == nil {
		hook, err := s.hooks.GetWebhookByID(ctx, segment)
		if err == nil {
			return hook, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	hook, err := s.hooks.GetWebhookBySlug(ctx, strings.ToLower(segment))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return hook, nil
}

// ownedWebhook loads a webhook and enforces ownership. Callers translate
// both ErrNotFound and ErrNotOwner into the same outward response so the
// existence of other users' webhooks is not leaked.
func (s Service) ownedWebhook(ctx context.Context, id, userID string) (*domain.Webhook, error) {
	hook, err := s.hooks.GetWebhookByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if hook.UserID != userID {
		return nil, ErrNotOwner
	}
	return hook, nil
}

func normalizedSlug(input string) *string {
	normalized := slug.Normalize(input)
	if normalized == "" {
		return nil
	}
	return &normalized
}

func slugsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func slugValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
