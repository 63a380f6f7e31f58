package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/repository"
	"github.com/splax/hookbin/internal/service/auth"
	"github.com/splax/hookbin/internal/service/capture"
	"github.com/splax/hookbin/internal/service/webhook"
	"github.com/splax/hookbin/internal/ws"
	"github.com/splax/hookbin/pkg/config"
)

// memoryRepository backs router tests with in-memory storage that mimics the
// constraints the real schema enforces: unique emails, unique slugs, and
// referential integrity on captures.
type memoryRepository struct {
	users      map[string]*domain.User
	hooks      map[string]domain.Webhook
	hookOrder  []string
	captures   []domain.CapturedRequest
	failInsert error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users: make(map[string]*domain.User),
		hooks: make(map[string]domain.Webhook),
	}
}

func (m *memoryRepository) CreateUser(ctx context.Context, user *domain.User) error {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *memoryRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return user, nil
}

func (m *memoryRepository) slugTaken(slug, excludeID string) bool {
	for id, hook := range m.hooks {
		if id != excludeID && hook.Slug != nil && *hook.Slug == slug {
			return true
		}
	}
	return false
}

func (m *memoryRepository) CreateWebhook(ctx context.Context, hook *domain.Webhook) error {
	if hook.Slug != nil && m.slugTaken(*hook.Slug, hook.ID) {
		return repository.ErrDuplicate
	}
	m.hooks[hook.ID] = *hook
	m.hookOrder = append(m.hookOrder, hook.ID)
	return nil
}

func (m *memoryRepository) GetWebhookByID(ctx context.Context, id string) (*domain.Webhook, error) {
	hook, ok := m.hooks[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &hook, nil
}

func (m *memoryRepository) GetWebhookBySlug(ctx context.Context, slug string) (*domain.Webhook, error) {
	for _, hook := range m.hooks {
		if hook.Slug != nil && *hook.Slug == slug {
			return &hook, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepository) UpdateWebhook(ctx context.Context, hook *domain.Webhook) error {
	if _, ok := m.hooks[hook.ID]; !ok {
		return repository.ErrNotFound
	}
	if hook.Slug != nil && m.slugTaken(*hook.Slug, hook.ID) {
		return repository.ErrDuplicate
	}
	m.hooks[hook.ID] = *hook
	return nil
}

func (m *memoryRepository) DeleteWebhook(ctx context.Context, id string) error {
	if _, ok := m.hooks[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.hooks, id)
	kept := m.captures[:0]
	for _, record := range m.captures {
		if record.WebhookID != id {
			kept = append(kept, record)
		}
	}
	m.captures = kept
	return nil
}

func (m *memoryRepository) ListWebhooksByUser(ctx context.Context, userID string) ([]domain.Webhook, error) {
	hooks := make([]domain.Webhook, 0)
	for i := len(m.hookOrder) - 1; i >= 0; i-- {
		hook, ok := m.hooks[m.hookOrder[i]]
		if ok && hook.UserID == userID {
			hooks = append(hooks, hook)
		}
	}
	return hooks, nil
}

func (m *memoryRepository) InsertCapture(ctx context.Context, record *domain.CapturedRequest) error {
	if m.failInsert != nil {
		return m.failInsert
	}
	if _, ok := m.hooks[record.WebhookID]; !ok {
		return repository.ErrNotFound
	}
	m.captures = append(m.captures, *record)
	return nil
}

func (m *memoryRepository) ListCapturesByWebhook(ctx context.Context, webhookID string) ([]domain.CapturedRequest, error) {
	records := make([]domain.CapturedRequest, 0)
	for i := len(m.captures) - 1; i >= 0; i-- {
		if m.captures[i].WebhookID == webhookID {
			records = append(records, m.captures[i])
		}
	}
	return records, nil
}

func (m *memoryRepository) DeleteCapturesByWebhook(ctx context.Context, webhookID string) error {
	kept := m.captures[:0]
	for _, record := range m.captures {
		if record.WebhookID != webhookID {
			kept = append(kept, record)
		}
	}
	m.captures = kept
	return nil
}

var errStubFailure = errors.New("storage unavailable")

func newTestRouter(t *testing.T) (*Router, *memoryRepository) {
	t.Helper()
	repo := newMemoryRepository()
	cfg := config.APIConfig{
		JWTSecret:       "router-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		SSEHeartbeat:    time.Second,
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := auth.New(repo, log, cfg)
	hookSvc := webhook.New(repo, repo, log)
	captureSvc := capture.New(repo, ws.NewHub(), log)
	return NewRouter(log, authSvc, hookSvc, captureSvc, cfg, nil), repo
}
