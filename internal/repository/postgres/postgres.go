package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/hookbin/internal/domain"
	"github.com/splax/hookbin/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository    = (*Repository)(nil)
	_ repository.WebhookRepository = (*Repository)(nil)
	_ repository.CaptureRepository = (*Repository)(nil)
)

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	return mapError(err)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// CreateWebhook inserts a webhook identity.
func (r *Repository) CreateWebhook(ctx context.Context, hook *domain.Webhook) error {
	const query = `INSERT INTO webhooks (id, user_id, name, slug, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, hook.ID, hook.UserID, hook.Name, hook.Slug, hook.CreatedAt)
	return mapError(err)
}

// GetWebhookByID fetches a webhook by its primary identifier.
func (r *Repository) GetWebhookByID(ctx context.Context, id string) (*domain.Webhook, error) {
	const query = `SELECT id, user_id, name, slug, created_at FROM webhooks WHERE id = $1`
	return r.scanWebhook(r.pool.QueryRow(ctx, query, id))
}

// GetWebhookBySlug fetches a webhook by its custom path.
func (r *Repository) GetWebhookBySlug(ctx context.Context, slug string) (*domain.Webhook, error) {
	const query = `SELECT id, user_id, name, slug, created_at FROM webhooks WHERE slug = $1`
	return r.scanWebhook(r.pool.QueryRow(ctx, query, slug))
}

func (r *Repository) scanWebhook(row pgx.Row) (*domain.Webhook, error) {
	var hook domain.Webhook
	if err := row.Scan(&hook.ID, &hook.UserID, &hook.Name, &hook.Slug, &hook.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &hook, nil
}

// UpdateWebhook mutates name and slug of an existing webhook.
func (r *Repository) UpdateWebhook(ctx context.Context, hook *domain.Webhook) error {
	const query = `UPDATE webhooks SET name = $2, slug = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, hook.ID, hook.Name, hook.Slug)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteWebhook removes a webhook; captures go with it via cascade.
func (r *Repository) DeleteWebhook(ctx context.Context, id string) error {
	const query = `DELETE FROM webhooks WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListWebhooksByUser returns the user's webhooks, newest first.
func (r *Repository) ListWebhooksByUser(ctx context.Context, userID string) ([]domain.Webhook, error) {
	const query = `SELECT id, user_id, name, slug, created_at FROM webhooks
		WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	hooks := make([]domain.Webhook, 0)
	for rows.Next() {
		var hook domain.Webhook
		if err := rows.Scan(&hook.ID, &hook.UserID, &hook.Name, &hook.Slug, &hook.CreatedAt); err != nil {
			return nil, err
		}
		hooks = append(hooks, hook)
	}
	return hooks, rows.Err()
}

// InsertCapture stores a captured request.
func (r *Repository) InsertCapture(ctx context.Context, record *domain.CapturedRequest) error {
	headers, err := json.Marshal(record.Headers)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	params, err := json.Marshal(record.QueryParams)
	if err != nil {
		return fmt.Errorf("encode query params: %w", err)
	}
	const query = `INSERT INTO webhook_requests (id, webhook_id, method, headers, body, query_params, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.pool.Exec(ctx, query, record.ID, record.WebhookID, record.Method, headers, record.Body, params, record.ReceivedAt)
	return mapError(err)
}

// ListCapturesByWebhook returns captured requests for a webhook, newest first.
func (r *Repository) ListCapturesByWebhook(ctx context.Context, webhookID string) ([]domain.CapturedRequest, error) {
	const query = `SELECT id, webhook_id, method, headers, body, query_params, received_at
		FROM webhook_requests WHERE webhook_id = $1 ORDER BY received_at DESC`
	rows, err := r.pool.Query(ctx, query, webhookID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	records := make([]domain.CapturedRequest, 0)
	for rows.Next() {
		var (
			record  domain.CapturedRequest
			headers []byte
			params  []byte
		)
		if err := rows.Scan(&record.ID, &record.WebhookID, &record.Method, &headers, &record.Body, &params, &record.ReceivedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(headers, &record.Headers); err != nil {
			return nil, fmt.Errorf("decode headers: %w", err)
		}
		if err := json.Unmarshal(params, &record.QueryParams); err != nil {
			return nil, fmt.Errorf("decode query params: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteCapturesByWebhook wipes the capture history of a webhook.
func (r *Repository) DeleteCapturesByWebhook(ctx context.Context, webhookID string) error {
	const query = `DELETE FROM webhook_requests WHERE webhook_id = $1`
	_, err := r.pool.Exec(ctx, query, webhookID)
	return mapError(err)
}

// mapError converts driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return repository.ErrDuplicate
		case "23503":
			return repository.ErrNotFound
		case "22P02":
			// Malformed uuid text cannot match any stored id.
			return repository.ErrNotFound
		}
	}
	return err
}
