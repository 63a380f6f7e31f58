package domain

import "time"

// Webhook is a receivable endpoint identity. It is addressable by its ID
// and, when set, by its Slug. Slug is stored normalized (see internal/slug)
// and is unique across all webhooks; nil means no custom path.
type Webhook struct {
	ID        string
	UserID    string
	Name      string
	Slug      *string
	CreatedAt time.Time
}

// CapturedRequest is an immutable record of one inbound call. Headers and
// QueryParams keep every value as received, including duplicates.
type CapturedRequest struct {
	ID          string
	WebhookID   string
	Method      string
	Headers     map[string][]string
	Body        string
	QueryParams map[string][]string
	ReceivedAt  time.Time
}
