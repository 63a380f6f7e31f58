package domain

import "time"

// User owns webhooks; it exists only so registry operations can be scoped.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}
