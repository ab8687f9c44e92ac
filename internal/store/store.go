package store

import (
	"context"
	"errors"
	"time"
)

// Account lifecycle statuses, mutated on every provider lifecycle event.
const (
	StatusInitialized   = "initialized"
	StatusAuthenticated = "authenticated"
	StatusReady         = "ready"
	StatusDisconnected  = "disconnected"
	StatusAuthFailure   = "auth_failure"
)

// Message delivery statuses.
const (
	MessageSending   = "sending"
	MessageDelivered = "delivered"
	MessageFailed    = "failed"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("record already exists")
)

// Account is the durable record of a known messaging identity.
type Account struct {
	ID           int64     `db:"id" json:"-"`
	AccountID    string    `db:"account_id" json:"account_id"`
	Status       string    `db:"status" json:"status"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	LastActivity time.Time `db:"last_activity" json:"last_activity"`
}

// Template is a reusable name/content message body.
type Template struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// MessageRecord logs one delivery attempt.
type MessageRecord struct {
	ID         int64     `db:"id" json:"id"`
	AccountID  string    `db:"account_id" json:"account_id"`
	Phone      string    `db:"phone" json:"phone"`
	Body       string    `db:"body" json:"body"`
	MediaType  string    `db:"media_type" json:"media_type,omitempty"`
	Status     string    `db:"status" json:"status"`
	ProviderID string    `db:"provider_id" json:"provider_id,omitempty"`
	Error      string    `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// AccountStore is the Account Directory: durable records of known accounts
// and their last-known status.
type AccountStore interface {
	// Create inserts a new account record; ErrDuplicate if it exists.
	Create(ctx context.Context, accountID string) (*Account, error)

	// Upsert inserts the account if missing and returns the record either way.
	Upsert(ctx context.Context, accountID string) (*Account, error)

	// Get returns the account or ErrNotFound.
	Get(ctx context.Context, accountID string) (*Account, error)

	// List returns all accounts ordered by creation time.
	List(ctx context.Context) ([]Account, error)

	// UpdateStatus records a lifecycle transition and bumps last_activity.
	UpdateStatus(ctx context.Context, accountID string, status string) error
}

// TemplateStore persists free-form name/content pairs.
type TemplateStore interface {
	CreateTemplate(ctx context.Context, name, content string) (*Template, error)
	GetTemplate(ctx context.Context, id int64) (*Template, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	UpdateTemplate(ctx context.Context, id int64, name, content string) (*Template, error)
	DeleteTemplate(ctx context.Context, id int64) error
}

// MessageStore logs delivery attempts.
type MessageStore interface {
	CreateMessage(ctx context.Context, rec *MessageRecord) error
	UpdateMessageStatus(ctx context.Context, id int64, status, providerID, errMsg string) error
	ListMessages(ctx context.Context, accountID string, limit int) ([]MessageRecord, error)
}
