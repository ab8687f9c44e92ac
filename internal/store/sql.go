package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"wagate/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id    TEXT NOT NULL UNIQUE,
	status        TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	last_activity TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS templates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id  TEXT NOT NULL,
	phone       TEXT NOT NULL,
	body        TEXT NOT NULL,
	media_type  TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	provider_id TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_account ON messages(account_id, created_at);
`

// SQLStore implements AccountStore, TemplateStore and MessageStore over a
// single sqlx database handle.
type SQLStore struct {
	db     *sqlx.DB
	logger logging.Logger
}

// Open connects to the document store and applies the schema.
func Open(ctx context.Context, driver, dsn string, logger logging.Logger) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	return NewSQLStore(ctx, db, logger)
}

// NewSQLStore wraps an existing handle and applies the schema.
func NewSQLStore(ctx context.Context, db *sqlx.DB, logger logging.Logger) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLStore{db: db, logger: logging.OrNop(logger)}, nil
}

// DB exposes the underlying handle for components that share the database,
// such as the provider's device routing table.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// --- AccountStore ---

func (s *SQLStore) Create(ctx context.Context, accountID string) (*Account, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (account_id, status, created_at, last_activity) VALUES (?, ?, ?, ?)`,
		accountID, StatusInitialized, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("account %q: %w", accountID, ErrDuplicate)
		}
		return nil, err
	}
	return s.Get(ctx, accountID)
}

func (s *SQLStore) Upsert(ctx context.Context, accountID string) (*Account, error) {
	account, err := s.Create(ctx, accountID)
	if err == nil {
		return account, nil
	}
	if errors.Is(err, ErrDuplicate) {
		return s.Get(ctx, accountID)
	}
	return nil, err
}

func (s *SQLStore) Get(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	err := s.db.GetContext(ctx, &account, `SELECT * FROM accounts WHERE account_id = ?`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *SQLStore) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.db.SelectContext(ctx, &accounts, `SELECT * FROM accounts ORDER BY created_at`); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, accountID string, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET status = ?, last_activity = ? WHERE account_id = ?`,
		status, time.Now().UTC(), accountID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("account %q: %w", accountID, ErrNotFound)
	}
	return nil
}

// --- TemplateStore ---

func (s *SQLStore) CreateTemplate(ctx context.Context, name, content string) (*Template, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (name, content, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, content, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetTemplate(ctx, id)
}

func (s *SQLStore) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	var tpl Template
	err := s.db.GetContext(ctx, &tpl, `SELECT * FROM templates WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (s *SQLStore) ListTemplates(ctx context.Context) ([]Template, error) {
	var templates []Template
	if err := s.db.SelectContext(ctx, &templates, `SELECT * FROM templates ORDER BY created_at`); err != nil {
		return nil, err
	}
	return templates, nil
}

func (s *SQLStore) UpdateTemplate(ctx context.Context, id int64, name, content string) (*Template, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET name = ?, content = ?, updated_at = ? WHERE id = ?`,
		name, content, time.Now().UTC(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return s.GetTemplate(ctx, id)
}

func (s *SQLStore) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("template %d: %w", id, ErrNotFound)
	}
	return nil
}

// --- MessageStore ---

func (s *SQLStore) CreateMessage(ctx context.Context, rec *MessageRecord) error {
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = MessageSending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (account_id, phone, body, media_type, status, provider_id, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AccountID, rec.Phone, rec.Body, rec.MediaType, rec.Status, rec.ProviderID, rec.Error, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

func (s *SQLStore) UpdateMessageStatus(ctx context.Context, id int64, status, providerID, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, provider_id = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, providerID, errMsg, time.Now().UTC(), id)
	return err
}

func (s *SQLStore) ListMessages(ctx context.Context, accountID string, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []MessageRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT * FROM messages WHERE account_id = ? ORDER BY created_at DESC LIMIT ?`, accountID, limit)
	if err != nil {
		return nil, err
	}
	return records, nil
}
