// Package audit records back-office actions to the audit_log table.
//
// Audit writes are best-effort everywhere in this codebase: callers log a
// failed write and carry on, because the primary business operation must
// never be coupled to audit availability.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Action identifies what happened.
type Action string

const (
	ActionPackActivated   Action = "pack_pos_activate"
	ActionPackDeactivated Action = "pack_pos_deactivate"
	ActionImportValidated Action = "lottery_import_validate"
	ActionImportCommitted Action = "lottery_import_commit"
)

// Entry is a single audit record.
type Entry struct {
	Action   Action
	StoreID  string
	ObjectID string // pack id or import id
	UserID   string
	Detail   map[string]any
}

// Sink accepts audit entries. Service is the production implementation;
// tests substitute fakes.
type Sink interface {
	Write(ctx context.Context, e Entry) error
}

// Service writes audit entries to Postgres.
type Service struct {
	pool *pgxpool.Pool
}

// NewService creates an audit service on the shared connection pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// Write inserts one audit entry. The caller decides whether a failure
// matters; this package never swallows it silently.
func (s *Service) Write(ctx context.Context, e Entry) error {
	var detail []byte
	if e.Detail != nil {
		var err error
		detail, err = json.Marshal(e.Detail)
		if err != nil {
			return err
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, store_id, object_id, user_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.Action), nullable(e.StoreID), nullable(e.ObjectID), nullable(e.UserID), detail, time.Now().UTC(),
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
