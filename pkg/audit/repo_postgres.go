// pkg/audit/repo_postgres.go
package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

// PostgresRepository persists audit entries to Postgres. Rows are only
// ever inserted; there is no update or delete path.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresRepository creates the repository and ensures the table exists
func NewPostgresRepository(db *sqlx.DB, logger *zap.Logger) (*PostgresRepository, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &PostgresRepository{db: db, logger: logger}
	if err := r.setupTable(); err != nil {
		return nil, fmt.Errorf("failed to setup audit table: %w", err)
	}
	return r, nil
}

func (r *PostgresRepository) setupTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS audit_log (
			id UUID PRIMARY KEY,
			entity_id UUID NOT NULL,
			entity_kind TEXT NOT NULL,
			action TEXT NOT NULL,
			field TEXT NOT NULL DEFAULT '',
			old_value TEXT NOT NULL DEFAULT '',
			new_value TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL,
			actor_role TEXT NOT NULL DEFAULT '',
			actor_scope TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_audit_log_entity
			ON audit_log (entity_id, occurred_at)
	`
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create audit_log table: %w", err)
	}

	r.logger.Info("Ensured audit_log table exists")
	return nil
}

// Insert appends one entry
func (r *PostgresRepository) Insert(ctx context.Context, entry *model.AuditLogEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, entity_id, entity_kind, action, field, old_value, new_value,
			actor_id, actor_role, actor_scope, source, notes, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		entry.ID,
		entry.EntityID,
		string(entry.EntityKind),
		entry.Action,
		entry.Field,
		entry.OldValue,
		entry.NewValue,
		entry.ActorID,
		entry.ActorRole,
		entry.ActorScope,
		string(entry.Source),
		entry.Notes,
		entry.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the filter, oldest first
func (r *PostgresRepository) Query(ctx context.Context, filter Filter) ([]*model.AuditLogEntry, error) {
	var (
		conditions []string
		args       []interface{}
	)
	addCondition := func(clause string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, clause+"$"+strconv.Itoa(len(args)))
	}

	if filter.EntityID != uuid.Nil {
		addCondition("entity_id = ", filter.EntityID)
	}
	if filter.Action != "" {
		addCondition("action = ", filter.Action)
	}
	if filter.Source != "" {
		addCondition("source = ", string(filter.Source))
	}

	query := `
		SELECT id, entity_id, entity_kind, action, field, old_value,
		       new_value, actor_id, actor_role, actor_scope, source, notes,
		       occurred_at
		FROM audit_log`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY occurred_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := make([]*model.AuditLogEntry, 0)
	for rows.Next() {
		var (
			entry  model.AuditLogEntry
			kind   string
			source string
		)
		if err := rows.Scan(
			&entry.ID, &entry.EntityID, &kind, &entry.Action, &entry.Field,
			&entry.OldValue, &entry.NewValue, &entry.ActorID, &entry.ActorRole,
			&entry.ActorScope, &source, &entry.Notes, &entry.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.EntityKind = model.EntityKind(kind)
		entry.Source = model.AuditSource(source)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}
