// pkg/flags/repo_postgres.go
package flags

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

// PostgresRepository persists flags to Postgres. A partial unique index
// enforces at most one unresolved flag per (entity, type) at the database
// level, backing up the scanner's idempotent creation.
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
		return nil, fmt.Errorf("failed to setup flags table: %w", err)
	}
	return r, nil
}

func (r *PostgresRepository) setupTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS flags (
			id UUID PRIMARY KEY,
			entity_id UUID NOT NULL,
			type TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			resolved_at TIMESTAMP WITH TIME ZONE,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolution_notes TEXT NOT NULL DEFAULT ''
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_flags_open_entity_type
			ON flags (entity_id, type)
			WHERE resolved_at IS NULL
	`
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create flags table: %w", err)
	}

	r.logger.Info("Ensured flags table exists")
	return nil
}

type flagRow struct {
	ID              uuid.UUID    `db:"id"`
	EntityID        uuid.UUID    `db:"entity_id"`
	Type            string       `db:"type"`
	CreatedBy       string       `db:"created_by"`
	CreatedAt       time.Time    `db:"created_at"`
	ResolvedAt      sql.NullTime `db:"resolved_at"`
	ResolvedBy      string       `db:"resolved_by"`
	ResolutionNotes string       `db:"resolution_notes"`
}

func (row *flagRow) toModel() *model.Flag {
	flag := &model.Flag{
		ID:              row.ID,
		EntityID:        row.EntityID,
		Type:            model.FlagType(row.Type),
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt,
		ResolvedBy:      row.ResolvedBy,
		ResolutionNotes: row.ResolutionNotes,
	}
	if row.ResolvedAt.Valid {
		at := row.ResolvedAt.Time
		flag.ResolvedAt = &at
	}
	return flag
}

// Insert stores a new flag
func (r *PostgresRepository) Insert(ctx context.Context, flag *model.Flag) error {
	var resolvedAt sql.NullTime
	if flag.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *flag.ResolvedAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flags (
			id, entity_id, type, created_by, created_at,
			resolved_at, resolved_by, resolution_notes
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		flag.ID, flag.EntityID, string(flag.Type), flag.CreatedBy,
		flag.CreatedAt, resolvedAt, flag.ResolvedBy, flag.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert flag: %w", err)
	}
	return nil
}

// Update replaces an existing flag
func (r *PostgresRepository) Update(ctx context.Context, flag *model.Flag) error {
	var resolvedAt sql.NullTime
	if flag.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *flag.ResolvedAt, Valid: true}
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE flags SET
			resolved_at = $2,
			resolved_by = $3,
			resolution_notes = $4
		WHERE id = $1`,
		flag.ID, resolvedAt, flag.ResolvedBy, flag.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to update flag: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOpen returns the unresolved flag of the given type on an entity
func (r *PostgresRepository) FindOpen(ctx context.Context, entityID uuid.UUID, flagType model.FlagType) (*model.Flag, error) {
	var row flagRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, entity_id, type, created_by, created_at,
		       resolved_at, resolved_by, resolution_notes
		FROM flags
		WHERE entity_id = $1 AND type = $2 AND resolved_at IS NULL`,
		entityID, string(flagType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open flag: %w", err)
	}
	return row.toModel(), nil
}

// ListOpen returns all unresolved flags on an entity, oldest first
func (r *PostgresRepository) ListOpen(ctx context.Context, entityID uuid.UUID) ([]*model.Flag, error) {
	var rows []flagRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, entity_id, type, created_by, created_at,
		       resolved_at, resolved_by, resolution_notes
		FROM flags
		WHERE entity_id = $1 AND resolved_at IS NULL
		ORDER BY created_at`, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list open flags: %w", err)
	}
	out := make([]*model.Flag, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toModel())
	}
	return out, nil
}
