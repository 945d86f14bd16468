// pkg/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

// PostgresStore implements EntityStore on a Postgres database
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore creates the store and ensures the entities table exists
func NewPostgresStore(db *sqlx.DB, logger *zap.Logger) (*PostgresStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	s := &PostgresStore{db: db, logger: logger}
	if err := s.setupTable(); err != nil {
		return nil, fmt.Errorf("failed to setup entities table: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) setupTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS entities (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			external_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			date TIMESTAMP WITH TIME ZONE,
			teacher_id UUID,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			composite_key TEXT NOT NULL DEFAULT '',
			manual_fields TEXT[] NOT NULL DEFAULT '{}',
			import_source TEXT NOT NULL DEFAULT '',
			source_batch_id UUID,
			version BIGINT NOT NULL DEFAULT 1,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_external
			ON entities (kind, external_id) WHERE external_id <> '';
		CREATE INDEX IF NOT EXISTS idx_entities_composite
			ON entities (kind, composite_key) WHERE composite_key <> ''
	`
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create entities table: %w", err)
	}

	s.logger.Info("Ensured entities table exists")
	return nil
}

type entityRow struct {
	ID            uuid.UUID      `db:"id"`
	Kind          string         `db:"kind"`
	ExternalID    string         `db:"external_id"`
	Title         string         `db:"title"`
	Date          sql.NullTime   `db:"date"`
	TeacherID     uuid.NullUUID  `db:"teacher_id"`
	Name          string         `db:"name"`
	Email         string         `db:"email"`
	Role          string         `db:"role"`
	Status        string         `db:"status"`
	Notes         string         `db:"notes"`
	CompositeKey  string         `db:"composite_key"`
	ManualFields  pq.StringArray `db:"manual_fields"`
	ImportSource  string         `db:"import_source"`
	SourceBatchID uuid.NullUUID  `db:"source_batch_id"`
	Version       int64          `db:"version"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r entityRow) toEntity() *model.Entity {
	e := &model.Entity{
		ID:           r.ID,
		Kind:         model.EntityKind(r.Kind),
		ExternalID:   r.ExternalID,
		Title:        r.Title,
		Name:         r.Name,
		Email:        r.Email,
		Role:         model.PersonRole(r.Role),
		Status:       model.ParseStatusString(r.Status),
		Notes:        r.Notes,
		ImportSource: r.ImportSource,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.Date.Valid {
		e.Date = r.Date.Time
	}
	if r.TeacherID.Valid {
		e.TeacherID = r.TeacherID.UUID
	}
	if r.SourceBatchID.Valid {
		e.SourceBatchID = r.SourceBatchID.UUID
	}
	e.SetManualFieldNames(r.ManualFields)
	return e
}

const entityColumns = `
	id, kind, external_id, title, date, teacher_id, name, email, role,
	status, notes, composite_key, manual_fields, import_source,
	source_batch_id, version, created_at, updated_at`

// Get fetches an entity by internal identifier
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*model.Entity, error) {
	return s.queryOne(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
}

// FindByExternalID looks up the tier-1 exact match key
func (s *PostgresStore) FindByExternalID(ctx context.Context, kind model.EntityKind, externalID string) (*model.Entity, error) {
	if externalID == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND external_id = $2`,
		string(kind), externalID)
}

// FindByCompositeKey looks up the tier-2 fallback key
func (s *PostgresStore) FindByCompositeKey(ctx context.Context, kind model.EntityKind, composite string) (*model.Entity, error) {
	if composite == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND composite_key = $2
		 ORDER BY created_at LIMIT 1`,
		string(kind), composite)
}

// List returns all entities of a kind
func (s *PostgresStore) List(ctx context.Context, kind model.EntityKind) ([]*model.Entity, error) {
	var rows []entityRow
	err := s.db.SelectContext(ctx,
		&rows, `SELECT `+entityColumns+` FROM entities WHERE kind = $1`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	entities := make([]*model.Entity, 0, len(rows))
	for _, row := range rows {
		entities = append(entities, row.toEntity())
	}
	return entities, nil
}

// Save inserts a new entity or updates an existing one guarded by the
// version column. A lost race returns ErrVersionConflict.
func (s *PostgresStore) Save(ctx context.Context, entity *model.Entity) error {
	if entity.Version == 0 {
		return s.insert(ctx, entity)
	}
	return s.update(ctx, entity)
}

func (s *PostgresStore) insert(ctx context.Context, entity *model.Entity) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (
			id, kind, external_id, title, date, teacher_id, name, email,
			role, status, notes, composite_key, manual_fields,
			import_source, source_batch_id, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,1,$16,$16)`,
		entity.ID,
		string(entity.Kind),
		entity.ExternalID,
		entity.Title,
		nullTime(entity.Date),
		nullUUID(entity.TeacherID),
		entity.Name,
		entity.Email,
		string(entity.Role),
		entity.Status.String(),
		entity.Notes,
		entity.CompositeKey(),
		pq.StringArray(entity.ManualFieldNames()),
		entity.ImportSource,
		nullUUID(entity.SourceBatchID),
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	entity.Version = 1
	entity.UpdatedAt = now
	return nil
}

func (s *PostgresStore) update(ctx context.Context, entity *model.Entity) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET
			external_id = $1, title = $2, date = $3, teacher_id = $4,
			name = $5, email = $6, role = $7, status = $8, notes = $9,
			composite_key = $10, manual_fields = $11, version = version + 1,
			updated_at = $12
		WHERE id = $13 AND version = $14`,
		entity.ExternalID,
		entity.Title,
		nullTime(entity.Date),
		nullUUID(entity.TeacherID),
		entity.Name,
		entity.Email,
		string(entity.Role),
		entity.Status.String(),
		entity.Notes,
		entity.CompositeKey(),
		pq.StringArray(entity.ManualFieldNames()),
		now,
		entity.ID,
		entity.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update entity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}

	entity.Version++
	entity.UpdatedAt = now
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, args ...interface{}) (*model.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}
	return row.toEntity(), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}
