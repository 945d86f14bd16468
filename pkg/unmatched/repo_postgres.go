// pkg/unmatched/repo_postgres.go
package unmatched

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/classbridge/roster-import/pkg/model"
)

// PostgresRepository persists unmatched records to Postgres. The raw
// payload is stored as JSONB so reviewers can inspect the row exactly as
// it arrived.
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
		return nil, fmt.Errorf("failed to setup unmatched table: %w", err)
	}
	return r, nil
}

func (r *PostgresRepository) setupTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS unmatched_records (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL,
			seq INTEGER NOT NULL,
			payload JSONB NOT NULL,
			kind TEXT NOT NULL,
			match_key_hash TEXT NOT NULL,
			attempted_keys TEXT[] NOT NULL DEFAULT '{}',
			status TEXT NOT NULL,
			resolved_entity_id UUID,
			resolved_by TEXT NOT NULL DEFAULT '',
			resolved_at TIMESTAMP WITH TIME ZONE,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_unmatched_pending_hash
			ON unmatched_records (match_key_hash)
			WHERE status = 'pending';
		CREATE INDEX IF NOT EXISTS idx_unmatched_status
			ON unmatched_records (status, created_at)
	`
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create unmatched_records table: %w", err)
	}

	r.logger.Info("Ensured unmatched_records table exists")
	return nil
}

type unmatchedRow struct {
	ID               uuid.UUID      `db:"id"`
	BatchID          uuid.UUID      `db:"batch_id"`
	Seq              int            `db:"seq"`
	Payload          []byte         `db:"payload"`
	Kind             string         `db:"kind"`
	MatchKeyHash     string         `db:"match_key_hash"`
	AttemptedKeys    pq.StringArray `db:"attempted_keys"`
	Status           string         `db:"status"`
	ResolvedEntityID uuid.NullUUID  `db:"resolved_entity_id"`
	ResolvedBy       string         `db:"resolved_by"`
	ResolvedAt       sql.NullTime   `db:"resolved_at"`
	Notes            string         `db:"notes"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func toRow(rec *model.UnmatchedRecord) (*unmatchedRow, error) {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}
	row := &unmatchedRow{
		ID:            rec.ID,
		BatchID:       rec.BatchID,
		Seq:           rec.Seq,
		Payload:       payload,
		Kind:          string(rec.Kind),
		MatchKeyHash:  rec.MatchKeyHash,
		AttemptedKeys: pq.StringArray(rec.AttemptedKeys),
		Status:        string(rec.Status),
		ResolvedBy:    rec.ResolvedBy,
		Notes:         rec.Notes,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.ResolvedEntityID != uuid.Nil {
		row.ResolvedEntityID = uuid.NullUUID{UUID: rec.ResolvedEntityID, Valid: true}
	}
	if rec.ResolvedAt != nil {
		row.ResolvedAt = sql.NullTime{Time: *rec.ResolvedAt, Valid: true}
	}
	return row, nil
}

func (row *unmatchedRow) toModel() (*model.UnmatchedRecord, error) {
	payload := make(map[string]string)
	if len(row.Payload) > 0 {
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to deserialize payload: %w", err)
		}
	}
	rec := &model.UnmatchedRecord{
		ID:            row.ID,
		BatchID:       row.BatchID,
		Seq:           row.Seq,
		Payload:       payload,
		Kind:          model.UnmatchedKind(row.Kind),
		MatchKeyHash:  row.MatchKeyHash,
		AttemptedKeys: []string(row.AttemptedKeys),
		Status:        model.UnmatchedStatus(row.Status),
		ResolvedBy:    row.ResolvedBy,
		Notes:         row.Notes,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if row.ResolvedEntityID.Valid {
		rec.ResolvedEntityID = row.ResolvedEntityID.UUID
	}
	if row.ResolvedAt.Valid {
		at := row.ResolvedAt.Time
		rec.ResolvedAt = &at
	}
	return rec, nil
}

// Insert stores a new record
func (r *PostgresRepository) Insert(ctx context.Context, rec *model.UnmatchedRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO unmatched_records (
			id, batch_id, seq, payload, kind, match_key_hash, attempted_keys,
			status, resolved_entity_id, resolved_by, resolved_at, notes,
			created_at, updated_at
		) VALUES (
			:id, :batch_id, :seq, :payload, :kind, :match_key_hash, :attempted_keys,
			:status, :resolved_entity_id, :resolved_by, :resolved_at, :notes,
			:created_at, :updated_at
		)`, row)
	if err != nil {
		return fmt.Errorf("failed to insert unmatched record: %w", err)
	}
	return nil
}

// Update replaces an existing record
func (r *PostgresRepository) Update(ctx context.Context, rec *model.UnmatchedRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	result, err := r.db.NamedExecContext(ctx, `
		UPDATE unmatched_records SET
			batch_id = :batch_id,
			seq = :seq,
			payload = :payload,
			kind = :kind,
			status = :status,
			resolved_entity_id = :resolved_entity_id,
			resolved_by = :resolved_by,
			resolved_at = :resolved_at,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("failed to update unmatched record: %w", err)
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

// Get returns the record with the given id
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*model.UnmatchedRecord, error) {
	var row unmatchedRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, batch_id, seq, payload, kind, match_key_hash, attempted_keys,
		       status, resolved_entity_id, resolved_by, resolved_at, notes,
		       created_at, updated_at
		FROM unmatched_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get unmatched record: %w", err)
	}
	return row.toModel()
}

// FindPendingByKeyHash returns the pending record carrying the given
// match-key hash, if any
func (r *PostgresRepository) FindPendingByKeyHash(ctx context.Context, hash string) (*model.UnmatchedRecord, error) {
	var row unmatchedRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, batch_id, seq, payload, kind, match_key_hash, attempted_keys,
		       status, resolved_entity_id, resolved_by, resolved_at, notes,
		       created_at, updated_at
		FROM unmatched_records
		WHERE match_key_hash = $1 AND status = 'pending'`, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending record: %w", err)
	}
	return row.toModel()
}

// List returns records with the given status (all statuses when empty),
// oldest first
func (r *PostgresRepository) List(ctx context.Context, status model.UnmatchedStatus, limit int) ([]*model.UnmatchedRecord, error) {
	query := `
		SELECT id, batch_id, seq, payload, kind, match_key_hash, attempted_keys,
		       status, resolved_entity_id, resolved_by, resolved_at, notes,
		       created_at, updated_at
		FROM unmatched_records`
	args := make([]interface{}, 0, 2)
	if status != "" {
		args = append(args, string(status))
		query += " WHERE status = $1"
	}
	query += " ORDER BY created_at, seq"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var rows []unmatchedRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list unmatched records: %w", err)
	}
	out := make([]*model.UnmatchedRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
