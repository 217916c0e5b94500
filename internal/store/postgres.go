package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlnas/MirrorScan/internal/models"
)

// PostgresStore persists scans and containment actions in Postgres. Records
// are stored as JSONB documents alongside the columns the history view
// filters on.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects a pool and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Printf("Connected to Postgres scan store")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id TEXT PRIMARY KEY,
			target_model TEXT NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_target ON scans (target_model, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS containment_actions (
			id TEXT PRIMARY KEY,
			scan_id TEXT NOT NULL REFERENCES scans (id),
			requested_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// HealthCheck pings the database.
func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateScan(ctx context.Context, rec *models.ScanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal scan record: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO scans (id, target_model, state, created_at, data) VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.Request.TargetModel, string(rec.State), rec.CreatedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert scan %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateScan(ctx context.Context, rec *models.ScanRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal scan record: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE scans SET state = $2, data = $3 WHERE id = $1`,
		rec.ID, string(rec.State), data)
	if err != nil {
		return fmt.Errorf("failed to update scan %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", models.ErrNotFound, rec.ID)
	}
	return nil
}

func (s *PostgresStore) GetScan(ctx context.Context, scanID string) (*models.ScanRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM scans WHERE id = $1`, scanID).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, scanID)
		}
		return nil, fmt.Errorf("failed to load scan %s: %w", scanID, err)
	}

	var rec models.ScanRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scan %s: %w", scanID, err)
	}
	return &rec, nil
}

func (s *PostgresStore) ListScans(ctx context.Context, limit int) ([]*models.ScanRecord, error) {
	query := `SELECT data FROM scans ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	defer rows.Close()

	var records []*models.ScanRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var rec models.ScanRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal scan record: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) AppendContainmentAction(ctx context.Context, action *models.ContainmentAction) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal containment action: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO containment_actions (id, scan_id, requested_at, data) VALUES ($1, $2, $3, $4)`,
		action.ID, action.ScanID, action.RequestedAt, data)
	if err != nil {
		return fmt.Errorf("failed to insert containment action %s: %w", action.ID, err)
	}
	return nil
}

func (s *PostgresStore) ContainmentActions(ctx context.Context, scanID string) ([]*models.ContainmentAction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM containment_actions WHERE scan_id = $1 ORDER BY requested_at`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list containment actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ContainmentAction
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var action models.ContainmentAction
		if err := json.Unmarshal(data, &action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal containment action: %w", err)
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}
