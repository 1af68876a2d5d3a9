package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyreel/internal/domain"
)

// PostgresStore implements RecordStore on top of a single keyed JSONB table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a record store backed by PostgreSQL.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the records table and its indexes when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS records (
    id uuid PRIMARY KEY,
    collection text NOT NULL,
    owner_id text NOT NULL DEFAULT '',
    data jsonb NOT NULL,
    created_at timestamptz NOT NULL DEFAULT now(),
    updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS records_scope_idx
    ON records (collection, owner_id, created_at DESC);
`
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Add inserts a new record and returns its generated id.
func (s *PostgresStore) Add(ctx context.Context, collection, ownerID string, data any) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("store: encode record: %w", err)
	}
	id := uuid.NewString()
	query := `
INSERT INTO records (id, collection, owner_id, data)
VALUES ($1, $2, $3, $4);
`
	if _, err := s.pool.Exec(ctx, query, id, collection, ownerID, payload); err != nil {
		return "", fmt.Errorf("store: insert record: %w", err)
	}
	return id, nil
}

// Get fetches a record by its identifier.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Record, error) {
	query := `
SELECT id, owner_id, data, created_at, updated_at
FROM records
WHERE collection = $1 AND id = $2;
`
	row := s.pool.QueryRow(ctx, query, collection, id)
	var rec Record
	if err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: get record: %w", err)
	}
	return &rec, nil
}

// Query returns the records of a collection matching the filter, ordered and
// paginated per opts.
func (s *PostgresStore) Query(ctx context.Context, collection string, filter Filter, opts QueryOptions) ([]Record, error) {
	where, args := buildWhere(collection, filter)
	var sb strings.Builder
	sb.WriteString("SELECT id, owner_id, data, created_at, updated_at FROM records WHERE ")
	sb.WriteString(where)
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderExpr(opts.OrderBy))
	if opts.Desc {
		sb.WriteString(" DESC")
	}
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opts.Limit)
	}
	if opts.Skip > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", opts.Skip)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.Data, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate records: %w", err)
	}
	return out, nil
}

// Update merges data into every matching record's document and returns the
// number of records touched.
func (s *PostgresStore) Update(ctx context.Context, collection string, filter Filter, data any) (int64, error) {
	patch, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("store: encode patch: %w", err)
	}
	where, args := buildWhere(collection, filter)
	args = append(args, patch)
	query := fmt.Sprintf(
		"UPDATE records SET data = data || $%d, updated_at = now() WHERE %s;",
		len(args), where,
	)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: update records: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Remove deletes every matching record and returns the number removed.
func (s *PostgresStore) Remove(ctx context.Context, collection string, filter Filter) (int64, error) {
	where, args := buildWhere(collection, filter)
	query := "DELETE FROM records WHERE " + where + ";"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("store: remove records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildWhere(collection string, filter Filter) (string, []any) {
	clauses := []string{"collection = $1"}
	args := []any{collection}
	if filter.ID != "" {
		args = append(args, filter.ID)
		clauses = append(clauses, fmt.Sprintf("id = $%d", len(args)))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	for field, value := range filter.Fields {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("data->>'%s' = $%d", sanitizeField(field), len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func orderExpr(field string) string {
	switch field {
	case "", "created_at":
		return "created_at"
	case "updated_at":
		return "updated_at"
	default:
		return fmt.Sprintf("data->>'%s'", sanitizeField(field))
	}
}

// sanitizeField keeps document field names safe for inline SQL. Field names
// come from pipeline code, never from callers, so this is a guard rail rather
// than an injection boundary.
func sanitizeField(field string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return -1
		}
	}, field)
}

var _ RecordStore = (*PostgresStore)(nil)
