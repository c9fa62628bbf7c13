package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

const memoryColumns = `id, kind, text, embedding, created_at, updated_at,
	last_accessed_at, importance, sentiment, recency_bias, tags, meta`

// InsertMemory persists a new memory row and writes the assigned id back
// into m.ID.
func (s *Store) InsertMemory(ctx context.Context, m *types.Memory) error {
	if m == nil {
		return storage.ErrInvalidInput
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown memory kind %q", storage.ErrInvalidInput, m.Kind)
	}
	if m.Text == "" {
		return fmt.Errorf("%w: memory text is required", storage.ErrInvalidInput)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	metaJSON, err := encodeMeta(m.Meta)
	if err != nil {
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO memories (
			kind, text, embedding, created_at, updated_at, last_accessed_at,
			importance, sentiment, recency_bias, tags, meta
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Kind,
		m.Text,
		encodeEmbedding(m.Embedding),
		m.CreatedAt,
		m.UpdatedAt,
		nullableTime(m.LastAccessedAt),
		m.Importance,
		nullableFloat(m.Sentiment),
		m.RecencyBias,
		nullableBytes(encodeTags(m.Tags)),
		nullableBytes(metaJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: failed to read inserted id: %w", err)
	}
	m.ID = id
	return nil
}

// Memory fetches a single memory by id.
func (s *Store) Memory(ctx context.Context, id int64) (*types.Memory, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to get memory %d: %w", id, err)
	}
	return m, nil
}

// Memories fetches rows matching the filter, ordered by id ascending.
func (s *Store) Memories(ctx context.Context, f storage.MemoryFilter) ([]types.Memory, error) {
	var conditions []string
	var args []any

	if len(f.Kinds) > 0 {
		placeholders := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			placeholders[i] = "?"
			args = append(args, k)
		}
		conditions = append(conditions, "kind IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !f.UpdatedAfter.IsZero() {
		conditions = append(conditions, "updated_at > ?")
		args = append(args, f.UpdatedAfter)
	}
	if f.AfterID > 0 {
		conditions = append(conditions, "id > ?")
		args = append(args, f.AfterID)
	}
	if len(f.IDs) > 0 {
		placeholders := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		conditions = append(conditions, "id IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.EmbeddedOnly {
		conditions = append(conditions, "embedding IS NOT NULL")
	}

	query := `SELECT ` + memoryColumns + ` FROM memories`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list memories: %w", err)
	}
	defer rows.Close()

	var memories []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan memory: %w", err)
		}
		memories = append(memories, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating memories: %w", err)
	}
	return memories, nil
}

// TouchLastAccessed sets last_accessed_at for every given id in one batch.
func (s *Store) TouchLastAccessed(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{at}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	_, err := s.q.ExecContext(ctx,
		"UPDATE memories SET last_accessed_at = ? WHERE id IN ("+strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to touch last_accessed_at: %w", err)
	}
	return nil
}

// UpdateRecencyBias writes values positionally paired with ids.
func (s *Store) UpdateRecencyBias(ctx context.Context, ids []int64, values []float64) error {
	if len(ids) != len(values) {
		return fmt.Errorf("%w: %d ids for %d recency values", storage.ErrInvalidInput, len(ids), len(values))
	}
	for i, id := range ids {
		if _, err := s.q.ExecContext(ctx,
			"UPDATE memories SET recency_bias = ? WHERE id = ?", values[i], id); err != nil {
			return fmt.Errorf("sqlite: failed to update recency_bias for %d: %w", id, err)
		}
	}
	return nil
}

// ScaleImportance multiplies importance by factor for every given id,
// clamped to [0,1].
func (s *Store) ScaleImportance(ctx context.Context, ids []int64, factor float64) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := make([]string, len(ids))
	args := []any{factor}
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id)
	}

	_, err := s.q.ExecContext(ctx,
		"UPDATE memories SET importance = MIN(1.0, MAX(0.0, importance * ?)) WHERE id IN ("+
			strings.Join(placeholders, ", ")+")",
		args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to scale importance: %w", err)
	}
	return nil
}

// ArchiveMemory nulls the embedding and bumps updated_at, which removes the
// row from similarity retrieval while keeping it on record.
func (s *Store) ArchiveMemory(ctx context.Context, id int64, at time.Time) error {
	res, err := s.q.ExecContext(ctx,
		"UPDATE memories SET embedding = NULL, updated_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to archive memory %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RefreshMemory applies a partial update of scoring metadata and bumps
// updated_at. Nil fields in upd are left untouched.
func (s *Store) RefreshMemory(ctx context.Context, id int64, upd storage.MemoryRefresh, at time.Time) error {
	sets := []string{"updated_at = ?"}
	args := []any{at}

	if upd.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, *upd.Importance)
	}
	if upd.RecencyBias != nil {
		sets = append(sets, "recency_bias = ?")
		args = append(args, *upd.RecencyBias)
	}
	if upd.Tags != nil {
		sets = append(sets, "tags = ?")
		args = append(args, nullableBytes(encodeTags(upd.Tags)))
	}
	if upd.Embedding != nil {
		sets = append(sets, "embedding = ?")
		args = append(args, encodeEmbedding(upd.Embedding))
	}

	args = append(args, id)
	res, err := s.q.ExecContext(ctx,
		"UPDATE memories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("sqlite: failed to refresh memory %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to check rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory reads one memories row into a types.Memory. Tags and meta parse
// with graceful fallbacks so a malformed stored value never fails the read.
func scanMemory(r rowScanner) (*types.Memory, error) {
	var (
		m              types.Memory
		embedding      []byte
		lastAccessedAt sql.NullTime
		sentiment      sql.NullFloat64
		tagsJSON       sql.NullString
		metaJSON       sql.NullString
	)

	err := r.Scan(
		&m.ID,
		&m.Kind,
		&m.Text,
		&embedding,
		&m.CreatedAt,
		&m.UpdatedAt,
		&lastAccessedAt,
		&m.Importance,
		&sentiment,
		&m.RecencyBias,
		&tagsJSON,
		&metaJSON,
	)
	if err != nil {
		return nil, err
	}

	vec, err := decodeEmbedding(embedding)
	if err != nil {
		return nil, err
	}
	m.Embedding = vec

	if lastAccessedAt.Valid {
		t := lastAccessedAt.Time
		m.LastAccessedAt = &t
	}
	if sentiment.Valid {
		v := sentiment.Float64
		m.Sentiment = &v
	}
	if tagsJSON.Valid {
		m.Tags = decodeTags(tagsJSON.String)
	}
	if metaJSON.Valid {
		m.Meta = decodeMeta(metaJSON.String)
	}

	return &m, nil
}

// nullableTime converts a time pointer to sql.NullTime.
func nullableTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullableFloat converts a float pointer to sql.NullFloat64.
func nullableFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// nullableBytes converts a byte slice to sql.NullString.
func nullableBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
