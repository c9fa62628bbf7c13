package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// UpsertEdge inserts or updates the association edge for the canonicalized
// (src,dst) pair. Upserting (a,b) and (b,a) mutates the same stored row.
func (s *Store) UpsertEdge(ctx context.Context, src, dst int64, weight float64, at time.Time) error {
	if src == dst {
		return fmt.Errorf("%w: self-edge %d", storage.ErrInvalidInput, src)
	}

	a, b := types.CanonicalPair(src, dst)
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO edges (src_id, dst_id, weight, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(src_id, dst_id) DO UPDATE SET
			weight = excluded.weight,
			updated_at = excluded.updated_at`,
		a, b, weight, at, at)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert edge (%d,%d): %w", a, b, err)
	}
	return nil
}

// EdgesTouching returns all edges where id is either endpoint.
func (s *Store) EdgesTouching(ctx context.Context, id int64) ([]types.Edge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT src_id, dst_id, weight, created_at, updated_at
		FROM edges
		WHERE src_id = ? OR dst_id = ?`, id, id)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to fetch edges for %d: %w", id, err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// AllEdges returns every stored edge.
func (s *Store) AllEdges(ctx context.Context) ([]types.Edge, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT src_id, dst_id, weight, created_at, updated_at
		FROM edges
		ORDER BY src_id, dst_id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to fetch edges: %w", err)
	}
	defer rows.Close()

	return scanEdges(rows)
}

// DecayEdges multiplies every edge weight by factor with a floor. Repeated
// decay never pushes a weight below the floor.
func (s *Store) DecayEdges(ctx context.Context, factor, floor float64, at time.Time) error {
	_, err := s.q.ExecContext(ctx,
		"UPDATE edges SET weight = MAX(?, weight * ?), updated_at = ?",
		floor, factor, at)
	if err != nil {
		return fmt.Errorf("sqlite: failed to decay edges: %w", err)
	}
	return nil
}

type edgeRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEdges(rows edgeRows) ([]types.Edge, error) {
	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		if err := rows.Scan(&e.SrcID, &e.DstID, &e.Weight, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: error iterating edges: %w", err)
	}
	return edges, nil
}
