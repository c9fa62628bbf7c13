// Package storage defines the persistence interface for the recall memory
// substrate. All writes funnel through a Store implementation so it is the
// sole source of truth; multi-step write sequences run inside Transaction so
// readers never observe a partially-written batch.
package storage

import (
	"context"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

// Store owns the three logical relations of the memory substrate: memories,
// association edges, and the engine_state key/value table.
type Store interface {
	// InsertMemory persists a new memory and assigns its id (monotonically
	// increasing, written back into m.ID).
	InsertMemory(ctx context.Context, m *types.Memory) error

	// Memory fetches a single memory by id. Returns ErrNotFound if missing.
	Memory(ctx context.Context, id int64) (*types.Memory, error)

	// Memories fetches memories matching the filter, ordered by id ascending.
	Memories(ctx context.Context, f MemoryFilter) ([]types.Memory, error)

	// TouchLastAccessed sets last_accessed_at for every given id.
	TouchLastAccessed(ctx context.Context, ids []int64, at time.Time) error

	// UpdateRecencyBias writes recency-bias values positionally paired with
	// ids: values[i] belongs to ids[i].
	UpdateRecencyBias(ctx context.Context, ids []int64, values []float64) error

	// ScaleImportance multiplies the importance of every given id by factor,
	// clamping the result to [0,1].
	ScaleImportance(ctx context.Context, ids []int64, factor float64) error

	// ArchiveMemory nulls the embedding of a memory and bumps its updated_at,
	// removing it from similarity retrieval while retaining the row.
	ArchiveMemory(ctx context.Context, id int64, at time.Time) error

	// RefreshMemory applies a partial in-place update of scoring metadata
	// (importance, recency bias, tags, embedding) and bumps updated_at.
	RefreshMemory(ctx context.Context, id int64, upd MemoryRefresh, at time.Time) error

	// State reads a single engine-state value. Returns ErrNotFound if the
	// key has never been written.
	State(ctx context.Context, key string) (string, error)

	// SetState upserts a single engine-state key.
	SetState(ctx context.Context, key, value string) error

	// EdgesTouching returns all edges where id is either endpoint.
	EdgesTouching(ctx context.Context, id int64) ([]types.Edge, error)

	// AllEdges returns every stored edge.
	AllEdges(ctx context.Context) ([]types.Edge, error)

	// UpsertEdge inserts or updates the edge for the canonicalized pair
	// (src,dst), setting its weight.
	UpsertEdge(ctx context.Context, src, dst int64, weight float64, at time.Time) error

	// DecayEdges multiplies every edge weight by factor, never dropping a
	// weight below floor.
	DecayEdges(ctx context.Context, factor, floor float64, at time.Time) error

	// Transaction executes fn against a Store bound to a single transaction.
	// The transaction commits when fn returns nil and rolls back otherwise.
	Transaction(ctx context.Context, fn func(Store) error) error

	// Close releases any resources held by the store.
	Close() error
}
