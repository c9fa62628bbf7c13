// Package graph is a thin façade over the store's edge table. It keeps edge
// semantics (pair canonicalization, symmetry) out of call sites and holds no
// state of its own.
package graph

import (
	"context"
	"time"

	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/pkg/types"
)

// Graph exposes the associative-edge operations the engine and consolidator
// need: neighbor lookup, idempotent upsert, and global decay.
type Graph struct {
	store storage.Store
	clock func() time.Time
}

// New creates a graph façade over the given store. clock supplies edge
// timestamps and is injectable for tests; nil means time.Now.
func New(store storage.Store, clock func() time.Time) *Graph {
	if clock == nil {
		clock = time.Now
	}
	return &Graph{store: store, clock: clock}
}

// Neighbors returns all edges where id is either endpoint.
func (g *Graph) Neighbors(ctx context.Context, id int64) ([]types.Edge, error) {
	return g.store.EdgesTouching(ctx, id)
}

// UpsertEdge inserts or updates the undirected edge between src and dst.
// The store canonicalizes the pair, so argument order does not matter.
func (g *Graph) UpsertEdge(ctx context.Context, src, dst int64, weight float64) error {
	return g.store.UpsertEdge(ctx, src, dst, weight, g.clock())
}

// DecayAll multiplies every edge weight by factor with the given floor.
func (g *Graph) DecayAll(ctx context.Context, factor, floor float64) error {
	return g.store.DecayEdges(ctx, factor, floor, g.clock())
}
