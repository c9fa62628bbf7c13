package storage

import (
	"errors"
	"time"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrNotFound indicates that the requested row or state key was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// MemoryFilter narrows the rows returned by Store.Memories. Zero values mean
// "no constraint" for every field, so the zero filter returns everything.
type MemoryFilter struct {
	// Kinds restricts results to the given memory kinds.
	Kinds []types.Kind

	// UpdatedAfter restricts to rows updated strictly after this time.
	UpdatedAfter time.Time

	// AfterID restricts to rows with id strictly greater than this value.
	AfterID int64

	// IDs restricts to an explicit id list.
	IDs []int64

	// EmbeddedOnly excludes rows whose embedding is NULL (archived or never
	// embedded), which removes them from similarity-based retrieval.
	EmbeddedOnly bool
}

// MemoryRefresh is a partial in-place update of a memory's scoring metadata.
// Nil pointer/slice fields leave the stored value untouched.
type MemoryRefresh struct {
	Importance  *float64
	RecencyBias *float64
	Tags        []string
	Embedding   []float32
}
