// Package llm holds the two external capabilities the memory core consumes:
// text embedding and cluster summarization. The core never talks to a model
// endpoint directly; everything goes through these interfaces so tests can
// substitute deterministic implementations.
package llm

import (
	"context"
	"errors"

	"github.com/scrypster/recall/pkg/types"
)

var (
	// ErrInvalidResponse indicates the provider returned a payload that could
	// not be parsed or was missing expected fields.
	ErrInvalidResponse = errors.New("llm: invalid response")

	// ErrTransport indicates the provider could not be reached or the HTTP
	// exchange failed.
	ErrTransport = errors.New("llm: transport failure")

	// ErrDimensionMismatch indicates the provider returned vectors whose
	// dimension does not match what the caller expects.
	ErrDimensionMismatch = errors.New("llm: embedding dimension mismatch")
)

// Embedder turns texts into fixed-dimension float vectors. One call embeds a
// batch; the returned slice is positionally paired with the input texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension this embedder produces.
	Dimension() int
}

// Summarizer condenses a cluster of memories into a single digest string.
type Summarizer interface {
	Summarize(ctx context.Context, cluster []types.Memory) (string, error)
}
