package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

// MockEmbedder is a deterministic, offline embedder for tests and local
// development. Each text becomes a hashed bag-of-words vector: every token
// increments the dimension its hash lands on, and the result is
// unit-normalized. Texts sharing tokens therefore land near each other,
// which is enough structure for retrieval and clustering tests.
//
// Vectors are cached per input text in an LRU so repeated embeds of the same
// text are free and bit-identical.
type MockEmbedder struct {
	dim   int
	cache *lru.Cache[string, []float32]
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder creates a mock embedder with the given dimension.
// Dimensions below 8 are raised to 64.
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim < 8 {
		dim = 64
	}
	cache, err := lru.New[string, []float32](4096)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(fmt.Sprintf("llm: mock embedder cache: %v", err))
	}
	return &MockEmbedder{dim: dim, cache: cache}
}

// Dimension returns the vector dimension.
func (m *MockEmbedder) Dimension() int {
	return m.dim
}

// Embed produces one deterministic vector per input text.
func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if cached, ok := m.cache.Get(text); ok {
			out[i] = cached
			continue
		}
		vec := m.vectorize(text)
		m.cache.Add(text, vec)
		out[i] = vec
	}
	return out, nil
}

func (m *MockEmbedder) vectorize(text string) []float32 {
	vec := make([]float32, m.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%m.dim]++
	}
	vecmath.Normalize(vec)
	return vec
}

// tokenize lower-cases and splits on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// ConcatSummarizer is the trivial default Summarizer: it concatenates member
// texts under a header. Useful offline and as a fallback when no model
// endpoint is configured.
type ConcatSummarizer struct{}

var _ Summarizer = ConcatSummarizer{}

// Summarize joins the cluster's member texts into a digest string.
func (ConcatSummarizer) Summarize(_ context.Context, cluster []types.Memory) (string, error) {
	if len(cluster) == 0 {
		return "", fmt.Errorf("%w: empty cluster", ErrInvalidResponse)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Consolidated %d related memories: ", len(cluster))
	for i, m := range cluster {
		if i > 0 {
			sb.WriteString(" | ")
		}
		sb.WriteString(firstLine(m.Text))
	}
	return sb.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
