package types

import "time"

// Kind classifies a memory by how it was formed.
type Kind string

const (
	// KindEpisodic is a single committed conversational episode.
	KindEpisodic Kind = "episodic"

	// KindSemantic is a digest synthesized from a cluster of episodic
	// memories during sleep consolidation.
	KindSemantic Kind = "semantic"

	// KindProcedural is a standing rule or instruction upserted directly
	// by a caller.
	KindProcedural Kind = "procedural"
)

// AllKinds lists every memory kind, in retrieval order.
var AllKinds = []Kind{KindEpisodic, KindSemantic, KindProcedural}

// Valid reports whether k is one of the known memory kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindEpisodic, KindSemantic, KindProcedural:
		return true
	}
	return false
}

// Memory is a single stored unit of memory.
//
// Embedding is unit-normalized (L2 norm ≈ 1.0) whenever present; archived
// memories keep their row but carry a nil embedding and are excluded from
// similarity retrieval.
type Memory struct {
	ID   int64  `json:"id"`
	Kind Kind   `json:"kind"`
	Text string `json:"text"`

	// Embedding is the fixed-dimension unit vector, nil when the memory is
	// archived or has not been embedded yet.
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`

	// Importance is clamped to [0,1].
	Importance float64 `json:"importance"`

	// Sentiment is in [-1,1]; nil when no sentiment was computed.
	Sentiment *float64 `json:"sentiment,omitempty"`

	// RecencyBias is in [0,1], recomputed relative to a reference time.
	RecencyBias float64 `json:"recency_bias"`

	Tags []string       `json:"tags,omitempty"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Archived reports whether the memory has been archived (embedding removed).
func (m *Memory) Archived() bool {
	return m.Embedding == nil
}

// HasTag reports whether the memory carries the given tag.
func (m *Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Edge is an undirected association between two memories. The endpoint pair
// is canonicalized so SrcID <= DstID and forms the unique key.
type Edge struct {
	SrcID     int64     `json:"src_id"`
	DstID     int64     `json:"dst_id"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Other returns the endpoint of the edge that is not id. If id is not an
// endpoint at all, the source endpoint is returned.
func (e Edge) Other(id int64) int64 {
	if e.SrcID == id {
		return e.DstID
	}
	return e.SrcID
}

// CanonicalPair orders two memory ids so the smaller comes first. Every edge
// write goes through this so (a,b) and (b,a) address the same stored edge.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// Checkpoint marks how far sleep consolidation has progressed. It is
// persisted as JSON in the engine_state table and makes consolidation
// resumable: the next run only considers episodic memories with a larger id
// updated after the recorded timestamp.
type Checkpoint struct {
	LastID    int64     `json:"last_id"`
	Timestamp time.Time `json:"timestamp"`
}
