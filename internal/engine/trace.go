package engine

import (
	"encoding/json"
	"log"
	"time"
)

// TraceEventKind classifies each retrieval trace event by type.
type TraceEventKind string

const (
	// KindRetrievalStarted is emitted at the beginning of a retrieval.
	KindRetrievalStarted TraceEventKind = "retrieval_started"

	// KindSeedsSelected is emitted after the top-cosine seed set is fixed.
	KindSeedsSelected TraceEventKind = "seeds_selected"

	// KindDriftInjected is emitted when the stochastic drift draw fires.
	KindDriftInjected TraceEventKind = "drift_injected"

	// KindResultsReturned records the final selected set with its reasons.
	KindResultsReturned TraceEventKind = "results_returned"
)

// TraceEvent is a single structured event emitted during retrieval. Traces
// are observability only; they never affect the returned results.
type TraceEvent struct {
	// Kind identifies the event type.
	Kind TraceEventKind `json:"kind"`

	// TraceID correlates all events of one retrieval call.
	TraceID string `json:"trace_id"`

	// At is the wall-clock time the event was recorded.
	At time.Time `json:"at"`

	// Query is the original query text, populated in retrieval_started.
	Query string `json:"query,omitempty"`

	// MemoryID is populated for per-memory events (drift_injected).
	MemoryID int64 `json:"memory_id,omitempty"`

	// MemoryIDs lists seed or result ids for set-level events.
	MemoryIDs []int64 `json:"memory_ids,omitempty"`

	// Reasons maps result id to its provenance reasons for
	// results_returned events.
	Reasons map[int64][]Reason `json:"reasons,omitempty"`
}

// emitTrace serializes the event as JSON on the standard logger.
func emitTrace(clock func() time.Time, e TraceEvent) {
	e.At = clock()
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("engine: trace marshal failed: %v", err)
		return
	}
	log.Printf("engine: trace %s", payload)
}
