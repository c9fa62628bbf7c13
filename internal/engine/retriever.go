package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/scrypster/recall/internal/graph"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

const (
	// seedCount is the size of the top-cosine seed set.
	seedCount = 8

	// Activation blend weights.
	weightCosine     = 0.60
	weightImportance = 0.20
	weightRecency    = 0.10
	weightNeighbor   = 0.10

	// Procedural rules join the result set when any of these gates pass.
	ruleCosineFloor     = 0.25
	ruleImportanceFloor = 0.60

	// driftPoolFraction is the share of memories, by importance, eligible
	// for drift injection.
	driftPoolFraction = 0.10

	// Snippet digest limits.
	bucketLimit     = 6
	bulletMaxLen    = 160
	fallbackTextLen = 280
)

// Reason is one provenance annotation on a retrieval result, carrying the
// numeric score that contributed to its activation.
type Reason struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is one ranked retrieval result.
type Result struct {
	ID          int64      `json:"id"`
	Kind        types.Kind `json:"kind"`
	TextSnippet string     `json:"text_snippet"`
	Tags        []string   `json:"tags,omitempty"`
	Activation  float64    `json:"activation"`
	Reasons     []Reason   `json:"reasons"`
	Citation    string     `json:"citation,omitempty"`
}

// Retriever ranks memories for a query by blending embedding similarity,
// importance, recency, and graph association strength.
type Retriever struct {
	store    storage.Store
	graph    *graph.Graph
	embedder llm.Embedder
	clock    func() time.Time
	rng      *rand.Rand
}

// retrieveParams carries the engine's current knobs into one retrieval call.
type retrieveParams struct {
	limit             int
	neighborThreshold float64
	driftProbability  float64
}

// candidate accumulates per-memory retrieval signals before ranking.
type candidate struct {
	mem            types.Memory
	cosine         float64
	hasCosine      bool
	neighborWeight float64
	selected       bool
}

// retrieve runs the hybrid ranking algorithm. The caller (the engine) holds
// the single-writer lock.
func (r *Retriever) retrieve(ctx context.Context, query string, p retrieveParams) ([]Result, error) {
	traceID := uuid.NewString()
	emitTrace(r.clock, TraceEvent{Kind: KindRetrievalStarted, TraceID: traceID, Query: query})

	// Embed and normalize the query.
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to embed query: %w", err)
	}
	queryVec := vecs[0]
	vecmath.Normalize(queryVec)

	// Every non-archived memory with an embedding is similarity-eligible.
	embedded, err := r.store.Memories(ctx, storage.MemoryFilter{
		Kinds:        types.AllKinds,
		EmbeddedOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if len(embedded) == 0 {
		return nil, nil
	}

	matrix := make([][]float32, len(embedded))
	for i := range embedded {
		matrix[i] = embedded[i].Embedding
	}
	cosines := vecmath.Dot(queryVec, matrix)

	// Seed set: top cosine matches.
	order := make([]int, len(embedded))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cosines[order[a]] > cosines[order[b]]
	})
	seedN := seedCount
	if seedN > len(order) {
		seedN = len(order)
	}
	seedIdx := order[:seedN]

	pool := make(map[int64]*candidate)
	seedIDs := make([]int64, 0, seedN)
	for _, i := range seedIdx {
		pool[embedded[i].ID] = &candidate{mem: embedded[i], cosine: cosines[i], hasCosine: true}
		seedIDs = append(seedIDs, embedded[i].ID)
	}
	emitTrace(r.clock, TraceEvent{Kind: KindSeedsSelected, TraceID: traceID, MemoryIDs: seedIDs})

	cosineByID := make(map[int64]float64, len(embedded))
	for i := range embedded {
		cosineByID[embedded[i].ID] = cosines[i]
	}

	// Merge qualifying graph neighbors of each seed into the pool, tracking
	// the strongest qualifying edge seen per seed for the bonus inclusion.
	strongestNeighbor := make(map[int64]types.Edge, seedN)
	for _, seedID := range seedIDs {
		edges, err := r.graph.Neighbors(ctx, seedID)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if e.Weight < p.neighborThreshold {
				continue
			}
			otherID := e.Other(seedID)
			if best, ok := strongestNeighbor[seedID]; !ok || e.Weight > best.Weight {
				strongestNeighbor[seedID] = e
			}
			if err := r.mergeNeighbor(ctx, pool, cosineByID, otherID, e.Weight); err != nil {
				return nil, err
			}
		}
	}

	// Rank the whole pool by activation and select the top limit.
	ranked := make([]*candidate, 0, len(pool))
	for _, c := range pool {
		ranked = append(ranked, c)
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return activation(ranked[a]) > activation(ranked[b])
	})
	for i, c := range ranked {
		if i >= p.limit {
			break
		}
		c.selected = true
	}

	// Bonus inclusion: each seed promotes its single strongest qualifying
	// neighbor even past the limit. This associative over-fetch is
	// deliberate and intentionally uncapped.
	for seedID, e := range strongestNeighbor {
		otherID := e.Other(seedID)
		if c, ok := pool[otherID]; ok {
			c.selected = true
		}
	}

	// Drift: occasionally surface a high-importance memory the query did
	// not ask for.
	if p.driftProbability > 0 && r.rng.Float64() < p.driftProbability {
		if drifted, err := r.injectDrift(ctx, pool, cosineByID); err != nil {
			return nil, err
		} else if drifted != 0 {
			emitTrace(r.clock, TraceEvent{Kind: KindDriftInjected, TraceID: traceID, MemoryID: drifted})
		}
	}

	// Procedural rules join when they relate by tags, similarity, or sheer
	// importance.
	if err := r.scanRules(ctx, pool, cosineByID, query); err != nil {
		return nil, err
	}

	results := r.assemble(pool)

	ids := make([]int64, len(results))
	reasons := make(map[int64][]Reason, len(results))
	for i, res := range results {
		ids[i] = res.ID
		reasons[res.ID] = res.Reasons
	}
	emitTrace(r.clock, TraceEvent{Kind: KindResultsReturned, TraceID: traceID, MemoryIDs: ids, Reasons: reasons})

	return results, nil
}

// mergeNeighbor adds a neighbor-derived memory to the pool, keeping the
// maximum qualifying edge weight seen for it.
func (r *Retriever) mergeNeighbor(ctx context.Context, pool map[int64]*candidate, cosineByID map[int64]float64, id int64, weight float64) error {
	if c, ok := pool[id]; ok {
		if weight > c.neighborWeight {
			c.neighborWeight = weight
		}
		return nil
	}

	mem, err := r.store.Memory(ctx, id)
	if err != nil {
		return err
	}
	c := &candidate{mem: *mem, neighborWeight: weight}
	if cos, ok := cosineByID[id]; ok {
		c.cosine, c.hasCosine = cos, true
	}
	pool[id] = c
	return nil
}

// injectDrift selects one memory from the top importance decile, preferring
// not-yet-selected ones, and marks it selected. Returns the drifted id, or 0
// when no eligible memory exists.
func (r *Retriever) injectDrift(ctx context.Context, pool map[int64]*candidate, cosineByID map[int64]float64) (int64, error) {
	all, err := r.store.Memories(ctx, storage.MemoryFilter{})
	if err != nil {
		return 0, err
	}
	if len(all) == 0 {
		return 0, nil
	}

	sort.SliceStable(all, func(a, b int) bool {
		return all[a].Importance > all[b].Importance
	})
	top := int(float64(len(all)) * driftPoolFraction)
	if top < 1 {
		top = 1
	}
	eligible := all[:top]

	// Prefer memories not already selected; fall back to the full decile.
	var fresh []types.Memory
	for _, m := range eligible {
		if c, ok := pool[m.ID]; ok && c.selected {
			continue
		}
		fresh = append(fresh, m)
	}
	if len(fresh) == 0 {
		fresh = eligible
	}

	chosen := fresh[r.rng.Intn(len(fresh))]
	c, ok := pool[chosen.ID]
	if !ok {
		c = &candidate{mem: chosen}
		if cos, found := cosineByID[chosen.ID]; found {
			c.cosine, c.hasCosine = cos, true
		}
		pool[chosen.ID] = c
	}
	c.selected = true
	return chosen.ID, nil
}

// scanRules walks procedural rules not yet selected and includes those
// gated in by tag overlap, similarity, or importance.
func (r *Retriever) scanRules(ctx context.Context, pool map[int64]*candidate, cosineByID map[int64]float64, query string) error {
	rules, err := r.store.Memories(ctx, storage.MemoryFilter{
		Kinds: []types.Kind{types.KindProcedural},
	})
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	selectedTags := map[string]bool{}
	for _, c := range pool {
		if !c.selected {
			continue
		}
		for _, t := range c.mem.Tags {
			selectedTags[strings.ToLower(t)] = true
		}
	}
	queryTokens := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		queryTokens[tok] = true
	}

	for _, rule := range rules {
		if c, ok := pool[rule.ID]; ok && c.selected {
			continue
		}

		cos, hasCos := cosineByID[rule.ID]

		tagHit := false
		for _, t := range rule.Tags {
			lt := strings.ToLower(t)
			if selectedTags[lt] || queryTokens[lt] {
				tagHit = true
				break
			}
		}

		if !tagHit && !(hasCos && cos >= ruleCosineFloor) && rule.Importance < ruleImportanceFloor {
			continue
		}

		c, ok := pool[rule.ID]
		if !ok {
			c = &candidate{mem: rule}
			if hasCos {
				c.cosine, c.hasCosine = cos, true
			}
			pool[rule.ID] = c
		}
		c.selected = true
	}
	return nil
}

// assemble turns selected candidates into results: snippet digest buckets,
// provenance reasons, citation, final activation ordering.
func (r *Retriever) assemble(pool map[int64]*candidate) []Result {
	var selected []*candidate
	for _, c := range pool {
		if c.selected {
			selected = append(selected, c)
		}
	}
	sort.SliceStable(selected, func(a, b int) bool {
		return activation(selected[a]) > activation(selected[b])
	})

	bullets := buildBuckets(selected)

	results := make([]Result, 0, len(selected))
	for _, c := range selected {
		res := Result{
			ID:         c.mem.ID,
			Kind:       c.mem.Kind,
			Tags:       c.mem.Tags,
			Activation: activation(c),
		}

		if bullet, ok := bullets[bucketKey(&c.mem)]; ok {
			res.TextSnippet = bullet
		} else {
			res.TextSnippet = truncateText(c.mem.Text, fallbackTextLen)
		}

		if c.hasCosine {
			res.Reasons = append(res.Reasons, Reason{Label: "similarity", Score: c.cosine})
		}
		res.Reasons = append(res.Reasons, Reason{Label: "importance", Score: c.mem.Importance})
		if c.neighborWeight > 0 {
			res.Reasons = append(res.Reasons, Reason{Label: "neighbor_edge", Score: c.neighborWeight})
		}

		if cite, ok := c.mem.Meta["citation"].(string); ok {
			res.Citation = cite
		}

		results = append(results, res)
	}
	return results
}

// activation blends the candidate's signals into its ranking score. Cosine
// and neighbor weight default to 0 for candidates lacking those signals.
func activation(c *candidate) float64 {
	cos := 0.0
	if c.hasCosine {
		cos = c.cosine
	}
	return weightCosine*cos +
		weightImportance*c.mem.Importance +
		weightRecency*c.mem.RecencyBias +
		weightNeighbor*c.neighborWeight
}

// bucketKey groups a memory by its first sorted tag, falling back to kind.
func bucketKey(m *types.Memory) string {
	if len(m.Tags) > 0 {
		tags := append([]string(nil), m.Tags...)
		sort.Strings(tags)
		return "tag:" + strings.ToLower(tags[0])
	}
	return "kind:" + string(m.Kind)
}

// buildBuckets groups selected candidates into up to bucketLimit buckets and
// derives one human-readable bullet per bucket from its first member's
// leading line. Members of overflow buckets fall back to their own text.
func buildBuckets(selected []*candidate) map[string]string {
	bullets := make(map[string]string, bucketLimit)
	for _, c := range selected {
		key := bucketKey(&c.mem)
		if _, ok := bullets[key]; ok {
			continue
		}
		if len(bullets) >= bucketLimit {
			continue
		}
		line := c.mem.Text
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = line[:i]
		}
		bullets[key] = truncateText(line, bulletMaxLen)
	}
	return bullets
}

// truncateText cuts s to at most n bytes on a rune boundary.
func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut]) + "…"
}
