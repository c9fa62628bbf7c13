// Package engine orchestrates the memory substrate: the short-term buffer,
// episodic commits, procedural rules, hybrid retrieval, the association
// graph, and nightly sleep consolidation. All mutating paths serialize
// through a single writer lock.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/graph"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/scoring"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

const (
	// ruleImportance is the fixed importance of a procedural rule.
	ruleImportance = 0.8

	// maxAssociations caps the number of edges created when a new memory is
	// linked into the graph.
	maxAssociations = 12

	// tagBonus is added to an association edge weight when the endpoints
	// share a tag.
	tagBonus = 0.1
)

// Engine is the top-level coordinator. It owns the in-memory short-term
// buffer and guards every mutating operation with a single writer lock, so
// one Engine instance is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	store      storage.Store
	graph      *graph.Graph
	embedder   llm.Embedder
	summarizer llm.Summarizer

	importance scoring.ImportanceScorer
	sentiment  scoring.SentimentScorer
	recency    scoring.RecencyBiasCalculator

	buffer shortTermBuffer
	clock  func() time.Time
	rng    *rand.Rand

	halfLifeDays        float64
	driftProbability    float64
	neighborThreshold   float64
	similarityThreshold float64
	retrievalLimit      int
	window              config.SleepWindow
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithClock injects the time source. Used by tests to pin wall-clock time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithRand injects the randomness source for drift and cluster seeding.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// New builds an Engine over the given store and model capabilities,
// configured from cfg.Memory.
func New(store storage.Store, embedder llm.Embedder, summarizer llm.Summarizer, cfg *config.Config, opts ...Option) (*Engine, error) {
	window, err := config.ParseSleepWindow(cfg.Memory.SleepWindow)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:               store,
		embedder:            embedder,
		summarizer:          summarizer,
		recency:             scoring.NewRecencyBiasCalculator(cfg.Memory.RecencyHalfLifeDays),
		clock:               time.Now,
		halfLifeDays:        cfg.Memory.RecencyHalfLifeDays,
		driftProbability:    clamp01(cfg.Memory.DriftProbability),
		neighborThreshold:   cfg.Memory.NeighborThreshold,
		similarityThreshold: cfg.Memory.SimilarityThreshold,
		retrievalLimit:      cfg.Memory.RetrievalLimit,
		window:              window,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(e.clock().UnixNano()))
	}
	e.graph = graph.New(store, e.clock)
	return e, nil
}

// RecordShortTerm appends one conversational turn to the short-term buffer.
// It never touches storage; nothing persists until a commit.
func (e *Engine) RecordShortTerm(role, text string, tags []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer.append(shortTermEntry{Role: role, Text: text, Tags: tags, At: e.clock()})
}

// BufferLen reports the number of turns currently buffered.
func (e *Engine) BufferLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer.len()
}

// CommitEpisodeIfNeeded flushes the short-term buffer into one episodic
// memory: scores it, embeds it, persists it, and links it into the
// association graph. Returns the new id and true when an episode was
// created, or false when the buffer was empty. The buffer is cleared only
// after a successful commit, so a failure leaves it intact for retry.
func (e *Engine) CommitEpisodeIfNeeded(ctx context.Context) (int64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries := e.buffer.snapshot()
	if len(entries) == 0 {
		return 0, false, nil
	}

	var lines []string
	tagSet := map[string]bool{}
	var tags []string
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Role, entry.Text))
		for _, t := range entry.Tags {
			lt := strings.ToLower(t)
			if !tagSet[lt] {
				tagSet[lt] = true
				tags = append(tags, lt)
			}
		}
	}
	text := strings.Join(lines, "\n")

	vecs, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return 0, false, fmt.Errorf("engine: failed to embed episode: %w", err)
	}
	embedding := vecs[0]
	vecmath.Normalize(embedding)

	now := e.clock()
	sent := e.sentiment.Sentiment(text)
	mem := &types.Memory{
		Kind:        types.KindEpisodic,
		Text:        text,
		Embedding:   embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
		Importance:  e.importance.Score(text, tags),
		Sentiment:   &sent,
		RecencyBias: 1.0,
		Tags:        tags,
	}
	if err := e.store.InsertMemory(ctx, mem); err != nil {
		return 0, false, err
	}

	if err := e.linkAssociations(ctx, mem.ID, embedding, tags, now); err != nil {
		// The episode itself is durable; a linking failure only costs edges.
		log.Printf("engine: association linking failed for memory %d: %v", mem.ID, err)
	}

	e.buffer.clear()
	log.Printf("engine: committed episode %d (%d turns, importance %.2f)", mem.ID, len(entries), mem.Importance)
	return mem.ID, true, nil
}

// UpsertProceduralRule stores a standing rule. Rules are keyed by exact text
// equality: an identical text refreshes the existing row in place, any other
// text inserts a new rule. Returns the rule id and whether a new row was
// created.
func (e *Engine) UpsertProceduralRule(ctx context.Context, text string, tags []string) (int64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return 0, false, fmt.Errorf("engine: %w: empty rule text", storage.ErrInvalidInput)
	}

	vecs, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return 0, false, fmt.Errorf("engine: failed to embed rule: %w", err)
	}
	embedding := vecs[0]
	vecmath.Normalize(embedding)

	now := e.clock()

	existing, err := e.store.Memories(ctx, storage.MemoryFilter{
		Kinds: []types.Kind{types.KindProcedural},
	})
	if err != nil {
		return 0, false, err
	}
	for _, rule := range existing {
		if rule.Text == text {
			imp := ruleImportance
			rec := 1.0
			upd := storage.MemoryRefresh{
				Importance:  &imp,
				RecencyBias: &rec,
				Tags:        tags,
				Embedding:   embedding,
			}
			if err := e.store.RefreshMemory(ctx, rule.ID, upd, now); err != nil {
				return 0, false, err
			}
			return rule.ID, false, nil
		}
	}

	mem := &types.Memory{
		Kind:        types.KindProcedural,
		Text:        text,
		Embedding:   embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
		Importance:  ruleImportance,
		RecencyBias: 1.0,
		Tags:        tags,
	}
	if err := e.store.InsertMemory(ctx, mem); err != nil {
		return 0, false, err
	}
	return mem.ID, true, nil
}

// ListProceduralRules returns every stored procedural rule, oldest first.
func (e *Engine) ListProceduralRules(ctx context.Context) ([]types.Memory, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Memories(ctx, storage.MemoryFilter{
		Kinds: []types.Kind{types.KindProcedural},
	})
}

// RetrieveContext runs hybrid retrieval for the query. A non-positive limit
// uses the configured default.
func (e *Engine) RetrieveContext(ctx context.Context, query string, limit int) ([]Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 {
		limit = e.retrievalLimit
	}
	r := &Retriever{
		store:    e.store,
		graph:    e.graph,
		embedder: e.embedder,
		clock:    e.clock,
		rng:      e.rng,
	}
	return r.retrieve(ctx, query, retrieveParams{
		limit:             limit,
		neighborThreshold: e.neighborThreshold,
		driftProbability:  e.driftProbability,
	})
}

// NoteAccess records that the given memories were surfaced to the caller,
// bumping last_accessed_at. Access tracking is advisory; failures are logged
// and swallowed.
func (e *Engine) NoteAccess(ctx context.Context, ids []int64) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.TouchLastAccessed(ctx, ids, e.clock()); err != nil {
		log.Printf("engine: failed to record access for %v: %v", ids, err)
	}
}

// AddAssociativeEdge creates or strengthens an explicit edge between two
// memories. Both endpoints must exist.
func (e *Engine) AddAssociativeEdge(ctx context.Context, a, b int64, weight float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range []int64{a, b} {
		if _, err := e.store.Memory(ctx, id); err != nil {
			return err
		}
	}
	return e.graph.UpsertEdge(ctx, a, b, clamp01(weight))
}

// RebuildGraphIncremental re-derives similarity edges for every embedded
// episodic and semantic memory. Existing edges are upserted, never removed,
// so manual edges survive a rebuild.
func (e *Engine) RebuildGraphIncremental(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	mems, err := e.store.Memories(ctx, storage.MemoryFilter{
		Kinds:        []types.Kind{types.KindEpisodic, types.KindSemantic},
		EmbeddedOnly: true,
	})
	if err != nil {
		return err
	}
	now := e.clock()
	for i := range mems {
		if err := e.linkAssociations(ctx, mems[i].ID, mems[i].Embedding, mems[i].Tags, now); err != nil {
			return err
		}
	}
	log.Printf("engine: graph rebuild touched %d memories", len(mems))
	return nil
}

// NightlyConsolidate runs one sleep consolidation cycle. A zero budget means
// unlimited.
func (e *Engine) NightlyConsolidate(ctx context.Context, budget time.Duration) (Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Consolidator{
		store:      e.store,
		embedder:   e.embedder,
		summarizer: e.summarizer,
		recency:    e.recency,
		window:     e.window,
		clock:      e.clock,
		rng:        e.rng,
	}
	return c.Run(ctx, budget)
}

// SetDriftProbability adjusts the drift knob at runtime, clamped to [0,1].
func (e *Engine) SetDriftProbability(p float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.driftProbability = clamp01(p)
}

// SetRecencyHalfLife adjusts the recency half-life at runtime. Values below
// one day are floored to one.
func (e *Engine) SetRecencyHalfLife(days float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if days < 1 {
		days = 1
	}
	e.halfLifeDays = days
	e.recency = scoring.NewRecencyBiasCalculator(days)
}

// Stats summarizes the stored substrate.
type Stats struct {
	Episodic   int `json:"episodic"`
	Semantic   int `json:"semantic"`
	Procedural int `json:"procedural"`
	Archived   int `json:"archived"`
	Edges      int `json:"edges"`
	Buffered   int `json:"buffered"`
}

// StatsSnapshot counts memories per kind, archived rows, and edges.
func (e *Engine) StatsSnapshot(ctx context.Context) (Stats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var s Stats
	mems, err := e.store.Memories(ctx, storage.MemoryFilter{})
	if err != nil {
		return s, err
	}
	for i := range mems {
		switch mems[i].Kind {
		case types.KindEpisodic:
			s.Episodic++
		case types.KindSemantic:
			s.Semantic++
		case types.KindProcedural:
			s.Procedural++
		}
		if mems[i].Archived() {
			s.Archived++
		}
	}
	edges, err := e.store.AllEdges(ctx)
	if err != nil {
		return s, err
	}
	s.Edges = len(edges)
	s.Buffered = e.buffer.len()
	return s, nil
}

// Checkpoint returns the persisted consolidation checkpoint, or the zero
// checkpoint when consolidation has never completed.
func (e *Engine) Checkpoint(ctx context.Context) (types.Checkpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := &Consolidator{store: e.store}
	cp, err := c.loadCheckpoint(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return types.Checkpoint{}, err
	}
	return cp, nil
}

// linkAssociations scores the new memory against every other embedded
// episodic and semantic memory and creates edges for the strongest matches
// above the similarity threshold. Shared tags add a small bonus.
func (e *Engine) linkAssociations(ctx context.Context, newID int64, embedding []float32, tags []string, now time.Time) error {
	others, err := e.store.Memories(ctx, storage.MemoryFilter{
		Kinds:        []types.Kind{types.KindEpisodic, types.KindSemantic},
		EmbeddedOnly: true,
	})
	if err != nil {
		return err
	}

	type match struct {
		id     int64
		weight float64
	}
	tagSet := map[string]bool{}
	for _, t := range tags {
		tagSet[strings.ToLower(t)] = true
	}

	var matches []match
	for i := range others {
		if others[i].ID == newID {
			continue
		}
		cos := vecmath.DotOne(embedding, others[i].Embedding)
		if cos < e.similarityThreshold {
			continue
		}
		w := scoring.Clamp01(0.5 * cos)
		for _, t := range others[i].Tags {
			if tagSet[strings.ToLower(t)] {
				w = scoring.Clamp01(w + tagBonus)
				break
			}
		}
		matches = append(matches, match{id: others[i].ID, weight: w})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].weight > matches[b].weight
	})
	if len(matches) > maxAssociations {
		matches = matches[:maxAssociations]
	}

	for _, m := range matches {
		if err := e.store.UpsertEdge(ctx, newID, m.id, m.weight, now); err != nil {
			return err
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	return scoring.Clamp01(v)
}
