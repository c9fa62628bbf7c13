package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/storage/sqlite"
	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

// noon is comfortably outside the default 23:00-06:00 sleep window.
var noon = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, at time.Time) (*Engine, storage.Store, *llm.MockEmbedder) {
	t.Helper()

	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder := llm.NewMockEmbedder(64)
	cfg := config.Load()

	e, err := New(store, embedder, llm.ConcatSummarizer{}, cfg,
		WithClock(func() time.Time { return at }),
		WithRand(rand.New(rand.NewSource(7))),
	)
	require.NoError(t, err)
	return e, store, embedder
}

func seedMemory(t *testing.T, store storage.Store, embedder *llm.MockEmbedder, kind types.Kind, text string, tags []string, importance float64, at time.Time) int64 {
	t.Helper()

	vecs, err := embedder.Embed(context.Background(), []string{text})
	require.NoError(t, err)
	vecmath.Normalize(vecs[0])

	m := &types.Memory{
		Kind:        kind,
		Text:        text,
		Embedding:   vecs[0],
		CreatedAt:   at,
		UpdatedAt:   at,
		Importance:  importance,
		RecencyBias: 1.0,
		Tags:        tags,
	}
	require.NoError(t, store.InsertMemory(context.Background(), m))
	return m.ID
}

func TestCommitEpisodeFlushesBuffer(t *testing.T) {
	e, store, _ := newTestEngine(t, noon)
	ctx := context.Background()

	e.RecordShortTerm("user", "I need to finish my history assignment by Friday", []string{"School", "history"})
	e.RecordShortTerm("assistant", "Noted, the deadline is Friday", []string{"school"})
	require.Equal(t, 2, e.BufferLen())

	id, created, err := e.CommitEpisodeIfNeeded(ctx)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, 0, e.BufferLen())

	mem, err := store.Memory(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.KindEpisodic, mem.Kind)
	require.Contains(t, mem.Text, "user: I need to finish my history assignment by Friday")
	require.Contains(t, mem.Text, "assistant: Noted, the deadline is Friday")
	require.Equal(t, []string{"school", "history"}, mem.Tags)
	require.Greater(t, mem.Importance, 0.5, "task words plus school tag should score high")
	require.NotNil(t, mem.Sentiment)
	require.Equal(t, 1.0, mem.RecencyBias)
	require.False(t, mem.Archived())

	// Empty buffer commits nothing.
	_, created, err = e.CommitEpisodeIfNeeded(ctx)
	require.NoError(t, err)
	require.False(t, created)
}

func TestShortTermBufferDropsOldest(t *testing.T) {
	e, _, _ := newTestEngine(t, noon)

	for i := 0; i < shortTermCapacity+2; i++ {
		e.RecordShortTerm("user", "turn", nil)
	}
	require.Equal(t, shortTermCapacity, e.BufferLen())
}

func TestCommitLinksSimilarEpisodes(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()

	first := seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales and arpeggios this morning", []string{"music"}, 0.5, noon)

	e.RecordShortTerm("user", "practiced piano scales and arpeggios again today", []string{"music"})
	id, created, err := e.CommitEpisodeIfNeeded(ctx)
	require.NoError(t, err)
	require.True(t, created)

	edges, err := store.EdgesTouching(ctx, id)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, first, edges[0].Other(id))
	require.Greater(t, edges[0].Weight, 0.0)
}

func TestRetrieveRanksOnTopicFirst(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()
	e.SetDriftProbability(0)

	piano := seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales and chord voicings", []string{"music"}, 0.4, noon)
	seedMemory(t, store, embedder, types.KindEpisodic,
		"studied chemistry stoichiometry and balancing equations", []string{"school"}, 0.4, noon)
	seedMemory(t, store, embedder, types.KindEpisodic,
		"went grocery shopping for vegetables and rice", nil, 0.4, noon)

	results, err := e.RetrieveContext(ctx, "piano chord practice", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, piano, results[0].ID)

	var sim float64
	for _, r := range results[0].Reasons {
		if r.Label == "similarity" {
			sim = r.Score
		}
	}
	require.Greater(t, sim, 0.3, "top result should carry a strong similarity reason")
	require.Greater(t, results[0].Activation, results[len(results)-1].Activation-1e-9)

	// The similarity reason is the true query-memory dot product.
	vecs, err := embedder.Embed(ctx, []string{"piano chord practice", "practiced piano scales and chord voicings"})
	require.NoError(t, err)
	vecmath.Normalize(vecs[0])
	vecmath.Normalize(vecs[1])
	require.InDelta(t, vecmath.DotOne(vecs[0], vecs[1]), sim, 1e-5)
}

func TestRetrieveIncludesStrongNeighbors(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()
	e.SetDriftProbability(0)

	piano := seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales and chord voicings", []string{"music"}, 0.4, noon)
	zebra := seedMemory(t, store, embedder, types.KindEpisodic,
		"zebra migration crosses the river in dry season", nil, 0.1, noon)
	require.NoError(t, e.AddAssociativeEdge(ctx, piano, zebra, 0.9))

	results, err := e.RetrieveContext(ctx, "piano chord practice", 1)
	require.NoError(t, err)

	var neighborReason float64
	found := false
	for _, r := range results {
		if r.ID != zebra {
			continue
		}
		found = true
		for _, reason := range r.Reasons {
			if reason.Label == "neighbor_edge" {
				neighborReason = reason.Score
			}
		}
	}
	require.True(t, found, "strongly linked memory should ride in past the limit")
	require.InDelta(t, 0.9, neighborReason, 1e-9)
}

func TestRetrieveDriftInjection(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()

	seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales and chord voicings", []string{"music"}, 0.3, noon)
	seedMemory(t, store, embedder, types.KindEpisodic,
		"reviewed piano repertoire for the recital", []string{"music"}, 0.3, noon)
	gem := seedMemory(t, store, embedder, types.KindEpisodic,
		"grandfather taught me how to sharpen a chisel", nil, 0.95, noon)

	e.SetDriftProbability(1.0)
	results, err := e.RetrieveContext(ctx, "piano chord practice", 1)
	require.NoError(t, err)

	ids := make([]int64, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	require.Contains(t, ids, gem, "drift at probability 1 must surface the top-importance memory")

	e.SetDriftProbability(0)
	results, err = e.RetrieveContext(ctx, "piano chord practice", 1)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, gem, r.ID, "no drift at probability 0")
	}
}

func TestRetrieveSurfacesRelevantRules(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()
	e.SetDriftProbability(0)

	seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales and chord voicings", []string{"music"}, 0.4, noon)

	ruleID, created, err := e.UpsertProceduralRule(ctx, "always warm up before piano practice", []string{"music"})
	require.NoError(t, err)
	require.True(t, created)

	results, err := e.RetrieveContext(ctx, "piano chord practice", 1)
	require.NoError(t, err)

	found := false
	for _, r := range results {
		if r.ID == ruleID {
			found = true
			require.Equal(t, types.KindProcedural, r.Kind)
		}
	}
	require.True(t, found, "rule sharing the music tag should join the results")
}

func TestUpsertProceduralRuleDeduplicates(t *testing.T) {
	e, _, _ := newTestEngine(t, noon)
	ctx := context.Background()

	id1, created, err := e.UpsertProceduralRule(ctx, "Review flashcards every evening", []string{"study"})
	require.NoError(t, err)
	require.True(t, created)

	id2, created, err := e.UpsertProceduralRule(ctx, "Review flashcards every evening", []string{"study", "habit"})
	require.NoError(t, err)
	require.False(t, created, "identical text must refresh, not insert")
	require.Equal(t, id1, id2)

	rules, err := e.ListProceduralRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, []string{"study", "habit"}, rules[0].Tags)
	require.Equal(t, ruleImportance, rules[0].Importance)

	// Rules are keyed by exact text, so a case variant is a distinct rule.
	id3, created, err := e.UpsertProceduralRule(ctx, "review flashcards every evening", nil)
	require.NoError(t, err)
	require.True(t, created, "distinct text (different case) must insert a new rule")
	require.NotEqual(t, id1, id3)

	rules, err = e.ListProceduralRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	_, _, err = e.UpsertProceduralRule(ctx, "   ", nil)
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestNightlyConsolidateOutsideWindow(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		seedMemory(t, store, embedder, types.KindEpisodic,
			"practiced piano scales and arpeggios", []string{"music"}, 0.4, noon)
	}

	rep, err := e.NightlyConsolidate(ctx, 0)
	require.NoError(t, err)
	require.False(t, rep.Ran, "noon is outside the sleep window")

	semantics, err := store.Memories(ctx, storage.MemoryFilter{Kinds: []types.Kind{types.KindSemantic}})
	require.NoError(t, err)
	require.Empty(t, semantics)
}

func TestNightlyConsolidateCreatesSemanticDigests(t *testing.T) {
	night := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	e, store, embedder := newTestEngine(t, night)
	ctx := context.Background()

	// Two tight topics, four episodes each, so spherical k-means with k=2
	// splits them cleanly and both clusters clear the size floor.
	var lastID int64
	pianoTexts := []string{
		"practiced piano scales arpeggios and chord voicings slowly",
		"practiced piano scales arpeggios and chord voicings again",
		"practiced piano scales arpeggios and chord voicings today",
		"practiced piano scales arpeggios and chord voicings twice",
	}
	chemTexts := []string{
		"studied chemistry stoichiometry balancing equations carefully",
		"studied chemistry stoichiometry balancing equations tonight",
		"studied chemistry stoichiometry balancing equations slowly",
		"studied chemistry stoichiometry balancing equations again",
	}
	for _, text := range pianoTexts {
		lastID = seedMemory(t, store, embedder, types.KindEpisodic, text, []string{"Music"}, 0.5, night)
	}
	for _, text := range chemTexts {
		lastID = seedMemory(t, store, embedder, types.KindEpisodic, text, []string{"school"}, 0.5, night)
	}

	rep, err := e.NightlyConsolidate(ctx, 0)
	require.NoError(t, err)
	require.True(t, rep.Ran)
	require.True(t, rep.Completed)
	require.Equal(t, 8, rep.EpisodesSeen)
	require.Equal(t, 2, rep.SemanticsCreated)
	require.Zero(t, rep.ClustersFailed)

	semantics, err := store.Memories(ctx, storage.MemoryFilter{Kinds: []types.Kind{types.KindSemantic}})
	require.NoError(t, err)
	require.Len(t, semantics, 2)

	for _, digest := range semantics {
		require.Contains(t, digest.Text, "Consolidated 4 related memories")
		require.Equal(t, "sleep_consolidation", digest.Meta["origin"])
		require.False(t, digest.Archived())
		require.InDelta(t, 0.6, digest.Importance, 1e-9, "avg member importance plus 0.1")

		edges, err := store.EdgesTouching(ctx, digest.ID)
		require.NoError(t, err)
		// Member edges are written at 0.7 and then decayed once by the same
		// run's global decay step.
		memberEdges := 0
		for _, edge := range edges {
			if math.Abs(edge.Weight-memberEdgeWeight*edgeDecayFactor) < 1e-9 {
				memberEdges++
			}
		}
		require.Equal(t, 4, memberEdges, "digest links to every cluster member")
	}

	cp, err := e.Checkpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, lastID, cp.LastID)
	require.Equal(t, night.Unix(), cp.Timestamp.Unix())

	// Re-running with no new episodes creates nothing further.
	rep, err = e.NightlyConsolidate(ctx, 0)
	require.NoError(t, err)
	require.True(t, rep.Completed)
	require.Zero(t, rep.EpisodesSeen)

	semantics, err = store.Memories(ctx, storage.MemoryFilter{Kinds: []types.Kind{types.KindSemantic}})
	require.NoError(t, err)
	require.Len(t, semantics, 2)
}

func TestConsolidationAtScale(t *testing.T) {
	night := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)
	e, store, embedder := newTestEngine(t, night)
	ctx := context.Background()

	topics := []string{
		"astronomy telescope stars planets observation",
		"history quiz revolutions treaties timeline",
		"piano scales arpeggios chords repertoire",
		"chemistry stoichiometry equations reactions moles",
		"running intervals tempo pace marathon",
	}
	for _, topic := range topics {
		for i := 0; i < 100; i++ {
			seedMemory(t, store, embedder, types.KindEpisodic,
				fmt.Sprintf("%s session %d", topic, i), nil, 0.5, night)
		}
	}

	rep, err := e.NightlyConsolidate(ctx, 0)
	require.NoError(t, err)
	require.True(t, rep.Ran)
	require.True(t, rep.Completed)
	require.Equal(t, 500, rep.EpisodesSeen)
	require.GreaterOrEqual(t, rep.SemanticsCreated, 1)

	results, err := e.RetrieveContext(ctx, "astronomy telescope observation", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	foundSemantic := false
	for _, r := range results {
		if r.Kind == types.KindSemantic {
			foundSemantic = true
		}
	}
	require.True(t, foundSemantic, "a consolidated digest should be retrievable")

	rules, err := e.ListProceduralRules(ctx)
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestNoteAccessTouchesMemories(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()

	id := seedMemory(t, store, embedder, types.KindEpisodic,
		"practiced piano scales", nil, 0.4, noon)

	e.NoteAccess(ctx, []int64{id})

	mem, err := store.Memory(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, mem.LastAccessedAt)
	require.Equal(t, noon.Unix(), mem.LastAccessedAt.Unix())
}

func TestStatsSnapshot(t *testing.T) {
	e, store, embedder := newTestEngine(t, noon)
	ctx := context.Background()

	seedMemory(t, store, embedder, types.KindEpisodic, "one", nil, 0.4, noon)
	seedMemory(t, store, embedder, types.KindEpisodic, "two", nil, 0.4, noon)
	_, _, err := e.UpsertProceduralRule(ctx, "a standing rule", nil)
	require.NoError(t, err)
	e.RecordShortTerm("user", "buffered turn", nil)

	stats, err := e.StatsSnapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Episodic)
	require.Equal(t, 0, stats.Semantic)
	require.Equal(t, 1, stats.Procedural)
	require.Equal(t, 0, stats.Archived)
	require.Equal(t, 1, stats.Buffered)
}

func TestSphericalKMeansSeparatesTopics(t *testing.T) {
	embedder := llm.NewMockEmbedder(64)
	rng := rand.New(rand.NewSource(3))

	texts := []string{
		"piano scales arpeggios chords",
		"piano scales arpeggios voicings",
		"piano scales arpeggios repertoire",
		"chemistry stoichiometry equations moles",
		"chemistry stoichiometry equations reactions",
		"chemistry stoichiometry equations balancing",
	}
	vecs, err := embedder.Embed(context.Background(), texts)
	require.NoError(t, err)
	for _, v := range vecs {
		vecmath.Normalize(v)
	}

	clusters := sphericalKMeans(vecs, 2, rng)
	require.Len(t, clusters, 2)

	for _, members := range clusters {
		require.NotEmpty(t, members)
		topic := texts[members[0]][:5]
		for _, idx := range members {
			require.Equal(t, topic, texts[idx][:5], "clusters must not mix topics")
		}
	}
}

func TestSphericalKMeansSeparatesAntipodalVectors(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var vectors [][]float32
	for i := 0; i < 4; i++ {
		vectors = append(vectors, []float32{1, 0, 0, 0})
	}
	for i := 0; i < 4; i++ {
		vectors = append(vectors, []float32{-1, 0, 0, 0})
	}

	clusters := sphericalKMeans(vectors, 2, rng)
	require.Len(t, clusters, 2)

	for _, members := range clusters {
		require.Len(t, members, 4)
		sign := vectors[members[0]][0]
		for _, idx := range members {
			require.Equal(t, sign, vectors[idx][0], "opposed vectors must not share a cluster")
		}
	}
}

func TestTruncateTextKeepsRuneBoundaries(t *testing.T) {
	short := "plain ascii text"
	require.Equal(t, short, truncateText(short, bulletMaxLen))

	long := strings.Repeat("日本語のテキスト", 40)
	out := truncateText(long, bulletMaxLen)
	require.True(t, utf8.ValidString(out), "truncation must not split a rune")
	require.True(t, strings.HasSuffix(out, "…"))
	require.LessOrEqual(t, len(out), bulletMaxLen+len("…"))
}

func TestConcurrentReads(t *testing.T) {
	e, _, _ := newTestEngine(t, noon)
	ctx := context.Background()

	_, _, err := e.UpsertProceduralRule(ctx, "a standing rule", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, err := e.ListProceduralRules(ctx)
				assert.NoError(t, err)
			case 1:
				_, err := e.Checkpoint(ctx)
				assert.NoError(t, err)
			case 2:
				_, err := e.StatsSnapshot(ctx)
				assert.NoError(t, err)
			default:
				e.RecordShortTerm("user", "concurrent turn", nil)
			}
		}(i)
	}
	wg.Wait()
}

func TestClusterCount(t *testing.T) {
	require.Equal(t, 2, clusterCount(3))
	require.Equal(t, 2, clusterCount(50))
	require.Equal(t, 3, clusterCount(150))
	require.Equal(t, 32, clusterCount(10000))
	require.Equal(t, 1, clusterCount(1))
}
