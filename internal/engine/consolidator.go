package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/internal/llm"
	"github.com/scrypster/recall/internal/scoring"
	"github.com/scrypster/recall/internal/storage"
	"github.com/scrypster/recall/internal/vecmath"
	"github.com/scrypster/recall/pkg/types"
)

const (
	// checkpointKey is the engine_state key holding the consolidation
	// checkpoint.
	checkpointKey = "consolidation_checkpoint"

	// minClusterSize is the smallest episodic cluster worth summarizing.
	minClusterSize = 4

	// memberEdgeWeight links a new semantic digest to each cluster member.
	memberEdgeWeight = 0.7

	// Semantic digests of the same run get linked to each other when their
	// cosine similarity reaches semanticPairMinCos.
	semanticPairWeight = 0.3
	semanticPairMinCos = 0.55

	// Nightly edge decay parameters.
	edgeDecayFactor = 0.99
	edgeDecayFloor  = 0.05

	// Archival sweep: old low-importance episodics get their importance
	// scaled down and, once negligible, their embedding removed.
	archiveAgeDays       = 90
	archiveMaxImportance = 0.2
	archiveScale         = 0.9
	fullArchiveBelow     = 0.05
)

// Report summarizes what one consolidation run did.
type Report struct {
	// Ran is false when the run was skipped, either because the wall clock
	// was outside the sleep window or there was nothing new to process.
	Ran bool `json:"ran"`

	// Completed is true only when the run processed every cluster without a
	// failure and without exhausting its budget. Only completed runs
	// advance the checkpoint cursor.
	Completed bool `json:"completed"`

	EpisodesSeen     int `json:"episodes_seen"`
	ClustersFormed   int `json:"clusters_formed"`
	SemanticsCreated int `json:"semantics_created"`
	ClustersFailed   int `json:"clusters_failed"`
	ClustersSkipped  int `json:"clusters_skipped"`
	Archived         int `json:"archived"`
	ImportanceScaled int `json:"importance_scaled"`
}

// Consolidator runs the nightly sleep cycle: it clusters episodic memories
// accumulated since the last checkpoint, synthesizes one semantic digest per
// cluster, links digests into the association graph, decays edges, archives
// stale low-importance memories, and recomputes recency bias.
type Consolidator struct {
	store      storage.Store
	embedder   llm.Embedder
	summarizer llm.Summarizer
	recency    scoring.RecencyBiasCalculator
	window     config.SleepWindow
	clock      func() time.Time
	rng        *rand.Rand
}

// Run executes one consolidation cycle. A zero budget means unlimited; a
// positive budget is checked at cluster boundaries, so the run may stop
// early with Completed=false and resume from the same checkpoint next time.
func (c *Consolidator) Run(ctx context.Context, budget time.Duration) (Report, error) {
	now := c.clock()
	started := now

	var rep Report
	if !c.window.Contains(now) {
		log.Printf("engine: consolidation skipped, %s outside sleep window", now.Format("15:04"))
		return rep, nil
	}
	rep.Ran = true

	cp, err := c.loadCheckpoint(ctx)
	if err != nil {
		return rep, err
	}

	episodes, err := c.store.Memories(ctx, storage.MemoryFilter{
		Kinds:        []types.Kind{types.KindEpisodic},
		UpdatedAfter: cp.Timestamp,
		AfterID:      cp.LastID,
		EmbeddedOnly: true,
	})
	if err != nil {
		return rep, err
	}
	rep.EpisodesSeen = len(episodes)

	if len(episodes) == 0 {
		// Nothing new: advance only the timestamp so the next run does not
		// rescan the same empty span.
		rep.Completed = true
		cp.Timestamp = now
		return rep, c.saveCheckpoint(ctx, cp)
	}

	vectors := make([][]float32, len(episodes))
	for i := range episodes {
		vectors[i] = episodes[i].Embedding
	}
	clusters := sphericalKMeans(vectors, clusterCount(len(episodes)), c.rng)

	overBudget := func() bool {
		return budget > 0 && c.clock().Sub(started) >= budget
	}

	// Every fetched episodic gets its recency recomputed at the end of the
	// run, whether or not its cluster survived.
	touched := make(map[int64]bool, len(episodes))
	for i := range episodes {
		touched[episodes[i].ID] = true
	}

	var (
		digests   []types.Memory
		exhausted bool
	)
	for _, members := range clusters {
		if len(members) < minClusterSize {
			rep.ClustersSkipped++
			continue
		}
		if overBudget() {
			exhausted = true
			break
		}
		rep.ClustersFormed++

		cluster := make([]types.Memory, len(members))
		for i, idx := range members {
			cluster[i] = episodes[idx]
		}

		digest, err := c.synthesize(ctx, cluster, now)
		if err != nil {
			// One bad cluster does not abort the run, but the checkpoint
			// must not advance past it.
			log.Printf("engine: cluster consolidation failed: %v", err)
			rep.ClustersFailed++
			continue
		}
		rep.SemanticsCreated++
		digests = append(digests, *digest)
		touched[digest.ID] = true
	}

	// Cross-link digests of this run that landed close together.
	for i := 0; i < len(digests); i++ {
		for j := i + 1; j < len(digests); j++ {
			cos := vecmath.DotOne(digests[i].Embedding, digests[j].Embedding)
			if cos >= semanticPairMinCos {
				if err := c.store.UpsertEdge(ctx, digests[i].ID, digests[j].ID, semanticPairWeight, now); err != nil {
					return rep, err
				}
			}
		}
	}

	if err := c.store.DecayEdges(ctx, edgeDecayFactor, edgeDecayFloor, now); err != nil {
		return rep, err
	}

	scaled, archived, err := c.archiveSweep(ctx, now)
	if err != nil {
		return rep, err
	}
	rep.ImportanceScaled = scaled
	rep.Archived = archived

	if err := c.refreshRecency(ctx, touched, now); err != nil {
		return rep, err
	}

	if exhausted || rep.ClustersFailed > 0 {
		log.Printf("engine: consolidation incomplete (budget exhausted=%v, failed clusters=%d), checkpoint held",
			exhausted, rep.ClustersFailed)
		return rep, nil
	}

	rep.Completed = true
	cp.LastID = episodes[len(episodes)-1].ID
	cp.Timestamp = now
	if err := c.saveCheckpoint(ctx, cp); err != nil {
		return rep, err
	}

	log.Printf("engine: consolidation done, %d episodes -> %d semantic digests, %d archived",
		rep.EpisodesSeen, rep.SemanticsCreated, rep.Archived)
	return rep, nil
}

// synthesize turns one cluster into a semantic digest memory and links it to
// every member. The insert and the member edges commit atomically.
func (c *Consolidator) synthesize(ctx context.Context, cluster []types.Memory, now time.Time) (*types.Memory, error) {
	summary, err := c.summarizer.Summarize(ctx, cluster)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}

	vecs, err := c.embedder.Embed(ctx, []string{summary})
	if err != nil {
		return nil, fmt.Errorf("embed summary: %w", err)
	}
	embedding := vecs[0]
	vecmath.Normalize(embedding)

	var avg float64
	for _, m := range cluster {
		avg += m.Importance
	}
	avg /= float64(len(cluster))

	memberIDs := make([]int64, len(cluster))
	for i, m := range cluster {
		memberIDs[i] = m.ID
	}

	digest := &types.Memory{
		Kind:        types.KindSemantic,
		Text:        summary,
		Embedding:   embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
		Importance:  scoring.Clamp01(avg + 0.1),
		RecencyBias: 1.0,
		Tags:        unionTags(cluster),
		Meta: map[string]any{
			"origin":     "sleep_consolidation",
			"synthetic":  true,
			"member_ids": memberIDs,
			"members":    len(cluster),
		},
	}

	err = c.store.Transaction(ctx, func(tx storage.Store) error {
		if err := tx.InsertMemory(ctx, digest); err != nil {
			return err
		}
		for _, id := range memberIDs {
			if err := tx.UpsertEdge(ctx, digest.ID, id, memberEdgeWeight, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return digest, nil
}

// archiveSweep scales down the importance of episodics older than
// archiveAgeDays with importance below archiveMaxImportance, then removes
// the embedding of any that dropped below fullArchiveBelow.
func (c *Consolidator) archiveSweep(ctx context.Context, now time.Time) (scaled, archived int, err error) {
	cutoff := now.AddDate(0, 0, -archiveAgeDays)
	all, err := c.store.Memories(ctx, storage.MemoryFilter{
		Kinds:        []types.Kind{types.KindEpisodic},
		EmbeddedOnly: true,
	})
	if err != nil {
		return 0, 0, err
	}

	var stale []int64
	for _, m := range all {
		if m.CreatedAt.Before(cutoff) && m.Importance < archiveMaxImportance {
			stale = append(stale, m.ID)
		}
	}
	if len(stale) == 0 {
		return 0, 0, nil
	}

	if err := c.store.ScaleImportance(ctx, stale, archiveScale); err != nil {
		return 0, 0, err
	}
	scaled = len(stale)

	rescored, err := c.store.Memories(ctx, storage.MemoryFilter{IDs: stale})
	if err != nil {
		return scaled, 0, err
	}
	for _, m := range rescored {
		if m.Importance < fullArchiveBelow {
			if err := c.store.ArchiveMemory(ctx, m.ID, now); err != nil {
				return scaled, archived, err
			}
			archived++
		}
	}
	return scaled, archived, nil
}

// refreshRecency recomputes recency bias relative to now for every memory
// touched during this run.
func (c *Consolidator) refreshRecency(ctx context.Context, touched map[int64]bool, now time.Time) error {
	if len(touched) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	mems, err := c.store.Memories(ctx, storage.MemoryFilter{IDs: ids})
	if err != nil {
		return err
	}
	upIDs := make([]int64, len(mems))
	values := make([]float64, len(mems))
	for i, m := range mems {
		upIDs[i] = m.ID
		values[i] = c.recency.RecencyBias(m.CreatedAt, now)
	}
	return c.store.UpdateRecencyBias(ctx, upIDs, values)
}

func (c *Consolidator) loadCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	var cp types.Checkpoint
	raw, err := c.store.State(ctx, checkpointKey)
	if errors.Is(err, storage.ErrNotFound) {
		return cp, nil
	}
	if err != nil {
		return cp, err
	}
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return types.Checkpoint{}, fmt.Errorf("engine: corrupt checkpoint: %w", err)
	}
	return cp, nil
}

func (c *Consolidator) saveCheckpoint(ctx context.Context, cp types.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return c.store.SetState(ctx, checkpointKey, string(raw))
}

// unionTags merges the tags of all cluster members, lower-cased and deduped,
// in first-seen order.
func unionTags(cluster []types.Memory) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range cluster {
		for _, t := range m.Tags {
			lt := strings.ToLower(t)
			if !seen[lt] {
				seen[lt] = true
				out = append(out, lt)
			}
		}
	}
	return out
}
