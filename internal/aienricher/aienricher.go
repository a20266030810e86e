// Package aienricher runs the background similarity-and-SOP enrichment
// pass described in §4.3: for each enqueued gap it scores every other
// non-Closed gap pairwise, persists the edges that clear a threshold,
// ranks SOP suggestions, and advances the gap out of PendingAI.
//
// The AI vendor itself is an external collaborator (§1): scoring and
// ranking are injected as interfaces so a missing or erroring provider
// degrades the enrichment to a no-op rather than failing the gap.
// Grounded on the teacher's internal/tracker background-goroutine idiom
// (a long-lived loop draining work off a channel) generalized from one
// checker goroutine to a bounded pool of N worker goroutines.
package aienricher

import (
	"context"
	"sync"
	"time"

	"github.com/gapopshub/api/internal/db"
	"github.com/gapopshub/api/internal/logger"
	"github.com/gapopshub/api/internal/models"
	"github.com/rs/zerolog"
)

// SimilarityProvider scores how closely two gaps describe the same
// underlying process defect, 0-100. Implementations may call out to an
// external AI vendor; a nil provider disables scoring entirely.
type SimilarityProvider interface {
	Score(ctx context.Context, a, b *models.Gap) (int, error)
}

// SopRanker ranks a fixed SOP catalog against a gap's content, most
// relevant first. A nil ranker leaves sopSuggestions empty.
type SopRanker interface {
	RankSops(ctx context.Context, gap *models.Gap, sops []models.Sop) ([]models.SopSuggestion, error)
}

// SopCatalog supplies the active SOP set a job ranks against.
type SopCatalog interface {
	List(ctx context.Context) ([]models.Sop, error)
}

// job is one unit of enrichment work: the gap to enrich as of the
// updatedAt captured when the job was enqueued.
type job struct {
	gapID     int64
	updatedAt time.Time
}

// Pool is a bounded worker pool draining enrichment jobs from a
// buffered channel. Concurrency, threshold, and top-K are configuration
// (§6), not constants, so operators can tune them without a rebuild.
type Pool struct {
	gaps         *db.GapStore
	similarities *db.SimilarGapStore
	sops         SopCatalog
	similarity   SimilarityProvider
	ranker       SopRanker

	threshold   int
	topK        int
	concurrency int

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once
}

// Config bounds a Pool's behavior (§6: similarity threshold default 60,
// top-K SOPs default 5, AI concurrency limit).
type Config struct {
	Concurrency int
	Threshold   int
	TopK        int
	QueueSize   int
}

// New builds a Pool. similarity or ranker may be nil: jobs still run and
// clear aiProcessed/advance status, they simply produce no edges or
// suggestions (§4.3's graceful-degradation rule).
func New(gaps *db.GapStore, similarities *db.SimilarGapStore, sops SopCatalog, similarity SimilarityProvider, ranker SopRanker, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 60
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	p := &Pool{
		gaps: gaps, similarities: similarities, sops: sops,
		similarity: similarity, ranker: ranker,
		threshold: cfg.Threshold, topK: cfg.TopK, concurrency: cfg.Concurrency,
		jobs: make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Enqueue schedules gapID for enrichment. Non-blocking up to the queue
// buffer; a full queue drops the job with a logged warning rather than
// stalling the caller (createGap must never block on AI capacity).
func (p *Pool) Enqueue(gapID int64, updatedAt time.Time) {
	select {
	case p.jobs <- job{gapID: gapID, updatedAt: updatedAt}:
	default:
		logger.AIEnricher().Warn().Int64("gapId", gapID).Msg("enrichment queue full, dropping job")
	}
}

// Stop closes the job queue and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.jobs) })
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(j)
	}
}

func (p *Pool) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log := logger.AIEnricher().With().Int64("gapId", j.gapID).Logger()

	gap, err := p.gaps.Get(ctx, j.gapID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load gap for enrichment")
		return
	}

	others, err := p.gaps.ListNonClosed(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list candidate gaps for similarity scoring")
		return
	}

	if p.similarity != nil {
		p.scoreAgainst(ctx, log, gap, others)
	}

	suggestions := p.rankSops(ctx, log, gap)

	// A newer edit than the one this job was enqueued for means a
	// fresher job is already queued (or will be) behind this one;
	// discard this result rather than overwrite it with stale data.
	if gap.UpdatedAt.After(j.updatedAt) {
		log.Info().Msg("gap changed since enrichment was enqueued, discarding result")
		return
	}

	if err := p.gaps.SetAIResult(ctx, j.gapID, suggestions); err != nil {
		log.Error().Err(err).Msg("failed to persist AI enrichment result")
	}
}

// scoreAgainst compares gap against every candidate in others. The
// comparisons themselves (each a round trip to the similarity provider)
// fan out across a bounded pool of goroutines sized by the pool's
// configured concurrency, rather than running one at a time, since a
// gap enqueued alongside hundreds of open gaps would otherwise serialize
// hundreds of provider calls per job.
func (p *Pool) scoreAgainst(ctx context.Context, log zerolog.Logger, gap *models.Gap, others []*models.Gap) {
	if err := p.similarities.DeleteForGap(ctx, gap.ID); err != nil {
		log.Error().Err(err).Msg("failed to clear stale similarity edges")
		return
	}

	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for _, other := range others {
		if other.ID == gap.ID {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(other *models.Gap) {
			defer wg.Done()
			defer func() { <-sem }()
			p.scorePair(ctx, log, gap, other)
		}(other)
	}

	wg.Wait()
}

// scorePair scores one candidate against gap and persists the edge (both
// directions) if it clears the threshold. Safe to run concurrently with
// other calls scoring the same gap: each pair writes its own row pair.
func (p *Pool) scorePair(ctx context.Context, log zerolog.Logger, gap, other *models.Gap) {
	score, err := p.similarity.Score(ctx, gap, other)
	if err != nil {
		log.Warn().Err(err).Int64("otherGapId", other.ID).Msg("similarity scoring failed, skipping pair")
		return
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	if score < p.threshold {
		return
	}
	if err := p.similarities.Upsert(ctx, gap.ID, other.ID, score); err != nil {
		log.Error().Err(err).Int64("otherGapId", other.ID).Msg("failed to persist similarity edge")
		return
	}
	if err := p.similarities.Upsert(ctx, other.ID, gap.ID, score); err != nil {
		log.Error().Err(err).Int64("otherGapId", other.ID).Msg("failed to persist reverse similarity edge")
	}
}

func (p *Pool) rankSops(ctx context.Context, log zerolog.Logger, gap *models.Gap) []models.SopSuggestion {
	if p.ranker == nil || p.sops == nil {
		return nil
	}
	catalog, err := p.sops.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load sop catalog")
		return nil
	}
	ranked, err := p.ranker.RankSops(ctx, gap, catalog)
	if err != nil {
		log.Warn().Err(err).Msg("sop ranking failed")
		return nil
	}
	if len(ranked) > p.topK {
		ranked = ranked[:p.topK]
	}
	return ranked
}
