// Package pipeline implements the multi-stage bid-review decision pipeline:
// candidate mapping, deterministic gating, numeric comparison, confidence-gated
// semantic escalation, cross-field consistency checks, and uniform evidence
// aggregation, committed as one batch per review run.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenderops/bid-reviewer/internal/judge"
	"github.com/tenderops/bid-reviewer/internal/results"
	"github.com/tenderops/bid-reviewer/internal/review"
	"github.com/tenderops/bid-reviewer/internal/segment"
)

// Config holds the operationally tunable knobs. Unset values (nil pointers,
// non-positive counts) fall back to the documented defaults; an explicit zero
// threshold or tolerance is honored — a zero PriceTolerance flags any two
// distinct price mentions.
type Config struct {
	// ConfidenceThreshold is the minimum judge confidence for a semantic
	// verdict to stand. Anything below is downgraded to PENDING.
	ConfidenceThreshold *float64
	// PriceTolerance is the relative difference tolerated between price
	// mentions before the consistency checker flags them.
	PriceTolerance *float64
	// DurationTolerance is the relative difference tolerated between
	// delivery/duration mentions.
	DurationTolerance *float64
	// MaxEvidencePerItem caps the evidence list attached to one item.
	MaxEvidencePerItem int
	// QuoteMaxChars is the truncation limit for evidence quotes.
	QuoteMaxChars int
	// SemanticWorkers bounds the parallel judge calls.
	SemanticWorkers int
	// JudgeTimeout bounds one judge call; on expiry the item stays PENDING.
	JudgeTimeout time.Duration
}

const (
	defaultConfidenceThreshold = 0.65
	defaultPriceTolerance      = 0.02
	defaultDurationTolerance   = 0.05
	defaultMaxEvidencePerItem  = 5
	defaultQuoteMaxChars       = 240
	defaultSemanticWorkers     = 4
	defaultJudgeTimeout        = 30 * time.Second
)

// settings are the resolved knobs the stages read.
type settings struct {
	confidenceThreshold float64
	priceTolerance      float64
	durationTolerance   float64
	maxEvidencePerItem  int
	quoteMaxChars       int
	semanticWorkers     int
	judgeTimeout        time.Duration
}

func (c Config) resolve() settings {
	s := settings{
		confidenceThreshold: defaultConfidenceThreshold,
		priceTolerance:      defaultPriceTolerance,
		durationTolerance:   defaultDurationTolerance,
		maxEvidencePerItem:  c.MaxEvidencePerItem,
		quoteMaxChars:       c.QuoteMaxChars,
		semanticWorkers:     c.SemanticWorkers,
		judgeTimeout:        c.JudgeTimeout,
	}
	if c.ConfidenceThreshold != nil {
		s.confidenceThreshold = *c.ConfidenceThreshold
	}
	if c.PriceTolerance != nil {
		s.priceTolerance = *c.PriceTolerance
	}
	if c.DurationTolerance != nil {
		s.durationTolerance = *c.DurationTolerance
	}
	if s.maxEvidencePerItem <= 0 {
		s.maxEvidencePerItem = defaultMaxEvidencePerItem
	}
	if s.quoteMaxChars <= 0 {
		s.quoteMaxChars = defaultQuoteMaxChars
	}
	if s.semanticWorkers <= 0 {
		s.semanticWorkers = defaultSemanticWorkers
	}
	if s.judgeTimeout <= 0 {
		s.judgeTimeout = defaultJudgeTimeout
	}
	return s
}

// Deps aggregates the external collaborators shared across all stages.
type Deps struct {
	Logger   *zap.Logger
	Segments segment.Store
	Judge    judge.Judge
	Sink     results.Sink
}

// Run is the state for one review run. Stages mutate only the item slice;
// requirements, responses, and the segment cache are read-only once set.
type Run struct {
	ID           string
	Requirements []*review.Requirement
	Responses    []*review.Response
	Candidates   []review.Candidate
	// Items holds one entry per candidate (same index), plus synthetic
	// consistency items appended at the end.
	Items []*review.ReviewItem
	Cache *segment.Cache
}

// StageStats describes the result of executing one stage.
type StageStats struct {
	Initial  int
	Resolved int
	Pending  int
}

// Stage is a single step of the review pipeline.
type Stage interface {
	Name() string
	Apply(ctx context.Context, run *Run) (StageStats, error)
}

// Result is the committed outcome of one run.
type Result struct {
	RunID string
	Items []review.ReviewItem
	// Counts maps each status to the number of items holding it.
	Counts map[review.Status]int
}

// Pipeline sequences the review stages and commits one batch per run.
type Pipeline struct {
	cfg    settings
	deps   Deps
	stages []Stage
}

// New builds a fully wired pipeline. Judge may be nil; semantic items then
// stay PENDING with an explicit trace.
func New(cfg Config, deps Deps) *Pipeline {
	set := cfg.resolve()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Pipeline{
		cfg:  set,
		deps: deps,
		stages: []Stage{
			newHardGate(),
			newQuantChecker(),
			newSemanticEscalator(set, deps.Judge, deps.Logger),
			newConsistencyChecker(set),
			newEvidenceAggregator(set),
		},
	}
}

// Execute reviews one bidder's responses against the requirements and
// persists the verdicts under a fresh review_run_id. A cancelled context
// between stages aborts the run with nothing persisted.
func (p *Pipeline) Execute(ctx context.Context, requirements []*review.Requirement, responses []*review.Response) (*Result, error) {
	if len(requirements) == 0 {
		return nil, fmt.Errorf("nothing to evaluate: no requirements")
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("nothing to evaluate: no responses")
	}

	run := &Run{
		ID:           uuid.NewString(),
		Requirements: requirements,
		Responses:    responses,
	}

	logger := p.deps.Logger.With(zap.String("review_run_id", run.ID))
	logger.Info("starting review run",
		zap.Int("requirements", len(requirements)),
		zap.Int("responses", len(responses)),
	)

	mapCandidates(run)

	cache, err := prefetchSegments(ctx, p.deps.Segments, run)
	if err != nil {
		return nil, fmt.Errorf("prefetching segments: %w", err)
	}
	run.Cache = cache
	logger.Debug("segment prefetch complete", zap.Int("resolved", cache.Len()))

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run aborted before %s: %w", stage.Name(), err)
		}

		stats, err := stage.Apply(ctx, run)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage.Name(), err)
		}

		logger.Info("review stage",
			zap.String("name", stage.Name()),
			zap.Int("initial", stats.Initial),
			zap.Int("resolved", stats.Resolved),
			zap.Int("pending", stats.Pending),
		)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run aborted before persist: %w", err)
	}

	items := make([]review.ReviewItem, len(run.Items))
	counts := make(map[review.Status]int)
	for i, item := range run.Items {
		items[i] = *item
		counts[item.Status]++
	}

	if err := p.deps.Sink.SaveBatch(ctx, items); err != nil {
		return nil, fmt.Errorf("persisting review run %s: %w", run.ID, err)
	}

	logger.Info("review run committed",
		zap.Int("items", len(items)),
		zap.Int("pass", counts[review.StatusPass]),
		zap.Int("warn", counts[review.StatusWarn]),
		zap.Int("fail", counts[review.StatusFail]),
		zap.Int("pending", counts[review.StatusPending]),
	)

	return &Result{RunID: run.ID, Items: items, Counts: counts}, nil
}

// prefetchSegments collects the union of every referenced segment id across
// all requirements and responses and resolves it with a single batched call.
// Per-item lookups are deliberately impossible afterwards: stages only see
// the immutable cache.
func prefetchSegments(ctx context.Context, store segment.Store, run *Run) (*segment.Cache, error) {
	if store == nil {
		// No segment store wired: every reference resolves to a fallback entry.
		return segment.Prefetch(ctx, nil)
	}

	idSets := make([][]string, 0, len(run.Requirements)+len(run.Responses))
	for _, req := range run.Requirements {
		idSets = append(idSets, req.EvidenceChunkIDs)
	}
	for _, resp := range run.Responses {
		idSets = append(idSets, resp.EvidenceChunkIDs)
	}
	return segment.Prefetch(ctx, store, idSets...)
}
