package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tenderops/bid-reviewer/internal/judge"
	"github.com/tenderops/bid-reviewer/internal/review"
)

// semanticEscalator sends requirements routed SEMANTIC, and anything still
// pending after the deterministic stages, to the external judgement service.
// It is the only stage allowed to block on network I/O. Its one hard rule:
// a judgement below the confidence threshold never becomes a verdict.
type semanticEscalator struct {
	cfg    settings
	judge  judge.Judge
	logger *zap.Logger
}

func newSemanticEscalator(cfg settings, j judge.Judge, logger *zap.Logger) *semanticEscalator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &semanticEscalator{cfg: cfg, judge: j, logger: logger}
}

func (s *semanticEscalator) Name() string { return "semantic_escalator" }

func (s *semanticEscalator) Apply(ctx context.Context, run *Run) (StageStats, error) {
	var pending []int
	for i := range run.Candidates {
		if run.Items[i].Status == review.StatusPending {
			pending = append(pending, i)
		}
	}

	stats := StageStats{Initial: len(pending)}
	if len(pending) == 0 {
		return stats, nil
	}

	if s.judge == nil {
		for _, i := range pending {
			markPending(run.Items[i], "semantic: judgement service not configured")
		}
		stats.Pending = len(pending)
		return stats, nil
	}

	// Pending items share no mutable state: each worker owns its item index,
	// bounded by a semaphore.
	sem := make(chan struct{}, s.cfg.semanticWorkers)
	var wg sync.WaitGroup
	for _, i := range pending {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			s.escalate(ctx, run.Candidates[idx], run.Items[idx])
		}(i)
	}
	wg.Wait()

	for _, i := range pending {
		if run.Items[i].Resolved() {
			stats.Resolved++
		} else {
			stats.Pending++
		}
	}
	return stats, nil
}

func (s *semanticEscalator) escalate(ctx context.Context, candidate review.Candidate, item *review.ReviewItem) {
	req := candidate.Requirement
	if candidate.Response == nil {
		markPending(item, "semantic: no response to judge")
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.judgeTimeout)
	defer cancel()

	judgement, err := s.judge.Evaluate(callCtx, req.Text, candidate.Response.Text, req.Rubric)
	if err != nil {
		// ExternalServiceFailure: a failed or timed-out call never becomes
		// a fallback verdict.
		s.logger.Warn("judgement call failed",
			zap.String("requirement_id", req.ID),
			zap.Error(err),
		)
		markPending(item, fmt.Sprintf("external_service_failure: %v", err))
		return
	}

	if judgement.Confidence < s.cfg.confidenceThreshold {
		s.logger.Debug("judgement below confidence threshold",
			zap.String("requirement_id", req.ID),
			zap.String("label", judgement.Label),
			zap.Float64("confidence", judgement.Confidence),
			zap.Float64("threshold", s.cfg.confidenceThreshold),
		)
		markPending(item, fmt.Sprintf("low_confidence: label %q at %.2f below threshold %.2f",
			judgement.Label, judgement.Confidence, s.cfg.confidenceThreshold))
		return
	}

	var status review.Status
	switch judgement.Label {
	case judge.LabelPass:
		status = review.StatusPass
	case judge.LabelWarn:
		status = review.StatusWarn
	case judge.LabelFail:
		status = review.StatusFail
	default:
		markPending(item, fmt.Sprintf("semantic: unknown label %q", judgement.Label))
		return
	}

	resolve(item, status, fmt.Sprintf("semantic: %s (confidence %.2f): %s",
		judgement.Label, judgement.Confidence, judgement.Rationale))

	s.logger.Debug("judgement accepted",
		zap.String("requirement_id", req.ID),
		zap.String("label", judgement.Label),
		zap.Float64("confidence", judgement.Confidence),
	)
}
