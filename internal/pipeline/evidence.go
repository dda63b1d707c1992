package pipeline

import (
	"context"
	"strings"

	"github.com/tenderops/bid-reviewer/internal/review"
	"github.com/tenderops/bid-reviewer/internal/segment"
)

// evidenceAggregator attaches one unified evidence list to every item,
// combining tender-side and bid-side excerpts. It reads only the run's
// prefetched segment cache: by the time this stage runs, the single batched
// lookup has already happened and per-item store calls cannot occur.
type evidenceAggregator struct {
	cfg settings
}

func newEvidenceAggregator(cfg settings) *evidenceAggregator {
	return &evidenceAggregator{cfg: cfg}
}

func (a *evidenceAggregator) Name() string { return "evidence_aggregator" }

func (a *evidenceAggregator) Apply(_ context.Context, run *Run) (StageStats, error) {
	stats := StageStats{Initial: len(run.Items)}

	for i, candidate := range run.Candidates {
		item := run.Items[i]
		item.Evidence = a.collect(run.Cache, candidate)
		stats.Resolved++
	}

	// Synthetic consistency items already carry derived evidence.
	stats.Resolved += len(run.Items) - len(run.Candidates)

	return stats, nil
}

// collect builds the evidence list for one candidate: requirement excerpts
// first (role=tender), then matched-response excerpts (role=bid). Every
// referenced id yields exactly one entry — resolved ids a full one, unknown
// ids a minimal fallback — up to the per-item cap.
func (a *evidenceAggregator) collect(cache *segment.Cache, candidate review.Candidate) []review.Evidence {
	var evidence []review.Evidence
	seen := make(map[string]struct{})

	appendIDs := func(role string, ids []string) {
		for _, id := range ids {
			if len(evidence) >= a.cfg.maxEvidencePerItem {
				return
			}
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			evidence = append(evidence, a.entry(cache, role, id))
		}
	}

	appendIDs(review.RoleTender, candidate.Requirement.EvidenceChunkIDs)
	if candidate.Response != nil {
		appendIDs(review.RoleBid, candidate.Response.EvidenceChunkIDs)
	}

	return evidence
}

func (a *evidenceAggregator) entry(cache *segment.Cache, role, id string) review.Evidence {
	seg, ok := cache.Get(id)
	if !ok {
		// Unresolvable references are kept, never silently dropped.
		return review.Evidence{
			Role:      role,
			SegmentID: id,
			Source:    review.SourceFallback,
		}
	}

	return review.Evidence{
		Role:        role,
		SegmentID:   id,
		AssetID:     seg.AssetID,
		PageStart:   seg.PageStart,
		PageEnd:     seg.PageEnd,
		HeadingPath: seg.HeadingPath,
		Quote:       truncateQuote(seg.Content, a.cfg.quoteMaxChars),
		Source:      review.SourcePrimary,
	}
}

// truncateQuote normalizes whitespace and bounds the excerpt length.
func truncateQuote(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
