package pipeline

import (
	"fmt"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// mapCandidates pairs every requirement with its best-matching response and
// seeds one unevaluated review item per requirement. Matching is a coarse
// dimension match today; finer matching is a known improvement, not a hidden
// requirement. This stage never fails — a requirement with no response in its
// dimension carries a nil response so the hard gate can still emit a
// deterministic verdict.
func mapCandidates(run *Run) {
	byDimension := make(map[string][]*review.Response, len(run.Responses))
	for _, resp := range run.Responses {
		byDimension[resp.Dimension] = append(byDimension[resp.Dimension], resp)
	}

	run.Candidates = make([]review.Candidate, 0, len(run.Requirements))
	run.Items = make([]*review.ReviewItem, 0, len(run.Requirements))

	for _, req := range run.Requirements {
		var matched *review.Response
		if pool := byDimension[req.Dimension]; len(pool) > 0 {
			matched = pool[0]
		}

		run.Candidates = append(run.Candidates, review.Candidate{
			Requirement: req,
			Response:    matched,
			Dimension:   req.Dimension,
		})

		item := &review.ReviewItem{
			ID:            fmt.Sprintf("%s/%s", run.ID, req.ID),
			ReviewRunID:   run.ID,
			Dimension:     req.Dimension,
			RequirementID: req.ID,
			Status:        review.StatusUnevaluated,
			IsHard:        req.IsHard,
		}
		if matched != nil {
			item.MatchedResponseID = matched.ID
		}
		run.Items = append(run.Items, item)
	}
}
