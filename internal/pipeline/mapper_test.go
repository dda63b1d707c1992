package pipeline

import (
	"testing"

	"github.com/tenderops/bid-reviewer/internal/review"
)

func TestMapCandidatesOneItemPerRequirement(t *testing.T) {
	run := &Run{
		ID: "run-1",
		Requirements: []*review.Requirement{
			{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence, IsHard: true},
			{ID: "req-2", Dimension: review.DimensionPrice, EvalMethod: review.EvalNumeric},
			{ID: "req-3", Dimension: review.DimensionQualification, EvalMethod: review.EvalSemantic},
		},
		Responses: []*review.Response{
			{ID: "resp-1", Dimension: review.DimensionTechnical},
			{ID: "resp-2", Dimension: review.DimensionPrice},
		},
	}

	mapCandidates(run)

	if len(run.Candidates) != 3 || len(run.Items) != 3 {
		t.Fatalf("expected 3 candidates and 3 items, got %d and %d", len(run.Candidates), len(run.Items))
	}

	for i, item := range run.Items {
		if item.Status != review.StatusUnevaluated {
			t.Errorf("item %d: expected UNEVALUATED, got %s", i, item.Status)
		}
		if item.ReviewRunID != "run-1" {
			t.Errorf("item %d: expected run id run-1, got %s", i, item.ReviewRunID)
		}
		if item.RequirementID != run.Requirements[i].ID {
			t.Errorf("item %d: expected requirement %s, got %s", i, run.Requirements[i].ID, item.RequirementID)
		}
	}

	if run.Items[0].MatchedResponseID != "resp-1" {
		t.Errorf("expected req-1 matched to resp-1, got %q", run.Items[0].MatchedResponseID)
	}
	if !run.Items[0].IsHard {
		t.Error("expected req-1 item to carry is_hard")
	}
	if run.Items[1].MatchedResponseID != "resp-2" {
		t.Errorf("expected req-2 matched to resp-2, got %q", run.Items[1].MatchedResponseID)
	}
	if run.Candidates[2].Response != nil {
		t.Error("expected req-3 to stay unmatched: no response in its dimension")
	}
	if run.Items[2].MatchedResponseID != "" {
		t.Errorf("expected empty matched response for req-3, got %q", run.Items[2].MatchedResponseID)
	}
}

func TestMapCandidatesSharedResponse(t *testing.T) {
	run := &Run{
		ID: "run-1",
		Requirements: []*review.Requirement{
			{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence},
			{ID: "req-2", Dimension: review.DimensionTechnical, EvalMethod: review.EvalSemantic},
		},
		Responses: []*review.Response{
			{ID: "resp-1", Dimension: review.DimensionTechnical},
		},
	}

	mapCandidates(run)

	// One response may back several requirements in its dimension.
	for i := range run.Items {
		if run.Items[i].MatchedResponseID != "resp-1" {
			t.Errorf("item %d: expected resp-1, got %q", i, run.Items[i].MatchedResponseID)
		}
	}
}
