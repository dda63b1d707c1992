package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tenderops/bid-reviewer/internal/judge"
	"github.com/tenderops/bid-reviewer/internal/review"
)

type stubJudge struct {
	judgement *judge.Judgement
	err       error
	calls     int32
}

func (s *stubJudge) Evaluate(_ context.Context, _, _, _ string) (*judge.Judgement, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.judgement, nil
}

// semanticRun builds one pending semantic candidate and escalates it.
func semanticRun(t *testing.T, cfg Config, j judge.Judge) *review.ReviewItem {
	t.Helper()

	run := &Run{
		ID: "run-semantic",
		Requirements: []*review.Requirement{
			{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalSemantic, Text: "Describe the maintenance plan."},
		},
		Responses: []*review.Response{
			{ID: "resp-1", Dimension: review.DimensionTechnical, Text: "Quarterly on-site maintenance."},
		},
	}
	mapCandidates(run)
	markPending(run.Items[0], "deferred for test")

	if _, err := newSemanticEscalator(cfg.resolve(), j, nil).Apply(context.Background(), run); err != nil {
		t.Fatalf("semantic escalator failed: %v", err)
	}
	return run.Items[0]
}

func TestSemanticAcceptsConfidentVerdict(t *testing.T) {
	tests := []struct {
		label string
		want  review.Status
	}{
		{judge.LabelPass, review.StatusPass},
		{judge.LabelWarn, review.StatusWarn},
		{judge.LabelFail, review.StatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			item := semanticRun(t, Config{}, &stubJudge{
				judgement: &judge.Judgement{Label: tt.label, Confidence: 0.9, Rationale: "clear"},
			})
			if item.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, item.Status)
			}
			if !strings.HasPrefix(item.RuleTrace, "semantic:") {
				t.Errorf("expected semantic trace, got %q", item.RuleTrace)
			}
		})
	}
}

func TestSemanticLowConfidenceStaysPending(t *testing.T) {
	// Confident-looking label, weak confidence: 0.50 is below the 0.65 default.
	item := semanticRun(t, Config{}, &stubJudge{
		judgement: &judge.Judgement{Label: judge.LabelPass, Confidence: 0.5},
	})

	if item.Status != review.StatusPending {
		t.Fatalf("expected PENDING below threshold, got %s", item.Status)
	}
	if !strings.HasPrefix(item.RuleTrace, "low_confidence:") {
		t.Errorf("expected low_confidence trace, got %q", item.RuleTrace)
	}
}

func TestSemanticCustomThreshold(t *testing.T) {
	item := semanticRun(t, Config{ConfidenceThreshold: floatPtr(0.4)}, &stubJudge{
		judgement: &judge.Judgement{Label: judge.LabelPass, Confidence: 0.5},
	})

	if item.Status != review.StatusPass {
		t.Fatalf("expected PASS above lowered threshold, got %s", item.Status)
	}
}

func TestSemanticExplicitZeroThresholdHonored(t *testing.T) {
	// A configured zero threshold accepts every confident-enough-for-zero
	// verdict instead of silently reverting to the default.
	item := semanticRun(t, Config{ConfidenceThreshold: floatPtr(0)}, &stubJudge{
		judgement: &judge.Judgement{Label: judge.LabelWarn, Confidence: 0.3},
	})

	if item.Status != review.StatusWarn {
		t.Fatalf("expected WARN with a zero threshold, got %s (trace %q)", item.Status, item.RuleTrace)
	}
}

func TestSemanticJudgeErrorStaysPending(t *testing.T) {
	item := semanticRun(t, Config{}, &stubJudge{err: errors.New("model unavailable")})

	if item.Status != review.StatusPending {
		t.Fatalf("expected PENDING on judge error, got %s", item.Status)
	}
	if !strings.HasPrefix(item.RuleTrace, "external_service_failure:") {
		t.Errorf("expected external_service_failure trace, got %q", item.RuleTrace)
	}
}

func TestSemanticUnknownLabelStaysPending(t *testing.T) {
	item := semanticRun(t, Config{}, &stubJudge{
		judgement: &judge.Judgement{Label: "maybe", Confidence: 0.99},
	})

	if item.Status != review.StatusPending {
		t.Fatalf("expected PENDING for unknown label, got %s", item.Status)
	}
}

func TestSemanticNilJudgeStaysPending(t *testing.T) {
	item := semanticRun(t, Config{}, nil)

	if item.Status != review.StatusPending {
		t.Fatalf("expected PENDING without a judge, got %s", item.Status)
	}
	if item.RuleTrace != "semantic: judgement service not configured" {
		t.Errorf("unexpected trace %q", item.RuleTrace)
	}
}

func TestSemanticOnlyPendingItemsEscalate(t *testing.T) {
	j := &stubJudge{judgement: &judge.Judgement{Label: judge.LabelPass, Confidence: 0.9}}

	run := &Run{
		ID: "run-semantic",
		Requirements: []*review.Requirement{
			{ID: "req-1", Dimension: review.DimensionTechnical, EvalMethod: review.EvalPresence},
			{ID: "req-2", Dimension: review.DimensionTechnical, EvalMethod: review.EvalSemantic},
		},
		Responses: []*review.Response{
			{ID: "resp-1", Dimension: review.DimensionTechnical, Text: "answer"},
		},
	}
	mapCandidates(run)
	resolve(run.Items[0], review.StatusPass, "settled by the gate")
	markPending(run.Items[1], "deferred for test")

	stats, err := newSemanticEscalator(Config{}.resolve(), j, nil).Apply(context.Background(), run)
	if err != nil {
		t.Fatalf("semantic escalator failed: %v", err)
	}

	if got := atomic.LoadInt32(&j.calls); got != 1 {
		t.Fatalf("expected 1 judge call, got %d", got)
	}
	if stats.Initial != 1 || stats.Resolved != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if run.Items[0].RuleTrace != "settled by the gate" {
		t.Error("resolved item was touched")
	}
}
