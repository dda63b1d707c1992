// Package judge defines the external LLM judgement collaborator used by the
// semantic escalation stage.
package judge

import "context"

// Judgement labels a requirement/response pair.
const (
	LabelPass = "pass"
	LabelWarn = "warn"
	LabelFail = "fail"
)

// Judgement is the structured answer from the judgement service. Confidence
// is the model's self-reported certainty in [0, 1]; the caller decides what
// to do with low-confidence answers.
type Judgement struct {
	Label      string
	Confidence float64
	Rationale  string
	Raw        string
}

// Judge evaluates whether a bidder response satisfies a tender requirement.
// Implementations may fail or time out and must never be assumed to succeed.
type Judge interface {
	Evaluate(ctx context.Context, requirement, response, rubric string) (*Judgement, error)
}
