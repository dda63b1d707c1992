package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// hardGate resolves PRESENCE, VALIDITY, and EXACT_MATCH requirements with
// deterministic checks and turns mapping gaps into verdicts. Fully
// reproducible: no I/O, same inputs, same outcome.
type hardGate struct{}

func newHardGate() *hardGate { return &hardGate{} }

func (g *hardGate) Name() string { return "hard_gate" }

func (g *hardGate) Apply(_ context.Context, run *Run) (StageStats, error) {
	stats := StageStats{Initial: len(run.Candidates)}

	for i, candidate := range run.Candidates {
		item := run.Items[i]
		req := candidate.Requirement

		if candidate.Response == nil {
			// MappingGap: a hard requirement without evidence never passes.
			if req.IsHard || req.MustReject {
				resolve(item, review.StatusFail,
					fmt.Sprintf("mapping_gap: no response shares dimension %q; requirement is hard", req.Dimension))
			} else {
				resolve(item, review.StatusWarn,
					fmt.Sprintf("mapping_gap: no response shares dimension %q", req.Dimension))
			}
			stats.Resolved++
			continue
		}

		switch req.EvalMethod {
		case review.EvalPresence:
			g.checkPresence(item, req, candidate.Response)
		case review.EvalValidity:
			g.checkValidity(item, req, candidate.Response)
		case review.EvalExactMatch:
			g.checkExactMatch(item, req, candidate.Response)
		default:
			// NUMERIC, TABLE_COMPARE, and SEMANTIC are later stages' work.
			markPending(item, fmt.Sprintf("deferred: eval_method %s is outside the hard gate", req.EvalMethod))
		}

		if item.Resolved() {
			stats.Resolved++
		} else {
			stats.Pending++
		}
	}

	return stats, nil
}

// checkPresence requires every expected token to appear in the response text
// or its normalized string fields. Partial presence is ambiguous and escalates
// rather than guessing.
func (g *hardGate) checkPresence(item *review.ReviewItem, req *review.Requirement, resp *review.Response) {
	tokens := splitTokens(req.ExpectedEvidence)
	if len(tokens) == 0 {
		if strings.TrimSpace(resp.Text) != "" {
			resolve(item, review.StatusPass, "presence: response text is non-empty")
		} else {
			resolve(item, failureStatus(req), "presence: response text is empty")
		}
		return
	}

	haystack := strings.ToLower(resp.Text)
	found := 0
	var missing []string
	for _, token := range tokens {
		if strings.Contains(haystack, strings.ToLower(token)) {
			found++
		} else {
			missing = append(missing, token)
		}
	}

	switch {
	case found == len(tokens):
		resolve(item, review.StatusPass,
			fmt.Sprintf("presence: all %d expected tokens found", len(tokens)))
	case found == 0:
		resolve(item, failureStatus(req),
			fmt.Sprintf("presence: none of %d expected tokens found", len(tokens)))
	default:
		markPending(item,
			fmt.Sprintf("presence: %d/%d expected tokens found, missing %s", found, len(tokens), strings.Join(missing, ", ")))
	}
}

// checkValidity treats expected_evidence as a pattern the response must match.
func (g *hardGate) checkValidity(item *review.ReviewItem, req *review.Requirement, resp *review.Response) {
	pattern := strings.TrimSpace(req.ExpectedEvidence)
	if pattern == "" {
		markPending(item, "validity: no pattern in expected_evidence")
		return
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		markPending(item, fmt.Sprintf("validity: pattern %q does not compile", pattern))
		return
	}

	if re.MatchString(resp.Text) {
		resolve(item, review.StatusPass, fmt.Sprintf("validity: response matches pattern %q", pattern))
	} else {
		resolve(item, failureStatus(req), fmt.Sprintf("validity: response does not match pattern %q", pattern))
	}
}

// checkExactMatch requires the expected value verbatim, either in the
// normalized field keyed by the requirement's req_type or inside the response
// text. Extractors emit matching req_type/field names on both sides; see
// review.Requirement.ReqType.
func (g *hardGate) checkExactMatch(item *review.ReviewItem, req *review.Requirement, resp *review.Response) {
	expected := strings.TrimSpace(req.ExpectedEvidence)
	if expected == "" {
		markPending(item, "exact_match: no expected value in expected_evidence")
		return
	}

	if field, ok := resp.NormalizedFields.String(req.ReqType); ok && strings.EqualFold(field, expected) {
		resolve(item, review.StatusPass,
			fmt.Sprintf("exact_match: normalized field %q equals %q", req.ReqType, expected))
		return
	}

	if strings.Contains(strings.ToLower(resp.Text), strings.ToLower(expected)) {
		resolve(item, review.StatusPass,
			fmt.Sprintf("exact_match: response contains %q verbatim", expected))
		return
	}

	trace := fmt.Sprintf("exact_match: expected %q not found in response text", expected)
	if req.ReqType != "" {
		trace = fmt.Sprintf("exact_match: expected %q not found in normalized field %q or response text",
			expected, req.ReqType)
	}
	resolve(item, failureStatus(req), trace)
}

// failureStatus maps a failed deterministic check to FAIL for hard or
// must-reject requirements and WARN for soft ones.
func failureStatus(req *review.Requirement) review.Status {
	if req.IsHard || req.MustReject {
		return review.StatusFail
	}
	return review.StatusWarn
}

func resolve(item *review.ReviewItem, status review.Status, trace string) {
	item.Status = status
	item.RuleTrace = trace
	item.Severity = review.SeverityFor(status, item.IsHard)
}

func markPending(item *review.ReviewItem, trace string) {
	item.Status = review.StatusPending
	item.RuleTrace = trace
	item.Severity = review.SeverityFor(review.StatusPending, item.IsHard)
}

func splitTokens(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}
