package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// quantChecker resolves NUMERIC and TABLE_COMPARE requirements left pending by
// the hard gate. Every attempt, successful or not, lands in computed_trace so
// auditors can replay the comparison.
type quantChecker struct{}

func newQuantChecker() *quantChecker { return &quantChecker{} }

func (q *quantChecker) Name() string { return "quant_checker" }

var (
	// clauseRe parses one comparison clause: "field op value" or "field lo..hi",
	// with an optional trailing unit word.
	clauseRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(>=|<=|==|=|)\s*(-?\d+(?:[.,]\d+)?)\s*(?:\.\.\s*(-?\d+(?:[.,]\d+)?))?\s*[A-Za-z%]*\s*$`)
	numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)
)

func (q *quantChecker) Apply(_ context.Context, run *Run) (StageStats, error) {
	var stats StageStats

	for i, candidate := range run.Candidates {
		item := run.Items[i]
		req := candidate.Requirement

		if item.Status != review.StatusPending {
			continue
		}
		if req.EvalMethod != review.EvalNumeric && req.EvalMethod != review.EvalTableCompare {
			continue
		}
		stats.Initial++

		q.check(item, req, candidate.Response)
		if item.Resolved() {
			stats.Resolved++
		} else {
			stats.Pending++
		}
	}

	return stats, nil
}

// check evaluates the requirement's clause set. NUMERIC carries one clause;
// TABLE_COMPARE may carry several separated by ";" and all must hold. The
// first violated or unextractable clause decides the item.
func (q *quantChecker) check(item *review.ReviewItem, req *review.Requirement, resp *review.Response) {
	clauses, err := parseClauses(req.ExpectedEvidence)
	if err != nil {
		item.ComputedTrace = &review.ComputedTrace{
			Note: fmt.Sprintf("extraction_failure: requirement side: %v", err),
		}
		markPending(item, "quant: requirement threshold could not be extracted")
		return
	}

	for _, c := range clauses {
		actual, source, ok := extractActual(resp, c.field)
		if !ok {
			item.ComputedTrace = &review.ComputedTrace{
				Field:         c.field,
				ExpectedValue: c.value,
				ExpectedHigh:  c.high,
				Operator:      c.op,
				Note:          fmt.Sprintf("extraction_failure: no value for %q in normalized fields or response text", c.field),
			}
			markPending(item, fmt.Sprintf("quant: response value for %q could not be extracted", c.field))
			return
		}

		satisfied := c.compare(actual)
		item.ComputedTrace = &review.ComputedTrace{
			Field:         c.field,
			ExpectedValue: c.value,
			ExpectedHigh:  c.high,
			ActualValue:   actual,
			Operator:      c.op,
			Satisfied:     satisfied,
			Note:          fmt.Sprintf("actual value from %s", source),
		}

		if !satisfied {
			status := review.StatusFail
			if !req.IsHard && !req.MustReject && req.AllowDeviation {
				status = review.StatusWarn
			}
			resolve(item, status,
				fmt.Sprintf("quant: %s %s %s violated (actual %s)",
					c.field, c.op, c.expectedString(), formatNumber(actual)))
			return
		}
	}

	last := clauses[len(clauses)-1]
	trace := fmt.Sprintf("quant: %s %s %s holds", last.field, last.op, last.expectedString())
	if len(clauses) > 1 {
		trace = fmt.Sprintf("quant: all %d clauses hold", len(clauses))
	}
	resolve(item, review.StatusPass, trace)
}

type clause struct {
	field string
	op    string // ">=", "<=", "==", "range"
	value float64
	high  float64
}

// parseClauses extracts threshold/operator/range clauses from
// expected_evidence, e.g. "warranty_months >= 36", "total_price <= 1200000",
// "duration_days 30..60", or several separated by ";".
func parseClauses(s string) ([]clause, error) {
	var clauses []clause
	for _, part := range strings.Split(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, c)
	}
	if len(clauses) == 0 {
		return nil, fmt.Errorf("expected_evidence is empty")
	}
	return clauses, nil
}

func parseClause(s string) (clause, error) {
	s = strings.TrimSpace(s)

	m := clauseRe.FindStringSubmatch(s)
	if m == nil {
		return clause{}, fmt.Errorf("expected_evidence %q does not parse as a comparison", s)
	}

	value, err := parseNumber(m[3])
	if err != nil {
		return clause{}, fmt.Errorf("threshold %q: %w", m[3], err)
	}

	c := clause{field: m[1], op: m[2], value: value}
	switch {
	case m[4] != "":
		high, err := parseNumber(m[4])
		if err != nil {
			return clause{}, fmt.Errorf("range bound %q: %w", m[4], err)
		}
		if high < value {
			return clause{}, fmt.Errorf("range %s..%s is inverted", m[3], m[4])
		}
		c.op = "range"
		c.high = high
	case c.op == "" || c.op == "=":
		c.op = "=="
	}

	return c, nil
}

func (c clause) compare(actual float64) bool {
	switch c.op {
	case ">=":
		return actual >= c.value
	case "<=":
		return actual <= c.value
	case "==":
		return actual == c.value
	case "range":
		return actual >= c.value && actual <= c.high
	default:
		return false
	}
}

func (c clause) expectedString() string {
	if c.op == "range" {
		return formatNumber(c.value) + ".." + formatNumber(c.high)
	}
	return formatNumber(c.value)
}

// extractActual reads the comparable value from the normalized fields. The
// response-text fallback is accepted only when it is unambiguous: a single
// number in the whole text, or a number adjacent to a keyword derived from the
// field name. Anything else stays an extraction failure, never a guess.
func extractActual(resp *review.Response, field string) (float64, string, bool) {
	if resp == nil {
		return 0, "", false
	}
	if v, ok := resp.NormalizedFields.Float(field); ok {
		return v, "normalized_fields." + field, true
	}

	numbers := numberRe.FindAllString(resp.Text, -1)
	switch {
	case len(numbers) == 1:
		if v, err := parseNumber(numbers[0]); err == nil {
			return v, "response_text", true
		}
	case len(numbers) > 1:
		raw, keyword := anchoredNumber(resp.Text, field)
		if raw == "" {
			break
		}
		if v, err := parseNumber(raw); err == nil {
			return v, fmt.Sprintf("response_text near %q", keyword), true
		}
	}
	return 0, "", false
}

// anchoredNumber finds a number next to a field keyword, in either order
// ("48 month warranty", "warranty: 48 months").
func anchoredNumber(text, field string) (string, string) {
	for _, keyword := range fieldKeywords(field) {
		quoted := regexp.QuoteMeta(keyword)
		if m := regexp.MustCompile(`(?i)(-?\d+(?:[.,]\d+)?)\D{0,30}` + quoted).FindStringSubmatch(text); m != nil {
			return m[1], keyword
		}
		if m := regexp.MustCompile(`(?i)` + quoted + `\D{0,30}?(-?\d+(?:[.,]\d+)?)`).FindStringSubmatch(text); m != nil {
			return m[1], keyword
		}
	}
	return "", ""
}

// fieldKeywords derives searchable stems from a snake_case field name.
// Short tokens ("days") carry no anchor value and are skipped.
func fieldKeywords(field string) []string {
	var keywords []string
	for _, token := range strings.Split(strings.ToLower(field), "_") {
		token = strings.TrimSuffix(token, "s")
		if len(token) < 4 {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}

func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
