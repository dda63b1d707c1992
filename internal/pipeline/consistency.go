package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// consistencyIDPrefix marks synthetic requirement ids so consumers can tell
// cross-field findings from real requirements.
const consistencyIDPrefix = "sys-consistency-"

// consistencyChecker is an independent pass over one bidder's full response
// set. It is not tied to the requirement mapping: it hunts for internal
// contradictions between excerpts, with price conflicts treated as
// reject-grade.
type consistencyChecker struct {
	cfg settings
}

func newConsistencyChecker(cfg settings) *consistencyChecker {
	return &consistencyChecker{cfg: cfg}
}

func (c *consistencyChecker) Name() string { return "consistency_checker" }

// numericCategory describes one tracked cross-field numeric value.
type numericCategory struct {
	field     string
	tolerance float64
	status    review.Status
	severity  review.Severity
}

func (c *consistencyChecker) Apply(_ context.Context, run *Run) (StageStats, error) {
	categories := []numericCategory{
		{field: review.FieldTotalPrice, tolerance: c.cfg.priceTolerance, status: review.StatusFail, severity: review.SeverityCritical},
		{field: review.FieldDurationDays, tolerance: c.cfg.durationTolerance, status: review.StatusWarn, severity: review.SeverityMedium},
		{field: review.FieldDeliveryDays, tolerance: c.cfg.durationTolerance, status: review.StatusWarn, severity: review.SeverityMedium},
	}

	stats := StageStats{Initial: len(categories) + 1}

	if item := c.checkCompanyName(run); item != nil {
		run.Items = append(run.Items, item)
		stats.Resolved++
	}

	for _, cat := range categories {
		if item := c.checkNumeric(run, cat); item != nil {
			run.Items = append(run.Items, item)
			stats.Resolved++
		}
	}

	return stats, nil
}

// checkCompanyName flags responses naming more than one distinct company.
func (c *consistencyChecker) checkCompanyName(run *Run) *review.ReviewItem {
	mentions := make([]string, 0, len(run.Responses))
	distinct := make(map[string]string)
	for _, resp := range run.Responses {
		name, ok := resp.NormalizedFields.String(review.FieldCompanyName)
		if !ok {
			continue
		}
		mentions = append(mentions, fmt.Sprintf("%s=%s", resp.ID, name))
		distinct[strings.ToLower(name)] = name
	}

	if len(distinct) <= 1 {
		return nil
	}

	names := make([]string, 0, len(distinct))
	for _, name := range distinct {
		names = append(names, name)
	}
	sort.Strings(names)

	return c.syntheticItem(run, review.FieldCompanyName, review.StatusFail, review.SeverityHigh,
		fmt.Sprintf("consistency: %d distinct company names across responses: %s",
			len(distinct), strings.Join(names, " / ")),
		mentions,
	)
}

// checkNumeric flags a category whose mentions spread wider than the
// configured relative tolerance.
func (c *consistencyChecker) checkNumeric(run *Run, cat numericCategory) *review.ReviewItem {
	type mention struct {
		responseID string
		value      float64
	}

	var mentions []mention
	distinct := make(map[float64]struct{})
	for _, resp := range run.Responses {
		v, ok := resp.NormalizedFields.Float(cat.field)
		if !ok {
			continue
		}
		mentions = append(mentions, mention{responseID: resp.ID, value: v})
		distinct[v] = struct{}{}
	}

	if len(distinct) <= 1 {
		return nil
	}

	low, high := mentions[0].value, mentions[0].value
	for _, m := range mentions[1:] {
		if m.value < low {
			low = m.value
		}
		if m.value > high {
			high = m.value
		}
	}

	base := low
	if base < 0 {
		base = -base
	}
	if base == 0 || (high-low)/base <= cat.tolerance {
		return nil
	}

	values := make([]string, len(mentions))
	for i, m := range mentions {
		values[i] = fmt.Sprintf("%s=%s", m.responseID, formatNumber(m.value))
	}

	return c.syntheticItem(run, cat.field, cat.status, cat.severity,
		fmt.Sprintf("consistency: %s spreads %s..%s, beyond tolerance %.2f%%",
			cat.field, formatNumber(low), formatNumber(high), cat.tolerance*100),
		values,
	)
}

// syntheticItem builds a consistency finding. Its evidence is derived: it
// points at the conflicting values in meta, not at a single excerpt.
func (c *consistencyChecker) syntheticItem(run *Run, field string, status review.Status, severity review.Severity, trace string, values []string) *review.ReviewItem {
	reqID := consistencyIDPrefix + field
	return &review.ReviewItem{
		ID:            fmt.Sprintf("%s/%s", run.ID, reqID),
		ReviewRunID:   run.ID,
		Dimension:     review.DimensionConsistency,
		RequirementID: reqID,
		Status:        status,
		RuleTrace:     trace,
		Severity:      severity,
		Evidence: []review.Evidence{{
			Role:   review.RoleBid,
			Source: review.SourceDerived,
			Meta: map[string]string{
				"field":  field,
				"values": strings.Join(values, ", "),
			},
		}},
	}
}
