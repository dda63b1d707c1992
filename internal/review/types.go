package review

// Status is the verdict state of a review item. UNEVALUATED items move to one
// of the terminal states during a run; PENDING is terminal-for-this-run and
// means the item requires human review.
type Status string

const (
	StatusUnevaluated Status = "UNEVALUATED"
	StatusPass        Status = "PASS"
	StatusWarn        Status = "WARN"
	StatusFail        Status = "FAIL"
	StatusPending     Status = "PENDING"
)

// EvalMethod routes a requirement to the evaluator able to resolve it.
type EvalMethod string

const (
	EvalPresence     EvalMethod = "PRESENCE"
	EvalValidity     EvalMethod = "VALIDITY"
	EvalExactMatch   EvalMethod = "EXACT_MATCH"
	EvalNumeric      EvalMethod = "NUMERIC"
	EvalTableCompare EvalMethod = "TABLE_COMPARE"
	EvalSemantic     EvalMethod = "SEMANTIC"
)

// Severity grades how damaging a FAIL/WARN is for the bid.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Common dimensions. Dimensions are open-ended strings; these are the ones the
// upstream extractors emit today.
const (
	DimensionQualification = "qualification"
	DimensionTechnical     = "technical"
	DimensionBusiness      = "business"
	DimensionPrice         = "price"
	DimensionConsistency   = "consistency"
)

// Evidence roles and sources.
const (
	RoleTender = "tender"
	RoleBid    = "bid"

	SourcePrimary  = "primary"
	SourceDerived  = "derived"
	SourceFallback = "fallback"
)

// Requirement is one tender requirement as produced by the upstream
// extraction. Immutable during a review run.
type Requirement struct {
	ID        string `json:"requirement_id" yaml:"requirement_id"`
	Dimension string `json:"dimension" yaml:"dimension"`
	// ReqType tags the requirement's subject. For EXACT_MATCH requirements it
	// doubles as the normalized_fields key the expected value is compared
	// against, so extractors must emit matching names on both sides.
	ReqType          string            `json:"req_type,omitempty" yaml:"req_type"`
	Text             string            `json:"requirement_text" yaml:"requirement_text"`
	IsHard           bool              `json:"is_hard" yaml:"is_hard"`
	AllowDeviation   bool              `json:"allow_deviation,omitempty" yaml:"allow_deviation"`
	EvalMethod       EvalMethod        `json:"eval_method" yaml:"eval_method"`
	MustReject       bool              `json:"must_reject,omitempty" yaml:"must_reject"`
	ExpectedEvidence string            `json:"expected_evidence,omitempty" yaml:"expected_evidence"`
	Rubric           string            `json:"rubric,omitempty" yaml:"rubric"`
	Weight           float64           `json:"weight,omitempty" yaml:"weight"`
	EvidenceChunkIDs []string          `json:"evidence_chunk_ids,omitempty" yaml:"evidence_chunk_ids"`
	Meta             map[string]string `json:"meta,omitempty" yaml:"meta"`
}

// Response is one structured bidder response. Immutable during a review run.
// Constructed by the loader, which decodes normalized_fields exactly once.
type Response struct {
	ID               string           `json:"response_id"`
	BidderName       string           `json:"bidder_name"`
	Dimension        string           `json:"dimension"`
	ResponseType     string           `json:"response_type,omitempty"`
	Text             string           `json:"response_text"`
	NormalizedFields NormalizedFields `json:"normalized_fields,omitempty"`
	EvidenceChunkIDs []string         `json:"evidence_chunk_ids,omitempty"`
}

// Candidate pairs a requirement with its best-matching response for one run.
// Response is nil when no response shares the requirement's dimension; the
// downstream gate turns that into a deterministic FAIL/WARN.
type Candidate struct {
	Requirement *Requirement
	Response    *Response
	Dimension   string
}

// Evidence is the single canonical evidence shape. Legacy and derived entries
// are normalized into it once; consumers never branch on origin.
type Evidence struct {
	Role        string            `json:"role"`
	SegmentID   string            `json:"segment_id"`
	AssetID     string            `json:"asset_id,omitempty"`
	PageStart   int               `json:"page_start,omitempty"`
	PageEnd     int               `json:"page_end,omitempty"`
	HeadingPath string            `json:"heading_path,omitempty"`
	Quote       string            `json:"quote,omitempty"`
	Source      string            `json:"source"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// ComputedTrace records what the quantitative checker extracted and compared.
// It is written even when extraction fails, so auditors can see why an item
// stayed PENDING.
type ComputedTrace struct {
	Field         string  `json:"field,omitempty"`
	ExpectedValue float64 `json:"expected_value,omitempty"`
	ExpectedHigh  float64 `json:"expected_high,omitempty"`
	ActualValue   float64 `json:"actual_value,omitempty"`
	Operator      string  `json:"operator,omitempty"`
	Satisfied     bool    `json:"satisfied"`
	Note          string  `json:"note,omitempty"`
}

// ReviewItem is the persisted verdict for one requirement in one run.
// Immutable once persisted; a re-review allocates a new run id.
type ReviewItem struct {
	ID                string         `json:"id"`
	ReviewRunID       string         `json:"review_run_id"`
	Dimension         string         `json:"dimension"`
	RequirementID     string         `json:"requirement_id"`
	MatchedResponseID string         `json:"matched_response_id,omitempty"`
	Status            Status         `json:"status"`
	RuleTrace         string         `json:"rule_trace,omitempty"`
	ComputedTrace     *ComputedTrace `json:"computed_trace,omitempty"`
	Evidence          []Evidence     `json:"evidence,omitempty"`
	Severity          Severity       `json:"severity,omitempty"`
	IsHard            bool           `json:"is_hard"`
}

// Resolved reports whether the item reached a terminal verdict other than
// PENDING. Stages only touch unresolved items.
func (i *ReviewItem) Resolved() bool {
	return i.Status == StatusPass || i.Status == StatusWarn || i.Status == StatusFail
}

// SeverityFor derives the item severity from its verdict and hardness.
func SeverityFor(status Status, hard bool) Severity {
	switch status {
	case StatusFail:
		if hard {
			return SeverityCritical
		}
		return SeverityHigh
	case StatusWarn:
		return SeverityMedium
	case StatusPending:
		return SeverityLow
	default:
		return ""
	}
}
