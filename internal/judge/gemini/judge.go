package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/tenderops/bid-reviewer/internal/judge"
	"github.com/tenderops/bid-reviewer/internal/logger"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Judge implements judge.Judge on top of a Gemini content generator.
type Judge struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var promptTemplate string

const defaultMaxLogLength = 200

// NewJudge wires a content generator into a requirement/response judge.
func NewJudge(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Judge {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Judge{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

// Evaluate asks the model whether the response satisfies the requirement and
// parses the structured answer. It never interprets low confidence itself;
// the escalation stage owns the confidence gate.
func (j *Judge) Evaluate(ctx context.Context, requirement, response, rubric string) (*judge.Judgement, error) {
	requirement = strings.TrimSpace(requirement)
	if requirement == "" {
		return nil, fmt.Errorf("requirement text is required")
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, fmt.Errorf("response text is required")
	}

	prompt := buildPrompt(requirement, response, rubric)

	j.logger.Debug("gemini judgement request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", logger.TruncateForLog(prompt, j.maxLogLen)),
	)

	raw, err := j.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	j.logger.Debug("gemini judgement response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", logger.TruncateForLog(raw, j.maxLogLen)),
	)

	judgement, err := parseJudgement(raw)
	if err != nil {
		return nil, err
	}

	judgement.Raw = raw
	return judgement, nil
}

func buildPrompt(requirement, response, rubric string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Requirement:\n{{REQUIREMENT}}\n\nResponse:\n{{RESPONSE}}\n\nRubric:\n{{RUBRIC}}\n\nJSON Response:"
	}

	rubric = strings.TrimSpace(rubric)
	if rubric == "" {
		rubric = "none"
	}

	prompt := strings.ReplaceAll(template, "{{REQUIREMENT}}", requirement)
	prompt = strings.ReplaceAll(prompt, "{{RESPONSE}}", response)
	prompt = strings.ReplaceAll(prompt, "{{RUBRIC}}", rubric)
	return prompt
}

func parseJudgement(raw string) (*judge.Judgement, error) {
	cleaned := extractJSON(strings.TrimSpace(raw))

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini judgement: %w", err)
	}

	label := strings.ToLower(coerceString(data["label"]))
	switch label {
	case judge.LabelPass, judge.LabelWarn, judge.LabelFail:
	default:
		return nil, fmt.Errorf("parse gemini judgement: unknown label %q", label)
	}

	confidence := coerceFloat(data["confidence"])
	if math.IsNaN(confidence) {
		confidence = 0
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &judge.Judgement{
		Label:      label,
		Confidence: confidence,
		Rationale:  coerceString(data["rationale"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
