package review

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRequirements(t *testing.T) {
	path := writeFile(t, "requirements.yaml", `
project: metro-line-4
requirements:
  - requirement_id: r-001
    dimension: qualification
    requirement_text: Bidder must hold a valid ISO 9001 certificate.
    is_hard: true
    eval_method: PRESENCE
    expected_evidence: ISO 9001
    evidence_chunk_ids: [seg-1, seg-2]
  - requirement_id: r-002
    dimension: price
    requirement_text: Total price must not exceed 1.2M.
    eval_method: NUMERIC
    expected_evidence: total_price <= 1200000
`)

	requirements, err := LoadRequirements(path)
	require.NoError(t, err)
	require.Len(t, requirements, 2)

	assert.Equal(t, "r-001", requirements[0].ID)
	assert.True(t, requirements[0].IsHard)
	assert.Equal(t, EvalPresence, requirements[0].EvalMethod)
	assert.Equal(t, []string{"seg-1", "seg-2"}, requirements[0].EvidenceChunkIDs)
	assert.Equal(t, EvalNumeric, requirements[1].EvalMethod)
}

func TestLoadRequirementsRejectsUnknownEvalMethod(t *testing.T) {
	path := writeFile(t, "requirements.yaml", `
requirements:
  - requirement_id: r-001
    dimension: technical
    eval_method: VIBES
`)

	_, err := LoadRequirements(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "eval_method")
}

func TestLoadResponses(t *testing.T) {
	path := writeFile(t, "responses.yaml", `
bidder_name: Acme Industrial Ltd
responses:
  - response_id: resp-001
    dimension: price
    response_text: Our total offer is 1 150 000 EUR.
    normalized_fields:
      total_price: "1 150 000"
      company_name: Acme Industrial Ltd
    evidence_chunk_ids: [seg-9]
  - response_id: resp-002
    bidder_name: Acme Industrial
    dimension: technical
    response_text: Delivery in 90 days.
    normalized_fields:
      duration_days: 90
`)

	responses, err := LoadResponses(path)
	require.NoError(t, err)
	require.Len(t, responses, 2)

	first := responses[0]
	assert.Equal(t, "Acme Industrial Ltd", first.BidderName)
	require.NotNil(t, first.NormalizedFields.TotalPrice)
	assert.Equal(t, 1150000.0, *first.NormalizedFields.TotalPrice)
	assert.Equal(t, "Acme Industrial Ltd", first.NormalizedFields.CompanyName)

	// Per-response bidder name wins over the file-level one.
	second := responses[1]
	assert.Equal(t, "Acme Industrial", second.BidderName)
	require.NotNil(t, second.NormalizedFields.DurationDays)
	assert.Equal(t, 90.0, *second.NormalizedFields.DurationDays)
}

func TestLoadResponsesRejectsBadNormalizedFields(t *testing.T) {
	path := writeFile(t, "responses.yaml", `
responses:
  - response_id: resp-001
    dimension: price
    normalized_fields:
      total_price: on request
`)

	_, err := LoadResponses(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resp-001")
}

func TestLoadRequirementsMissingFile(t *testing.T) {
	_, err := LoadRequirements(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
