package review

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"
)

// RequirementsFile is the on-disk shape produced by the extraction stage.
type RequirementsFile struct {
	Project      string         `yaml:"project"`
	Requirements []*Requirement `yaml:"requirements"`
}

type rawResponse struct {
	ID               string         `yaml:"response_id"`
	BidderName       string         `yaml:"bidder_name"`
	Dimension        string         `yaml:"dimension"`
	ResponseType     string         `yaml:"response_type"`
	Text             string         `yaml:"response_text"`
	NormalizedFields map[string]any `yaml:"normalized_fields"`
	EvidenceChunkIDs []string       `yaml:"evidence_chunk_ids"`
}

type responsesFile struct {
	BidderName string         `yaml:"bidder_name"`
	Responses  []*rawResponse `yaml:"responses"`
}

// LoadRequirements reads and validates the requirement list from a YAML file.
func LoadRequirements(path string) ([]*Requirement, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading requirements file: %w", err)
	}

	var file RequirementsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing requirements file %s: %w", path, err)
	}

	for _, req := range file.Requirements {
		if err := ValidateRequirement(req); err != nil {
			return nil, fmt.Errorf("requirements file %s: %w", path, err)
		}
	}

	return file.Requirements, nil
}

// LoadResponses reads one bidder's responses from a YAML file. The loosely
// typed normalized_fields payloads are decoded and validated here, once.
func LoadResponses(path string) ([]*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading responses file: %w", err)
	}

	var file responsesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing responses file %s: %w", path, err)
	}

	responses := make([]*Response, 0, len(file.Responses))
	for _, raw := range file.Responses {
		fields, err := DecodeNormalizedFields(raw.NormalizedFields)
		if err != nil {
			return nil, fmt.Errorf("response %s: %w", raw.ID, err)
		}

		bidder := strings.TrimSpace(raw.BidderName)
		if bidder == "" {
			bidder = strings.TrimSpace(file.BidderName)
		}

		resp := &Response{
			ID:               raw.ID,
			BidderName:       bidder,
			Dimension:        raw.Dimension,
			ResponseType:     raw.ResponseType,
			Text:             raw.Text,
			NormalizedFields: fields,
			EvidenceChunkIDs: raw.EvidenceChunkIDs,
		}
		if err := ValidateResponse(resp); err != nil {
			return nil, fmt.Errorf("responses file %s: %w", path, err)
		}
		responses = append(responses, resp)
	}

	return responses, nil
}
