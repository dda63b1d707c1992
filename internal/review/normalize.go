package review

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Well-known normalized field keys emitted by the upstream extractors.
const (
	FieldTotalPrice     = "total_price"
	FieldWarrantyMonths = "warranty_months"
	FieldDurationDays   = "duration_days"
	FieldDeliveryDays   = "delivery_days"
	FieldCompanyName    = "company_name"
)

// NormalizedFields is the typed key→value map attached to a response. The raw
// per-dimension payloads are loosely typed upstream; they are decoded and
// validated exactly once here, never ad hoc inside evaluators.
type NormalizedFields struct {
	TotalPrice     *float64 `mapstructure:"total_price"`
	WarrantyMonths *float64 `mapstructure:"warranty_months"`
	DurationDays   *float64 `mapstructure:"duration_days"`
	DeliveryDays   *float64 `mapstructure:"delivery_days"`
	CompanyName    string   `mapstructure:"company_name"`

	// Extra keeps dimension-specific keys that have no dedicated slot yet.
	Extra map[string]any `mapstructure:",remain"`
}

// DecodeNormalizedFields coerces a raw loosely-typed payload into
// NormalizedFields. Numeric strings ("36", "1 200.50") are accepted; anything
// that cannot be coerced is an ingestion error, not a silent nil.
func DecodeNormalizedFields(raw map[string]any) (NormalizedFields, error) {
	var fields NormalizedFields
	if len(raw) == 0 {
		return fields, nil
	}

	cleaned := make(map[string]any, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			v = cleanNumericString(s)
		}
		cleaned[strings.TrimSpace(k)] = v
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &fields,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fields, fmt.Errorf("building normalized fields decoder: %w", err)
	}
	if err := decoder.Decode(cleaned); err != nil {
		return fields, fmt.Errorf("decoding normalized fields: %w", err)
	}

	fields.CompanyName = strings.TrimSpace(fields.CompanyName)
	return fields, nil
}

// cleanNumericString strips grouping spaces and commas from strings that hold
// a number ("1 200,50" → "1200.50") and leaves everything else trimmed.
func cleanNumericString(s string) string {
	trimmed := strings.TrimSpace(s)
	compact := strings.NewReplacer(" ", "", " ", "").Replace(trimmed)
	if compact == "" {
		return trimmed
	}
	for _, r := range compact {
		if (r < '0' || r > '9') && r != '.' && r != ',' && r != '-' && r != '+' {
			return trimmed
		}
	}
	switch {
	case strings.Contains(compact, ".") || strings.Count(compact, ",") > 1:
		// Commas are grouping separators here.
		compact = strings.ReplaceAll(compact, ",", "")
	default:
		// A single comma and no dot reads as a decimal comma.
		compact = strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}

// Float returns the numeric value stored under key, checking the typed slots
// first and falling back to Extra with weak coercion.
func (f NormalizedFields) Float(key string) (float64, bool) {
	switch key {
	case FieldTotalPrice:
		if f.TotalPrice != nil {
			return *f.TotalPrice, true
		}
	case FieldWarrantyMonths:
		if f.WarrantyMonths != nil {
			return *f.WarrantyMonths, true
		}
	case FieldDurationDays:
		if f.DurationDays != nil {
			return *f.DurationDays, true
		}
	case FieldDeliveryDays:
		if f.DeliveryDays != nil {
			return *f.DeliveryDays, true
		}
	}

	if f.Extra == nil {
		return 0, false
	}
	raw, ok := f.Extra[key]
	if !ok {
		return 0, false
	}

	var out float64
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil || decoder.Decode(raw) != nil {
		return 0, false
	}
	return out, true
}

// String returns the string value stored under key, if any.
func (f NormalizedFields) String(key string) (string, bool) {
	if key == FieldCompanyName && f.CompanyName != "" {
		return f.CompanyName, true
	}
	if f.Extra == nil {
		return "", false
	}
	if s, ok := f.Extra[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s), true
	}
	return "", false
}

// ValidateRequirement checks the fields the pipeline depends on. Called once
// at ingestion; evaluators may assume a validated requirement.
func ValidateRequirement(r *Requirement) error {
	if r == nil {
		return fmt.Errorf("requirement is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("requirement id is required")
	}
	if strings.TrimSpace(r.Dimension) == "" {
		return fmt.Errorf("requirement %s: dimension is required", r.ID)
	}
	switch r.EvalMethod {
	case EvalPresence, EvalValidity, EvalExactMatch, EvalNumeric, EvalTableCompare, EvalSemantic:
	case "":
		return fmt.Errorf("requirement %s: eval_method is required", r.ID)
	default:
		return fmt.Errorf("requirement %s: unknown eval_method %q", r.ID, r.EvalMethod)
	}
	return nil
}

// ValidateResponse checks the fields the pipeline depends on.
func ValidateResponse(r *Response) error {
	if r == nil {
		return fmt.Errorf("response is nil")
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("response id is required")
	}
	if strings.TrimSpace(r.Dimension) == "" {
		return fmt.Errorf("response %s: dimension is required", r.ID)
	}
	return nil
}
