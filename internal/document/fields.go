package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

var fieldTypes = map[string]struct{}{
	FieldSignature: {},
	FieldName:      {},
	FieldEmail:     {},
	FieldDate:      {},
}

// Keys the uploader may set in Document.Extra. Anything else is silently
// dropped unless it carries the custom_ prefix.
var extraAllowList = map[string]struct{}{
	"description":  {},
	"category":     {},
	"priority":     {},
	"dueDate":      {},
	"tags":         {},
	"notes":        {},
	"customFields": {},
	"expiryDate":   {},
	"version":      {},
	"department":   {},
	"project":      {},
	"client":       {},
	"reference":    {},
	"type":         {},
}

const customKeyPrefix = "custom_"

// wireField mirrors SignatureField with a nullable required flag so an
// omitted flag defaults to true.
type wireField struct {
	Type     string   `json:"type"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Page     int      `json:"page"`
	Required *bool    `json:"required"`
}

// ParseSignatureFields decodes and validates a serialized field layout.
// An empty input means no fields. Any structural or semantic problem maps
// to ErrInvalidFormat so callers can treat the whole layout as one unit.
func ParseSignatureFields(raw string) ([]SignatureField, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var wire []wireField
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: signature fields: %v", ErrInvalidFormat, err)
	}
	fields := make([]SignatureField, 0, len(wire))
	for i, f := range wire {
		if _, ok := fieldTypes[f.Type]; !ok {
			return nil, fmt.Errorf("%w: field %d has unknown type %q", ErrInvalidFormat, i, f.Type)
		}
		if f.Page < 1 {
			return nil, fmt.Errorf("%w: field %d has invalid page %d", ErrInvalidFormat, i, f.Page)
		}
		if f.Width <= 0 || f.Height <= 0 {
			return nil, fmt.Errorf("%w: field %d has non-positive dimensions", ErrInvalidFormat, i)
		}
		if f.X < 0 || f.Y < 0 {
			return nil, fmt.Errorf("%w: field %d has negative position", ErrInvalidFormat, i)
		}
		required := true
		if f.Required != nil {
			required = *f.Required
		}
		fields = append(fields, SignatureField{
			Type:     f.Type,
			X:        f.X,
			Y:        f.Y,
			Width:    f.Width,
			Height:   f.Height,
			Page:     f.Page,
			Required: required,
		})
	}
	return fields, nil
}

// MergeExtra overlays patch onto base, keeping only allow-listed keys and
// keys under the custom_ namespace. base is not mutated.
func MergeExtra(base, patch map[string]any) map[string]any {
	if len(base) == 0 && len(patch) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if !extraKeyAllowed(k) {
			continue
		}
		merged[k] = v
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

func extraKeyAllowed(k string) bool {
	if _, ok := extraAllowList[k]; ok {
		return true
	}
	return strings.HasPrefix(k, customKeyPrefix) && len(k) > len(customKeyPrefix)
}
