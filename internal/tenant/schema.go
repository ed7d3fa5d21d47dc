package tenant

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// identitySchema admits exactly the required identity keys plus the known
// optional ones; anything else is a configuration error.
const identitySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["tenant_id", "business_name"],
  "additionalProperties": false,
  "properties": {
    "tenant_id":       {"type": "string", "minLength": 1},
    "business_name":   {"type": "string", "minLength": 1},
    "language":        {"type": "string"},
    "timezone":        {"type": "string"},
    "active_channels": {"type": "array", "items": {"type": "string"}},
    "risk_mapping":    {"type": "object", "additionalProperties": {"type": "string"}},
    "rate_limit":      {"type": "integer", "minimum": 0}
  }
}`

var identitySchemaLoader = gojsonschema.NewStringLoader(identitySchema)

// validateIdentity checks a decoded tenant.yaml against identitySchema and
// reports missing and unknown keys separately.
func validateIdentity(tenantID string, raw map[string]interface{}) error {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	result, err := gojsonschema.Validate(identitySchemaLoader, gojsonschema.NewGoLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: tenant %q: validating tenant.yaml: %v", ErrConfig, tenantID, err)
	}
	if result.Valid() {
		return nil
	}

	var missing, unknown, other []string
	for _, e := range result.Errors() {
		switch e.Type() {
		case "required":
			missing = append(missing, fmt.Sprint(e.Details()["property"]))
		case "additional_property_not_allowed":
			unknown = append(unknown, fmt.Sprint(e.Details()["property"]))
		default:
			other = append(other, e.String())
		}
	}
	sort.Strings(missing)
	sort.Strings(unknown)

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing required keys "+strings.Join(missing, ", "))
	}
	if len(unknown) > 0 {
		parts = append(parts, "unknown keys "+strings.Join(unknown, ", "))
	}
	parts = append(parts, other...)
	return fmt.Errorf("%w: tenant %q: tenant.yaml: %s", ErrConfig, tenantID, strings.Join(parts, "; "))
}
