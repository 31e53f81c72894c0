package mcp

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

func newCallID() string {
	return uuid.NewString()
}

// validateParams checks the decoded parameters against the tool schema.
// Missing required parameters and constraint violations are reported as
// ValidationError naming the offending field; the handler never runs.
func validateParams(def ToolDefinition, params json.RawMessage) error {
	var decoded map[string]any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return newError(ErrKindValidation, def.Name, "parameters must be a JSON object", err)
	}

	for _, req := range def.Required {
		if _, ok := decoded[req]; !ok {
			return newError(ErrKindValidation, def.Name,
				fmt.Sprintf("missing required parameter %q", req), nil)
		}
	}

	for name, value := range decoded {
		schema, ok := def.Parameters[name]
		if !ok {
			// Unknown parameters are tolerated; handlers decode into
			// typed structs and ignore extras.
			continue
		}
		if err := checkValue(def.Name, name, schema, value); err != nil {
			return err
		}
	}
	return nil
}

func checkValue(tool, field string, schema ParamSchema, value any) error {
	switch schema.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return validationErrorf(tool, "parameter %q must be a string", field)
		}
		if schema.MinLength != nil && len(s) < *schema.MinLength {
			return validationErrorf(tool, "parameter %q shorter than %d", field, *schema.MinLength)
		}
		if schema.MaxLength != nil && len(s) > *schema.MaxLength {
			return validationErrorf(tool, "parameter %q longer than %d", field, *schema.MaxLength)
		}
		if len(schema.Enum) > 0 && !containsString(schema.Enum, s) {
			return validationErrorf(tool, "parameter %q must be one of %v", field, schema.Enum)
		}
	case "number", "integer":
		n, ok := value.(float64)
		if !ok {
			return validationErrorf(tool, "parameter %q must be a number", field)
		}
		if schema.Type == "integer" && n != float64(int64(n)) {
			return validationErrorf(tool, "parameter %q must be an integer", field)
		}
		if schema.Minimum != nil && n < *schema.Minimum {
			return validationErrorf(tool, "parameter %q below minimum %v", field, *schema.Minimum)
		}
		if schema.Maximum != nil && n > *schema.Maximum {
			return validationErrorf(tool, "parameter %q above maximum %v", field, *schema.Maximum)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return validationErrorf(tool, "parameter %q must be a boolean", field)
		}
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return validationErrorf(tool, "parameter %q must be an object", field)
		}
		for name, sub := range schema.Properties {
			v, present := obj[name]
			if !present {
				continue
			}
			if err := checkValue(tool, field+"."+name, sub, v); err != nil {
				return err
			}
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return validationErrorf(tool, "parameter %q must be an array", field)
		}
	}
	return nil
}

func validationErrorf(tool, format string, args ...any) error {
	return newError(ErrKindValidation, tool, fmt.Sprintf(format, args...), nil)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
