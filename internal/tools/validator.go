package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// Validator 在工具执行前校验参数。
type Validator interface {
	Validate(params map[string]interface{}, schema *Schema) error
}

// DefaultValidator 只检查必填字段与基本类型。
type DefaultValidator struct{}

// Validate 确认参数满足 schema。
func (DefaultValidator) Validate(params map[string]interface{}, schema *Schema) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	for _, field := range schema.Required {
		value, exists := params[field]
		if !exists || value == nil {
			return fmt.Errorf("missing required field: %s", field)
		}
	}

	for key, value := range params {
		def, ok := schema.Properties[key]
		if !ok {
			continue
		}
		expected := expectedType(def)
		if expected == "" {
			continue
		}
		if err := checkType(value, expected); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	return nil
}

func expectedType(def interface{}) string {
	switch d := def.(type) {
	case map[string]interface{}:
		if value, ok := d["type"].(string); ok {
			return value
		}
	case *Schema:
		return d.Type
	}
	return ""
}

func checkType(value interface{}, expected string) error {
	switch expected {
	case "string":
		if _, ok := value.(string); ok {
			return nil
		}
	case "number":
		if isNumber(value) {
			return nil
		}
	case "integer":
		if isInteger(value) {
			return nil
		}
	case "boolean":
		if _, ok := value.(bool); ok {
			return nil
		}
	case "object":
		if _, ok := value.(map[string]interface{}); ok {
			return nil
		}
	case "array":
		if _, ok := value.([]interface{}); ok {
			return nil
		}
	default:
		return fmt.Errorf("unsupported schema type %q", expected)
	}
	return fmt.Errorf("expected %s but got %T", expected, value)
}

func isNumber(value interface{}) bool {
	switch v := value.(type) {
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}
