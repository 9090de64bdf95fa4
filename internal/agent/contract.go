package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FieldType is the expected JSON shape of a contract field.
type FieldType string

const (
	FieldString      FieldType = "string"
	FieldStringArray FieldType = "string-array"
	FieldNumberRange FieldType = "number-range"
	FieldObject      FieldType = "object"
	FieldObjectArray FieldType = "object-array"
)

// Field is one required output field of a role.
type Field struct {
	Name string
	Type FieldType

	// Min and Max bound FieldNumberRange values, inclusive.
	Min, Max float64

	// Enum restricts FieldString values when non-empty.
	Enum []string

	// Keys must be present in a FieldObject value or in every item of a
	// FieldObjectArray value.
	Keys []string

	Description string
}

// Contract is the set of fields a role's output must contain.
type Contract struct {
	Role   Role
	Fields []Field
}

// Validate checks data against the contract. It returns false and one
// human-readable message per problem, in field order. A nil map fails every
// field.
func (c Contract) Validate(data map[string]any) (bool, []string) {
	var errs []string
	for _, f := range c.Fields {
		v, ok := data[f.Name]
		if !ok || v == nil {
			errs = append(errs, fmt.Sprintf("missing required field %q", f.Name))
			continue
		}
		errs = append(errs, f.check(v)...)
	}
	return len(errs) == 0, errs
}

func (f Field) check(v any) []string {
	switch f.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return []string{fmt.Sprintf("field %q must be a string, got %s", f.Name, jsonType(v))}
		}
		if strings.TrimSpace(s) == "" {
			return []string{fmt.Sprintf("field %q must not be empty", f.Name)}
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return []string{fmt.Sprintf("field %q is %q, expected one of %s", f.Name, s, strings.Join(f.Enum, ", "))}
		}

	case FieldStringArray:
		items, ok := v.([]any)
		if !ok {
			return []string{fmt.Sprintf("field %q must be an array of strings, got %s", f.Name, jsonType(v))}
		}
		var errs []string
		for i, item := range items {
			if _, ok := item.(string); !ok {
				errs = append(errs, fmt.Sprintf("field %q item %d must be a string, got %s", f.Name, i, jsonType(item)))
			}
		}
		return errs

	case FieldNumberRange:
		n, ok := toFloat(v)
		if !ok {
			return []string{fmt.Sprintf("field %q must be a number, got %s", f.Name, jsonType(v))}
		}
		if n < f.Min || n > f.Max {
			return []string{fmt.Sprintf("field %q is %s, outside range [%s, %s]",
				f.Name, formatNumber(n), formatNumber(f.Min), formatNumber(f.Max))}
		}

	case FieldObject:
		obj, ok := v.(map[string]any)
		if !ok {
			return []string{fmt.Sprintf("field %q must be an object, got %s", f.Name, jsonType(v))}
		}
		return missingKeys(fmt.Sprintf("field %q", f.Name), obj, f.Keys)

	case FieldObjectArray:
		items, ok := v.([]any)
		if !ok {
			return []string{fmt.Sprintf("field %q must be an array of objects, got %s", f.Name, jsonType(v))}
		}
		var errs []string
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				errs = append(errs, fmt.Sprintf("field %q item %d must be an object, got %s", f.Name, i, jsonType(item)))
				continue
			}
			errs = append(errs, missingKeys(fmt.Sprintf("field %q item %d", f.Name, i), obj, f.Keys)...)
		}
		return errs
	}
	return nil
}

func missingKeys(prefix string, obj map[string]any, keys []string) []string {
	var errs []string
	for _, k := range keys {
		if v, ok := obj[k]; !ok || v == nil {
			errs = append(errs, fmt.Sprintf("%s is missing key %q", prefix, k))
		}
	}
	return errs
}

// Describe renders the contract as an annotated JSON skeleton for prompts.
func (c Contract) Describe() string {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, f := range c.Fields {
		fmt.Fprintf(&sb, "  %q: %s", f.Name, f.placeholder())
		if i < len(c.Fields)-1 {
			sb.WriteString(",")
		}
		if f.Description != "" {
			sb.WriteString("  // " + f.Description)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String()
}

func (f Field) placeholder() string {
	switch f.Type {
	case FieldString:
		if len(f.Enum) > 0 {
			return strconv.Quote(strings.Join(f.Enum, " | "))
		}
		return `"..."`
	case FieldStringArray:
		return `["..."]`
	case FieldNumberRange:
		return fmt.Sprintf("<number %s-%s>", formatNumber(f.Min), formatNumber(f.Max))
	case FieldObject:
		return objectPlaceholder(f.Keys)
	case FieldObjectArray:
		return "[" + objectPlaceholder(f.Keys) + "]"
	default:
		return "null"
	}
}

func objectPlaceholder(keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = strconv.Quote(k) + `: "..."`
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// jsonType names the JSON type of a decoded value.
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
