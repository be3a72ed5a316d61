package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// ViolationKind classifies a validation failure
type ViolationKind string

const (
	MissingRequiredField ViolationKind = "missing_required_field"
	TypeMismatch         ViolationKind = "type_mismatch"
	EnumViolation        ViolationKind = "enum_violation"
	UnknownProperty      ViolationKind = "unknown_property"
)

// Violation describes one way a value fails its schema
type Violation struct {
	Kind     ViolationKind `json:"kind"`
	Path     string        `json:"path"`
	Expected string        `json:"expected,omitempty"`
	Actual   string        `json:"actual,omitempty"`
	Value    interface{}   `json:"value,omitempty"`
	Allowed  []interface{} `json:"allowed,omitempty"`
}

// Error implements the error interface
func (v Violation) Error() string {
	field := displayPath(v.Path)
	switch v.Kind {
	case MissingRequiredField:
		return fmt.Sprintf("%s: required field is missing or empty", field)
	case TypeMismatch:
		return fmt.Sprintf("%s: expected %s, got %s", field, v.Expected, v.Actual)
	case EnumViolation:
		return fmt.Sprintf("%s: value %v is not one of %v", field, v.Value, v.Allowed)
	case UnknownProperty:
		return fmt.Sprintf("%s: unknown property", field)
	default:
		return fmt.Sprintf("%s: %s", field, v.Kind)
	}
}

// Result is the outcome of a validation. Value holds a copy of the input
// with defaults applied.
type Result struct {
	Value      interface{}
	Violations []Violation
}

// Valid reports whether no violations were found
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// Err joins all violations into one error, or returns nil when valid
func (r Result) Err() error {
	if r.Valid() {
		return nil
	}
	errs := make([]error, 0, len(r.Violations))
	for _, v := range r.Violations {
		errs = append(errs, v)
	}
	return errors.Join(errs...)
}

// Validator checks values against schema nodes. The zero value is the
// permissive validator.
type Validator struct {
	// Strict rejects object properties that the schema does not declare.
	Strict bool
}

// NewValidator creates a validator
func NewValidator(strict bool) *Validator {
	return &Validator{Strict: strict}
}

// Validate checks value against node
func (v *Validator) Validate(value interface{}, node *Node) Result {
	var violations []Violation
	out := v.validate(value, node, "", &violations)
	return Result{
		Value:      out,
		Violations: violations,
	}
}

func (v *Validator) validate(value interface{}, node *Node, path string, violations *[]Violation) interface{} {
	if node == nil {
		return copyValue(value)
	}

	if value == nil && node.Default != nil {
		value = copyValue(node.Default)
	}

	if !matchesType(value, node.Type) {
		*violations = append(*violations, Violation{
			Kind:     TypeMismatch,
			Path:     path,
			Expected: string(node.Type),
			Actual:   typeName(value),
		})
		return copyValue(value)
	}

	if len(node.Enum) > 0 && !inEnum(value, node.Enum) {
		*violations = append(*violations, Violation{
			Kind:    EnumViolation,
			Path:    path,
			Value:   value,
			Allowed: append([]interface{}(nil), node.Enum...),
		})
	}

	switch node.Type {
	case TypeObject:
		return v.validateObject(value.(map[string]interface{}), node, path, violations)
	case TypeArray:
		return v.validateArray(value, node, path, violations)
	default:
		return value
	}
}

func (v *Validator) validateObject(obj map[string]interface{}, node *Node, path string, violations *[]Violation) map[string]interface{} {
	out := make(map[string]interface{}, len(obj)+len(node.Properties))
	for k, val := range obj {
		out[k] = copyValue(val)
	}

	// Defaults first, so required fields with a default are satisfied.
	for _, name := range sortedKeys(node.Properties) {
		prop := node.Properties[name]
		if prop == nil || prop.Default == nil {
			continue
		}
		if val, ok := out[name]; !ok || val == nil {
			out[name] = copyValue(prop.Default)
		}
	}

	for _, name := range node.Required {
		if isEmpty(out[name]) {
			*violations = append(*violations, Violation{
				Kind: MissingRequiredField,
				Path: joinPath(path, name),
			})
		}
	}

	for _, name := range sortedKeys(out) {
		val := out[name]
		prop, declared := node.Properties[name]
		if !declared {
			if v.Strict {
				*violations = append(*violations, Violation{
					Kind: UnknownProperty,
					Path: joinPath(path, name),
				})
			}
			continue
		}
		if val == nil {
			continue
		}
		out[name] = v.validate(val, prop, joinPath(path, name), violations)
	}

	return out
}

func (v *Validator) validateArray(value interface{}, node *Node, path string, violations *[]Violation) []interface{} {
	rv := reflect.ValueOf(value)
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		if node.Items == nil {
			out[i] = copyValue(elem)
			continue
		}
		out[i] = v.validate(elem, node.Items, fmt.Sprintf("%s[%d]", path, i), violations)
	}
	return out
}

func matchesType(value interface{}, t Type) bool {
	switch t {
	case TypeObject:
		_, ok := value.(map[string]interface{})
		return ok
	case TypeString:
		_, ok := value.(string)
		return ok
	case TypeBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := toFloat(value)
		return ok
	case TypeArray:
		if value == nil {
			return false
		}
		kind := reflect.TypeOf(value).Kind()
		return kind == reflect.Slice || kind == reflect.Array
	}
	return false
}

func typeName(value interface{}) string {
	if value == nil {
		return "null"
	}
	for _, t := range []Type{TypeString, TypeBoolean, TypeNumber, TypeObject, TypeArray} {
		if matchesType(value, t) {
			return string(t)
		}
	}
	return fmt.Sprintf("%T", value)
}

func toFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func inEnum(value interface{}, allowed []interface{}) bool {
	if f, ok := toFloat(value); ok {
		for _, a := range allowed {
			if af, ok := toFloat(a); ok && af == f {
				return true
			}
		}
		return false
	}
	for _, a := range allowed {
		if reflect.DeepEqual(value, a) {
			return true
		}
	}
	return false
}

// isEmpty treats nil, "" and empty collections as absent. Whitespace, false
// and 0 are values.
func isEmpty(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() == 0
	}
	return false
}

func copyValue(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = copyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
