// Package schema validates structured values against JSON-Schema-like
// descriptors.
//
// Invariants:
// - Validation never mutates its input; defaults are applied to a copy.
// - Every violation is reported, not only the first.
// - Unknown object properties pass through unless the validator is strict.
package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Type is the kind of value a Node accepts
type Type string

const (
	TypeObject  Type = "object"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
	TypeNumber  Type = "number"
	TypeArray   Type = "array"
)

// IsValid reports whether t is one of the supported types
func (t Type) IsValid() bool {
	switch t {
	case TypeObject, TypeString, TypeBoolean, TypeNumber, TypeArray:
		return true
	}
	return false
}

// Node is a recursive schema descriptor used for ability input and output.
type Node struct {
	Type        Type             `json:"type"`
	Description string           `json:"description,omitempty"`
	Properties  map[string]*Node `json:"properties,omitempty"`
	Required    []string         `json:"required,omitempty"`
	Enum        []interface{}    `json:"enum,omitempty"`
	Default     interface{}      `json:"default,omitempty"`
	Items       *Node            `json:"items,omitempty"`
}

// FromJSON decodes a schema document
func FromJSON(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := n.Check(); err != nil {
		return nil, err
	}
	return &n, nil
}

// Check verifies the structural invariants of the schema tree: every
// required name is a declared property and every enum value and default
// matches the declared type.
func (n *Node) Check() error {
	return n.check("")
}

func (n *Node) check(path string) error {
	if n == nil {
		return fmt.Errorf("%s: schema is nil", displayPath(path))
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%s: invalid schema type %q", displayPath(path), n.Type)
	}

	for _, name := range n.Required {
		if n.Type != TypeObject {
			return fmt.Errorf("%s: required is only valid on object schemas", displayPath(path))
		}
		if _, ok := n.Properties[name]; !ok {
			return fmt.Errorf("%s: required property %q is not declared", displayPath(path), name)
		}
	}

	for _, v := range n.Enum {
		if !matchesType(v, n.Type) {
			return fmt.Errorf("%s: enum value %v does not match type %s", displayPath(path), v, n.Type)
		}
	}

	if n.Default != nil && !matchesType(n.Default, n.Type) {
		return fmt.Errorf("%s: default %v does not match type %s", displayPath(path), n.Default, n.Type)
	}

	if len(n.Properties) > 0 && n.Type != TypeObject {
		return fmt.Errorf("%s: properties are only valid on object schemas", displayPath(path))
	}
	for name, prop := range n.Properties {
		if err := prop.check(joinPath(path, name)); err != nil {
			return err
		}
	}

	if n.Items != nil {
		if n.Type != TypeArray {
			return fmt.Errorf("%s: items is only valid on array schemas", displayPath(path))
		}
		if err := n.Items.check(path + "[]"); err != nil {
			return err
		}
	}

	return nil
}

// Clone returns a deep copy of the schema tree
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}

	c := &Node{
		Type:        n.Type,
		Description: n.Description,
		Default:     copyValue(n.Default),
		Items:       n.Items.Clone(),
	}
	if n.Properties != nil {
		c.Properties = make(map[string]*Node, len(n.Properties))
		for name, prop := range n.Properties {
			c.Properties[name] = prop.Clone()
		}
	}
	if n.Required != nil {
		c.Required = append([]string(nil), n.Required...)
	}
	if n.Enum != nil {
		c.Enum = make([]interface{}, len(n.Enum))
		for i, v := range n.Enum {
			c.Enum[i] = copyValue(v)
		}
	}
	return c
}

// JSONSchema renders the node as a JSON-Schema document
func (n *Node) JSONSchema() map[string]interface{} {
	if n == nil {
		return map[string]interface{}{}
	}

	doc := map[string]interface{}{
		"type": string(n.Type),
	}
	if n.Description != "" {
		doc["description"] = n.Description
	}
	if len(n.Properties) > 0 {
		props := make(map[string]interface{}, len(n.Properties))
		for name, prop := range n.Properties {
			props[name] = prop.JSONSchema()
		}
		doc["properties"] = props
	}
	if len(n.Required) > 0 {
		doc["required"] = append([]string(nil), n.Required...)
	}
	if len(n.Enum) > 0 {
		doc["enum"] = append([]interface{}(nil), n.Enum...)
	}
	if n.Default != nil {
		doc["default"] = n.Default
	}
	if n.Items != nil {
		doc["items"] = n.Items.JSONSchema()
	}

	return doc
}

// Compile checks the node and compiles its JSON-Schema rendering with
// meta-schema validation enabled, so a registered schema is always a
// well-formed JSON-Schema document for remote callers.
func (n *Node) Compile() error {
	if err := n.Check(); err != nil {
		return err
	}

	sl := gojsonschema.NewSchemaLoader()
	sl.Validate = true
	if _, err := sl.Compile(gojsonschema.NewGoLoader(n.JSONSchema())); err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	return nil
}

// Object is a convenience constructor for object schemas
func Object(properties map[string]*Node, required ...string) *Node {
	return &Node{
		Type:       TypeObject,
		Properties: properties,
		Required:   required,
	}
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
