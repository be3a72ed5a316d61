// Package ability defines abilities and the registry that owns them.
//
// Invariants:
// - Ability ids are unique and namespaced as "<namespace>/<name>".
// - An ability's category must be registered before the ability.
// - Registration is one-shot; there is no update or delete.
//
// Usage:
//
//	cats := category.NewStore()
//	_ = cats.Register("site-post", "Create Post", "Abilities related to creating site content")
//	reg := ability.NewRegistry(cats)
//	_ = reg.Register(ability.Ability{
//		ID:           "wpv/create-post",
//		Label:        "Create Post",
//		Category:     "site-post",
//		InputSchema:  input,
//		OutputSchema: output,
//		Permission:   ability.AllowAll,
//		Execute:      createPost,
//	})
package ability

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/abilityd/pkg/schema"
)

// ExposureType says how an ability is presented to remote callers
type ExposureType string

const (
	ExposeTool     ExposureType = "tool"
	ExposeResource ExposureType = "resource"
	ExposePrompt   ExposureType = "prompt"
)

// IsValid reports whether e is a known exposure type
func (e ExposureType) IsValid() bool {
	switch e {
	case ExposeTool, ExposeResource, ExposePrompt:
		return true
	}
	return false
}

// Exposure controls external discovery of an ability
type Exposure struct {
	Public bool         `json:"public"`
	Type   ExposureType `json:"type"`
}

// PermissionFunc decides whether the caller may invoke an ability.
// It runs before any ability logic.
type PermissionFunc func(ctx context.Context, ictx Context) bool

// ExecuteFunc performs the ability. input has already been validated
// against the ability's input schema. Business failures should be returned
// as output data (for example success=false with an error message).
type ExecuteFunc func(ctx context.Context, input map[string]interface{}, ictx Context) (map[string]interface{}, error)

// Ability is a registered capability
type Ability struct {
	ID           string         `json:"id"`
	Label        string         `json:"label"`
	Description  string         `json:"description"`
	Category     string         `json:"category"`
	InputSchema  *schema.Node   `json:"input_schema"`
	OutputSchema *schema.Node   `json:"output_schema"`
	Permission   PermissionFunc `json:"-"`
	Execute      ExecuteFunc    `json:"-"`
	Exposure     Exposure       `json:"exposure"`
}

// Namespace returns the part of the id before the slash
func (a *Ability) Namespace() string {
	ns, _ := splitID(a.ID)
	return ns
}

// Name returns the part of the id after the slash
func (a *Ability) Name() string {
	_, name := splitID(a.ID)
	return name
}

// IsTool reports whether the ability may be exposed as a public tool
func (a *Ability) IsTool() bool {
	return a.Exposure.Public && a.Exposure.Type == ExposeTool
}

// Context carries caller identity for one invocation. It is never shared
// between invocations and never persisted.
type Context struct {
	UserID       string            `json:"user_id,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
	Transport    string            `json:"transport,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Can reports whether the caller holds a capability
func (c Context) Can(capability string) bool {
	for _, held := range c.Capabilities {
		if held == capability {
			return true
		}
	}
	return false
}

// AllowAll permits every caller
func AllowAll(context.Context, Context) bool {
	return true
}

// DenyAll rejects every caller
func DenyAll(context.Context, Context) bool {
	return false
}

// RequireCapability permits callers holding all of the given capabilities
func RequireCapability(capabilities ...string) PermissionFunc {
	return func(_ context.Context, ictx Context) bool {
		for _, c := range capabilities {
			if !ictx.Can(c) {
				return false
			}
		}
		return true
	}
}

func splitID(id string) (string, string) {
	ns, name, ok := strings.Cut(id, "/")
	if !ok {
		return "", id
	}
	return ns, name
}

// String implements fmt.Stringer
func (a *Ability) String() string {
	return fmt.Sprintf("%s (%s)", a.ID, a.Label)
}
