package ability

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/harun/abilityd/pkg/schema"
)

var (
	// ErrUnknownCategory is returned when an ability names an unregistered category.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrDuplicateAbility is returned when an ability id is registered twice.
	ErrDuplicateAbility = errors.New("ability already registered")
	// ErrAbilityNotFound is returned when an ability id is unknown.
	ErrAbilityNotFound = errors.New("ability not found")
	// ErrInvalidAbility is returned for malformed ability definitions.
	ErrInvalidAbility = errors.New("invalid ability definition")
)

var idPattern = regexp.MustCompile(`^[a-z0-9-]+/[a-z0-9-]+$`)

// CategoryLookup reports whether a category exists
type CategoryLookup interface {
	Has(id string) bool
}

// Filter narrows Registry.List. Zero fields match everything.
type Filter struct {
	Category  string
	ExposedAs ExposureType
	Public    *bool
}

func (f Filter) matches(a *Ability) bool {
	if f.Category != "" && a.Category != f.Category {
		return false
	}
	if f.ExposedAs != "" && a.Exposure.Type != f.ExposedAs {
		return false
	}
	if f.Public != nil && a.Exposure.Public != *f.Public {
		return false
	}
	return true
}

// Registry owns registered abilities keyed by id
type Registry struct {
	categories CategoryLookup

	mu        sync.RWMutex
	abilities map[string]*Ability
	order     []string
}

// NewRegistry creates a registry that checks categories against the given lookup
func NewRegistry(categories CategoryLookup) *Registry {
	return &Registry{
		categories: categories,
		abilities:  make(map[string]*Ability),
	}
}

// Register adds an ability. A failed registration leaves the registry unchanged.
func (r *Registry) Register(a Ability) error {
	if err := validateDefinition(&a); err != nil {
		return err
	}

	if r.categories == nil || !r.categories.Has(a.Category) {
		return fmt.Errorf("%w: ability %s references category %q", ErrUnknownCategory, a.ID, a.Category)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.abilities[a.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateAbility, a.ID)
	}

	// The registry keeps its own schema trees; later edits by the caller
	// must not change a registered ability.
	a.InputSchema = a.InputSchema.Clone()
	a.OutputSchema = a.OutputSchema.Clone()
	r.abilities[a.ID] = &a
	r.order = append(r.order, a.ID)

	log.Info().
		Str("ability", a.ID).
		Str("category", a.Category).
		Str("exposed_as", string(a.Exposure.Type)).
		Bool("public", a.Exposure.Public).
		Msg("Ability registered")

	return nil
}

// Get returns an ability by id. The returned record must not be modified.
func (r *Registry) Get(id string) (*Ability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.abilities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAbilityNotFound, id)
	}
	return a, nil
}

// Has reports whether an ability id is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.abilities[id]
	return ok
}

// List returns abilities matching the filter in registration order
func (r *Registry) List(filter Filter) []*Ability {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*Ability{}
	for _, id := range r.order {
		a := r.abilities[id]
		if filter.matches(a) {
			out = append(out, a)
		}
	}
	return out
}

// Count returns the number of registered abilities
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.abilities)
}

// validateDefinition checks and normalizes a definition in place
func validateDefinition(a *Ability) error {
	if !idPattern.MatchString(a.ID) {
		return fmt.Errorf("%w: id %q must look like namespace/name", ErrInvalidAbility, a.ID)
	}
	if a.Label == "" {
		return fmt.Errorf("%w: %s: label cannot be empty", ErrInvalidAbility, a.ID)
	}
	if a.Category == "" {
		return fmt.Errorf("%w: %s: category cannot be empty", ErrInvalidAbility, a.ID)
	}
	if a.Execute == nil {
		return fmt.Errorf("%w: %s: execute callback cannot be nil", ErrInvalidAbility, a.ID)
	}

	// No permission rule means nobody may call it.
	if a.Permission == nil {
		log.Warn().Str("ability", a.ID).Msg("Ability has no permission rule, all invocations will be denied")
		a.Permission = DenyAll
	}

	if a.Exposure.Type == "" {
		a.Exposure.Type = ExposeTool
	}
	if !a.Exposure.Type.IsValid() {
		return fmt.Errorf("%w: %s: unknown exposure type %q", ErrInvalidAbility, a.ID, a.Exposure.Type)
	}

	if a.InputSchema == nil {
		a.InputSchema = &schema.Node{Type: schema.TypeObject}
	}
	if a.OutputSchema == nil {
		a.OutputSchema = &schema.Node{Type: schema.TypeObject}
	}
	if a.InputSchema.Type != schema.TypeObject {
		return fmt.Errorf("%w: %s: input schema must be an object", ErrInvalidAbility, a.ID)
	}
	if a.OutputSchema.Type != schema.TypeObject {
		return fmt.Errorf("%w: %s: output schema must be an object", ErrInvalidAbility, a.ID)
	}
	if err := a.InputSchema.Compile(); err != nil {
		return fmt.Errorf("%w: %s: input schema: %v", ErrInvalidAbility, a.ID, err)
	}
	if err := a.OutputSchema.Compile(); err != nil {
		return fmt.Errorf("%w: %s: output schema: %v", ErrInvalidAbility, a.ID, err)
	}

	return nil
}
