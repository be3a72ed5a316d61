// Package category holds the named groupings abilities are registered under.
//
// Categories are append-only: once registered they are never updated or
// removed for the lifetime of the process.
package category

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrDuplicateCategory is returned when a category id is registered twice.
	ErrDuplicateCategory = errors.New("category already registered")
	// ErrCategoryNotFound is returned when a category id is unknown.
	ErrCategoryNotFound = errors.New("category not found")
)

// Category is a named grouping of abilities.
type Category struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// Store holds registered categories keyed by id.
type Store struct {
	mu         sync.RWMutex
	categories map[string]Category
	order      []string
}

// NewStore creates an empty category store
func NewStore() *Store {
	return &Store{
		categories: make(map[string]Category),
	}
}

// Register adds a category. Ids are unique; a second registration of the
// same id fails with ErrDuplicateCategory and leaves the first untouched.
func (s *Store) Register(id, label, description string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("category id cannot be empty")
	}
	if strings.TrimSpace(label) == "" {
		return fmt.Errorf("category %s: label cannot be empty", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateCategory, id)
	}

	s.categories[id] = Category{
		ID:          id,
		Label:       label,
		Description: description,
	}
	s.order = append(s.order, id)

	return nil
}

// Has reports whether a category id is registered
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.categories[id]
	return ok
}

// Get returns a category by id
func (s *Store) Get(id string) (Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cat, ok := s.categories[id]
	if !ok {
		return Category{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, id)
	}
	return cat, nil
}

// List returns all categories in registration order
func (s *Store) List() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.categories[id])
	}
	return out
}
