package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Register(t *testing.T) {
	s := NewStore()

	err := s.Register("site-post", "Create Post", "Abilities related to creating site content")
	require.NoError(t, err)

	assert.True(t, s.Has("site-post"))

	cat, err := s.Get("site-post")
	require.NoError(t, err)
	assert.Equal(t, "Create Post", cat.Label)
	assert.Equal(t, "Abilities related to creating site content", cat.Description)
}

func TestStore_Register_Duplicate(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Register("site-post", "Create Post", "first"))

	err := s.Register("site-post", "Other", "second")
	assert.ErrorIs(t, err, ErrDuplicateCategory)

	cat, err := s.Get("site-post")
	require.NoError(t, err)
	assert.Equal(t, "first", cat.Description)
	assert.Len(t, s.List(), 1)
}

func TestStore_Register_Invalid(t *testing.T) {
	s := NewStore()

	tests := []struct {
		name  string
		id    string
		label string
	}{
		{name: "empty id", id: "", label: "Label"},
		{name: "blank id", id: "   ", label: "Label"},
		{name: "empty label", id: "cat", label: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, s.Register(tt.id, tt.label, ""))
		})
	}

	assert.Empty(t, s.List())
}

func TestStore_Get_NotFound(t *testing.T) {
	s := NewStore()

	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrCategoryNotFound)
	assert.False(t, s.Has("missing"))
}

func TestStore_List_Order(t *testing.T) {
	s := NewStore()

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Register(id, id, ""))
	}

	var ids []string
	for _, cat := range s.List() {
		ids = append(ids, cat.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}
