package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type position struct{ X, Y int }
type health struct{ HP int }

func TestWorld_ComponentLifecycle(t *testing.T) {
	w := NewWorld()

	id, pos := CreateWith[position](w)
	pos.X = 3
	require.True(t, w.EntityExists(id))

	got, ok := Get[position](w, id)
	require.True(t, ok)
	assert.Equal(t, 3, got.X)

	hp, created, err := Ensure[health](w, id)
	require.NoError(t, err)
	assert.True(t, created)
	hp.HP = 10

	again, created, err := Ensure[health](w, id)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, hp, again)
	assert.Equal(t, 2, w.ComponentCount(id))

	assert.True(t, Remove[position](w, id))
	assert.False(t, Remove[position](w, id))
	assert.True(t, w.EntityExists(id), "entity keeps living while it has components")

	assert.True(t, Remove[health](w, id))
	assert.False(t, w.EntityExists(id), "removing the last component destroys the entity")
}

func TestWorld_Errors(t *testing.T) {
	w := NewWorld()

	err := w.SetComponent(99, &position{})
	require.ErrorIs(t, err, ErrEntityNotFound)

	id := w.CreateEntity()
	require.ErrorIs(t, w.SetComponent(id, position{}), ErrNotPointer)

	var nilPos *position
	require.ErrorIs(t, w.SetComponent(id, nilPos), ErrNotPointer)

	_, _, err = Ensure[health](w, 12345)
	require.ErrorIs(t, err, ErrEntityNotFound)
}

func TestWorld_Query(t *testing.T) {
	w := NewWorld()
	a, _ := CreateWith[position](w)
	b, _ := CreateWith[health](w)
	c, _ := CreateWith[position](w)
	require.NoError(t, Add(w, b, &position{X: 1}))

	assert.Equal(t, []EntityID{a, b, c}, Query[position](w))
	assert.Equal(t, []EntityID{b}, Query[health](w))

	w.RemoveEntity(b)
	assert.Equal(t, []EntityID{a, c}, Query[position](w))
	assert.Empty(t, Query[health](w))
	assert.Equal(t, 2, w.Len())

	visited := 0
	Each[position](w, func(EntityID, *position) bool {
		visited++
		return false
	})
	assert.Equal(t, 1, visited)
}
