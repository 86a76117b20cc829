package slots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	t.Parallel()

	var tbl Table[string]
	a := tbl.Insert("a")
	b := tbl.Insert("b")
	assert.NotZero(t, a)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, tbl.Len())

	v, ok := tbl.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	v, ok = tbl.Remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = tbl.Get(a)
	assert.False(t, ok)
	_, ok = tbl.Remove(a)
	assert.False(t, ok)
	assert.Equal(t, 1, tbl.Len())
}

func TestStaleHandleAfterReuse(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	old := tbl.Insert(1)
	tbl.Remove(old)
	fresh := tbl.Insert(2)

	assert.NotEqual(t, old, fresh)
	_, ok := tbl.Get(old)
	assert.False(t, ok, "stale handle must not resolve to the reused slot")
	v, ok := tbl.Get(fresh)
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestUnknownHandles(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	for _, h := range []Handle{0, 1, 42, Handle(1<<32 | 1)} {
		_, ok := tbl.Get(h)
		assert.False(t, ok, "handle %d", h)
	}
}

func TestHandlesInSlotOrder(t *testing.T) {
	t.Parallel()

	var tbl Table[int]
	h1 := tbl.Insert(1)
	h2 := tbl.Insert(2)
	h3 := tbl.Insert(3)
	tbl.Remove(h2)

	assert.Equal(t, []Handle{h1, h3}, tbl.Handles())

	seen := 0
	tbl.All(func(Handle, int) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}
