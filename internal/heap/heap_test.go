package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skyhetu-vm/internal/value"
)

func TestStringInterning(t *testing.T) {
	h := New()

	h1 := h.AllocString("hello")
	h2 := h.AllocString("hello")
	h3 := h.AllocString("world")

	assert.Equal(t, h1, h2, "equal content must share one handle")
	assert.NotEqual(t, h1, h3)

	s, ok := h.GetString(h1)
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestBytesAccounting(t *testing.T) {
	h := New()
	require.Zero(t, h.BytesAllocated)

	handle := h.AllocString("abc")
	allocated := h.BytesAllocated
	assert.Positive(t, allocated)

	// Nothing marked: sweep reclaims everything and restores the
	// counter exactly.
	h.Sweep()
	assert.Zero(t, h.BytesAllocated)

	_, ok := h.GetString(handle)
	assert.False(t, ok, "swept object must be gone")
}

func TestSlotReuse(t *testing.T) {
	h := New()

	h1 := h.AllocString("a")
	h.Sweep() // frees h1's slot

	h2 := h.AllocArray(nil)
	assert.Equal(t, h1, h2, "freed slot is reused")
}

func TestMarkSweepKeepsReachable(t *testing.T) {
	h := New()

	kept := h.AllocString("kept")
	dropped := h.AllocString("dropped")

	h.Mark(kept)
	h.TraceReferences()
	h.Sweep()

	_, ok := h.GetString(kept)
	assert.True(t, ok)
	_, ok = h.GetString(dropped)
	assert.False(t, ok)
}

func TestInternTablePruned(t *testing.T) {
	h := New()

	kept := h.AllocString("kept")
	h.AllocString("dropped")

	h.Mark(kept)
	h.TraceReferences()
	h.Sweep()

	// The dropped entry is gone: allocating again produces a fresh
	// handle instead of resurrecting the stale one.
	again := h.AllocString("dropped")
	_, ok := h.GetString(again)
	assert.True(t, ok)

	// The kept entry still dedups.
	assert.Equal(t, kept, h.AllocString("kept"))
}

func TestTraceMarksChildren(t *testing.T) {
	h := New()

	orphan := h.AllocArray(nil)
	inner := h.AllocArray([]value.Value{value.NewNumber(1)})
	outer := h.AllocArray([]value.Value{value.NewArray(inner)})

	h.Mark(outer)
	h.TraceReferences()
	h.Sweep()

	_, ok := h.GetArray(inner)
	assert.True(t, ok, "nested array must survive via parent")
	_, ok = h.GetArray(outer)
	assert.True(t, ok)
	_, ok = h.GetArray(orphan)
	assert.False(t, ok, "unmarked array is reclaimed")
}

func TestClosureTracing(t *testing.T) {
	h := New()

	fn := h.AllocFunction(&Function{Name: "f"})
	upvalue := h.AllocUpvalue(0)
	closure := h.AllocClosure(fn, []value.Handle{upvalue})

	h.Mark(closure)
	h.TraceReferences()
	h.Sweep()

	_, ok := h.GetFunction(fn)
	assert.True(t, ok)
	_, ok = h.GetUpvalue(upvalue)
	assert.True(t, ok)
}

func TestClosedUpvalueTracesValue(t *testing.T) {
	h := New()

	payload := h.AllocArray(nil)
	uv := h.AllocUpvalue(3)
	u, _ := h.GetUpvalue(uv)
	u.IsOpen = false
	u.Closed = value.NewArray(payload)

	h.Mark(uv)
	h.TraceReferences()
	h.Sweep()

	_, ok := h.GetArray(payload)
	assert.True(t, ok, "closed upvalue keeps its value alive")
}

func TestInstanceCycleCollected(t *testing.T) {
	h := New()

	// class <-> method closure <-> instance reference cycle.
	class := h.AllocClass("Node")
	fn := h.AllocFunction(&Function{Name: "loop"})
	method := h.AllocClosure(fn, nil)
	c, _ := h.GetClass(class)
	c.Methods["loop"] = method

	instance := h.AllocInstance(class)
	inst, _ := h.GetInstance(instance)
	inst.Fields["self"] = value.NewInstance(instance)

	// Unreachable cycle: everything is reclaimed.
	h.Sweep()

	_, ok := h.GetClass(class)
	assert.False(t, ok)
	_, ok = h.GetInstance(instance)
	assert.False(t, ok)
	_, ok = h.GetClosure(method)
	assert.False(t, ok)
}

func TestGCThreshold(t *testing.T) {
	h := New()
	assert.False(t, h.ShouldCollect())
	assert.Equal(t, InitialGCThreshold, h.NextGC)

	h.BytesAllocated = InitialGCThreshold + 1
	assert.True(t, h.ShouldCollect())

	h.BytesAllocated = 100
	h.Sweep()
	assert.Equal(t, InitialGCThreshold, h.NextGC, "threshold floors at the initial value")

	h.BytesAllocated = InitialGCThreshold
	h.Sweep()
	assert.Equal(t, 2*InitialGCThreshold, h.NextGC, "threshold doubles live bytes")
}

func TestStats(t *testing.T) {
	h := New()
	h.AllocString("x")
	assert.Contains(t, h.Stats(), "1 live objects")
}
