// Package heap owns every heap-allocated runtime object. Objects are
// addressed by opaque handles (slot indices) and reclaimed by a
// tri-color mark-sweep collector driven by the VM.
package heap

import (
	"fmt"

	"github.com/dolthub/swiss"
	"github.com/dustin/go-humanize"

	"skyhetu-vm/internal/chunk"
	"skyhetu-vm/internal/value"
)

// InitialGCThreshold is the allocation level at which the first
// collection triggers.
const InitialGCThreshold = 1024 * 1024

// Function is a compiled function prototype: name, parameters, owned
// chunk and the number of upvalues its closures capture.
type Function struct {
	Name         string
	Params       []string
	Chunk        *chunk.Chunk
	UpvalueCount int
}

// Upvalue is a shared cell in one of two states: open (pointing at a
// live stack slot) or closed (owning the hoisted value).
type Upvalue struct {
	IsOpen bool
	Slot   int
	Closed value.Value
}

// Closure pairs a function prototype with its captured upvalue cells.
type Closure struct {
	Function value.Handle
	Upvalues []value.Handle
}

type Class struct {
	Name    string
	Methods map[string]value.Handle
}

type Instance struct {
	Class  value.Handle
	Fields map[string]value.Value
}

type BoundMethod struct {
	Receiver value.Value
	Method   value.Handle
}

// Array is a growable vector of values.
type Array struct {
	Elements []value.Value
}

// Object is anything the heap can store.
type Object interface {
	children() []value.Handle
	sizeBytes() int
}

// StringObject is an interned immutable string.
type StringObject string

const objHeader = 48
const wordSize = 8

func (s StringObject) children() []value.Handle { return nil }
func (s StringObject) sizeBytes() int           { return objHeader + len(s) }

func (f *Function) children() []value.Handle { return nil }
func (f *Function) sizeBytes() int {
	size := objHeader + len(f.Name) + len(f.Params)*wordSize
	if f.Chunk != nil {
		size += len(f.Chunk.Code)
	}
	return size
}

func (a *Array) children() []value.Handle {
	var children []value.Handle
	for _, v := range a.Elements {
		children = append(children, v.Children()...)
	}
	return children
}
func (a *Array) sizeBytes() int { return objHeader + len(a.Elements)*wordSize*4 }

func (c *Closure) children() []value.Handle {
	children := []value.Handle{c.Function}
	children = append(children, c.Upvalues...)
	return children
}
func (c *Closure) sizeBytes() int { return objHeader + len(c.Upvalues)*wordSize }

func (u *Upvalue) children() []value.Handle {
	// Open upvalues reach only the stack, which is a root.
	if u.IsOpen {
		return nil
	}
	return u.Closed.Children()
}
func (u *Upvalue) sizeBytes() int { return objHeader + wordSize*4 }

func (c *Class) children() []value.Handle {
	children := make([]value.Handle, 0, len(c.Methods))
	for _, m := range c.Methods {
		children = append(children, m)
	}
	return children
}
func (c *Class) sizeBytes() int {
	return objHeader + len(c.Name) + len(c.Methods)*(wordSize*3)
}

func (i *Instance) children() []value.Handle {
	children := []value.Handle{i.Class}
	for _, v := range i.Fields {
		children = append(children, v.Children()...)
	}
	return children
}
func (i *Instance) sizeBytes() int {
	return objHeader + len(i.Fields)*(wordSize*5)
}

func (b *BoundMethod) children() []value.Handle {
	children := b.Receiver.Children()
	return append(children, b.Method)
}
func (b *BoundMethod) sizeBytes() int { return objHeader + wordSize*5 }

// Heap stores objects in an indexed slot vector with a free list.
// Strings are deduplicated through the intern table.
type Heap struct {
	objects   []Object
	freeList  []int
	marked    map[int]struct{}
	greyStack []value.Handle
	interned  *swiss.Map[string, value.Handle]

	BytesAllocated int
	NextGC         int
}

func New() *Heap {
	return &Heap{
		marked:   make(map[int]struct{}),
		interned: swiss.NewMap[string, value.Handle](16),
		NextGC:   InitialGCThreshold,
	}
}

func (h *Heap) alloc(obj Object) value.Handle {
	h.BytesAllocated += obj.sizeBytes()

	if n := len(h.freeList); n > 0 {
		idx := h.freeList[n-1]
		h.freeList = h.freeList[:n-1]
		h.objects[idx] = obj
		return value.Handle(idx)
	}
	h.objects = append(h.objects, obj)
	return value.Handle(len(h.objects) - 1)
}

// AllocString returns the existing handle when s is already interned.
func (h *Heap) AllocString(s string) value.Handle {
	if handle, ok := h.interned.Get(s); ok {
		return handle
	}
	handle := h.alloc(StringObject(s))
	h.interned.Put(s, handle)
	return handle
}

func (h *Heap) AllocFunction(f *Function) value.Handle {
	return h.alloc(f)
}

func (h *Heap) AllocArray(elements []value.Value) value.Handle {
	return h.alloc(&Array{Elements: elements})
}

func (h *Heap) AllocClosure(function value.Handle, upvalues []value.Handle) value.Handle {
	return h.alloc(&Closure{Function: function, Upvalues: upvalues})
}

func (h *Heap) AllocUpvalue(slot int) value.Handle {
	return h.alloc(&Upvalue{IsOpen: true, Slot: slot})
}

func (h *Heap) AllocClass(name string) value.Handle {
	return h.alloc(&Class{Name: name, Methods: make(map[string]value.Handle)})
}

func (h *Heap) AllocInstance(class value.Handle) value.Handle {
	return h.alloc(&Instance{Class: class, Fields: make(map[string]value.Value)})
}

func (h *Heap) AllocBoundMethod(receiver value.Value, method value.Handle) value.Handle {
	return h.alloc(&BoundMethod{Receiver: receiver, Method: method})
}

func (h *Heap) get(handle value.Handle) Object {
	if int(handle) < 0 || int(handle) >= len(h.objects) {
		return nil
	}
	return h.objects[handle]
}

func (h *Heap) GetString(handle value.Handle) (string, bool) {
	s, ok := h.get(handle).(StringObject)
	return string(s), ok
}

func (h *Heap) GetFunction(handle value.Handle) (*Function, bool) {
	f, ok := h.get(handle).(*Function)
	return f, ok
}

func (h *Heap) GetArray(handle value.Handle) (*Array, bool) {
	a, ok := h.get(handle).(*Array)
	return a, ok
}

func (h *Heap) GetClosure(handle value.Handle) (*Closure, bool) {
	c, ok := h.get(handle).(*Closure)
	return c, ok
}

func (h *Heap) GetUpvalue(handle value.Handle) (*Upvalue, bool) {
	u, ok := h.get(handle).(*Upvalue)
	return u, ok
}

func (h *Heap) GetClass(handle value.Handle) (*Class, bool) {
	c, ok := h.get(handle).(*Class)
	return c, ok
}

func (h *Heap) GetInstance(handle value.Handle) (*Instance, bool) {
	i, ok := h.get(handle).(*Instance)
	return i, ok
}

func (h *Heap) GetBoundMethod(handle value.Handle) (*BoundMethod, bool) {
	b, ok := h.get(handle).(*BoundMethod)
	return b, ok
}

// ShouldCollect reports whether allocation has crossed the GC
// threshold.
func (h *Heap) ShouldCollect() bool {
	return h.BytesAllocated > h.NextGC
}

func (h *Heap) IsMarked(handle value.Handle) bool {
	_, ok := h.marked[int(handle)]
	return ok
}

// Mark greys a live handle. Unknown or already-marked handles are
// ignored.
func (h *Heap) Mark(handle value.Handle) {
	if _, ok := h.marked[int(handle)]; ok {
		return
	}
	if h.get(handle) == nil {
		return
	}
	h.marked[int(handle)] = struct{}{}
	h.greyStack = append(h.greyStack, handle)
}

// TraceReferences blackens the grey stack, marking each object's
// children until the stack drains.
func (h *Heap) TraceReferences() {
	for len(h.greyStack) > 0 {
		handle := h.greyStack[len(h.greyStack)-1]
		h.greyStack = h.greyStack[:len(h.greyStack)-1]

		obj := h.get(handle)
		if obj == nil {
			continue
		}
		for _, child := range obj.children() {
			h.Mark(child)
		}
	}
}

// Sweep frees every unmarked slot, prunes dead intern entries and
// doubles the threshold (floored at the initial 1 MiB).
func (h *Heap) Sweep() {
	freed := 0
	for i, obj := range h.objects {
		if obj == nil {
			continue
		}
		if _, ok := h.marked[i]; !ok {
			freed += obj.sizeBytes()
			h.objects[i] = nil
			h.freeList = append(h.freeList, i)
		}
	}

	var dead []string
	h.interned.Iter(func(s string, handle value.Handle) bool {
		if _, ok := h.marked[int(handle)]; !ok {
			dead = append(dead, s)
		}
		return false
	})
	for _, s := range dead {
		h.interned.Delete(s)
	}

	h.BytesAllocated -= freed
	h.marked = make(map[int]struct{})

	h.NextGC = h.BytesAllocated * 2
	if h.NextGC < InitialGCThreshold {
		h.NextGC = InitialGCThreshold
	}
}

// LiveObjects counts occupied slots.
func (h *Heap) LiveObjects() int {
	n := 0
	for _, obj := range h.objects {
		if obj != nil {
			n++
		}
	}
	return n
}

// Stats renders a one-line summary of heap occupancy.
func (h *Heap) Stats() string {
	return fmt.Sprintf("%d live objects, %s allocated, next GC at %s",
		h.LiveObjects(),
		humanize.Bytes(uint64(h.BytesAllocated)),
		humanize.Bytes(uint64(h.NextGC)))
}

// Display renders a value with heap access, resolving names that the
// heap-less value.String cannot.
func (h *Heap) Display(v value.Value) string {
	switch v.Type {
	case value.VAL_FUNCTION:
		if f, ok := h.GetFunction(v.Handle); ok {
			return fmt.Sprintf("<fn %s>", f.Name)
		}
		return "<fn (collected)>"
	case value.VAL_CLOSURE:
		if c, ok := h.GetClosure(v.Handle); ok {
			if f, ok := h.GetFunction(c.Function); ok {
				return fmt.Sprintf("<fn %s>", f.Name)
			}
			return "<fn (collected)>"
		}
		return "<closure (collected)>"
	case value.VAL_ARRAY:
		return "<array>"
	case value.VAL_CLASS:
		if c, ok := h.GetClass(v.Handle); ok {
			return fmt.Sprintf("<class %s>", c.Name)
		}
		return "<class (collected)>"
	case value.VAL_INSTANCE:
		if i, ok := h.GetInstance(v.Handle); ok {
			if c, ok := h.GetClass(i.Class); ok {
				return fmt.Sprintf("<%s instance>", c.Name)
			}
			return "<instance (class collected)>"
		}
		return "<instance (collected)>"
	case value.VAL_BOUND_METHOD:
		if b, ok := h.GetBoundMethod(v.Handle); ok {
			if c, ok := h.GetClosure(b.Method); ok {
				if f, ok := h.GetFunction(c.Function); ok {
					return fmt.Sprintf("<method %s>", f.Name)
				}
			}
			return "<method>"
		}
		return "<method (collected)>"
	default:
		return v.String()
	}
}
