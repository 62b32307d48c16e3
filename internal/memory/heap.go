// Package memory implements the multi-heap object store: per-heap
// mark-sweep garbage collection and a manager that routes allocation and
// dereference requests to the currently selected heap.
package memory

import (
	"fmt"

	"github.com/loaf-lang/loaf/internal/value"
)

// Object is one allocated payload, kept alongside the mark bit and type
// tag the GC and interpreter need.
type Object struct {
	ID      uint32
	TypeID  uint32
	Payload []value.Value
	marked  bool
}

// VisitFunc is called by the mark phase for every child reference of a
// live object; returning the referenced objects' references lets the caller
// mark and enqueue them without the heap knowing how payloads encode
// outgoing references.
type VisitFunc func(obj *Object) []value.Reference

// Heap owns objects allocated with a single heap id. Object ids are
// 1-based and monotonically increasing.
type Heap struct {
	ID          uint32
	objects     map[uint32]*Object
	nextID      uint32
	GCThreshold int
	GCEnabled   bool
}

func NewHeap(id uint32) *Heap {
	return &Heap{
		ID:          id,
		objects:     make(map[uint32]*Object),
		nextID:      1,
		GCThreshold: 10000,
		GCEnabled:   true,
	}
}

// Allocate stores payload under a fresh object id, running GC first if
// the configured threshold would otherwise be crossed.
func (h *Heap) Allocate(payload []value.Value, typeID uint32, roots []value.Reference, visit VisitFunc) (uint32, error) {
	if h.GCEnabled && len(h.objects)+1 > h.GCThreshold {
		h.Collect(roots, visit)
	}
	id := h.nextID
	h.nextID++
	h.objects[id] = &Object{ID: id, TypeID: typeID, Payload: payload}
	return id, nil
}

var ErrInvalidObjectID = fmt.Errorf("invalid object id")
var ErrTypeMismatch = fmt.Errorf("type mismatch")

func (h *Heap) Get(objectID uint32) (*Object, error) {
	obj, ok := h.objects[objectID]
	if !ok {
		return nil, ErrInvalidObjectID
	}
	return obj, nil
}

// GetTyped is Get plus a stored-type check (§4.2/§7: a typed retrieval
// additionally fails with a type-mismatch error when the stored type id
// disagrees with wantType).
func (h *Heap) GetTyped(objectID uint32, wantType uint32) (*Object, error) {
	obj, err := h.Get(objectID)
	if err != nil {
		return nil, err
	}
	if obj.TypeID != wantType {
		return nil, ErrTypeMismatch
	}
	return obj, nil
}

func (h *Heap) Count() int { return len(h.objects) }

// Collect runs an iterative mark-sweep pass: every root is marked, then
// each marked object's outgoing references (found via visit) are marked
// and enqueued in turn, avoiding recursion. Anything left unmarked after
// the mark phase is freed.
func (h *Heap) Collect(roots []value.Reference, visit VisitFunc) int {
	for _, obj := range h.objects {
		obj.marked = false
	}

	var stack []uint32
	for _, r := range roots {
		if r.IsNull() || r.HeapID() != h.ID {
			continue
		}
		stack = append(stack, r.ObjectID())
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		obj, ok := h.objects[id]
		if !ok || obj.marked {
			continue
		}
		obj.marked = true
		if visit == nil {
			continue
		}
		for _, child := range visit(obj) {
			if child.IsNull() || child.HeapID() != h.ID {
				continue
			}
			stack = append(stack, child.ObjectID())
		}
	}

	freed := 0
	for id, obj := range h.objects {
		if !obj.marked {
			delete(h.objects, id)
			freed++
		}
	}
	return freed
}
