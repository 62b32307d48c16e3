package vm

import (
	"github.com/loaf-lang/loaf/internal/memory"
	"github.com/loaf-lang/loaf/internal/value"
)

// ObjectTypeID tags every heap object the interpreter allocates for a
// CreateObject instruction. GetProperty/SetProperty dereference through
// MemoryManager.GetTyped against this id, so a reference into a heap
// object allocated under any other type fails as a type-mismatch error
// (§4.2/§7) rather than being read as field pairs.
const ObjectTypeID uint32 = 1

// An object's payload encodes field name/value pairs as a flat, alternating
// []value.Value so it fits the memory package's homogeneous Object
// payload (there is no separate map-valued payload type). Even indices
// hold string keys, odd indices hold the field's value.
func objectGet(obj *memory.Object, key string) (value.Value, bool) {
	for i := 0; i+1 < len(obj.Payload); i += 2 {
		if k, ok := obj.Payload[i].AsString(); ok && k == key {
			return obj.Payload[i+1], true
		}
	}
	return value.Value{}, false
}

func objectSet(obj *memory.Object, key string, v value.Value) {
	for i := 0; i+1 < len(obj.Payload); i += 2 {
		if k, ok := obj.Payload[i].AsString(); ok && k == key {
			obj.Payload[i+1] = v
			return
		}
	}
	obj.Payload = append(obj.Payload, value.String(key), v)
}

// objectVisit is the memory package's VisitFunc for ObjectTypeID
// payloads: every odd-indexed slot that is itself an object reference
// is a live outgoing edge for the mark phase.
func objectVisit(obj *memory.Object) []value.Reference {
	if obj.TypeID != ObjectTypeID {
		return nil
	}
	var refs []value.Reference
	for i := 1; i < len(obj.Payload); i += 2 {
		if ref, ok := obj.Payload[i].AsReference(); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}
