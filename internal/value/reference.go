package value

import "fmt"

// Reference is an object handle packed into a single 64-bit word: the
// high 32 bits are the owning heap id, the low 32 bits are the object id
// within that heap. The zero value is the null reference.
type Reference uint64

func NewReference(heapID, objectID uint32) Reference {
	return Reference(uint64(heapID)<<32 | uint64(objectID))
}

func (r Reference) HeapID() uint32   { return uint32(r >> 32) }
func (r Reference) ObjectID() uint32 { return uint32(r & 0xFFFFFFFF) }
func (r Reference) IsNull() bool     { return r == 0 }

func (r Reference) String() string {
	if r.IsNull() {
		return "<ref:null>"
	}
	return fmt.Sprintf("<ref:%d:%d>", r.HeapID(), r.ObjectID())
}
