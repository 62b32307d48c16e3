package memory

import (
	"testing"

	"github.com/loaf-lang/loaf/internal/value"
)

func TestDefaultHeapIsOne(t *testing.T) {
	mm := NewMemoryManager()
	if mm.CurrentHeapID() != 1 {
		t.Fatalf("expected default heap id 1, got %d", mm.CurrentHeapID())
	}
}

func TestCreateHeapMonotonic(t *testing.T) {
	mm := NewMemoryManager()
	h2 := mm.CreateHeap()
	h3 := mm.CreateHeap()
	if h2 != 2 || h3 != 3 {
		t.Fatalf("expected heaps 2,3 got %d,%d", h2, h3)
	}
}

func TestAllocateAndGet(t *testing.T) {
	mm := NewMemoryManager()
	ref, err := mm.Allocate([]value.Value{value.Integer(42)}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ref.HeapID() != 1 || ref.ObjectID() != 1 {
		t.Fatalf("unexpected reference %v", ref)
	}
	obj, err := mm.Get(ref)
	if err != nil {
		t.Fatal(err)
	}
	if i, _ := obj.Payload[0].AsInteger(); i != 42 {
		t.Fatalf("got %d want 42", i)
	}
}

func TestCollectSweepsUnreachable(t *testing.T) {
	mm := NewMemoryManager()
	ref, err := mm.Allocate(nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	freed, err := mm.Collect(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if freed != 1 {
		t.Fatalf("expected 1 freed object, got %d", freed)
	}
	if _, err := mm.Get(ref); err == nil {
		t.Fatal("expected reference to unreachable object to be invalid after collect")
	}
}

func TestGetTypedRejectsMismatchedTypeID(t *testing.T) {
	mm := NewMemoryManager()
	ref, err := mm.Allocate([]value.Value{value.Integer(42)}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mm.GetTyped(ref, 2); err == nil {
		t.Fatal("expected type-mismatch error for wrong typeID")
	}
	obj, err := mm.GetTyped(ref, 1)
	if err != nil {
		t.Fatalf("expected matching typeID to succeed: %v", err)
	}
	if i, _ := obj.Payload[0].AsInteger(); i != 42 {
		t.Fatalf("got %d want 42", i)
	}
}

func TestCollectKeepsRooted(t *testing.T) {
	mm := NewMemoryManager()
	ref, err := mm.Allocate(nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := mm.Collect(1, []value.Reference{ref}); err != nil {
		t.Fatal(err)
	}
	if _, err := mm.Get(ref); err != nil {
		t.Fatalf("expected rooted object to survive collection: %v", err)
	}
}
