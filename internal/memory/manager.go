package memory

import (
	"fmt"
	"sync"

	"github.com/loaf-lang/loaf/internal/value"
)

// HeapManager issues monotonic, 1-based heap ids.
type HeapManager struct {
	mu     sync.Mutex
	nextID uint32
}

func NewHeapManager() *HeapManager {
	return &HeapManager{nextID: 1}
}

func (m *HeapManager) NextID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

var (
	ErrInvalidReference = fmt.Errorf("invalid reference")
	ErrUnknownHeap      = fmt.Errorf("unknown heap")
)

// MemoryManager owns the heap registry and the "current heap" selector
// that CreateObject-family opcodes allocate against. A default heap
// (id 1) exists from construction.
type MemoryManager struct {
	mu         sync.Mutex
	heapMgr    *HeapManager
	heaps      map[uint32]*Heap
	currentID  uint32
	visit      VisitFunc
}

func NewMemoryManager() *MemoryManager {
	hm := NewHeapManager()
	mm := &MemoryManager{
		heapMgr: hm,
		heaps:   make(map[uint32]*Heap),
	}
	defaultID := hm.NextID()
	mm.heaps[defaultID] = NewHeap(defaultID)
	mm.currentID = defaultID
	return mm
}

// SetVisitor installs the callback used to discover outgoing references
// during GC. Callers that never allocate object-graph payloads (arrays
// and scalars only) can leave this unset.
func (m *MemoryManager) SetVisitor(v VisitFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visit = v
}

func (m *MemoryManager) CreateHeap() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.heapMgr.NextID()
	m.heaps[id] = NewHeap(id)
	return id
}

func (m *MemoryManager) SwitchHeap(heapID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.heaps[heapID]; !ok {
		return ErrUnknownHeap
	}
	m.currentID = heapID
	return nil
}

func (m *MemoryManager) CurrentHeapID() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

func (m *MemoryManager) Configure(threshold int, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.heaps {
		h.GCThreshold = threshold
		h.GCEnabled = enabled
	}
}

// Allocate stores payload on the current heap and returns a packed
// reference.
func (m *MemoryManager) Allocate(payload []value.Value, typeID uint32, roots []value.Reference) (value.Reference, error) {
	m.mu.Lock()
	heap, ok := m.heaps[m.currentID]
	visit := m.visit
	m.mu.Unlock()
	if !ok {
		return 0, ErrUnknownHeap
	}
	objID, err := heap.Allocate(payload, typeID, roots, visit)
	if err != nil {
		return 0, fmt.Errorf("heap error: %w", err)
	}
	return value.NewReference(heap.ID, objID), nil
}

// Get dereferences across heaps: the reference's own heap id selects the
// heap, regardless of which heap is currently selected.
func (m *MemoryManager) Get(ref value.Reference) (*Object, error) {
	if ref.IsNull() {
		return nil, ErrInvalidReference
	}
	m.mu.Lock()
	heap, ok := m.heaps[ref.HeapID()]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidReference
	}
	obj, err := heap.Get(ref.ObjectID())
	if err != nil {
		return nil, fmt.Errorf("heap error: %w", err)
	}
	return obj, nil
}

// GetTyped dereferences across heaps like Get, additionally rejecting a
// stored object whose TypeID disagrees with wantType with ErrTypeMismatch
// (§4.2/§7's typed-retrieval contract).
func (m *MemoryManager) GetTyped(ref value.Reference, wantType uint32) (*Object, error) {
	if ref.IsNull() {
		return nil, ErrInvalidReference
	}
	m.mu.Lock()
	heap, ok := m.heaps[ref.HeapID()]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidReference
	}
	obj, err := heap.GetTyped(ref.ObjectID(), wantType)
	if err != nil {
		return nil, fmt.Errorf("heap error: %w", err)
	}
	return obj, nil
}

func (m *MemoryManager) Collect(heapID uint32, roots []value.Reference) (int, error) {
	m.mu.Lock()
	heap, ok := m.heaps[heapID]
	visit := m.visit
	m.mu.Unlock()
	if !ok {
		return 0, ErrUnknownHeap
	}
	return heap.Collect(roots, visit), nil
}

func (m *MemoryManager) CollectAll(roots []value.Reference) int {
	m.mu.Lock()
	heaps := make([]*Heap, 0, len(m.heaps))
	for _, h := range m.heaps {
		heaps = append(heaps, h)
	}
	visit := m.visit
	m.mu.Unlock()
	total := 0
	for _, h := range heaps {
		total += h.Collect(roots, visit)
	}
	return total
}
