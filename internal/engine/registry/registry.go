package registry

import (
	"fmt"
	"sync"
)

// ID identifies a document object. The high 32 bits hold the slot index and
// the low 32 bits its generation.
type ID uint64

// NullID is the zero ID. It never resolves.
const NullID ID = 0

// MakeID packs a slot index and a generation into an ID.
func MakeID(index, generation uint32) ID {
	return ID(uint64(index)<<32 | uint64(generation))
}

// Index returns the slot index.
func (id ID) Index() uint32 { return uint32(id >> 32) }

// Generation returns the slot generation.
func (id ID) Generation() uint32 { return uint32(id) }

// String formats the ID as index:generation.
func (id ID) String() string {
	if id == NullID {
		return "null"
	}
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// Kind categorizes registered objects.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSprite
	KindLayer
	KindCel
	KindCelData
	KindImage
	KindPalette
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSprite:
		return "sprite"
	case KindLayer:
		return "layer"
	case KindCel:
		return "cel"
	case KindCelData:
		return "celdata"
	case KindImage:
		return "image"
	case KindPalette:
		return "palette"
	default:
		return "unknown"
	}
}

// Object is implemented by everything stored in the registry.
type Object interface {
	ID() ID
	Kind() Kind
}

type slotState uint8

const (
	slotFree slotState = iota
	slotReserved
	slotLive
	slotDetached
)

type slot struct {
	gen   uint32
	state slotState
	kind  Kind
	obj   Object
}

// Stats reports slot usage.
type Stats struct {
	Live     int
	Detached int
	Reserved int
	Free     int
}

// Registry is a generational slot arena. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	slots []slot
	free  []uint32
}

// New creates an empty registry.
func New() *Registry {
	// Slot 0 is never handed out so that MakeID(0, 0) stays the null ID.
	return &Registry{slots: make([]slot, 1, 64)}
}

// Allocate reserves a fresh ID for an object of the given kind.
func (r *Registry) Allocate(kind Kind) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{gen: 1})
	}

	s := &r.slots[idx]
	s.state = slotReserved
	s.kind = kind
	s.obj = nil
	return MakeID(idx, s.gen)
}

// Register allocates an ID for obj's kind and attaches obj in one step.
// The factory receives the new ID so the object can store it.
func (r *Registry) Register(kind Kind, factory func(ID) Object) Object {
	id := r.Allocate(kind)
	obj := factory(id)
	if err := r.Attach(id, obj); err != nil {
		panic(fmt.Sprintf("registry: attach fresh %s %s: %v", kind, id, err))
	}
	return obj
}

// Attach binds obj to a reserved or detached slot.
func (r *Registry) Attach(id ID, obj Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(id)
	if err != nil {
		return err
	}
	if s.state == slotLive {
		return fmt.Errorf("attach %s: %w", id, ErrSlotBusy)
	}
	if obj.ID() != id {
		return fmt.Errorf("attach %s: object carries id %s", id, obj.ID())
	}
	if s.kind != KindUnknown && obj.Kind() != s.kind {
		return fmt.Errorf("attach %s as %s (reserved for %s): %w", id, obj.Kind(), s.kind, ErrKindMismatch)
	}
	s.kind = obj.Kind()
	s.obj = obj
	s.state = slotLive
	return nil
}

// Detach removes the live object from the slot but keeps the reservation.
func (r *Registry) Detach(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(id)
	if err != nil {
		return err
	}
	switch s.state {
	case slotLive:
		s.obj = nil
		s.state = slotDetached
		return nil
	case slotDetached:
		return fmt.Errorf("detach %s: %w", id, ErrDetached)
	default:
		return fmt.Errorf("detach %s: %w", id, ErrNotAttached)
	}
}

// Release frees a reserved or detached slot. The slot's generation is bumped
// so every copy of id becomes stale.
func (r *Registry) Release(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(id)
	if err != nil {
		return err
	}
	if s.state == slotLive {
		return fmt.Errorf("release %s: %w", id, ErrNotDetached)
	}
	r.freeLocked(id.Index(), s)
	return nil
}

// Remove drops a live object and frees its slot immediately. It is used
// when an object dies without any command able to resurrect it, such as
// document close.
func (r *Registry) Remove(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.slotLocked(id)
	if err != nil {
		return err
	}
	r.freeLocked(id.Index(), s)
	return nil
}

func (r *Registry) freeLocked(idx uint32, s *slot) {
	s.obj = nil
	s.kind = KindUnknown
	s.state = slotFree
	s.gen++
	if s.gen == 0 {
		// Generation wrapped; retire the slot rather than reuse an old ID.
		return
	}
	r.free = append(r.free, idx)
}

// Lookup resolves id to its live object.
func (r *Registry) Lookup(id ID) (Object, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.slotLocked(id)
	if err != nil {
		return nil, err
	}
	switch s.state {
	case slotLive:
		return s.obj, nil
	case slotDetached:
		return nil, fmt.Errorf("lookup %s %s: %w", s.kind, id, ErrDetached)
	default:
		return nil, fmt.Errorf("lookup %s: %w", id, ErrNotAttached)
	}
}

// IsLive reports whether id currently resolves.
func (r *Registry) IsLive(id ID) bool {
	_, err := r.Lookup(id)
	return err == nil
}

// IsDetached reports whether id is held detached.
func (r *Registry) IsDetached(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, err := r.slotLocked(id)
	return err == nil && s.state == slotDetached
}

// slotLocked validates id and returns its slot. Caller holds r.mu.
func (r *Registry) slotLocked(id ID) (*slot, error) {
	if id == NullID {
		return nil, ErrNullID
	}
	idx := id.Index()
	if idx == 0 || int(idx) >= len(r.slots) {
		return nil, fmt.Errorf("id %s: %w", id, ErrStale)
	}
	s := &r.slots[idx]
	if s.gen != id.Generation() || s.state == slotFree {
		return nil, fmt.Errorf("id %s: %w", id, ErrStale)
	}
	return s, nil
}

// Stats returns slot counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var st Stats
	for i := 1; i < len(r.slots); i++ {
		switch r.slots[i].state {
		case slotLive:
			st.Live++
		case slotDetached:
			st.Detached++
		case slotReserved:
			st.Reserved++
		default:
			st.Free++
		}
	}
	return st
}

// Get resolves id and asserts the object type.
func Get[T Object](r *Registry, id ID) (T, error) {
	var zero T
	obj, err := r.Lookup(id)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("id %s is %s: %w", id, obj.Kind(), ErrKindMismatch)
	}
	return t, nil
}
