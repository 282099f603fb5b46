package sprite

import (
	"fmt"
	"sort"

	"github.com/dshills/pixelstorm/internal/engine/registry"
)

// LayerKind distinguishes image layers from group layers.
type LayerKind uint8

const (
	// LayerImage holds cels.
	LayerImage LayerKind = iota
	// LayerGroup holds child layers.
	LayerGroup
)

// String returns the kind name.
func (k LayerKind) String() string {
	if k == LayerGroup {
		return "group"
	}
	return "image"
}

// LayerFlags is a bit set of layer properties.
type LayerFlags uint8

const (
	FlagVisible LayerFlags = 1 << iota
	FlagEditable
	FlagLockMove
	FlagBackground
	FlagContinuous

	// DefaultLayerFlags are the flags of a freshly created layer.
	DefaultLayerFlags = FlagVisible | FlagEditable
	// BackgroundFlags are the flags a background layer carries.
	BackgroundFlags = FlagVisible | FlagEditable | FlagLockMove | FlagBackground
)

const layerOverhead = 96

// Layer is a node of the sprite's layer tree.
type Layer struct {
	id       registry.ID
	kind     LayerKind
	name     string
	flags    LayerFlags
	opacity  uint8
	sprite   *Sprite
	parent   *Layer
	children []*Layer // index 0 is the bottom of the stack
	cels     []*Cel   // sorted by frame
}

// LayerState is the value form of a Layer without its contents. Parent and
// Index locate the layer in the tree.
type LayerState struct {
	ID      registry.ID `json:"id"`
	Kind    LayerKind   `json:"kind"`
	Name    string      `json:"name"`
	Flags   LayerFlags  `json:"flags"`
	Opacity uint8       `json:"opacity"`
	Parent  registry.ID `json:"parent"`
	Index   int         `json:"index"`
}

// NewLayer registers an empty, detached layer of the given kind.
func NewLayer(s *Sprite, kind LayerKind, name string) *Layer {
	obj := s.reg.Register(registry.KindLayer, func(id registry.ID) registry.Object {
		return &Layer{
			id:      id,
			kind:    kind,
			name:    name,
			flags:   DefaultLayerFlags,
			opacity: 255,
			sprite:  s,
		}
	})
	return obj.(*Layer)
}

// RestoreLayer rebuilds an empty layer under its original ID. The caller
// inserts it into its parent.
func RestoreLayer(s *Sprite, st LayerState) (*Layer, error) {
	l := &Layer{
		id:      st.ID,
		kind:    st.Kind,
		name:    st.Name,
		flags:   st.Flags,
		opacity: st.Opacity,
		sprite:  s,
	}
	if err := s.reg.Attach(st.ID, l); err != nil {
		return nil, fmt.Errorf("restore layer: %w", err)
	}
	return l, nil
}

// ID returns the registry ID.
func (l *Layer) ID() registry.ID { return l.id }

// Kind implements registry.Object.
func (l *Layer) Kind() registry.Kind { return registry.KindLayer }

// LayerKind returns whether the layer holds cels or children.
func (l *Layer) LayerKind() LayerKind { return l.kind }

// IsImage reports whether the layer holds cels.
func (l *Layer) IsImage() bool { return l.kind == LayerImage }

// IsGroup reports whether the layer holds child layers.
func (l *Layer) IsGroup() bool { return l.kind == LayerGroup }

// Name returns the layer name.
func (l *Layer) Name() string { return l.name }

// SetName renames the layer.
func (l *Layer) SetName(name string) { l.name = name }

// Flags returns the layer flags.
func (l *Layer) Flags() LayerFlags { return l.flags }

// SetFlags replaces the layer flags.
func (l *Layer) SetFlags(f LayerFlags) { l.flags = f }

// IsVisible reports whether the visible flag is set on the layer itself.
func (l *Layer) IsVisible() bool { return l.flags&FlagVisible != 0 }

// IsVisibleInTree reports whether the layer and all its ancestors are visible.
func (l *Layer) IsVisibleInTree() bool {
	for p := l; p != nil; p = p.parent {
		if p.parent != nil && !p.IsVisible() {
			return false
		}
	}
	return true
}

// IsBackground reports whether the layer is the sprite background.
func (l *Layer) IsBackground() bool { return l.flags&FlagBackground != 0 }

// Opacity returns the layer opacity.
func (l *Layer) Opacity() uint8 { return l.opacity }

// SetOpacity changes the layer opacity.
func (l *Layer) SetOpacity(o uint8) { l.opacity = o }

// Sprite returns the owning sprite.
func (l *Layer) Sprite() *Sprite { return l.sprite }

// Parent returns the parent group, or nil for the root or a detached layer.
func (l *Layer) Parent() *Layer { return l.parent }

// Children returns a copy of the child list, bottom first.
func (l *Layer) Children() []*Layer {
	return append([]*Layer(nil), l.children...)
}

// Index returns the layer's position among its siblings, or -1.
func (l *Layer) Index() int {
	if l.parent == nil {
		return -1
	}
	for i, c := range l.parent.children {
		if c == l {
			return i
		}
	}
	return -1
}

// IsAncestorOf reports whether l contains other somewhere in its subtree.
func (l *Layer) IsAncestorOf(other *Layer) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == l {
			return true
		}
	}
	return false
}

// InsertLayer inserts child at index among l's children.
func (l *Layer) InsertLayer(child *Layer, index int) error {
	if !l.IsGroup() {
		return ErrNotGroupLayer
	}
	if child == l || child.IsAncestorOf(l) {
		return ErrCycle
	}
	if child.parent != nil {
		return fmt.Errorf("insert layer %s: already has a parent", child.id)
	}
	if index < 0 || index > len(l.children) {
		return fmt.Errorf("insert layer %s at %d: index out of range", child.id, index)
	}
	l.children = append(l.children, nil)
	copy(l.children[index+1:], l.children[index:])
	l.children[index] = child
	child.parent = l
	return nil
}

// RemoveLayer detaches child from l and returns its former index.
func (l *Layer) RemoveLayer(child *Layer) (int, error) {
	for i, c := range l.children {
		if c == child {
			l.children = append(l.children[:i], l.children[i+1:]...)
			child.parent = nil
			return i, nil
		}
	}
	return -1, ErrLayerNotFound
}

// Cels returns a copy of the cel list, sorted by frame.
func (l *Layer) Cels() []*Cel {
	return append([]*Cel(nil), l.cels...)
}

// CelCount returns the number of cels.
func (l *Layer) CelCount() int { return len(l.cels) }

// Cel returns the cel at frame, or nil.
func (l *Layer) Cel(frame Frame) *Cel {
	i := l.celIndex(frame)
	if i < len(l.cels) && l.cels[i].frame == frame {
		return l.cels[i]
	}
	return nil
}

func (l *Layer) celIndex(frame Frame) int {
	return sort.Search(len(l.cels), func(i int) bool { return l.cels[i].frame >= frame })
}

// AddCel attaches c to l at the cel's frame and counts its link.
func (l *Layer) AddCel(c *Cel) error {
	if !l.IsImage() {
		return ErrNotImageLayer
	}
	if c.layer != nil {
		return fmt.Errorf("add cel %s: already attached to layer %s", c.id, c.layer.id)
	}
	if l.sprite != nil && (c.frame < 0 || int(c.frame) >= l.sprite.TotalFrames()) {
		return fmt.Errorf("add cel %s at frame %d: %w", c.id, c.frame, ErrFrameOutOfRange)
	}
	i := l.celIndex(c.frame)
	if i < len(l.cels) && l.cels[i].frame == c.frame {
		return fmt.Errorf("add cel %s at frame %d: %w", c.id, c.frame, ErrCelExists)
	}
	l.cels = append(l.cels, nil)
	copy(l.cels[i+1:], l.cels[i:])
	l.cels[i] = c
	c.layer = l
	c.data.links++
	return nil
}

// RemoveCel detaches c from l and drops its link.
func (l *Layer) RemoveCel(c *Cel) error {
	if c.layer != l {
		return ErrCelNotFound
	}
	i := l.celIndex(c.frame)
	if i >= len(l.cels) || l.cels[i] != c {
		return ErrCelNotFound
	}
	l.cels = append(l.cels[:i], l.cels[i+1:]...)
	c.layer = nil
	c.data.links--
	return nil
}

// MoveCel changes the frame of an attached cel.
func (l *Layer) MoveCel(c *Cel, frame Frame) error {
	if c.layer != l {
		return ErrCelNotFound
	}
	if c.frame == frame {
		return nil
	}
	if l.sprite != nil && (frame < 0 || int(frame) >= l.sprite.TotalFrames()) {
		return fmt.Errorf("move cel %s to frame %d: %w", c.id, frame, ErrFrameOutOfRange)
	}
	if l.Cel(frame) != nil {
		return fmt.Errorf("move cel %s to frame %d: %w", c.id, frame, ErrCelExists)
	}
	if err := l.RemoveCel(c); err != nil {
		return err
	}
	c.frame = frame
	return l.AddCel(c)
}

// shiftFrames moves every cel at or after from by delta.
func (l *Layer) shiftFrames(from Frame, delta int) {
	for _, c := range l.cels {
		if c.frame >= from {
			c.frame += Frame(delta)
		}
	}
}

// Walk visits l and its descendants in stack order: each group before its
// children, children bottom to top. Returning false stops the walk.
func (l *Layer) Walk(fn func(*Layer) bool) bool {
	if !fn(l) {
		return false
	}
	for _, c := range l.children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// State captures the layer fields and tree position.
func (l *Layer) State() LayerState {
	st := LayerState{
		ID:      l.id,
		Kind:    l.kind,
		Name:    l.name,
		Flags:   l.flags,
		Opacity: l.opacity,
		Index:   l.Index(),
	}
	if l.parent != nil {
		st.Parent = l.parent.id
	}
	return st
}

// MemSize estimates the memory held by a layer state.
func (st LayerState) MemSize() int { return layerOverhead + len(st.Name) }
