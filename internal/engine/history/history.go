package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StateID names a document state in the history: the state reached after
// the entry's command was applied. The initial state has ID 0.
type StateID uint64

// StateInfo describes one retained history state.
type StateInfo struct {
	ID      StateID
	Parent  StateID
	Label   string
	Depth   int
	Size    int
	Created time.Time
	Root    bool // earliest state still reachable by undo
	Current bool
	Applied bool // on the path from the root to the current state
}

type node[C any] struct {
	id       StateID
	label    string
	step     *Step[C]
	parent   *node[C]
	children []*node[C]
	last     *node[C] // most recently visited child
	depth    int
	size     int
	created  time.Time
}

// redoChild returns the child a plain redo follows.
func (n *node[C]) redoChild() *node[C] {
	if n.last != nil {
		return n.last
	}
	if len(n.children) > 0 {
		return n.children[len(n.children)-1]
	}
	return nil
}

// History is a tree of applied steps with a movable current state.
//
// Adding a step while an earlier state is current starts a new branch; the
// previous redo line stays reachable through MoveTo. Navigation runs step
// commands against the target supplied to New.
type History[C any] struct {
	mu sync.Mutex
	settings

	target     C
	root       *node[C]
	current    *node[C]
	nodes      map[StateID]*node[C]
	nextID     StateID
	memory     int
	navigating bool
}

// New creates an empty history whose steps act on target.
func New[C any](target C, opts ...Option) *History[C] {
	h := &History[C]{
		settings: defaultSettings(),
		target:   target,
		nodes:    make(map[StateID]*node[C]),
		nextID:   1,
	}
	for _, opt := range opts {
		opt(&h.settings)
	}
	h.root = &node[C]{label: "initial", created: h.now()}
	h.current = h.root
	h.nodes[0] = h.root
	return h
}

// Add records an applied step as a child of the current state and makes it
// current. Limits are enforced afterwards.
func (h *History[C]) Add(step *Step[C]) StateID {
	if !step.IsApplied() {
		panic(&ProtocolError{Op: "add", Label: step.Label(), State: step.State()})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.navigating {
		panic(&ProtocolError{Op: "add during navigation", Label: step.Label(), State: step.State()})
	}

	n := &node[C]{
		id:      h.nextID,
		label:   step.Label(),
		step:    step,
		parent:  h.current,
		depth:   h.current.depth + 1,
		size:    step.MemSize(),
		created: h.now(),
	}
	h.nextID++
	h.current.children = append(h.current.children, n)
	h.current.last = n
	h.current = n
	h.nodes[n.id] = n
	h.memory += n.size

	h.evictLocked()
	return n.id
}

// CanUndo reports whether the current state has a parent.
func (h *History[C]) CanUndo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != h.root
}

// CanRedo reports whether the current state has a child.
func (h *History[C]) CanRedo() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.current.children) > 0
}

// UndoLabel returns the label of the entry Undo would revert.
func (h *History[C]) UndoLabel() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == h.root {
		return "", false
	}
	return h.current.label, true
}

// RedoLabel returns the label of the entry Redo would apply.
func (h *History[C]) RedoLabel() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if next := h.current.redoChild(); next != nil {
		return next.label, true
	}
	return "", false
}

// Current returns the current state.
func (h *History[C]) Current() StateID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current.id
}

// Root returns the earliest state still reachable.
func (h *History[C]) Root() StateID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.root.id
}

// Has reports whether id is a retained state.
func (h *History[C]) Has(id StateID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.nodes[id]
	return ok
}

// Len returns the number of retained entries, not counting the root state.
func (h *History[C]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.nodes) - 1
}

// MemSize returns the summed size of retained entries.
func (h *History[C]) MemSize() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.memory
}

// Undo reverts the current entry and moves to its parent.
func (h *History[C]) Undo(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.navigating {
		h.mu.Unlock()
		return ErrBusy
	}
	n := h.current
	if n == h.root {
		h.mu.Unlock()
		return ErrNothingToUndo
	}
	h.navigating = true
	h.mu.Unlock()

	err := h.undoNode(n)
	h.finish()
	return err
}

// Redo re-applies the most recently visited child of the current state.
func (h *History[C]) Redo(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	if h.navigating {
		h.mu.Unlock()
		return ErrBusy
	}
	next := h.current.redoChild()
	if next == nil {
		h.mu.Unlock()
		return ErrNothingToRedo
	}
	h.navigating = true
	h.mu.Unlock()

	err := h.redoNode(next)
	h.finish()
	return err
}

// MoveTo navigates to any retained state. It undoes entries from the
// current state back to the lowest common ancestor of both states, then
// redoes entries from there to the target. The context is checked between
// entries; on error the current state is the last one fully reached.
func (h *History[C]) MoveTo(ctx context.Context, id StateID) error {
	h.mu.Lock()
	if h.navigating {
		h.mu.Unlock()
		return ErrBusy
	}
	target, ok := h.nodes[id]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("move to %d: %w", id, ErrUnknownState)
	}
	ups, downs := path(h.current, target)
	h.navigating = true
	h.mu.Unlock()
	defer h.finish()

	for _, n := range ups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.undoNode(n); err != nil {
			return err
		}
	}
	for _, n := range downs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.redoNode(n); err != nil {
			return err
		}
	}
	return nil
}

// path returns the nodes to undo going from a to the common ancestor, and
// the nodes to redo going from there to b.
func path[C any](a, b *node[C]) (ups, downs []*node[C]) {
	for a.depth > b.depth {
		ups = append(ups, a)
		a = a.parent
	}
	for b.depth > a.depth {
		downs = append(downs, b)
		b = b.parent
	}
	for a != b {
		ups = append(ups, a)
		a = a.parent
		downs = append(downs, b)
		b = b.parent
	}
	for i, j := 0, len(downs)-1; i < j; i, j = i+1, j-1 {
		downs[i], downs[j] = downs[j], downs[i]
	}
	return ups, downs
}

func (h *History[C]) undoNode(n *node[C]) error {
	err := n.step.Undo(h.target)
	h.mu.Lock()
	h.resizeLocked(n)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("undo %q: %w", n.label, err)
	}
	h.current = n.parent
	n.parent.last = n
	h.mu.Unlock()
	return nil
}

func (h *History[C]) redoNode(n *node[C]) error {
	err := n.step.Redo(h.target)
	h.mu.Lock()
	h.resizeLocked(n)
	if err != nil {
		h.mu.Unlock()
		return fmt.Errorf("redo %q: %w", n.label, err)
	}
	h.current = n
	n.parent.last = n
	h.mu.Unlock()
	return nil
}

// resizeLocked re-reads n's size after its step ran. Commands may hold
// more or less state once undone, so the budget follows them.
func (h *History[C]) resizeLocked(n *node[C]) {
	size := n.step.MemSize()
	h.memory += size - n.size
	n.size = size
}

func (h *History[C]) finish() {
	h.mu.Lock()
	h.navigating = false
	h.evictLocked()
	h.mu.Unlock()
}

// States lists every retained state ordered by ID.
func (h *History[C]) States() []StateInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	applied := make(map[*node[C]]bool)
	for n := h.current; n != nil; n = n.parent {
		applied[n] = true
	}

	out := make([]StateInfo, 0, len(h.nodes))
	for _, n := range h.nodes {
		info := h.infoLocked(n)
		info.Applied = applied[n]
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *History[C]) infoLocked(n *node[C]) StateInfo {
	info := StateInfo{
		ID:      n.id,
		Label:   n.label,
		Depth:   n.depth - h.root.depth,
		Size:    n.size,
		Created: n.created,
		Root:    n == h.root,
		Current: n == h.current,
	}
	if n.parent != nil {
		info.Parent = n.parent.id
	}
	return info
}

// SetLimits changes the memory budget and entry limit and evicts as needed.
func (h *History[C]) SetLimits(memoryLimit, maxEntries int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.memoryLimit = memoryLimit
	h.maxEntries = maxEntries
	if !h.navigating {
		h.evictLocked()
	}
}

// SetEvictionPolicy changes the eviction order for later evictions.
func (h *History[C]) SetEvictionPolicy(p EvictionPolicy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policy = p
}

// Clear disposes every entry. The current state becomes the root, so the
// document itself is untouched and nothing can be undone or redone.
func (h *History[C]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.navigating {
		panic(&ProtocolError{Op: "clear during navigation", Label: h.current.label})
	}

	cur := h.current
	for _, c := range append([]*node[C](nil), h.root.children...) {
		h.dropSubtreeLocked(c)
	}
	delete(h.nodes, h.root.id)
	h.root = &node[C]{id: cur.id, label: cur.label, depth: cur.depth, created: cur.created}
	h.current = h.root
	h.nodes[h.root.id] = h.root
	h.memory = 0
}

func (h *History[C]) overLimitLocked() bool {
	if h.memoryLimit > 0 && h.memory > h.memoryLimit {
		return true
	}
	return h.maxEntries > 0 && len(h.nodes)-1 > h.maxEntries
}

// evictLocked disposes entries until the limits hold or nothing more can go.
// The current state and its ancestors other than the base are never
// candidates, so undo past an eviction simply becomes unavailable.
func (h *History[C]) evictLocked() {
	for h.overLimitLocked() {
		base := h.baseLocked()
		victim := h.pickVictimLocked(base)
		if victim == nil {
			return
		}
		info := h.infoLocked(victim)
		if victim == base {
			h.promoteLocked(victim)
		} else {
			h.dropSubtreeLocked(victim)
		}
		h.logger.Debug("history entry evicted",
			zap.Uint64("state", uint64(info.ID)),
			zap.String("label", info.Label),
			zap.Int("bytes", info.Size),
			zap.Int("retained", h.memory))
		if h.onEvict != nil {
			h.onEvict(info)
		}
	}
}

// baseLocked returns the root child on the path to the current state, or
// nil when the current state is the root or is that child.
func (h *History[C]) baseLocked() *node[C] {
	if h.current == h.root {
		return nil
	}
	n := h.current
	for n.parent != h.root {
		n = n.parent
	}
	if n == h.current {
		return nil
	}
	return n
}

func (h *History[C]) pickVictimLocked(base *node[C]) *node[C] {
	var leaves []*node[C]
	for _, n := range h.nodes {
		if n != h.root && n != h.current && len(n.children) == 0 {
			leaves = append(leaves, n)
		}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].id < leaves[j].id })

	switch h.policy {
	case EvictAbandonedFirst:
		redoLine := make(map[*node[C]]bool)
		for n := h.current.redoChild(); n != nil; n = n.redoChild() {
			redoLine[n] = true
		}
		var tip *node[C]
		for _, n := range leaves {
			if !redoLine[n] {
				return n
			}
			tip = n
		}
		if tip != nil {
			return tip
		}
		return base
	default:
		if len(leaves) > 0 && (base == nil || leaves[0].id < base.id) {
			return leaves[0]
		}
		return base
	}
}

// promoteLocked evicts the base entry: its command is disposed, every other
// branch of the root is dropped and the base state becomes the new root.
func (h *History[C]) promoteLocked(base *node[C]) {
	old := h.root
	for _, c := range append([]*node[C](nil), old.children...) {
		if c != base {
			h.dropSubtreeLocked(c)
		}
	}
	base.step.Dispose(h.target)
	base.step = nil
	h.memory -= base.size
	base.size = 0
	base.parent = nil
	delete(h.nodes, old.id)
	h.root = base
}

// dropSubtreeLocked disposes n and everything below it, newest first.
func (h *History[C]) dropSubtreeLocked(n *node[C]) {
	for i := len(n.children) - 1; i >= 0; i-- {
		h.dropSubtreeLocked(n.children[i])
	}
	n.children = nil
	n.last = nil
	if n.step != nil {
		n.step.Dispose(h.target)
		n.step = nil
	}
	h.memory -= n.size
	delete(h.nodes, n.id)

	if p := n.parent; p != nil {
		for i, c := range p.children {
			if c == n {
				p.children = append(p.children[:i], p.children[i+1:]...)
				break
			}
		}
		if p.last == n {
			p.last = nil
		}
		n.parent = nil
	}
}
