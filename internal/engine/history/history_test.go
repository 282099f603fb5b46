package history

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

var errFail = errors.New("fail")

// counter is a minimal command target.
type counter struct {
	value    int
	log      []string
	notified int
	disposed []string
}

type addCmd struct {
	label    string
	n        int
	size     int
	failExec bool
}

func (c *addCmd) OnExecute(t *counter) error {
	if c.failExec {
		return errFail
	}
	t.value += c.n
	t.log = append(t.log, "do "+c.label)
	return nil
}

func (c *addCmd) OnUndo(t *counter) error {
	t.value -= c.n
	t.log = append(t.log, "undo "+c.label)
	return nil
}

func (c *addCmd) Label() string                  { return c.label }
func (c *addCmd) MemSize() int                   { return c.size }
func (c *addCmd) OnFireNotifications(t *counter) { t.notified++ }
func (c *addCmd) OnDispose(t *counter)           { t.disposed = append(t.disposed, c.label) }

// redoCmd records redo separately from execute.
type redoCmd struct{ addCmd }

func (c *redoCmd) OnRedo(t *counter) error {
	t.value += c.n
	t.log = append(t.log, "redo "+c.label)
	return nil
}

// holdCmd keeps a payload only while undone, like a command that removes
// an object and must be able to bring it back.
type holdCmd struct {
	addCmd
	held int
}

func (c *holdCmd) OnUndo(t *counter) error {
	c.held = 100
	return c.addCmd.OnUndo(t)
}

func (c *holdCmd) OnRedo(t *counter) error {
	c.held = 0
	t.value += c.n
	return nil
}

func (c *holdCmd) MemSize() int { return c.size + c.held }

func newCmd(label string, n int) *addCmd {
	return &addCmd{label: label, n: n, size: 10}
}

func add(t *testing.T, h *History[*counter], target *counter, label string, n int) StateID {
	t.Helper()
	s := NewStep[*counter](newCmd(label, n))
	if err := s.Execute(target); err != nil {
		t.Fatalf("Execute(%s) error = %v", label, err)
	}
	return h.Add(s)
}

func expectProtocolPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if _, ok := recover().(*ProtocolError); !ok {
			t.Fatal("expected a *ProtocolError panic")
		}
	}()
	fn()
}

// Step tests

func TestStepLifecycle(t *testing.T) {
	target := &counter{}
	s := NewStep[*counter](newCmd("a", 5))

	if s.State() != NotExecuted {
		t.Fatalf("State() = %v, want not-executed", s.State())
	}
	steps := []struct {
		run   func(*counter) error
		state State
		value int
	}{
		{s.Execute, Executed, 5},
		{s.Undo, Undone, 0},
		{s.Redo, Redone, 5},
		{s.Undo, Undone, 0},
		{s.Redo, Redone, 5},
	}
	for i, st := range steps {
		if err := st.run(target); err != nil {
			t.Fatalf("step %d error = %v", i, err)
		}
		if s.State() != st.state || target.value != st.value {
			t.Errorf("step %d: state %v value %d, want %v %d", i, s.State(), target.value, st.state, st.value)
		}
	}
	if target.notified != len(steps) {
		t.Errorf("notified = %d, want %d", target.notified, len(steps))
	}
}

func TestStepProtocolViolations(t *testing.T) {
	target := &counter{}

	expectProtocolPanic(t, func() { _ = NewStep[*counter](newCmd("a", 1)).Undo(target) })
	expectProtocolPanic(t, func() { _ = NewStep[*counter](newCmd("a", 1)).Redo(target) })

	s := NewStep[*counter](newCmd("a", 1))
	if err := s.Execute(target); err != nil {
		t.Fatal(err)
	}
	expectProtocolPanic(t, func() { _ = s.Execute(target) })
	expectProtocolPanic(t, func() { _ = s.Redo(target) })

	s.Dispose(target)
	expectProtocolPanic(t, func() { s.Dispose(target) })
	expectProtocolPanic(t, func() { _ = s.Undo(target) })
}

func TestStepFailedExecute(t *testing.T) {
	target := &counter{}
	s := NewStep[*counter](&addCmd{label: "bad", failExec: true})

	if err := s.Execute(target); !errors.Is(err, errFail) {
		t.Fatalf("Execute() error = %v, want errFail", err)
	}
	if s.State() != NotExecuted {
		t.Errorf("State() = %v after failure", s.State())
	}
	if target.notified != 0 {
		t.Error("failed execute must not notify")
	}
}

func TestStepCustomRedo(t *testing.T) {
	target := &counter{}
	s := NewStep[*counter](&redoCmd{addCmd{label: "r", n: 2}})
	_ = s.Execute(target)
	_ = s.Undo(target)
	if err := s.Redo(target); err != nil {
		t.Fatal(err)
	}
	want := []string{"do r", "undo r", "redo r"}
	if !reflect.DeepEqual(target.log, want) {
		t.Errorf("log = %v, want %v", target.log, want)
	}
}

// Sequence tests

func TestSequenceExecuteAndAdd(t *testing.T) {
	target := &counter{}
	seq := NewSequence[*counter]("batch")

	for _, c := range []*addCmd{newCmd("a", 1), newCmd("b", 2), newCmd("c", 4)} {
		if err := seq.ExecuteAndAdd(target, c); err != nil {
			t.Fatal(err)
		}
	}
	if target.value != 7 {
		t.Fatalf("value = %d, want 7 after ExecuteAndAdd", target.value)
	}

	err := seq.ExecuteAndAdd(target, &addCmd{label: "bad", failExec: true})
	if !errors.Is(err, errFail) {
		t.Fatalf("ExecuteAndAdd(bad) error = %v", err)
	}
	if seq.Len() != 3 {
		t.Errorf("Len() = %d, failed command must not be added", seq.Len())
	}
	if !reflect.DeepEqual(target.disposed, []string{"bad"}) {
		t.Errorf("disposed = %v, want [bad]", target.disposed)
	}
	if got, want := seq.MemSize(), sequenceOverhead+30; got != want {
		t.Errorf("MemSize() = %d, want %d", got, want)
	}

	s := NewStep[*counter](seq)
	if err := s.Execute(target); err != nil {
		t.Fatal(err)
	}
	if target.value != 7 {
		t.Fatalf("executing a pre-built sequence must not re-run children, value = %d", target.value)
	}

	target.log = nil
	_ = s.Undo(target)
	_ = s.Redo(target)
	want := []string{"undo c", "undo b", "undo a", "do a", "do b", "do c"}
	if !reflect.DeepEqual(target.log, want) {
		t.Errorf("log = %v, want %v", target.log, want)
	}

	s.Dispose(target)
	if got := target.disposed[1:]; !reflect.DeepEqual(got, []string{"c", "b", "a"}) {
		t.Errorf("disposed = %v, want newest first", got)
	}
}

func TestSequenceExecuteRollsBackOnFailure(t *testing.T) {
	target := &counter{}
	seq := NewSequence[*counter]("plan")
	seq.Append(newCmd("a", 1))
	seq.Append(newCmd("b", 2))
	seq.Append(&addCmd{label: "bad", failExec: true})

	if err := NewStep[*counter](seq).Execute(target); !errors.Is(err, errFail) {
		t.Fatalf("Execute() error = %v, want errFail", err)
	}
	if target.value != 0 {
		t.Errorf("value = %d, partial sequence must be undone", target.value)
	}
}

// History tests

func TestHistoryUndoRedo(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	h := New(target)

	if h.CanUndo() || h.CanRedo() {
		t.Fatal("empty history reports undo/redo")
	}
	if err := h.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() error = %v", err)
	}

	add(t, h, target, "a", 1)
	add(t, h, target, "b", 2)

	if label, ok := h.UndoLabel(); !ok || label != "b" {
		t.Errorf("UndoLabel() = %q, %v", label, ok)
	}
	if err := h.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if target.value != 1 || !h.CanRedo() {
		t.Errorf("after undo: value %d, CanRedo %v", target.value, h.CanRedo())
	}
	if err := h.Redo(ctx); err != nil {
		t.Fatal(err)
	}
	if target.value != 3 {
		t.Errorf("after redo: value %d, want 3", target.value)
	}
	if err := h.Redo(ctx); !errors.Is(err, ErrNothingToRedo) {
		t.Errorf("Redo() error = %v", err)
	}
}

func TestHistoryAddRequiresAppliedStep(t *testing.T) {
	h := New(&counter{})
	expectProtocolPanic(t, func() { h.Add(NewStep[*counter](newCmd("a", 1))) })
}

func TestHistoryBranchKeepsOldRedoLine(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	h := New(target)

	add(t, h, target, "a", 1)
	b := add(t, h, target, "b", 2)
	_ = h.Undo(ctx)
	c := add(t, h, target, "c", 4)

	if h.CanRedo() {
		t.Error("new branch tip has nothing to redo")
	}
	if err := h.MoveTo(ctx, b); err != nil {
		t.Fatal(err)
	}
	if target.value != 3 {
		t.Errorf("value at b = %d, want 3", target.value)
	}

	_ = h.Undo(ctx)
	if label, _ := h.RedoLabel(); label != "b" {
		t.Errorf("RedoLabel() = %q, redo follows the most recently visited child", label)
	}
	if err := h.MoveTo(ctx, c); err != nil {
		t.Fatal(err)
	}
	_ = h.Undo(ctx)
	if label, _ := h.RedoLabel(); label != "c" {
		t.Errorf("RedoLabel() = %q after visiting c", label)
	}
}

func TestHistoryMoveTo(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	h := New(target)

	add(t, h, target, "a", 1)
	b := add(t, h, target, "b", 2)
	_ = h.Undo(ctx)
	add(t, h, target, "c", 4)
	d := add(t, h, target, "d", 8)

	tests := []struct {
		name  string
		to    StateID
		value int
		log   []string
	}{
		{"across branches", b, 3, []string{"undo d", "undo c", "do b"}},
		{"back", d, 13, []string{"undo b", "do c", "do d"}},
		{"initial", 0, 0, []string{"undo d", "undo c", "undo a"}},
		{"same state", 0, 0, nil},
		{"from root", b, 3, []string{"do a", "do b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target.log = nil
			if err := h.MoveTo(ctx, tt.to); err != nil {
				t.Fatal(err)
			}
			if target.value != tt.value {
				t.Errorf("value = %d, want %d", target.value, tt.value)
			}
			if !reflect.DeepEqual(target.log, tt.log) {
				t.Errorf("log = %v, want %v", target.log, tt.log)
			}
			if h.Current() != tt.to {
				t.Errorf("Current() = %d, want %d", h.Current(), tt.to)
			}
		})
	}

	if err := h.MoveTo(ctx, 99); !errors.Is(err, ErrUnknownState) {
		t.Errorf("MoveTo(99) error = %v", err)
	}
}

func TestHistoryMoveToHonorsContext(t *testing.T) {
	target := &counter{}
	h := New(target)
	add(t, h, target, "a", 1)
	add(t, h, target, "b", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.MoveTo(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("MoveTo() error = %v", err)
	}
	if target.value != 3 {
		t.Errorf("value = %d, nothing should have run", target.value)
	}
}

func TestHistoryEviction(t *testing.T) {
	tests := []struct {
		name     string
		policy   EvictionPolicy
		disposed []string
		undos    int
	}{
		{"oldest evicts base", EvictOldest, []string{"a"}, 2},
		{"abandoned first", EvictAbandonedFirst, []string{"b"}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			target := &counter{}
			h := New(target, WithMaxEntries(3), WithMemoryLimit(0), WithEvictionPolicy(tt.policy))

			add(t, h, target, "a", 1)
			add(t, h, target, "b", 2)
			_ = h.Undo(ctx)
			add(t, h, target, "c", 4)
			add(t, h, target, "d", 8)

			if !reflect.DeepEqual(target.disposed, tt.disposed) {
				t.Errorf("disposed = %v, want %v", target.disposed, tt.disposed)
			}
			if h.Len() != 3 {
				t.Errorf("Len() = %d, want 3", h.Len())
			}
			undos := 0
			for h.CanUndo() {
				if err := h.Undo(ctx); err != nil {
					t.Fatal(err)
				}
				undos++
			}
			if undos != tt.undos {
				t.Errorf("undid %d entries, want %d", undos, tt.undos)
			}
			if err := h.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
				t.Errorf("Undo() past boundary error = %v", err)
			}
		})
	}
}

func TestHistoryMemoryBudgetKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	var evicted []StateInfo
	h := New(target, WithMemoryLimit(5), WithEvictHook(func(info StateInfo) {
		evicted = append(evicted, info)
	}))

	add(t, h, target, "a", 1)
	if h.Len() != 1 {
		t.Fatalf("current entry must survive, Len() = %d", h.Len())
	}

	add(t, h, target, "b", 2)
	if len(evicted) != 1 || evicted[0].Label != "a" {
		t.Fatalf("evicted = %+v, want a", evicted)
	}
	if h.MemSize() != 10 {
		t.Errorf("MemSize() = %d, want 10", h.MemSize())
	}
	if err := h.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if target.value != 1 || h.CanUndo() {
		t.Errorf("value %d CanUndo %v: a stays applied, undo stops at the boundary", target.value, h.CanUndo())
	}
}

func TestHistorySizeFollowsUndoneEntries(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	var evicted []string
	h := New(target, WithEvictionPolicy(EvictAbandonedFirst), WithEvictHook(func(info StateInfo) {
		evicted = append(evicted, info.Label)
	}))
	for _, l := range []string{"a", "b", "c"} {
		s := NewStep[*counter](&holdCmd{addCmd: addCmd{label: l, n: 1, size: 10}})
		if err := s.Execute(target); err != nil {
			t.Fatal(err)
		}
		h.Add(s)
	}
	if h.MemSize() != 30 {
		t.Fatalf("MemSize() = %d, want 30", h.MemSize())
	}

	if err := h.Undo(ctx); err != nil {
		t.Fatal(err)
	}
	if h.MemSize() != 130 {
		t.Errorf("after undo MemSize() = %d, want 130", h.MemSize())
	}
	if got := h.States()[3].Size; got != 110 {
		t.Errorf("undone entry Size = %d, want 110", got)
	}
	if err := h.Redo(ctx); err != nil {
		t.Fatal(err)
	}
	if h.MemSize() != 30 {
		t.Errorf("after redo MemSize() = %d, want 30", h.MemSize())
	}

	h.SetLimits(250, 0)
	for range 3 {
		if err := h.Undo(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if !reflect.DeepEqual(evicted, []string{"c"}) {
		t.Errorf("evicted = %v, want [c]", evicted)
	}
	if h.MemSize() != 220 || h.Len() != 2 {
		t.Errorf("MemSize() = %d Len() = %d, want 220 and 2", h.MemSize(), h.Len())
	}
}

func TestHistorySetLimits(t *testing.T) {
	target := &counter{}
	h := New(target)
	for _, l := range []string{"a", "b", "c", "d"} {
		add(t, h, target, l, 1)
	}
	h.SetLimits(0, 2)
	if h.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.Len())
	}
	if !reflect.DeepEqual(target.disposed, []string{"a", "b"}) {
		t.Errorf("disposed = %v", target.disposed)
	}
}

func TestHistoryClear(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	h := New(target)
	a := add(t, h, target, "a", 1)
	add(t, h, target, "b", 2)
	_ = h.Undo(ctx)

	h.Clear()
	if h.CanUndo() || h.CanRedo() {
		t.Error("cleared history reports undo/redo")
	}
	if h.Current() != a || h.Root() != a {
		t.Errorf("Current() = %d Root() = %d, want %d", h.Current(), h.Root(), a)
	}
	if target.value != 1 {
		t.Errorf("value = %d, clear must not touch the target", target.value)
	}
	if !reflect.DeepEqual(target.disposed, []string{"b", "a"}) {
		t.Errorf("disposed = %v", target.disposed)
	}
}

func TestHistoryStates(t *testing.T) {
	ctx := context.Background()
	target := &counter{}
	h := New(target)
	add(t, h, target, "a", 1)
	b := add(t, h, target, "b", 2)
	_ = h.Undo(ctx)

	states := h.States()
	if len(states) != 3 {
		t.Fatalf("len(States()) = %d, want 3", len(states))
	}
	if !states[0].Root || states[0].Label != "initial" {
		t.Errorf("states[0] = %+v", states[0])
	}
	if !states[1].Current || !states[1].Applied {
		t.Errorf("states[1] = %+v, want current and applied", states[1])
	}
	if states[2].ID != b || states[2].Applied || states[2].Depth != 2 {
		t.Errorf("states[2] = %+v", states[2])
	}
}

func TestParseEvictionPolicy(t *testing.T) {
	for _, p := range []EvictionPolicy{EvictOldest, EvictAbandonedFirst} {
		got, err := ParseEvictionPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseEvictionPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseEvictionPolicy("newest"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
