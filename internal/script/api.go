package script

import (
	"errors"
	"image"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/docapi"
	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event/topic"
)

// mutate runs fn in the open sprite.transaction, or in a transaction of its
// own. Failures are raised as Lua errors.
func (h *Host) mutate(L *lua.LState, label string, fn func(tx *engine.Transaction) error) {
	var err error
	if h.tx != nil {
		err = fn(h.tx)
	} else {
		err = h.doc.Transact(h.ctx, label, fn)
	}
	if err != nil {
		h.logger.Debug("script edit failed", zap.String("label", label), zap.Error(err))
		L.RaiseError("%s: %s", label, err.Error())
	}
	if h.tx == nil {
		h.deliver(L)
	}
}

func (h *Host) exec(L *lua.LState, cmd engine.Command) {
	h.mutate(L, cmd.Label(), func(tx *engine.Transaction) error { return tx.Execute(cmd) })
}

// checkFrame converts the 1-based frame number at n.
func (h *Host) checkFrame(L *lua.LState, n int) sprite.Frame {
	f := L.CheckInt(n)
	if f < 1 || f > h.doc.Sprite().TotalFrames() {
		L.ArgError(n, "frame out of range")
	}
	return sprite.Frame(f - 1)
}

func frameNumber(f sprite.Frame) lua.LNumber { return lua.LNumber(int(f) + 1) }

func (h *Host) spriteModule() *lua.LTable {
	return h.L.SetFuncs(h.L.NewTable(), map[string]lua.LGFunction{
		"width":  func(L *lua.LState) int { L.Push(lua.LNumber(h.doc.Sprite().Width())); return 1 },
		"height": func(L *lua.LState) int { L.Push(lua.LNumber(h.doc.Sprite().Height())); return 1 },
		"frames": func(L *lua.LState) int { L.Push(lua.LNumber(h.doc.Sprite().TotalFrames())); return 1 },
		"format": func(L *lua.LState) int { L.Push(lua.LString(h.doc.Sprite().Format().String())); return 1 },

		"layers":     h.spriteLayers,
		"layer":      h.spriteLayer,
		"background": h.spriteBackground,
		"add_layer":  h.spriteAddLayer,
		"add_group":  h.spriteAddGroup,
		"flatten":    h.spriteFlatten,

		"layer_from_background": h.spriteLayerFromBackground,

		"add_frame":    h.spriteAddFrame,
		"remove_frame": h.spriteRemoveFrame,
		"copy_frame":   h.spriteCopyFrame,
		"duration":     h.spriteDuration,
		"set_duration": h.spriteSetDuration,
		"resize":       h.spriteResize,

		"select":   h.spriteSelect,
		"deselect": h.spriteDeselect,

		"transaction": h.spriteTransaction,
		"undo":        h.spriteUndo,
		"redo":        h.spriteRedo,
		"state":       h.spriteState,
		"move_to":     h.spriteMoveTo,
		"modified":    func(L *lua.LState) int { L.Push(lua.LBool(h.doc.IsModified())); return 1 },
		"on":          h.spriteOn,

		"rgba":   spriteRGBA,
		"unpack": spriteUnpack,
	})
}

func (h *Host) spriteLayers(L *lua.LState) int {
	t := L.NewTable()
	for _, l := range h.doc.Sprite().Layers() {
		t.Append(h.pushHandle(L, registry.KindLayer, l.ID()))
	}
	L.Push(t)
	return 1
}

func (h *Host) spriteLayer(L *lua.LState) int {
	l := h.doc.Sprite().LayerByName(L.CheckString(1))
	if l == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(h.pushHandle(L, registry.KindLayer, l.ID()))
	return 1
}

func (h *Host) spriteBackground(L *lua.LState) int {
	bg := h.doc.Sprite().Background()
	if bg == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(h.pushHandle(L, registry.KindLayer, bg.ID()))
	return 1
}

func (h *Host) addLayer(L *lua.LState, kind sprite.LayerKind) int {
	name := L.CheckString(1)
	parent := h.doc.Sprite().Root()
	if L.GetTop() >= 2 {
		parent = h.checkLayer(L, 2)
	}
	add := commands.NewAddLayer(parent, kind, name, -1)
	h.exec(L, add)
	L.Push(h.pushHandle(L, registry.KindLayer, add.LayerID()))
	return 1
}

func (h *Host) spriteAddLayer(L *lua.LState) int { return h.addLayer(L, sprite.LayerImage) }
func (h *Host) spriteAddGroup(L *lua.LState) int { return h.addLayer(L, sprite.LayerGroup) }

func (h *Host) spriteFlatten(L *lua.LState) int {
	name := L.OptString(1, "Flattened")
	var flat *sprite.Layer
	h.mutate(L, "Flatten", func(tx *engine.Transaction) error {
		var err error
		flat, err = docapi.FlattenLayers(tx, name)
		return err
	})
	L.Push(h.pushHandle(L, registry.KindLayer, flat.ID()))
	return 1
}

func (h *Host) spriteLayerFromBackground(L *lua.LState) int {
	name := L.OptString(1, "Layer 0")
	h.mutate(L, "Layer from Background", func(tx *engine.Transaction) error {
		return docapi.LayerFromBackground(tx, name)
	})
	return 0
}

func (h *Host) spriteAddFrame(L *lua.LState) int {
	total := h.doc.Sprite().TotalFrames()
	at := L.OptInt(1, total+1)
	if at < 1 || at > total+1 {
		L.ArgError(1, "frame out of range")
	}
	h.exec(L, commands.NewAddFrame(sprite.Frame(at-1), L.OptInt(2, 0)))
	L.Push(lua.LNumber(at))
	return 1
}

func (h *Host) spriteRemoveFrame(L *lua.LState) int {
	f := h.checkFrame(L, 1)
	h.mutate(L, "Remove Frame", func(tx *engine.Transaction) error {
		return docapi.RemoveFrame(tx, f)
	})
	return 0
}

func (h *Host) spriteCopyFrame(L *lua.LState) int {
	src := h.checkFrame(L, 1)
	dst := L.OptInt(2, int(src)+2)
	if dst < 1 || dst > h.doc.Sprite().TotalFrames()+1 {
		L.ArgError(2, "frame out of range")
	}
	h.mutate(L, "Copy Frame", func(tx *engine.Transaction) error {
		return docapi.CopyFrame(tx, src, sprite.Frame(dst-1))
	})
	L.Push(lua.LNumber(dst))
	return 1
}

func (h *Host) spriteDuration(L *lua.LState) int {
	L.Push(lua.LNumber(h.doc.Sprite().FrameDuration(h.checkFrame(L, 1))))
	return 1
}

func (h *Host) spriteSetDuration(L *lua.LState) int {
	f := h.checkFrame(L, 1)
	h.exec(L, commands.NewSetFrameDuration(h.doc.Sprite(), f, L.CheckInt(2)))
	return 0
}

func (h *Host) spriteResize(L *lua.LState) int {
	h.exec(L, commands.NewSetSpriteSize(h.doc.Sprite(), L.CheckInt(1), L.CheckInt(2)))
	return 0
}

func (h *Host) spriteSelect(L *lua.LState) int {
	r := image.Rect(L.CheckInt(1), L.CheckInt(2), L.CheckInt(1)+L.CheckInt(3), L.CheckInt(2)+L.CheckInt(4))
	h.exec(L, commands.NewSetMask(sprite.NewRectMask(r)))
	return 0
}

func (h *Host) spriteDeselect(L *lua.LState) int {
	h.exec(L, commands.NewDeselectMask())
	return 0
}

// spriteTransaction runs fn so that every edit it makes is one undo step.
// An error raised inside fn rolls all of them back and is re-raised.
func (h *Host) spriteTransaction(L *lua.LState) int {
	label := L.CheckString(1)
	fn := L.CheckFunction(2)
	if h.tx != nil {
		L.RaiseError("%s", ErrNestedTransaction.Error())
	}
	err := h.doc.Transact(h.ctx, label, func(tx *engine.Transaction) error {
		h.tx = tx
		defer func() { h.tx = nil }()
		return L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
	})
	if err != nil {
		L.RaiseError("%s: %s", label, err.Error())
	}
	h.deliver(L)
	return 0
}

// navigate pushes false instead of raising when there is nothing to do.
func (h *Host) navigate(L *lua.LState, fn func() error, none error) int {
	if h.tx != nil {
		L.RaiseError("cannot navigate history inside a transaction")
	}
	err := fn()
	if none != nil && errors.Is(err, none) {
		L.Push(lua.LFalse)
		return 1
	}
	if err != nil {
		L.RaiseError("%s", err.Error())
	}
	h.deliver(L)
	L.Push(lua.LTrue)
	return 1
}

func (h *Host) spriteUndo(L *lua.LState) int {
	return h.navigate(L, func() error { return h.doc.Undo(h.ctx) }, history.ErrNothingToUndo)
}

func (h *Host) spriteRedo(L *lua.LState) int {
	return h.navigate(L, func() error { return h.doc.Redo(h.ctx) }, history.ErrNothingToRedo)
}

func (h *Host) spriteState(L *lua.LState) int {
	L.Push(lua.LNumber(h.doc.CurrentState()))
	return 1
}

func (h *Host) spriteMoveTo(L *lua.LState) int {
	id := engine.StateID(L.CheckInt64(1))
	return h.navigate(L, func() error { return h.doc.MoveTo(h.ctx, id) }, nil)
}

func (h *Host) spriteOn(L *lua.LState) int {
	pattern := topic.Topic(L.CheckString(1))
	if err := h.on(pattern, L.CheckFunction(2)); err != nil {
		L.ArgError(1, err.Error())
	}
	return 0
}

func spriteRGBA(L *lua.LState) int {
	c := sprite.RGBA(uint8(L.CheckInt(1)), uint8(L.CheckInt(2)), uint8(L.CheckInt(3)), uint8(L.OptInt(4, 255)))
	L.Push(lua.LNumber(c))
	return 1
}

func spriteUnpack(L *lua.LState) int {
	c := sprite.Color(uint32(L.CheckInt64(1)))
	L.Push(lua.LNumber(c.R()))
	L.Push(lua.LNumber(c.G()))
	L.Push(lua.LNumber(c.B()))
	L.Push(lua.LNumber(c.A()))
	return 4
}
