package script

import (
	"fmt"
	"image"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/docapi"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

// Lua type names of the handle metatables.
const (
	layerType = "pixelstorm.Layer"
	celType   = "pixelstorm.Cel"
)

// handle is the userdata value behind a Lua Layer or Cel. It stores only
// the registry ID, so it resolves to the restored object after undo or
// redo and fails cleanly while the object is removed.
type handle struct {
	kind registry.Kind
	id   registry.ID
}

func typeName(k registry.Kind) string {
	if k == registry.KindCel {
		return celType
	}
	return layerType
}

func (h *Host) registerTypes() {
	h.registerType(layerType, h.layerMethods())
	h.registerType(celType, h.celMethods())
}

func (h *Host) registerType(name string, methods map[string]lua.LGFunction) {
	L := h.L
	mt := L.NewTypeMetatable(name)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		hd := L.CheckUserData(1).Value.(handle)
		L.Push(lua.LString(fmt.Sprintf("%s(%s)", hd.kind, hd.id)))
		return 1
	}))
	L.SetField(mt, "__eq", L.NewFunction(func(L *lua.LState) int {
		a, _ := L.CheckUserData(1).Value.(handle)
		b, _ := L.CheckUserData(2).Value.(handle)
		L.Push(lua.LBool(a == b))
		return 1
	}))
}

func (h *Host) pushHandle(L *lua.LState, kind registry.Kind, id registry.ID) lua.LValue {
	ud := L.NewUserData()
	ud.Value = handle{kind: kind, id: id}
	L.SetMetatable(ud, L.GetTypeMetatable(typeName(kind)))
	return ud
}

func checkHandle(L *lua.LState, n int, kind registry.Kind) registry.ID {
	hd, ok := L.CheckUserData(n).Value.(handle)
	if !ok || hd.kind != kind {
		L.ArgError(n, kind.String()+" expected")
	}
	return hd.id
}

func (h *Host) checkLayer(L *lua.LState, n int) *sprite.Layer {
	l, err := registry.Get[*sprite.Layer](h.doc.Registry(), checkHandle(L, n, registry.KindLayer))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return l
}

func (h *Host) checkCel(L *lua.LState, n int) *sprite.Cel {
	c, err := registry.Get[*sprite.Cel](h.doc.Registry(), checkHandle(L, n, registry.KindCel))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return c
}

func (h *Host) pushCel(L *lua.LState, c *sprite.Cel) {
	if c == nil {
		L.Push(lua.LNil)
		return
	}
	L.Push(h.pushHandle(L, registry.KindCel, c.ID()))
}

// ============================================================================
// Layer methods
// ============================================================================

func (h *Host) layerMethods() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"id": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkLayer(L, 1).ID().String()))
			return 1
		},
		"name": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkLayer(L, 1).Name()))
			return 1
		},
		"set_name": func(L *lua.LState) int {
			h.exec(L, commands.NewSetLayerName(h.checkLayer(L, 1), L.CheckString(2)))
			return 0
		},
		"opacity": func(L *lua.LState) int {
			L.Push(lua.LNumber(h.checkLayer(L, 1).Opacity()))
			return 1
		},
		"set_opacity": func(L *lua.LState) int {
			h.exec(L, commands.NewSetLayerOpacity(h.checkLayer(L, 1), checkByte(L, 2)))
			return 0
		},
		"visible": func(L *lua.LState) int {
			L.Push(lua.LBool(h.checkLayer(L, 1).IsVisible()))
			return 1
		},
		"set_visible": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			flags := l.Flags() &^ sprite.FlagVisible
			if L.CheckBool(2) {
				flags |= sprite.FlagVisible
			}
			h.exec(L, commands.NewSetLayerFlags(l, flags))
			return 0
		},
		"is_group": func(L *lua.LState) int {
			L.Push(lua.LBool(h.checkLayer(L, 1).IsGroup()))
			return 1
		},
		"is_background": func(L *lua.LState) int {
			L.Push(lua.LBool(h.checkLayer(L, 1).IsBackground()))
			return 1
		},
		"parent": func(L *lua.LState) int {
			p := h.checkLayer(L, 1).Parent()
			if p == nil || p == h.doc.Sprite().Root() {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(h.pushHandle(L, registry.KindLayer, p.ID()))
			return 1
		},
		"children": func(L *lua.LState) int {
			t := L.NewTable()
			for _, c := range h.checkLayer(L, 1).Children() {
				t.Append(h.pushHandle(L, registry.KindLayer, c.ID()))
			}
			L.Push(t)
			return 1
		},
		"cel": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			h.pushCel(L, l.Cel(h.checkFrame(L, 2)))
			return 1
		},
		"cels": func(L *lua.LState) int {
			t := L.NewTable()
			for _, c := range h.checkLayer(L, 1).Cels() {
				t.Append(h.pushHandle(L, registry.KindCel, c.ID()))
			}
			L.Push(t)
			return 1
		},
		"add_cel": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			f := h.checkFrame(L, 2)
			add := commands.NewAddCel(l, f, nil, image.Pt(L.OptInt(3, 0), L.OptInt(4, 0)))
			h.exec(L, add)
			L.Push(h.pushHandle(L, registry.KindCel, add.CelID()))
			return 1
		},
		"link_cel": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			f := h.checkFrame(L, 2)
			src := h.checkCel(L, 3)
			add := commands.NewAddLinkedCel(l, f, src.Data(), src.Position())
			h.exec(L, add)
			L.Push(h.pushHandle(L, registry.KindCel, add.CelID()))
			return 1
		},
		"link_cels": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			first, last := h.checkFrame(L, 2), h.checkFrame(L, 3)
			h.mutate(L, "Link Cels", func(tx *engine.Transaction) error {
				return docapi.LinkCels(tx, l, first, last)
			})
			return 0
		},
		"duplicate": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			var dup *sprite.Layer
			h.mutate(L, "Duplicate Layer", func(tx *engine.Transaction) error {
				var err error
				dup, err = docapi.DuplicateLayer(tx, l)
				return err
			})
			L.Push(h.pushHandle(L, registry.KindLayer, dup.ID()))
			return 1
		},
		"move": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			parent := h.doc.Sprite().Root()
			if L.Get(2) != lua.LNil {
				parent = h.checkLayer(L, 2)
			}
			index := L.OptInt(3, len(parent.Children())+1) - 1
			h.exec(L, commands.NewMoveLayer(l, parent, index))
			return 0
		},
		"remove": func(L *lua.LState) int {
			h.exec(L, commands.NewRemoveLayer(h.checkLayer(L, 1)))
			return 0
		},
		"to_background": func(L *lua.LState) int {
			l := h.checkLayer(L, 1)
			h.mutate(L, "Background from Layer", func(tx *engine.Transaction) error {
				return docapi.BackgroundFromLayer(tx, l)
			})
			return 0
		},
	}
}

// ============================================================================
// Cel methods
// ============================================================================

func (h *Host) celMethods() map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"id": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkCel(L, 1).ID().String()))
			return 1
		},
		"data_id": func(L *lua.LState) int {
			L.Push(lua.LString(h.checkCel(L, 1).Data().ID().String()))
			return 1
		},
		"layer": func(L *lua.LState) int {
			L.Push(h.pushHandle(L, registry.KindLayer, h.checkCel(L, 1).Layer().ID()))
			return 1
		},
		"frame": func(L *lua.LState) int {
			L.Push(frameNumber(h.checkCel(L, 1).Frame()))
			return 1
		},
		"set_frame": func(L *lua.LState) int {
			c := h.checkCel(L, 1)
			h.exec(L, commands.NewSetCelFrame(c, h.checkFrame(L, 2)))
			return 0
		},
		"opacity": func(L *lua.LState) int {
			L.Push(lua.LNumber(h.checkCel(L, 1).Opacity()))
			return 1
		},
		"set_opacity": func(L *lua.LState) int {
			h.exec(L, commands.NewSetCelOpacity(h.checkCel(L, 1), checkByte(L, 2)))
			return 0
		},
		"position": func(L *lua.LState) int {
			p := h.checkCel(L, 1).Position()
			L.Push(lua.LNumber(p.X))
			L.Push(lua.LNumber(p.Y))
			return 2
		},
		"set_position": func(L *lua.LState) int {
			h.exec(L, commands.NewSetCelPosition(h.checkCel(L, 1), image.Pt(L.CheckInt(2), L.CheckInt(3))))
			return 0
		},
		"linked": func(L *lua.LState) int {
			L.Push(lua.LBool(h.checkCel(L, 1).IsLinked()))
			return 1
		},
		"unlink": func(L *lua.LState) int {
			c := h.checkCel(L, 1)
			h.mutate(L, "Unlink Cel", func(tx *engine.Transaction) error {
				return docapi.UnlinkCel(tx, c)
			})
			return 0
		},
		"pixel": func(L *lua.LState) int {
			img := h.checkCel(L, 1).Image()
			x, y := L.CheckInt(2), L.CheckInt(3)
			if !image.Pt(x, y).In(img.Bounds()) {
				L.ArgError(2, "point outside the cel image")
			}
			L.Push(lua.LNumber(img.Pixel(x, y)))
			return 1
		},
		"fill": func(L *lua.LState) int {
			c := h.checkCel(L, 1)
			r := image.Rect(L.CheckInt(2), L.CheckInt(3), L.CheckInt(2)+L.CheckInt(4), L.CheckInt(3)+L.CheckInt(5))
			color := sprite.Color(uint32(L.CheckInt64(6)))
			h.fill(L, c, r, color)
			return 0
		},
		"clear": func(L *lua.LState) int {
			h.exec(L, commands.NewClearCelImage(h.checkCel(L, 1)))
			return 0
		},
		"remove": func(L *lua.LState) int {
			h.exec(L, commands.NewRemoveCel(h.checkCel(L, 1)))
			return 0
		},
	}
}

// fill paints r on the cel image, clipped to the image, as a pixel patch.
// Linked cels see the change.
func (h *Host) fill(L *lua.LState, c *sprite.Cel, r image.Rectangle, color sprite.Color) {
	edited := c.Image().Copy()
	r = r.Intersect(edited.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			edited.SetPixel(x, y, color)
		}
	}
	patch, err := commands.NewPatchImage(c.Data(), edited)
	if err != nil {
		L.RaiseError("fill: %s", err.Error())
	}
	if patch.Region().IsEmpty() {
		return
	}
	h.exec(L, patch)
}

func checkByte(L *lua.LState, n int) uint8 {
	v := L.CheckInt(n)
	if v < 0 || v > 255 {
		L.ArgError(n, "value must be between 0 and 255")
	}
	return uint8(v)
}
