package script

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/docapi"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

func newHost(t *testing.T, opts ...Option) *Host {
	t.Helper()
	logger := zaptest.NewLogger(t)
	doc, err := docapi.NewSprite(sprite.FormatRGB, 8, 8, engine.WithLogger(logger))
	require.NoError(t, err)
	h := NewHost(doc, append([]Option{WithLogger(logger)}, opts...)...)
	t.Cleanup(func() {
		h.Close()
		_ = doc.Close()
	})
	return h
}

func do(t *testing.T, h *Host, code string) {
	t.Helper()
	require.NoError(t, h.DoString(context.Background(), code))
}

func TestEachEditIsOneUndoStep(t *testing.T) {
	h := newHost(t)
	do(t, h, `
		local l = sprite.add_layer("Ink")
		l:set_name("Outline")
	`)
	s := h.Document().Sprite()
	require.NotNil(t, s.LayerByName("Outline"))

	do(t, h, `assert(sprite.undo())`)
	assert.NotNil(t, s.LayerByName("Ink"))
	assert.Nil(t, s.LayerByName("Outline"))

	do(t, h, `assert(sprite.undo())`)
	assert.Nil(t, s.LayerByName("Ink"))
	do(t, h, `assert(sprite.undo() == false)`)
}

func TestTransactionGroupsEdits(t *testing.T) {
	h := newHost(t)
	do(t, h, `
		sprite.transaction("Setup", function()
			sprite.add_frame()
			sprite.add_layer("A")
			sprite.set_duration(2, 40)
		end)
	`)
	doc := h.Document()
	label, ok := doc.UndoLabel()
	require.True(t, ok)
	assert.Equal(t, "Setup", label)
	assert.Equal(t, 2, doc.Sprite().TotalFrames())

	do(t, h, `sprite.undo()`)
	assert.Equal(t, 1, doc.Sprite().TotalFrames())
	assert.Nil(t, doc.Sprite().LayerByName("A"))
	assert.False(t, doc.CanUndo())
}

func TestTransactionRollsBackOnError(t *testing.T) {
	h := newHost(t)
	err := h.DoString(context.Background(), `
		sprite.transaction("Broken", function()
			sprite.add_frame()
			sprite.add_layer("A")
			error("stop here")
		end)
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop here")

	doc := h.Document()
	assert.Equal(t, 1, doc.Sprite().TotalFrames())
	assert.Nil(t, doc.Sprite().LayerByName("A"))
	assert.False(t, doc.CanUndo())
	assert.False(t, doc.IsModified())
}

func TestNestedTransactionRefused(t *testing.T) {
	h := newHost(t)
	err := h.DoString(context.Background(), `
		sprite.transaction("Outer", function()
			sprite.add_frame()
			sprite.transaction("Inner", function() end)
		end)
	`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrNestedTransaction.Error())
	assert.Equal(t, 1, h.Document().Sprite().TotalFrames())
}

func TestHandlesSurviveUndoRedo(t *testing.T) {
	h := newHost(t)
	do(t, h, `
		local l = sprite.add_layer("Ink")
		sprite.undo()
		local ok = pcall(function() return l:name() end)
		assert(not ok, "removed layer still resolves")
		sprite.redo()
		assert(l:name() == "Ink")
		assert(l == sprite.layer("Ink"))
	`)
}

func TestLinkedCelsFromLua(t *testing.T) {
	h := newHost(t)
	do(t, h, `
		local l = sprite.layer("Layer 1")
		sprite.add_frame()
		local c1 = l:cel(1)
		local c2 = l:link_cel(2, c1)
		assert(c2:frame() == 2)
		assert(c1:linked() and c2:linked())
		assert(c1:data_id() == c2:data_id())

		local red = sprite.rgba(255, 0, 0)
		c1:fill(0, 0, 2, 2, red)
		assert(c2:pixel(1, 1) == red)

		c2:unlink()
		assert(not c1:linked())
		c2:fill(0, 0, 1, 1, sprite.rgba(0, 0, 255))
		assert(c1:pixel(0, 0) == red)

		sprite.undo()
		sprite.undo()
		assert(c2:linked())
	`)
}

func TestMoveToFromLua(t *testing.T) {
	h := newHost(t)
	do(t, h, `
		local start = sprite.state()
		sprite.add_frame()
		local two = sprite.state()
		sprite.add_frame()
		assert(sprite.frames() == 3)
		sprite.move_to(start)
		assert(sprite.frames() == 1)
		sprite.move_to(two)
		assert(sprite.frames() == 2)
	`)
}

func TestEventsReachLuaListeners(t *testing.T) {
	var out bytes.Buffer
	h := newHost(t, WithOutput(&out))
	do(t, h, `
		sprite.on("doc.layer.*", function(topic) print(topic) end)
		sprite.add_layer("A")
		sprite.undo()
	`)
	assert.Equal(t, "doc.layer.added\ndoc.layer.removed\n", out.String())

	err := h.DoString(context.Background(), `sprite.on("doc..bad", function() end)`)
	assert.Error(t, err)
}

func TestSandbox(t *testing.T) {
	var out bytes.Buffer
	h := newHost(t, WithOutput(&out))
	do(t, h, `
		assert(dofile == nil and loadfile == nil and require == nil)
		assert(io == nil and os == nil and debug == nil)
		print("hello", 42)
	`)
	assert.Equal(t, "hello\t42\n", out.String())
}

func TestBadArgumentsRaise(t *testing.T) {
	h := newHost(t)
	for _, code := range []string{
		`sprite.layer("Layer 1"):cel(5)`,
		`sprite.remove_frame(0)`,
		`sprite.layer("Layer 1"):set_opacity(300)`,
		`sprite.layer("Layer 1"):cel(1):pixel(8, 0)`,
		`sprite.layer("Layer 1").name(sprite.layer("Layer 1"):cel(1))`,
	} {
		assert.Error(t, h.DoString(context.Background(), code), code)
	}
	assert.False(t, h.Document().CanUndo())
}

func TestCancelStopsScript(t *testing.T) {
	h := newHost(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := h.DoString(ctx, `while true do end`)
	require.Error(t, err)

	// The host stays usable.
	do(t, h, `assert(sprite.frames() == 1)`)
}

func TestClosedHost(t *testing.T) {
	h := newHost(t)
	h.Close()
	h.Close()
	assert.ErrorIs(t, h.DoString(context.Background(), `return 1`), ErrHostClosed)
}
