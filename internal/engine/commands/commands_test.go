package commands

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/history"
	"github.com/dshills/pixelstorm/internal/engine/registry"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
	"github.com/dshills/pixelstorm/internal/event"
)

var red = sprite.RGBA(255, 0, 0, 255)

type fixture struct {
	doc   *engine.Document
	layer *sprite.Layer
}

func (f *fixture) sprite() *sprite.Sprite { return f.doc.Sprite() }

func (f *fixture) cel(frame sprite.Frame) *sprite.Cel { return f.layer.Cel(frame) }

// newFixture creates a 4x4 RGB document with one image layer holding a
// blank cel at frame 0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc, err := engine.New(sprite.FormatRGB, 4, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })

	var layerID registry.ID
	err = doc.Transact(context.Background(), "setup", func(tx *engine.Transaction) error {
		add := NewAddLayer(doc.Sprite().Root(), sprite.LayerImage, "Layer 1", -1)
		if err := tx.Execute(add); err != nil {
			return err
		}
		layerID = add.LayerID()
		layer, err := registry.Get[*sprite.Layer](doc.Registry(), layerID)
		if err != nil {
			return err
		}
		return tx.Execute(NewAddCel(layer, 0, nil, image.Point{}))
	})
	require.NoError(t, err)

	layer, err := registry.Get[*sprite.Layer](doc.Registry(), layerID)
	require.NoError(t, err)
	return &fixture{doc: doc, layer: layer}
}

func (f *fixture) run(t *testing.T, label string, cmds ...engine.Command) {
	t.Helper()
	err := f.doc.Transact(context.Background(), label, func(tx *engine.Transaction) error {
		for _, c := range cmds {
			if err := tx.Execute(c); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func encode(t *testing.T, doc *engine.Document) string {
	t.Helper()
	b, err := doc.Encode()
	require.NoError(t, err)
	return string(b)
}

func TestCommandRoundTrip(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		setup func(t *testing.T, f *fixture)
		cmd   func(t *testing.T, f *fixture) engine.Command
	}{
		{
			name: "add frame",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewAddFrame(0, 0) },
		},
		{
			name: "remove frame with cels",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddFrame(1, 40))
				f.run(t, "prep", NewAddCel(f.layer, 1, nil, image.Pt(1, 1)))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command { return NewRemoveFrame(0) },
		},
		{
			name: "shrink frame count",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewSetTotalFrames(3))
				f.run(t, "prep", NewAddLinkedCel(f.layer, 2, f.cel(0).Data(), image.Point{}))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command { return NewSetTotalFrames(1) },
		},
		{
			name: "frame duration",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetFrameDuration(f.sprite(), 0, 250)
			},
		},
		{
			name: "add cel from image",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddFrame(1, 0))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				src := f.cel(0).Image().Copy()
				src.SetPixel(0, 0, red)
				return NewAddCel(f.layer, 1, src, image.Pt(2, 2))
			},
		},
		{
			name: "remove cel",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewRemoveCel(f.cel(0)) },
		},
		{
			name: "move cel",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetCelPosition(f.cel(0), image.Pt(-1, 2))
			},
		},
		{
			name: "cel opacity",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewSetCelOpacity(f.cel(0), 10) },
		},
		{
			name: "cel z-index",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewSetCelZIndex(f.cel(0), 3) },
		},
		{
			name:  "cel to other frame",
			setup: func(t *testing.T, f *fixture) { f.run(t, "prep", NewAddFrame(1, 0)) },
			cmd:   func(_ *testing.T, f *fixture) engine.Command { return NewSetCelFrame(f.cel(0), 1) },
		},
		{
			name:  "link cel",
			setup: func(t *testing.T, f *fixture) { f.run(t, "prep", NewAddFrame(1, 0)) },
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewAddLinkedCel(f.layer, 1, f.cel(0).Data(), image.Point{})
			},
		},
		{
			name: "unlink cel",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddFrame(1, 0))
				f.run(t, "prep", NewAddLinkedCel(f.layer, 1, f.cel(0).Data(), image.Point{}))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command { return NewUnlinkCel(f.cel(1)) },
		},
		{
			name: "relink cel dropping data",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddFrame(1, 0))
				f.run(t, "prep", NewAddCel(f.layer, 1, nil, image.Point{}))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetCelData(f.cel(1), f.cel(0).Data())
			},
		},
		{
			name: "patch image",
			cmd: func(t *testing.T, f *fixture) engine.Command {
				edited := f.cel(0).Image().Copy()
				edited.SetPixel(2, 1, red)
				cmd, err := NewPatchImage(f.cel(0).Data(), edited)
				require.NoError(t, err)
				return cmd
			},
		},
		{
			name: "replace image",
			cmd: func(t *testing.T, f *fixture) engine.Command {
				img, err := sprite.NewImage(registry.New(), sprite.FormatRGB, 2, 3)
				require.NoError(t, err)
				img.Fill(red)
				return NewReplaceImage(f.cel(0).Data(), img)
			},
		},
		{
			name: "clear cel",
			setup: func(t *testing.T, f *fixture) {
				edited := f.cel(0).Image().Copy()
				edited.Fill(red)
				cmd, err := NewPatchImage(f.cel(0).Data(), edited)
				require.NoError(t, err)
				f.run(t, "prep", cmd)
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command { return NewClearCelImage(f.cel(0)) },
		},
		{
			name: "add layer",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewAddLayer(f.sprite().Root(), sprite.LayerImage, "Layer 2", -1)
			},
		},
		{
			name: "remove group with contents",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddLayer(f.sprite().Root(), sprite.LayerGroup, "Group", -1))
				group := f.sprite().LayerByName("Group")
				f.run(t, "prep", NewAddLayer(group, sprite.LayerImage, "Inner", 0))
				inner := f.sprite().LayerByName("Inner")
				f.run(t, "prep", NewAddLinkedCel(inner, 0, f.cel(0).Data(), image.Point{}))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewRemoveLayer(f.sprite().LayerByName("Group"))
			},
		},
		{
			name: "move layer",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddLayer(f.sprite().Root(), sprite.LayerImage, "Layer 2", -1))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewMoveLayer(f.sprite().LayerByName("Layer 2"), f.sprite().Root(), 0)
			},
		},
		{
			name: "rename layer",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewSetLayerName(f.layer, "Ink") },
		},
		{
			name: "layer opacity",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewSetLayerOpacity(f.layer, 128) },
		},
		{
			name: "layer flags",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetLayerFlags(f.layer, sprite.FlagVisible)
			},
		},
		{
			name: "background from layer",
			cmd:  func(_ *testing.T, f *fixture) engine.Command { return NewBackgroundFromLayer(f.layer) },
		},
		{
			name:  "layer from background",
			setup: func(t *testing.T, f *fixture) { f.run(t, "prep", NewBackgroundFromLayer(f.layer)) },
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewLayerFromBackground(f.layer, "Layer 0")
			},
		},
		{
			name: "canvas size",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetSpriteSize(f.sprite(), 8, 6)
			},
		},
		{
			name: "transparent color",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetTransparentColor(f.sprite(), 5)
			},
		},
		{
			name: "replace palette colors",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetPalette(0, sprite.GrayRamp(16))
			},
		},
		{
			name:  "add palette",
			setup: func(t *testing.T, f *fixture) { f.run(t, "prep", NewAddFrame(1, 0)) },
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetPalette(1, sprite.GrayRamp(16))
			},
		},
		{
			name: "palette entry",
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewSetPaletteEntry(f.sprite().Palette(0), 3, red)
			},
		},
		{
			name: "remove palette",
			setup: func(t *testing.T, f *fixture) {
				f.run(t, "prep", NewAddFrame(1, 0))
				f.run(t, "prep", NewSetPalette(1, sprite.GrayRamp(4)))
			},
			cmd: func(_ *testing.T, f *fixture) engine.Command {
				return NewRemovePalette(f.sprite().PaletteAt(1))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			before := encode(t, f.doc)

			f.run(t, tt.name, tt.cmd(t, f))
			after := encode(t, f.doc)
			assert.NotEqual(t, before, after, "command changed nothing")

			require.NoError(t, f.doc.Undo(ctx))
			assert.Equal(t, before, encode(t, f.doc), "undo")
			require.NoError(t, f.doc.Redo(ctx))
			assert.Equal(t, after, encode(t, f.doc), "redo")
			require.NoError(t, f.doc.Undo(ctx))
			assert.Equal(t, before, encode(t, f.doc), "second undo")
			require.NoError(t, f.doc.Redo(ctx))
			assert.Equal(t, after, encode(t, f.doc), "second redo")
		})
	}
}

func TestTransactionIsAtomic(t *testing.T) {
	f := newFixture(t)
	before := encode(t, f.doc)
	state := f.doc.CurrentState()

	err := f.doc.Transact(context.Background(), "broken", func(tx *engine.Transaction) error {
		if err := tx.Execute(NewAddFrame(1, 0)); err != nil {
			return err
		}
		if err := tx.Execute(NewSetLayerName(f.layer, "Renamed")); err != nil {
			return err
		}
		// frame 0 is taken by the existing cel
		return tx.Execute(NewAddCel(f.layer, 0, nil, image.Point{}))
	})
	require.ErrorIs(t, err, sprite.ErrCelExists)

	assert.Equal(t, before, encode(t, f.doc))
	assert.Equal(t, state, f.doc.CurrentState())
	assert.False(t, f.doc.IsInconsistent())
}

func TestLinkedCelsShareData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.run(t, "frames", NewSetTotalFrames(3))
	data := f.cel(0).Data()
	f.run(t, "link",
		NewAddLinkedCel(f.layer, 1, data, image.Point{}),
		NewAddLinkedCel(f.layer, 2, data, image.Point{}))
	assert.Equal(t, 3, data.Links())

	unlink := NewUnlinkCel(f.cel(1))
	f.run(t, "unlink", unlink)
	assert.Equal(t, 2, data.Links())
	copyID := unlink.DataID()
	assert.NotEqual(t, data.ID(), copyID)
	assert.Equal(t, copyID, f.cel(1).Data().ID())

	require.NoError(t, f.doc.Undo(ctx))
	assert.Same(t, data, f.cel(1).Data())
	assert.Equal(t, 3, data.Links())
	assert.True(t, f.doc.Registry().IsDetached(copyID))

	require.NoError(t, f.doc.Redo(ctx))
	assert.Equal(t, copyID, f.cel(1).Data().ID(), "redo reuses the copy's ID")
	assert.False(t, f.cel(1).IsLinked())
}

func TestUnlinkRequiresLinkedCel(t *testing.T) {
	f := newFixture(t)
	err := f.doc.Transact(context.Background(), "unlink", func(tx *engine.Transaction) error {
		return tx.Execute(NewUnlinkCel(f.cel(0)))
	})
	var pe *sprite.PreconditionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "unlink cel", pe.Op)
}

func TestPatchDrawsThroughLinks(t *testing.T) {
	f := newFixture(t)
	f.run(t, "frame", NewAddFrame(1, 0))
	f.run(t, "link", NewAddLinkedCel(f.layer, 1, f.cel(0).Data(), image.Point{}))

	edited := f.cel(0).Image().Copy()
	edited.SetPixel(3, 3, red)
	patch, err := NewPatchImage(f.cel(0).Data(), edited)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(3, 3, 4, 4), patch.Region().Bounds())

	f.run(t, "draw", patch)
	assert.Equal(t, red, f.cel(1).Image().Pixel(3, 3))
	assert.True(t, f.doc.Dirty().IsFrameDirty(1))
}

func TestFrameTableFollowsFrameCount(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.sprite()

	f.run(t, "durations", NewSetFrameDuration(s, 0, 70))
	f.run(t, "grow", NewAddFrame(1, 0), NewAddFrame(2, 30))
	assert.Equal(t, []int{70, 70, 30}, s.Durations())

	f.run(t, "drop", NewRemoveFrame(1))
	assert.Equal(t, []int{70, 30}, s.Durations())

	f.run(t, "resize", NewSetTotalFrames(4))
	assert.Equal(t, []int{70, 30, 30, 30}, s.Durations())

	for f.doc.CanUndo() {
		require.NoError(t, f.doc.Undo(ctx))
		assert.Len(t, s.Durations(), s.TotalFrames())
	}
	assert.Equal(t, 1, s.TotalFrames())
}

func TestRemoveLastFrameRefused(t *testing.T) {
	f := newFixture(t)
	err := f.doc.Transact(context.Background(), "remove", func(tx *engine.Transaction) error {
		return tx.Execute(NewRemoveFrame(0))
	})
	require.ErrorIs(t, err, sprite.ErrFrameOutOfRange)
	assert.NotNil(t, f.cel(0))
}

func TestBackgroundRules(t *testing.T) {
	f := newFixture(t)
	f.run(t, "layer", NewAddLayer(f.sprite().Root(), sprite.LayerImage, "Top", -1))
	top := f.sprite().LayerByName("Top")

	exec := func(cmd engine.Command) error {
		return f.doc.Transact(context.Background(), cmd.Label(), func(tx *engine.Transaction) error {
			return tx.Execute(cmd)
		})
	}

	require.ErrorIs(t, exec(NewBackgroundFromLayer(top)), sprite.ErrBackground, "not at the bottom")
	require.NoError(t, exec(NewBackgroundFromLayer(f.layer)))
	assert.Same(t, f.layer, f.sprite().Background())
	assert.Equal(t, BackgroundName, f.layer.Name())

	require.ErrorIs(t, exec(NewMoveLayer(top, f.sprite().Root(), 0)), sprite.ErrBackground)
	require.ErrorIs(t, exec(NewSetLayerFlags(f.layer, sprite.FlagVisible)), sprite.ErrBackground)
	var pe *sprite.PreconditionError
	require.ErrorAs(t, exec(NewLayerFromBackground(top, "x")), &pe)

	require.NoError(t, exec(NewLayerFromBackground(f.layer, "Layer 0")))
	assert.Nil(t, f.sprite().Background())
	assert.Zero(t, f.layer.Flags()&sprite.FlagLockMove)
}

func TestMoveLayerRefusesCycle(t *testing.T) {
	f := newFixture(t)
	f.run(t, "group", NewAddLayer(f.sprite().Root(), sprite.LayerGroup, "Outer", -1))
	outer := f.sprite().LayerByName("Outer")
	f.run(t, "group", NewAddLayer(outer, sprite.LayerGroup, "Inner", 0))
	inner := f.sprite().LayerByName("Inner")

	err := f.doc.Transact(context.Background(), "move", func(tx *engine.Transaction) error {
		return tx.Execute(NewMoveLayer(outer, inner, 0))
	})
	require.ErrorIs(t, err, sprite.ErrCycle)
	assert.Same(t, f.sprite().Root(), outer.Parent())
}

func TestSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var topics []string
	_, err := f.doc.Bus().Subscribe("doc.mask.*", func(_ context.Context, ev event.Event) error {
		topics = append(topics, ev.Topic.String())
		return nil
	})
	require.NoError(t, err)

	m := sprite.NewRectMask(image.Rect(0, 0, 2, 2))
	f.run(t, "select", NewSetMask(m))
	assert.Same(t, m, f.doc.Mask())

	f.run(t, "deselect", NewDeselectMask())
	assert.Nil(t, f.doc.Mask())

	require.NoError(t, f.doc.Undo(ctx))
	assert.Same(t, m, f.doc.Mask())
	require.NoError(t, f.doc.Undo(ctx))
	assert.Nil(t, f.doc.Mask())
	assert.Len(t, topics, 4)
}

func TestRemovedObjectsReleasedOnEviction(t *testing.T) {
	f := newFixture(t)
	f.doc.SetHistoryLimits(0, 1)
	celID := f.cel(0).ID()

	f.run(t, "remove", NewRemoveCel(f.cel(0)))
	assert.True(t, f.doc.Registry().IsDetached(celID))

	f.run(t, "rename", NewSetLayerName(f.layer, "x"))
	assert.False(t, f.doc.Registry().IsDetached(celID))
	assert.False(t, f.doc.Registry().IsLive(celID))
}

func TestUndoneCelsCountTowardHistoryBudget(t *testing.T) {
	ctx := context.Background()
	doc, err := engine.New(sprite.FormatRGB, 64, 64, engine.WithEviction(history.EvictAbandonedFirst))
	require.NoError(t, err)
	t.Cleanup(func() { _ = doc.Close() })

	add := NewAddLayer(doc.Sprite().Root(), sprite.LayerImage, "Layer 1", -1)
	require.NoError(t, doc.Transact(ctx, "setup", func(tx *engine.Transaction) error {
		return tx.Execute(add)
	}))
	layer, err := registry.Get[*sprite.Layer](doc.Registry(), add.LayerID())
	require.NoError(t, err)

	var cels []registry.ID
	for i := 1; i <= 5; i++ {
		frame := sprite.Frame(i)
		require.NoError(t, doc.Transact(ctx, "new frame", func(tx *engine.Transaction) error {
			if err := tx.Execute(NewAddFrame(frame, 0)); err != nil {
				return err
			}
			return tx.Execute(NewAddCel(layer, frame, nil, image.Point{}))
		}))
		cels = append(cels, layer.Cel(frame).ID())
	}

	img := layer.Cel(1).Image().State().MemSize()
	before := doc.HistorySize()
	require.Less(t, before, img, "applied cels live in the sprite, not the history")

	limit := before + 2*img + img/2
	doc.SetHistoryLimits(limit, 0)
	for range 5 {
		require.NoError(t, doc.Undo(ctx))
	}

	assert.LessOrEqual(t, doc.HistorySize(), limit)
	assert.Greater(t, doc.HistorySize(), 2*img, "undone cels keep their pixels in the history")
	assert.Len(t, doc.States(), 4, "the far end of the redo line was evicted")

	reg := doc.Registry()
	assert.True(t, reg.IsDetached(cels[0]))
	assert.True(t, reg.IsDetached(cels[1]))
	for _, id := range cels[2:] {
		assert.False(t, reg.IsDetached(id))
		assert.False(t, reg.IsLive(id))
	}

	require.NoError(t, doc.Redo(ctx))
	require.NoError(t, doc.Redo(ctx))
	assert.Equal(t, 3, doc.Sprite().TotalFrames())
	assert.Equal(t, cels[1], layer.Cel(2).ID())
	assert.Error(t, doc.Redo(ctx))
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var got []string
	_, err := f.doc.Bus().Subscribe("doc.cel.*", func(_ context.Context, ev event.Event) error {
		got = append(got, ev.Topic.String())
		return nil
	})
	require.NoError(t, err)

	f.run(t, "remove", NewRemoveCel(f.cel(0)))
	require.NoError(t, f.doc.Undo(ctx))
	require.NoError(t, f.doc.Redo(ctx))

	assert.Equal(t, []string{
		event.TopicCelRemoved.String(),
		event.TopicCelAdded.String(),
		event.TopicCelRemoved.String(),
	}, got)
}
