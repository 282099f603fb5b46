package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/commands"
	"github.com/dshills/pixelstorm/internal/engine/docapi"
	"github.com/dshills/pixelstorm/internal/engine/sprite"
)

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Link a cel into a new frame, undo it all, redo it all, and print the history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.demo(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func (a *app) demo(ctx context.Context, w io.Writer) error {
	doc, err := docapi.NewSprite(sprite.FormatRGB, 32, 32, a.documentOptions()...)
	if err != nil {
		return err
	}
	defer doc.Close()
	if err := applyHistory(doc, a.cfg); err != nil {
		return err
	}

	layer := doc.Sprite().Layers()[0]
	exec := func(cmd engine.Command) error {
		return doc.Transact(ctx, cmd.Label(), func(tx *engine.Transaction) error {
			return tx.Execute(cmd)
		})
	}
	report := func(step string) {
		s := doc.Sprite()
		fmt.Fprintf(w, "%-22s layers=%d frames=%d", step, len(s.Layers()), s.TotalFrames())
		if c := layer.Cel(1); c != nil {
			fmt.Fprintf(w, " cel2.opacity=%d linked=%t", c.Opacity(), c.IsLinked())
		}
		fmt.Fprintln(w)
	}

	report("start")
	if err := exec(commands.NewAddFrame(1, 0)); err != nil {
		return err
	}
	report("add frame")
	src := layer.Cel(0)
	if err := exec(commands.NewAddLinkedCel(layer, 1, src.Data(), src.Position())); err != nil {
		return err
	}
	report("link cel")
	if err := exec(commands.NewSetCelOpacity(layer.Cel(1), 128)); err != nil {
		return err
	}
	report("set opacity")

	for range 3 {
		if err := doc.Undo(ctx); err != nil {
			return err
		}
	}
	report("undo x3")
	for range 3 {
		if err := doc.Redo(ctx); err != nil {
			return err
		}
	}
	report("redo x3")
	if layer.Cel(0).Data() != layer.Cel(1).Data() {
		return fmt.Errorf("cels lost their link after redo")
	}

	// Branch: undo the opacity change and make another edit instead.
	if err := doc.Undo(ctx); err != nil {
		return err
	}
	if err := exec(commands.NewSetFrameDuration(doc.Sprite(), 1, 40)); err != nil {
		return err
	}
	report("branch")

	fmt.Fprintln(w, "\nhistory:")
	printHistory(w, doc)
	return nil
}
