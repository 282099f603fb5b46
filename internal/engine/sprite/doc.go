// Package sprite implements the document data model edited by the engine.
//
// A Sprite owns a tree of layers rooted in a group layer, an ordered list of
// palettes and a frame-duration table. Image layers hold cels, at most one
// per frame. A cel points to cel data, which owns exactly one image:
//
//	Sprite ─┬─ Layer (group, root)
//	        │    ├─ Layer (image) ─── Cel(frame 0) ──┐
//	        │    │                 └─ Cel(frame 1) ──┴─▶ CelData ─▶ Image
//	        │    └─ Layer (group) ...
//	        ├─ Palette(frame 0), Palette(frame n) ...
//	        └─ durations[totalFrames]
//
// Two cels pointing at the same cel data are linked. Cel data keeps an
// explicit count of the attached cels that reference it, so the moment the
// last link goes away is visible to the command that caused it.
//
// Every sprite, layer, cel, cel data, image and palette is registered in a
// registry.Registry when constructed. Each type also has a value State that
// captures its fields; Restore functions rebuild an object from a state
// under its original ID so commands can resurrect destroyed objects on undo.
//
// The package performs no undo bookkeeping. Mutating methods are the
// primitives used by commands and by persistence.
package sprite
