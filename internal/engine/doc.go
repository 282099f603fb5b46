// Package engine provides the document editing core of pixelstorm.
//
// A Document owns a sprite (see package sprite), a branching undo history
// (package history), the current selection mask and a try-lock gating
// concurrent access. The sprite is only changed through reversible commands
// (package commands) issued into a Transaction:
//
//	err := doc.Transact(ctx, "Move cel", func(tx *engine.Transaction) error {
//		return tx.Execute(commands.NewSetCelPosition(cel, image.Pt(4, 4)))
//	})
//
// Each command runs as soon as it is executed, so later commands in the
// same transaction see its effect. Commit records the whole transaction as
// one history entry; if the function fails or panics, everything it did is
// rolled back and the document is observably unchanged.
//
// # History
//
// Undo, Redo and MoveTo replay recorded commands. Commands refer to sprite
// objects by registry ID and resolve them when they run, so an object
// destroyed by one command and recreated by its undo is still found by the
// commands recorded after it.
//
// # Locking
//
// No call blocks. Transact, Undo, Redo, MoveTo and Close take the write lock
// on the first try and return ErrLocked otherwise. Background readers such
// as the preview renderer and the autosaver use ReadWait, which retries the
// read lock at a limited rate until its context ends.
//
// # Persistence
//
// Open decodes a sprite directly into a new document with an empty history;
// Encode serializes it. MarkSaved and IsModified compare the current history
// state against the one last saved.
package engine
