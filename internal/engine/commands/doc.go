// Package commands holds the primitive reversible edits of a sprite
// document.
//
// Every command refers to sprite objects by registry ID and resolves them
// when it runs, so a command stays valid after the objects it touches have
// been removed and restored by other commands. Commands that delete objects
// keep their value form (a State) and detach the IDs instead of freeing
// them; undo restores the objects under the same IDs and OnDispose frees
// whatever is still detached when the command leaves history.
//
// Commands are run through an engine.Transaction:
//
//	err := doc.Transact(ctx, "Draw", func(tx *engine.Transaction) error {
//		cmd, err := commands.NewPatchImage(cel.Data(), edited)
//		if err != nil {
//			return err
//		}
//		return tx.Execute(cmd)
//	})
//
// Property changes (names, opacity, positions, durations) swap one value
// between the command and the document, so execute, undo and redo are the
// same operation. Structural commands that remove many objects, such as
// RemoveFrame and RemoveLayer, build an inner history.Sequence of
// RemoveCel steps.
package commands
