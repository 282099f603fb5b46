// Package history provides reversible commands and a branching undo history.
//
// The package is generic over the command target C, normally the document
// being edited, so it has no dependency on the document model.
//
// # Commands and steps
//
// A Command implements OnExecute, OnUndo, Label and MemSize, and may add
// OnRedo, OnFireNotifications and OnDispose through the Redoer, Notifier and
// Disposer interfaces. A Step drives one command through
//
//	NotExecuted → Executed → Undone → (Redone ⇄ Undone)*
//
// Calling Execute, Undo or Redo out of order panics with a ProtocolError.
//
// # Sequences
//
// A Sequence is itself a Command holding ordered steps. ExecuteAndAdd
// executes a child immediately and records it, so a multi-step edit is
// visible as it is built yet undoes and redoes as one unit:
//
//	seq := history.NewSequence[*Doc]("Flatten")
//	if err := seq.ExecuteAndAdd(doc, removeCel); err != nil { ... }
//	if err := seq.ExecuteAndAdd(doc, addCel); err != nil { ... }
//
// # History tree
//
// History keeps committed steps as a tree. Adding while an earlier state is
// current starts a branch; Redo follows the most recently visited child and
// MoveTo reaches any retained state through the lowest common ancestor.
//
// A memory budget and an entry limit bound the tree. Entry sizes are
// re-read after each undo and redo. When either limit is exceeded, entries are disposed according to the EvictionPolicy. The
// current state is never evicted; once the base of the current line is gone
// CanUndo reports false at the new root.
package history
