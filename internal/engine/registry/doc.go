// Package registry maps stable object identifiers to live document objects.
//
// Commands never hold raw pointers to sprite objects across calls. They store
// an ID and resolve it through the registry every time they execute, undo or
// redo, because an intervening command may have destroyed the object and a
// later one recreated it under the same ID.
//
// # Generational slots
//
// The registry is a slot arena. An ID packs a slot index and a generation:
//
//	id := registry.MakeID(index, generation)
//
// Releasing a slot bumps its generation, so a full ID value is never handed
// out twice and a lookup through a stale ID fails with ErrStale instead of
// returning an unrelated object.
//
// # Slot lifecycle
//
//	free ──Allocate──▶ reserved ──Attach──▶ live ◀──Attach── detached
//	  ▲                   │                   │                 ▲
//	  └──────Release──────┴───────────────────┼──Detach─────────┘
//	  ▲                                       │
//	  └───────────────Release─────────────────┘ (only from detached)
//
// A detached slot belongs to a command that removed the object from the
// document and may resurrect it on undo. The command releases the slot when
// it is disposed.
package registry
