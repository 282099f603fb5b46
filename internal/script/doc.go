// Package script runs Lua automation against a document.
//
// A Host owns one sandboxed gopher-lua state. Only the base, table, string
// and math libraries are opened; file loaders are removed and print writes
// to the host's output. The global "sprite" table exposes the document:
//
//	local l = sprite.add_layer("Ink")
//	sprite.add_frame()
//	l:add_cel(2)
//	l:cel(2):fill(0, 0, 4, 4, sprite.rgba(255, 0, 0))
//	sprite.undo()
//
// Frames are numbered from 1 in Lua. Layers and cels are handles that
// hold an object ID, so a handle taken before an undo works again once a
// redo restores its object.
//
// Every mutating call is its own undo step unless it runs inside
// sprite.transaction(label, fn), which groups the edits of fn into one
// step and rolls all of them back if fn raises an error.
//
// sprite.on(pattern, fn) calls fn with the topic of each matching document
// event, after the edit that caused it has finished.
package script
