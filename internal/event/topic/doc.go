// Package topic defines hierarchical event names and wildcard matching.
//
// Topics use dot notation:
//
//	doc.cel.added
//	doc.layer.moved
//	doc.history.undone
//
// Patterns may use "*" for exactly one segment and "**" for zero or more:
//
//	doc.cel.*    matches doc.cel.added, doc.cel.removed
//	doc.**       matches every document topic
//	*.history.*  matches doc.history.undone
package topic
