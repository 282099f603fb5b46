package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/pixelstorm/internal/engine"
	"github.com/dshills/pixelstorm/internal/engine/history"
)

// printHistory writes the undo tree of doc, one state per line. The
// current state is marked with "*" and states on the undo path with "+".
func printHistory(w io.Writer, doc *engine.Document) {
	states := doc.States()
	children := make(map[history.StateID][]history.StateInfo)
	var roots []history.StateInfo
	for _, st := range states {
		if st.Root {
			roots = append(roots, st)
			continue
		}
		children[st.Parent] = append(children[st.Parent], st)
	}

	var walk func(st history.StateInfo, depth int)
	walk = func(st history.StateInfo, depth int) {
		mark := " "
		switch {
		case st.Current:
			mark = "*"
		case st.Applied:
			mark = "+"
		}
		fmt.Fprintf(w, "%s %s%d %s\n", mark, strings.Repeat("  ", depth), st.ID, st.Label)
		for _, c := range children[st.ID] {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
}
