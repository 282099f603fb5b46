package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/pixelstorm/internal/autosave"
)

func newSnapshotsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List autosaved documents and their snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("autosave is disabled")
			}
			defer store.Close()
			return listSnapshots(cmd.OutOrStdout(), store)
		},
	}
}

func listSnapshots(w io.Writer, store *autosave.Store) error {
	docs, err := store.Documents()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tSEQ\tSTATE\tTAKEN")
	for _, doc := range docs {
		snaps, err := store.List(doc)
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", doc, s.Seq, s.State, s.Time.Format(time.RFC3339))
		}
	}
	return tw.Flush()
}
