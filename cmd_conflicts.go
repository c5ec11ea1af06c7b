package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/model"
	lampsync "github.com/harrisonrobin/lamp/pkg/sync"
)

func conflictsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts waiting for a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := a.ledger()
			if err != nil {
				return err
			}
			entries := ledger.List()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conflicts.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tID\tKIND\tFIELDS\tLOCAL\tREMOTE\tDETECTED")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Source, e.EntityID, e.Kind, strings.Join(e.Fields, ","),
					label(e.Local), remoteLabel(e), e.Detected.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func label(f model.Fields) string {
	switch {
	case f == nil:
		return "(deleted)"
	case f.Get("title") != "":
		return f.Get("title")
	case f.Get("name") != "":
		return f.Get("name")
	}
	return f.Get("date")
}

func remoteLabel(e lampsync.Entry) string {
	if e.Remote == nil || e.Remote.Deleted {
		return "(deleted)"
	}
	return label(e.Remote.Fields)
}

func resolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <source> <id> <local|remote|discard>",
		Short: "Settle a conflict by keeping one side or dropping both",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := lampsync.ParseResolution(args[2])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, engine, err := a.session(ctx, args[:1])
			if err != nil {
				return err
			}
			if err := engine.Resolve(ctx, args[0], model.ID(args[1]), r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s/%s (%s)\n", args[0], args[1], r)
			return nil
		},
	}
}
