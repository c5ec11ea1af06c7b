package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/convert"
	"github.com/harrisonrobin/lamp/pkg/store"
	lampsync "github.com/harrisonrobin/lamp/pkg/sync"
)

// session loads the workspace and builds an engine over the named sources.
func (a *app) session(ctx context.Context, sources []string) (*store.Workspace, *lampsync.Engine, error) {
	ws, err := a.workspace()
	if err != nil {
		return nil, nil, err
	}
	adapters, err := a.adapters(ctx, sources)
	if err != nil {
		return nil, nil, err
	}
	if len(adapters.Names()) == 0 {
		return nil, nil, errors.New("no sources configured")
	}
	engine, err := a.engine(ws, adapters)
	if err != nil {
		return nil, nil, err
	}
	return ws, engine, nil
}

func printResults(cmd *cobra.Command, results []*lampsync.Result, engine *lampsync.Engine) {
	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintln(out, r)
	}
	if n := len(engine.Ledger().List()); n > 0 {
		fmt.Fprintf(out, "%d conflict(s) pending, see 'lamp conflicts'\n", n)
	}
}

func syncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [source...]",
		Short: "Sync the org files with the given sources, or with all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, engine, err := a.session(ctx, args)
			if err != nil {
				return err
			}
			results, err := engine.RunAll(ctx)
			printResults(cmd, results, engine)
			if errors.Is(err, lampsync.ErrSyncInProgress) {
				a.logs.Logger("sync").Printf("another sync is running, skipped")
				return nil
			}
			return err
		},
	}
}

func watchCmd(a *app) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync whenever an org file changes, and periodically",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, engine, err := a.session(ctx, nil)
			if err != nil {
				return err
			}
			logger := a.logs.Logger("watch")
			run := func() {
				results, err := engine.RunAll(ctx)
				printResults(cmd, results, engine)
				if err != nil && ctx.Err() == nil {
					logger.Printf("ERROR: %v", err)
				}
			}

			// reload reports whether f's entities changed, judging day plan
			// staleness against the current date.
			reload := func(f store.File) bool {
				changed, diags, err := ws.Reload(f.Name, time.Now())
				if err != nil {
					logger.Printf("ERROR: reload %s: %v", filepath.Join(ws.Layout().Dir, f.Name), err)
					return false
				}
				for _, d := range diags {
					logger.Printf("WARNING: %s", d)
				}
				return changed
			}

			changes := make(chan store.File, 16)
			watchErr := make(chan error, 1)
			go func() {
				watchErr <- ws.Layout().Watch(ctx, func(f store.File) {
					select {
					case changes <- f:
					default:
					}
				})
			}()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			run()
			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-watchErr:
					if ctx.Err() != nil {
						return nil
					}
					return err
				case f := <-changes:
					if reload(f) {
						run()
					}
				case <-ticker.C:
					for _, f := range ws.Layout().Files() {
						if f.Kind == convert.DayPlan {
							reload(f)
						}
					}
					run()
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 15*time.Minute, "time between periodic syncs")
	return cmd
}
