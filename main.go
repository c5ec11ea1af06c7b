package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/config"
	"github.com/harrisonrobin/lamp/pkg/credentials"
	"github.com/harrisonrobin/lamp/pkg/logging"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/snapshot"
	"github.com/harrisonrobin/lamp/pkg/store"
	lampsync "github.com/harrisonrobin/lamp/pkg/sync"
)

var Version = "dev"

func main() {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "lamp",
		Short:         "Keep org task files in sync with calendars and task servers",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.config/lamp/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log progress to stderr")

	rootCmd.AddCommand(parseCmd(a))
	rootCmd.AddCommand(fmtCmd(a))
	rootCmd.AddCommand(syncCmd(a))
	rootCmd.AddCommand(conflictsCmd(a))
	rootCmd.AddCommand(resolveCmd(a))
	rootCmd.AddCommand(watchCmd(a))
	rootCmd.AddCommand(authCmd(a))
	rootCmd.AddCommand(hookCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		a.close()
		os.Exit(1)
	}
}

// app holds what every command shares.
type app struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	logs    *logging.Logs
	secrets *credentials.Store
	closers []func()
}

func (a *app) init() error {
	var err error
	if a.configPath != "" {
		a.cfg, err = config.LoadFile(a.configPath)
	} else {
		a.cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.verbose {
		a.cfg.Log.Verbose = true
	}
	model.CostMax = a.cfg.CostMax
	a.logs = logging.New(a.cfg.Log)
	a.closers = append(a.closers, func() { a.logs.Close() })

	a.secrets, err = credentials.Open(credentials.Options{Backend: a.cfg.Keyring.Backend, Dir: a.cfg.KeyringDir()})
	return err
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) layout() store.Layout {
	return store.Layout{Dir: a.cfg.OrgDirectory, Lists: a.cfg.Lists}
}

// workspace loads the org collection, reporting anomalies as warnings.
func (a *app) workspace() (*store.Workspace, error) {
	logger := a.logs.Logger("store")
	ws, diags, err := store.Load(a.layout(), store.Options{
		Today:      time.Now(),
		Vocabulary: a.cfg.Vocabulary(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	for _, d := range diags {
		logger.Printf("WARNING: %s", d)
	}
	return ws, nil
}

// adapters builds the adapters of the named sources, or of every configured
// source when names is empty.
func (a *app) adapters(ctx context.Context, names []string) (*adapter.Set, error) {
	sources := a.cfg.Sources
	if len(names) > 0 {
		sources = nil
		for _, name := range names {
			src, ok := a.cfg.Source(name)
			if !ok {
				return nil, fmt.Errorf("unknown source %q", name)
			}
			sources = append(sources, src)
		}
	}
	set := adapter.NewSet()
	for _, src := range sources {
		ad, err := adapter.New(ctx, src.Adapter(), adapter.Env{
			Secrets:  a.secrets,
			StateDir: a.cfg.StateDir,
			Logger:   a.logs.Logger(src.Name),
		})
		if err != nil {
			return nil, err
		}
		set.Add(ad)
	}
	return set, nil
}

// engine opens the snapshot store and conflict ledger and builds the sync
// engine over ws.
func (a *app) engine(ws *store.Workspace, adapters *adapter.Set) (*lampsync.Engine, error) {
	if err := os.MkdirAll(a.cfg.SnapshotDir(), 0o700); err != nil {
		return nil, err
	}
	snaps, err := snapshot.Open(a.cfg.Snapshot.Backend, a.cfg.SnapshotDir())
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { snaps.Close() })
	ledger, err := a.ledger()
	if err != nil {
		return nil, err
	}
	return lampsync.New(ws, snaps, ledger, adapters, lampsync.Options{
		StateDir: a.cfg.StateDir,
		Logger:   a.logs.Logger("sync"),
	}), nil
}

func (a *app) ledger() (*lampsync.Ledger, error) {
	return lampsync.OpenLedger(filepath.Join(a.cfg.StateDir, "conflicts.json"))
}
