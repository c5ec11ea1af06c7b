package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/taskwarrior"
)

// hookCmd is installed as a taskwarrior on-add and on-modify hook. It answers
// taskwarrior at once and leaves the sync to a detached child.
func hookCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hook [source]",
		Short: "Taskwarrior hook: echo the task and sync in the background",
		Long: "Install as ~/.task/hooks/on-add.lamp and on-modify.lamp. The hook reads the\n" +
			"tasks taskwarrior sends on stdin, echoes the last one as required by the hook\n" +
			"protocol and starts 'lamp sync' for the taskwarrior source in the background.",
		Args: cobra.MaximumNArgs(1),
		// Taskwarrior must get its answer even when the config is broken.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			// FOREGROUND: read tasks, print to stdout, spawn background, exit.
			twTasks, err := taskwarrior.NewClient().ParseTasks(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("error parsing tasks from stdin: %w", err)
			}
			if len(twTasks) == 0 {
				return nil
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(twTasks[len(twTasks)-1]); err != nil {
				return fmt.Errorf("error encoding task to stdout: %w", err)
			}

			if err := a.init(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "lamp: sync skipped: %v\n", err)
				return nil
			}
			source := ""
			if len(args) > 0 {
				source = args[0]
			} else {
				for _, s := range a.cfg.Sources {
					if strings.EqualFold(s.Type, "taskwarrior") {
						source = s.Name
						break
					}
				}
			}
			if source == "" {
				return nil
			}
			if err := a.spawnSync(source); err != nil {
				a.logs.Logger("hook").Printf("ERROR: %v", err)
			}
			return nil
		},
	}
}

// spawnSync starts a detached "lamp sync source".
func (a *app) spawnSync(source string) error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not find self: %w", err)
	}
	args := []string{"sync", source}
	if a.configPath != "" {
		args = append([]string{"--config", a.configPath}, args...)
	}
	cmd := exec.Command(self, args...)
	cmd.Stdin = nil
	cmd.Stdout = nil // Silence in background
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not start background sync: %w", err)
	}
	return cmd.Process.Release()
}
