package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lamp/pkg/convert"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
	"github.com/harrisonrobin/lamp/pkg/store"
)

func parseCmd(a *app) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "parse [file...]",
		Short: "Check org files and report what they hold",
		Long: "Parse org files, report malformed constructs and field values that could not be read,\n" +
			"and check that writing a file back reproduces it exactly. Without arguments every file\n" +
			"of the collection is checked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := a.layout()
			paths := args
			if len(paths) == 0 {
				for _, f := range layout.Files() {
					if _, err := os.Stat(layout.Path(f)); err == nil {
						paths = append(paths, layout.Path(f))
					}
				}
			}
			problems := 0
			for _, path := range paths {
				f, ok := layout.File(filepath.Base(path))
				if !ok || kind != "" {
					f = store.File{Name: filepath.Base(path), Kind: convert.FileKind(kind)}
					if kind == "" {
						f.Kind = convert.Inbox
					}
				}
				n, err := a.check(cmd, path, f)
				if err != nil {
					return err
				}
				problems += n
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "file role (inbox, next, waiting, someday, archive, projects, habits, list, dayplan)")
	return cmd
}

func (a *app) check(cmd *cobra.Command, path string, f store.File) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	out := cmd.OutOrStdout()
	text := string(data)
	doc, diags := orgmode.Parse(text, orgmode.Options{Vocabulary: a.cfg.Vocabulary()})
	problems := len(diags)
	for _, d := range diags {
		fmt.Fprintf(out, "%s: %s\n", path, d)
	}
	if orgmode.Write(doc) != text {
		fmt.Fprintf(out, "%s: does not round-trip\n", path)
		problems++
	}

	entities, anomalies := convert.ToDomain(f.Kind, doc, convert.Options{
		Today:      time.Now(),
		Vocabulary: a.cfg.Vocabulary(),
		List:       f.List,
	})
	for _, an := range anomalies {
		fmt.Fprintf(out, "%s: %s\n", path, an)
	}
	problems += len(anomalies)

	counts := make(map[model.Kind]int)
	for _, e := range entities {
		counts[e.Kind()]++
	}
	kinds := make([]string, 0, len(counts))
	for k, n := range counts {
		kinds = append(kinds, fmt.Sprintf("%d %s", n, k))
	}
	sort.Strings(kinds)
	fmt.Fprintf(out, "%s: %s, %d heading(s) %v\n", path, f.Kind, len(doc.Headings), kinds)
	return problems, nil
}

func fmtCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fmt",
		Short: "Assign missing IDs and create the missing files of the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			if err := ws.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entities in %s\n", len(ws.All()), ws.Layout().Dir)
			return nil
		},
	}
}
