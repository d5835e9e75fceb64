package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mediatorpro/src/catalog"
	"mediatorpro/src/helpers"
)

func newMigrateCmd(rt *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Open the store and bring its schema up to date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db := rt.app.Database
			tables, indexes, err := db.ObjectNames(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is at schema version %d\n", db.Config().Path(), db.Config().Version)
			fmt.Fprintf(out, "Collections (%d): %s\n", len(tables), strings.Join(tables, ", "))
			fmt.Fprintf(out, "Indexes (%d): %s\n", len(indexes), strings.Join(indexes, ", "))
			return nil
		},
	}
}

func newStatsCmd(rt *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the number of records in each collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "COLLECTION\tRECORDS")
			for _, name := range catalog.StoreNames() {
				st, _ := catalog.StoreByName(name)
				n, err := st.Count(cmd.Context(), rt.app.Database)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%d\n", name, n)
			}
			return w.Flush()
		},
	}
}

func newExportCmd(rt *cmdEnv) *cobra.Command {
	var dir, passphrase string
	cmd := &cobra.Command{
		Use:   "export [collection...]",
		Short: "Export collections to bundle files",
		Long:  "Export the named collections, or every collection, to <dir>/<collection>.bundle.",
		RunE: func(cmd *cobra.Command, names []string) error {
			counts := make(map[string]int)
			if len(names) == 0 {
				var err error
				if counts, err = rt.app.Snapshots.ExportAll(cmd.Context(), dir, passphrase); err != nil {
					return err
				}
			}
			for _, name := range names {
				n, err := rt.app.Snapshots.Export(cmd.Context(), name, dir, passphrase)
				if err != nil {
					return err
				}
				counts[name] = n
			}
			printCounts(cmd, "Exported", counts)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./snapshots", "Directory to write bundle files to")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Seal bundles with this passphrase")
	return cmd
}

func newImportCmd(rt *cmdEnv) *cobra.Command {
	var dir, passphrase string
	var clear bool
	cmd := &cobra.Command{
		Use:   "import [collection...]",
		Short: "Import collections from bundle files",
		Long:  "Import the named collections, or every collection with a bundle file, from <dir>.",
		RunE: func(cmd *cobra.Command, names []string) error {
			counts := make(map[string]int)
			if len(names) == 0 {
				var err error
				if counts, err = rt.app.Snapshots.ImportAll(cmd.Context(), dir, passphrase, clear); err != nil {
					return err
				}
			}
			for _, name := range names {
				n, err := rt.app.Snapshots.Import(cmd.Context(), name, dir, passphrase, clear)
				if err != nil {
					return err
				}
				counts[name] = n
			}
			printCounts(cmd, "Imported", counts)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "./snapshots", "Directory to read bundle files from")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Passphrase for sealed bundles")
	cmd.Flags().BoolVar(&clear, "clear", false, "Empty each collection before importing")
	return cmd
}

func newClearCmd(rt *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <collection>",
		Short: "Remove every record from one collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, ok := catalog.StoreByName(args[0])
			if !ok {
				return fmt.Errorf("unknown collection %q (one of: %s)", args[0], strings.Join(catalog.StoreNames(), ", "))
			}
			if err := st.Clear(cmd.Context(), rt.app.Database); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", st.Name())
			return nil
		},
	}
}

func newOverdueCmd(rt *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open tasks that are past due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tasks, err := rt.app.Services.TaskService.Overdue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tasks) == 0 {
				fmt.Fprintf(out, "No overdue tasks as of %s.\n", helpers.Today(time.Now()))
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DUE\tSTATUS\tPRIORITY\tTITLE\tID")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.DueDate, t.Status, t.Priority, t.Title, t.ID)
			}
			return w.Flush()
		},
	}
}

func newConfigCmd(rt *cmdEnv) *cobra.Command {
	return &cobra.Command{
		Use:         "config",
		Short:       "Print the effective settings as YAML",
		Long:        "Print the settings after merging defaults, config file, environment and flags. The output can be used as a --config file.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{storeAnnotation: "none"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.args.WriteYAML(cmd.OutOrStdout())
		},
	}
}

func printCounts(cmd *cobra.Command, verb string, counts map[string]int) {
	out := cmd.OutOrStdout()
	for _, name := range catalog.StoreNames() {
		if n, ok := counts[name]; ok {
			fmt.Fprintf(out, "%s %d %s\n", verb, n, name)
		}
	}
}
