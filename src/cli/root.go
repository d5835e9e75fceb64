package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mediatorpro/src/app"
	"mediatorpro/src/settings"
)

// EnvFile is the dotenv file read from the working directory.
const EnvFile = ".env"

// cmdEnv holds what the persistent pre-run built for the subcommand.
type cmdEnv struct {
	args *settings.Arguments
	app  *app.App
}

// storeAnnotation marks commands that run without opening the store.
const storeAnnotation = "store"

// newRootCommand builds the command tree. Commands open the store in the
// pre-run and close it afterwards unless annotated with storeAnnotation.
func newRootCommand() (*cobra.Command, *cmdEnv) {
	rt := &cmdEnv{args: settings.GetSettings()}

	rootCmd := &cobra.Command{
		Use:   "mediatorpro",
		Short: "MediatorPro local store maintenance",
		Long: `Maintenance commands for the MediatorPro local store: schema migration,
collection statistics, snapshot export and import, and task reports.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.args.Resolve(cmd.Flags(), EnvFile); err != nil {
				return err
			}
			if cmd.Annotations[storeAnnotation] == "none" {
				return nil
			}
			a, err := app.InitApp(rt.args, nil)
			if err != nil {
				return err
			}
			rt.app = a
			return a.Start(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.stop()
		},
	}
	rt.args.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newMigrateCmd(rt))
	rootCmd.AddCommand(newStatsCmd(rt))
	rootCmd.AddCommand(newExportCmd(rt))
	rootCmd.AddCommand(newImportCmd(rt))
	rootCmd.AddCommand(newClearCmd(rt))
	rootCmd.AddCommand(newOverdueCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	return rootCmd, rt
}

func (rt *cmdEnv) stop() error {
	if rt.app == nil {
		return nil
	}
	err := rt.app.Stop()
	rt.app = nil
	return err
}

// Execute runs the command line and closes the store even when a command
// fails. Cancelling ctx interrupts a running command.
func Execute(ctx context.Context) error {
	rootCmd, rt := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	if serr := rt.stop(); err == nil {
		err = serr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
