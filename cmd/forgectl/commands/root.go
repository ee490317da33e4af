// Package commands implements forgectl, the maintenance CLI for a forge
// data directory.
package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the CLI.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree. Flags override FORGE_* variables,
// which override the server's own environment configuration.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "forgectl",
		Short:         "Forge maintenance tool",
		Long:          `Inspects and maintains a forge data directory: build retention, app versions, PIN sessions and app seeding.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("data-dir", "", "Data directory (default from DATA_DIR)")
	flags.String("db-path", "", "SQLite database path (default <data-dir>/forge.db)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("json", false, "Print JSON output")
	for _, name := range []string{"data-dir", "db-path", "log-level", "json"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newPruneCmd(v),
		newScanCmd(v),
		newVersionsCmd(v),
		newSweepSessionsCmd(v),
		newSeedCmd(v),
	)
	return root
}
