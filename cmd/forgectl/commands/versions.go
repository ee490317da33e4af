package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesara-space/forge/internal/domain/registry"
)

func newVersionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "versions <app-id>",
		Short: "Show an app's current, pending and archived builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer e.Close()

			versions, err := e.apps.ListVersions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), versions, func(w io.Writer) { printVersions(w, versions) })
		},
	}
}

func printVersions(w io.Writer, vs *registry.Versions) {
	fmt.Fprintf(w, "app: %s\n", vs.AppID)
	if vs.Current != nil {
		fmt.Fprintf(w, "current:  v%d %s\n", vs.Current.Version, vs.Current.BuildID)
	} else {
		fmt.Fprintln(w, "current:  none")
	}
	if vs.Pending != "" {
		fmt.Fprintf(w, "pending:  %s\n", vs.Pending)
	}
	for _, a := range vs.Archived {
		fmt.Fprintf(w, "archived: v%d %s\n", a.Version, a.BuildID)
	}
}
