package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSweepSessionsCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-sessions",
		Short: "Delete expired and revoked PIN sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer e.Close()

			n, err := e.sessions.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), map[string]int{"swept": n}, func(w io.Writer) {
				fmt.Fprintf(w, "swept %d sessions\n", n)
			})
		},
	}
}
