package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesara-space/forge/internal/domain/registry"
)

func newSeedCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <dir>",
		Short: "Load app definitions (YAML or JSON) into the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer e.Close()

			loaded, failed, err := registry.NewSeeder(e.apps, args[0], e.logger).Seed(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]int{"loaded": loaded, "failed": failed}
			if err := e.print(cmd.OutOrStdout(), out, func(w io.Writer) {
				fmt.Fprintf(w, "loaded %d apps, %d failed\n", loaded, failed)
			}); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d app definitions failed to load", failed)
			}
			return nil
		},
	}
}
