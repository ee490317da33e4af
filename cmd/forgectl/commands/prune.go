package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thesara-space/forge/internal/domain/maintenance"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Report build directories and what could be reclaimed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.sweeper.Scan(cmd.Context())
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) })
		},
	}
}

func newPruneCmd(v *viper.Viper) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete orphaned build directories",
		Long: `Delete build directories no app references and no running build owns.
Without --confirm nothing is deleted and the report is a dry run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.sweeper.Prune(cmd.Context(), confirm)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), report, func(w io.Writer) { printReport(w, report) })
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "Actually delete reclaimable builds")
	return cmd
}

func printReport(w io.Writer, r *maintenance.Report) {
	fmt.Fprintf(w, "builds:      %d\n", r.TotalBuilds)
	fmt.Fprintf(w, "referenced:  %d\n", r.ReferencedBuilds)
	fmt.Fprintf(w, "orphaned:    %d\n", r.OrphanedBuilds)
	fmt.Fprintf(w, "reclaimable: %d (%s)\n", len(r.Reclaimable), humanBytes(r.ReclaimableBytes))
	if r.DryRun {
		if len(r.Reclaimable) > 0 {
			fmt.Fprintln(w, "dry run, pass --confirm to delete:")
			for _, id := range r.Reclaimable {
				fmt.Fprintf(w, "  %s\n", id)
			}
		}
		return
	}
	fmt.Fprintf(w, "pruned:      %d (%s)\n", len(r.Pruned), humanBytes(r.PrunedBytes))
}
