package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newStatsCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show stash statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := root.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := svc.Stats(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			root.renderer(cmd).Stats(stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}
