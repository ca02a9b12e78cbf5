package cmd

import (
	"github.com/spf13/cobra"
)

func newScanCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Check index integrity and repair drift",
		Long: `Compare the document store against both search indexes.

Documents missing from either index are re-indexed from their stored
content. Run this after a crash or an interrupted batch import.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, _, err := root.openService(ctx)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.Scan(ctx)
			if err != nil {
				return err
			}
			root.renderer(cmd).ScanReport(report)
			return nil
		},
	}
}
